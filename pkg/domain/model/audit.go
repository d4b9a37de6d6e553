package model

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/types"
)

// AuditOperation is derived from which snapshots an entry carries
type AuditOperation string

const (
	AuditCreate AuditOperation = "create"
	AuditUpdate AuditOperation = "update"
	AuditDelete AuditOperation = "delete"
)

// AuditLogEntry is an immutable before/after record of one mutation. The acting user is carried by
// the snapshots themselves (updatedBy, assignedBy, deactivatedBy, author).
type AuditLogEntry struct {
	ID        string          `json:"id"`
	TableName types.TableName `json:"tableName"`
	Timestamp time.Time       `json:"timestamp"`
	Old       json.RawMessage `json:"old"`
	New       json.RawMessage `json:"new"`
}

// NewAuditLogEntry builds an entry from already encoded snapshots. Absent snapshots are nil.
func NewAuditLogEntry(table types.TableName, oldSnap, newSnap json.RawMessage, at time.Time) (*AuditLogEntry, error) {
	if !table.IsValid() {
		return nil, goerr.Wrap(ErrValidation, "unknown audit table", goerr.V(TableNameKey, table))
	}
	if oldSnap == nil && newSnap == nil {
		return nil, goerr.Wrap(ErrValidation, "audit entry requires an old or a new snapshot",
			goerr.V(TableNameKey, table))
	}
	for _, snap := range []json.RawMessage{oldSnap, newSnap} {
		if snap != nil && !json.Valid(snap) {
			return nil, goerr.Wrap(ErrValidation, "audit snapshot is not valid JSON", goerr.V(TableNameKey, table))
		}
	}

	return &AuditLogEntry{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TableName: table,
		Timestamp: at.UTC(),
		Old:       oldSnap,
		New:       newSnap,
	}, nil
}

// Snapshot encodes v for an audit entry. A nil value, including a typed nil pointer, is an absent
// snapshot and yields nil.
func Snapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, goerr.Wrap(ErrValidation, "failed to encode audit snapshot", goerr.V("error", err.Error()))
	}
	return data, nil
}

// Operation reports whether the entry records a creation, update or deletion
func (e *AuditLogEntry) Operation() AuditOperation {
	switch {
	case e.Old == nil:
		return AuditCreate
	case e.New == nil:
		return AuditDelete
	default:
		return AuditUpdate
	}
}

// Clone returns a deep copy
func (e *AuditLogEntry) Clone() *AuditLogEntry {
	if e == nil {
		return nil
	}
	copied := *e
	if e.Old != nil {
		copied.Old = append(json.RawMessage(nil), e.Old...)
	}
	if e.New != nil {
		copied.New = append(json.RawMessage(nil), e.New...)
	}
	return &copied
}

// CompareAuditEntries orders entries by timestamp, then by ID
func CompareAuditEntries(a, b *AuditLogEntry) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// AuditQuery selects audit entries. An empty TableName matches all tables; bounds are inclusive.
type AuditQuery struct {
	TableName types.TableName
	From      *time.Time
	To        *time.Time
	Limit     int
}

// Validate checks the table name and time window
func (q AuditQuery) Validate() error {
	if q.TableName != "" && !q.TableName.IsValid() {
		return goerr.Wrap(ErrValidation, "unknown audit table", goerr.V(TableNameKey, q.TableName))
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return goerr.Wrap(ErrValidation, "from must not be after to")
	}
	if q.Limit < 0 {
		return goerr.Wrap(ErrValidation, "limit must not be negative", goerr.V("limit", q.Limit))
	}
	return nil
}

// Match reports whether e satisfies the query, ignoring Limit
func (q AuditQuery) Match(e *AuditLogEntry) bool {
	if q.TableName != "" && e.TableName != q.TableName {
		return false
	}
	if q.From != nil && e.Timestamp.Before(*q.From) {
		return false
	}
	if q.To != nil && e.Timestamp.After(*q.To) {
		return false
	}
	return true
}
