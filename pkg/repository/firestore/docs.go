package firestore

import (
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
)

func docID(id int64) string {
	return fmt.Sprintf("%d", id)
}

// incidentDoc stores the payload as its JSON text so key order survives the round trip
type incidentDoc struct {
	ID          int64
	CaseID      *int64
	ExecutionID *int64
	Data        string
	CreatedBy   string
	UpdatedBy   string
	ArchivedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func toIncidentDoc(inc *model.Incident) (*incidentDoc, error) {
	data := "{}"
	if !inc.Data.IsZero() {
		raw, err := inc.Data.MarshalJSON()
		if err != nil {
			return nil, goerr.Wrap(err, "failed to encode incident data", goerr.V(model.IncidentIDKey, inc.ID))
		}
		data = string(raw)
	}

	c := inc.Clone()
	return &incidentDoc{
		ID:          c.ID,
		CaseID:      c.CaseID,
		ExecutionID: c.ExecutionID,
		Data:        data,
		CreatedBy:   c.CreatedBy.String(),
		UpdatedBy:   c.UpdatedBy.String(),
		ArchivedAt:  c.ArchivedAt,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}, nil
}

func (d *incidentDoc) toModel() (*model.Incident, error) {
	doc, err := model.ParseDocument([]byte(d.Data))
	if err != nil {
		return nil, goerr.Wrap(err, "stored incident data is not a JSON object", goerr.V(model.IncidentIDKey, d.ID))
	}
	inc := &model.Incident{
		ID:          d.ID,
		CaseID:      d.CaseID,
		ExecutionID: d.ExecutionID,
		Data:        doc,
		CreatedBy:   types.ActorID(d.CreatedBy),
		UpdatedBy:   types.ActorID(d.UpdatedBy),
		ArchivedAt:  d.ArchivedAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	return inc.Clone(), nil
}

// activePointer marks the single active assignment of an incident. Its document ID is the incident
// ID, so concurrent transactions assigning the same incident contend on one document.
type activePointer struct {
	AssignmentID string
	CaseID       int64
}

type auditDoc struct {
	ID        string
	TableName string
	Timestamp time.Time
	Old       *string
	New       *string
}

func toAuditDoc(e *model.AuditLogEntry) *auditDoc {
	d := &auditDoc{
		ID:        e.ID,
		TableName: e.TableName.String(),
		Timestamp: e.Timestamp,
	}
	if e.Old != nil {
		s := string(e.Old)
		d.Old = &s
	}
	if e.New != nil {
		s := string(e.New)
		d.New = &s
	}
	return d
}

func (d *auditDoc) toModel() *model.AuditLogEntry {
	e := &model.AuditLogEntry{
		ID:        d.ID,
		TableName: types.TableName(d.TableName),
		Timestamp: d.Timestamp.UTC(),
	}
	if d.Old != nil {
		e.Old = []byte(*d.Old)
	}
	if d.New != nil {
		e.New = []byte(*d.New)
	}
	return e
}
