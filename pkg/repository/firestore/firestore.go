package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
)

type Firestore struct {
	client           *firestore.Client
	collectionPrefix string
	maxAttempts      int
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.collectionPrefix = prefix
	}
}

// WithMaxAttempts bounds how many times a contended transaction is retried
func WithMaxAttempts(n int) Option {
	return func(f *Firestore) {
		f.maxAttempts = n
	}
}

func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, model.WrapPersistence(err, "failed to create firestore client",
			goerr.V("projectID", projectID), goerr.V("databaseID", databaseID))
	}

	f := &Firestore{
		client:      client,
		maxAttempts: 5,
	}
	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Firestore) collection(name string) *firestore.CollectionRef {
	if f.collectionPrefix != "" {
		return f.client.Collection(f.collectionPrefix + "_" + name)
	}
	return f.client.Collection(name)
}

const (
	collCases             = "cases"
	collIncidents         = "incidents"
	collAssignments       = "case_incident_assignments"
	collActiveAssignments = "active_assignments"
	collNotes             = "case_notes"
	collBotExecutions     = "bot_executions"
	collAuditLog          = "audit_log"
	collCounters          = "counters"
)

func (f *Firestore) Case() interfaces.CaseRepository {
	return &caseRepository{f: f}
}

func (f *Firestore) Incident() interfaces.IncidentRepository {
	return &incidentRepository{f: f}
}

func (f *Firestore) Assignment() interfaces.AssignmentRepository {
	return &assignmentRepository{f: f}
}

func (f *Firestore) Note() interfaces.NoteRepository {
	return &noteRepository{f: f}
}

func (f *Firestore) Audit() interfaces.AuditRepository {
	return &auditRepository{f: f}
}

func (f *Firestore) BotExecution() interfaces.BotExecutionRepository {
	return &botExecutionRepository{f: f}
}

// RunInTx runs fn in a Firestore transaction. Writes issued through tx are buffered and applied when
// fn returns, which keeps every read ahead of every write. fn is re-run from scratch on contention.
func (f *Firestore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx interfaces.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return goerr.Wrap(err, "transaction not started")
	}

	var fnErr error
	err := f.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		fnErr = nil
		ftx := newFirestoreTx(f, t)
		if err := fn(ctx, ftx); err != nil {
			fnErr = err
			return err
		}
		return ftx.flush()
	}, firestore.MaxAttempts(f.maxAttempts))

	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return goerr.Wrap(ctxErr, "transaction aborted before commit")
		}
		return mapError(err, "failed to commit transaction")
	}
	return nil
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// mapError classifies a Firestore error into the engine's error kinds
func mapError(err error, msg string, opts ...goerr.Option) error {
	switch status.Code(err) {
	case codes.NotFound:
		return goerr.Wrap(model.ErrNotFound, msg, opts...)
	case codes.AlreadyExists, codes.Aborted:
		return goerr.Wrap(errors.Join(model.ErrConflict, err), msg, opts...)
	default:
		return model.WrapPersistence(err, msg, opts...)
	}
}
