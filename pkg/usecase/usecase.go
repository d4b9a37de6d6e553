package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
	"github.com/betwatch/casekeeper/pkg/utils/async"
)

const (
	// DefaultPersistenceTimeout bounds a usecase call whose context carries no deadline
	DefaultPersistenceTimeout = 10 * time.Second
	// DefaultIngestConcurrency is the number of incident registrations run in parallel per execution
	DefaultIngestConcurrency = 8
	// DefaultListPageSize is the page size used when iterating incidents
	DefaultListPageSize = 100
)

// UseCases bundles the engine components. All of them share one repository, state graph and clock.
type UseCases struct {
	Case       *CaseUseCase
	Incident   *IncidentUseCase
	Assignment *AssignmentUseCase
	Note       *NoteUseCase
	Audit      *AuditRecorder
	Export     *AuditExportUseCase

	env *engine
}

// engine is the state shared by every usecase
type engine struct {
	repo              interfaces.Repository
	graph             *model.StateGraph
	clock             func() time.Time
	timeout           time.Duration
	notePolicy        model.NotePolicy
	archiveOnClose    bool
	notifier          interfaces.Notifier
	blob              interfaces.BlobStorage
	ingestConcurrency int
	pageSize          int
	recorder          *AuditRecorder
}

type Option func(*engine)

// WithStateGraph replaces the default OPEN/INVESTIGATING/RESOLVED/CLOSED workflow
func WithStateGraph(graph *model.StateGraph) Option {
	return func(e *engine) {
		e.graph = graph
	}
}

// WithClock sets the time source for every timestamp the engine writes
func WithClock(clock func() time.Time) Option {
	return func(e *engine) {
		e.clock = clock
	}
}

// WithTimeout sets the deadline applied when the caller's context has none. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(e *engine) {
		e.timeout = d
	}
}

func WithNotePolicy(p model.NotePolicy) Option {
	return func(e *engine) {
		e.notePolicy = p
	}
}

// WithArchiveOnClose controls whether linked incidents are archived when a case reaches a terminal state
func WithArchiveOnClose(enabled bool) Option {
	return func(e *engine) {
		e.archiveOnClose = enabled
	}
}

func WithNotifier(n interfaces.Notifier) Option {
	return func(e *engine) {
		e.notifier = n
	}
}

// WithBlobStorage enables gs:// destinations for audit exports
func WithBlobStorage(b interfaces.BlobStorage) Option {
	return func(e *engine) {
		e.blob = b
	}
}

func WithIngestConcurrency(n int) Option {
	return func(e *engine) {
		e.ingestConcurrency = n
	}
}

func WithListPageSize(n int) Option {
	return func(e *engine) {
		e.pageSize = n
	}
}

func New(repo interfaces.Repository, opts ...Option) *UseCases {
	e := &engine{
		repo:              repo,
		graph:             model.DefaultStateGraph(),
		clock:             time.Now,
		timeout:           DefaultPersistenceTimeout,
		notePolicy:        model.DefaultNotePolicy(),
		archiveOnClose:    true,
		ingestConcurrency: DefaultIngestConcurrency,
		pageSize:          DefaultListPageSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ingestConcurrency <= 0 {
		e.ingestConcurrency = 1
	}
	if e.pageSize <= 0 {
		e.pageSize = DefaultListPageSize
	}
	e.recorder = &AuditRecorder{env: e}

	uc := &UseCases{
		Audit: e.recorder,
		env:   e,
	}
	uc.Assignment = &AssignmentUseCase{env: e}
	uc.Incident = &IncidentUseCase{env: e, assignment: uc.Assignment}
	uc.Case = &CaseUseCase{env: e, assignment: uc.Assignment}
	uc.Note = &NoteUseCase{env: e}
	uc.Export = &AuditExportUseCase{env: e}
	return uc
}

// StateGraph returns the workflow the engine enforces
func (uc *UseCases) StateGraph() *model.StateGraph {
	return uc.env.graph
}

// now truncates to microseconds, the finest precision every backend keeps
func (e *engine) now() time.Time {
	return e.clock().UTC().Truncate(time.Microsecond)
}

// bound applies the default timeout when ctx has no deadline of its own
func (e *engine) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || e.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.timeout)
}

func (e *engine) notify(ctx context.Context, ev *model.CaseEvent) {
	if e.notifier == nil {
		return
	}
	async.Dispatch(ctx, func(ctx context.Context) error {
		return e.notifier.NotifyCaseEvent(ctx, ev)
	})
}

func validateActor(actor types.ActorID) error {
	if err := actor.Validate(); err != nil {
		return goerr.Wrap(model.ErrValidation, "acting user is required", goerr.V(model.ActorKey, actor))
	}
	return nil
}
