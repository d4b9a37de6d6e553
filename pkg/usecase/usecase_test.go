package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
	"github.com/betwatch/casekeeper/pkg/repository/memory"
	"github.com/betwatch/casekeeper/pkg/usecase"
)

const analyst types.ActorID = "analyst-5"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setup(t *testing.T, opts ...usecase.Option) (*usecase.UseCases, interfaces.Repository, *testClock) {
	t.Helper()
	repo := memory.New()
	clock := newTestClock()
	opts = append([]usecase.Option{usecase.WithClock(clock.Now)}, opts...)
	return usecase.New(repo, opts...), repo, clock
}

func mustDocument(t *testing.T, data string) model.Document {
	t.Helper()
	doc, err := model.ParseDocument([]byte(data))
	gt.NoError(t, err).Required()
	return doc
}

func registerIncident(t *testing.T, uc *usecase.UseCases, data string) *model.Incident {
	t.Helper()
	inc, err := uc.Incident.RegisterIncident(context.Background(), nil, mustDocument(t, data), "bot:velocity")
	gt.NoError(t, err).Required()
	return inc
}

func openCase(t *testing.T, uc *usecase.UseCases, description string) *model.Case {
	t.Helper()
	c, err := uc.Case.OpenCase(context.Background(), description, "", analyst)
	gt.NoError(t, err).Required()
	return c
}

func closeCase(t *testing.T, uc *usecase.UseCases, caseID int64) *model.Case {
	t.Helper()
	c, err := uc.Case.CloseCase(context.Background(), caseID, "confirmed fraud", "", analyst)
	gt.NoError(t, err).Required()
	return c
}

func auditEntries(t *testing.T, uc *usecase.UseCases, table types.TableName) []*model.AuditLogEntry {
	t.Helper()
	entries, err := uc.Audit.ListAuditEntries(context.Background(), model.AuditQuery{TableName: table})
	gt.NoError(t, err).Required()
	return entries
}

func activeCount(t *testing.T, repo interfaces.Repository, incidentID int64) int {
	t.Helper()
	history, err := repo.Assignment().ListByIncident(context.Background(), incidentID)
	gt.NoError(t, err).Required()
	n := 0
	for _, a := range history {
		if a.Active {
			n++
		}
	}
	return n
}

// failingAuditRepository behaves like its embedded repository except that every audit append fails
type failingAuditRepository struct {
	interfaces.Repository
}

func (r *failingAuditRepository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx interfaces.Tx) error) error {
	return r.Repository.RunInTx(ctx, func(ctx context.Context, tx interfaces.Tx) error {
		return fn(ctx, &failingAuditTx{Tx: tx})
	})
}

type failingAuditTx struct {
	interfaces.Tx
}

func (tx *failingAuditTx) AppendAudit(ctx context.Context, e *model.AuditLogEntry) error {
	return goerr.Wrap(model.ErrPersistence, "audit store unavailable")
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []*model.CaseEvent
}

func (n *recordingNotifier) NotifyCaseEvent(ctx context.Context, ev *model.CaseEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) Events() []*model.CaseEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*model.CaseEvent(nil), n.events...)
}
