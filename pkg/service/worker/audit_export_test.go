package worker_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"go.uber.org/goleak"

	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/repository/memory"
	"github.com/betwatch/casekeeper/pkg/service/worker"
	"github.com/betwatch/casekeeper/pkg/usecase"
)

// mockExporter records export requests
type mockExporter struct {
	mu       sync.Mutex
	requests []usecase.AuditExportRequest
	err      error
}

func (m *mockExporter) setError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockExporter) Export(_ context.Context, req usecase.AuditExportRequest) (*usecase.AuditExportResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &usecase.AuditExportResult{Destination: req.Destination}, nil
}

func (m *mockExporter) snapshot() []usecase.AuditExportRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]usecase.AuditExportRequest(nil), m.requests...)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNewAuditExportWorker(t *testing.T) {
	exporter := &mockExporter{}

	t.Run("invalid schedule", func(t *testing.T) {
		_, err := worker.NewAuditExportWorker(exporter, "every tuesday", "/tmp", usecase.ExportJSONL)
		gt.Error(t, err).Is(model.ErrValidation)
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := worker.NewAuditExportWorker(exporter, "@daily", "/tmp", usecase.ExportFormat("csv"))
		gt.Error(t, err).Is(model.ErrValidation)
	})

	t.Run("missing destination", func(t *testing.T) {
		_, err := worker.NewAuditExportWorker(exporter, "@daily", "", usecase.ExportJSONL)
		gt.Error(t, err).Is(model.ErrValidation)
	})

	t.Run("next run follows the schedule", func(t *testing.T) {
		w, err := worker.NewAuditExportWorker(exporter, "0 3 * * *", "/tmp", usecase.ExportJSONL)
		gt.NoError(t, err).Required()
		base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
		gt.Value(t, w.Next(base)).Equal(time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC))
	})
}

func TestAuditExportWorker_RunOnce(t *testing.T) {
	start := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	t.Run("windows are contiguous and do not overlap", func(t *testing.T) {
		exporter := &mockExporter{}
		clk := &clock{now: start.Add(24 * time.Hour)}
		w, err := worker.NewAuditExportWorker(exporter, "@daily", "gs://audit-archive/casekeeper/", usecase.ExportJSONL,
			worker.WithExportClock(clk.Now), worker.WithWindowStart(start))
		gt.NoError(t, err).Required()

		_, err = w.RunOnce(context.Background())
		gt.NoError(t, err).Required()
		clk.Advance(24 * time.Hour)
		_, err = w.RunOnce(context.Background())
		gt.NoError(t, err).Required()

		reqs := exporter.snapshot()
		gt.Array(t, reqs).Length(2)
		gt.Value(t, *reqs[0].Query.From).Equal(start)
		gt.Value(t, *reqs[0].Query.To).Equal(start.Add(24*time.Hour - time.Microsecond))
		gt.Value(t, *reqs[1].Query.From).Equal(start.Add(24 * time.Hour))
		gt.Value(t, reqs[0].Destination).Equal("gs://audit-archive/casekeeper/audit-20261018T000000Z-20261019T000000Z.jsonl")
	})

	t.Run("failed export keeps the window", func(t *testing.T) {
		exporter := &mockExporter{}
		clk := &clock{now: start.Add(time.Hour)}
		w, err := worker.NewAuditExportWorker(exporter, "@hourly", t.TempDir(), usecase.ExportXLSX,
			worker.WithExportClock(clk.Now), worker.WithWindowStart(start))
		gt.NoError(t, err).Required()

		exporter.setError(errors.New("bucket unavailable"))
		_, err = w.RunOnce(context.Background())
		gt.Value(t, err).NotNil()

		exporter.setError(nil)
		clk.Advance(time.Hour)
		_, err = w.RunOnce(context.Background())
		gt.NoError(t, err).Required()

		reqs := exporter.snapshot()
		gt.Array(t, reqs).Length(2)
		gt.Value(t, *reqs[1].Query.From).Equal(start)
		gt.Value(t, filepath.Ext(reqs[1].Destination)).Equal(".xlsx")
	})

	t.Run("empty window is skipped", func(t *testing.T) {
		exporter := &mockExporter{}
		clk := &clock{now: start}
		w, err := worker.NewAuditExportWorker(exporter, "@hourly", t.TempDir(), usecase.ExportJSONL,
			worker.WithExportClock(clk.Now), worker.WithWindowStart(start))
		gt.NoError(t, err).Required()

		_, err = w.RunOnce(context.Background())
		gt.NoError(t, err).Required()
		gt.Array(t, exporter.snapshot()).Length(0)
	})

	t.Run("exports real entries to a local directory", func(t *testing.T) {
		uc := usecase.New(memory.New())
		ctx := context.Background()
		_, err := uc.Case.OpenCase(ctx, "exported", "", "analyst-5")
		gt.NoError(t, err).Required()

		dir := t.TempDir()
		w, err := worker.NewAuditExportWorker(uc.Export, "@hourly", dir, usecase.ExportJSONL)
		gt.NoError(t, err).Required()

		result, err := w.RunOnce(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, result.Entries).Equal(1)
		gt.Value(t, filepath.Dir(result.Destination)).Equal(dir)
	})
}

func TestAuditExportWorker_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	exporter := &mockExporter{}
	w, err := worker.NewAuditExportWorker(exporter, "@every 1h", t.TempDir(), usecase.ExportJSONL)
	gt.NoError(t, err).Required()

	gt.NoError(t, w.Start(context.Background())).Required()
	gt.Value(t, w.Start(context.Background())).NotNil()
	w.Stop()

	// Stop is idempotent
	w.Stop()
}
