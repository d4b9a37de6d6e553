package worker

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/robfig/cron/v3"

	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/usecase"
	"github.com/betwatch/casekeeper/pkg/utils/errutil"
	"github.com/betwatch/casekeeper/pkg/utils/logging"
)

// Exporter writes audit entries to a destination. *usecase.AuditExportUseCase satisfies it.
type Exporter interface {
	Export(ctx context.Context, req usecase.AuditExportRequest) (*usecase.AuditExportResult, error)
}

// AuditExportWorker periodically exports the audit entries recorded since its previous successful run.
// Each run writes one object named after its window.
//
// Architecture assumptions:
// - Single server instance (no distributed locking); windows of concurrent instances would overlap
type AuditExportWorker struct {
	exporter    Exporter
	schedule    cron.Schedule
	spec        string
	destination string
	format      usecase.ExportFormat
	clock       func() time.Time

	mu          sync.Mutex
	windowStart time.Time

	cron *cron.Cron
}

// AuditExportOption configures an AuditExportWorker
type AuditExportOption func(*AuditExportWorker)

// WithExportClock replaces the time source
func WithExportClock(clock func() time.Time) AuditExportOption {
	return func(w *AuditExportWorker) {
		w.clock = clock
	}
}

// WithWindowStart sets the lower bound of the first export. Zero exports everything on the first run.
func WithWindowStart(t time.Time) AuditExportOption {
	return func(w *AuditExportWorker) {
		w.windowStart = t.UTC()
	}
}

// NewAuditExportWorker creates a worker running on a standard cron spec (or descriptors such as
// "@daily"). destination is a local directory or gs://bucket/prefix.
func NewAuditExportWorker(exporter Exporter, spec, destination string, format usecase.ExportFormat, opts ...AuditExportOption) (*AuditExportWorker, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, goerr.Wrap(model.ErrValidation, "invalid export schedule", goerr.V("schedule", spec), goerr.V("error", err.Error()))
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if destination == "" {
		return nil, goerr.Wrap(model.ErrValidation, "export destination is required")
	}

	w := &AuditExportWorker{
		exporter:    exporter,
		schedule:    schedule,
		spec:        spec,
		destination: destination,
		format:      format,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start schedules the export. It does not block and does not run an export immediately.
func (w *AuditExportWorker) Start(ctx context.Context) error {
	if w.cron != nil {
		return goerr.New("audit export worker already started")
	}

	logging.Default().Info("Audit export worker starting",
		"schedule", w.spec,
		"destination", w.destination,
		"format", w.format)

	w.cron = cron.New(cron.WithLocation(time.UTC))
	w.cron.Schedule(w.schedule, cron.FuncJob(func() {
		if _, err := w.RunOnce(ctx); err != nil {
			_ = errutil.Handle(ctx, err, "Audit export failed (window kept for next run)")
		}
	}))
	w.cron.Start()
	return nil
}

// Stop unschedules the export and waits for a running export to finish
func (w *AuditExportWorker) Stop() {
	if w.cron == nil {
		return
	}
	logging.Default().Info("Audit export worker stopping")
	<-w.cron.Stop().Done()
	w.cron = nil
	logging.Default().Info("Audit export worker stopped")
}

// Next returns the next scheduled run after t
func (w *AuditExportWorker) Next(t time.Time) time.Time {
	return w.schedule.Next(t)
}

// RunOnce exports the window from the end of the last successful run until now. The window only
// advances when the export succeeds.
func (w *AuditExportWorker) RunOnce(ctx context.Context) (*usecase.AuditExportResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ctx.Err() != nil {
		return nil, goerr.Wrap(ctx.Err(), "audit export cancelled")
	}

	from := w.windowStart
	now := w.clock().UTC().Truncate(time.Microsecond)
	if !now.After(from) {
		return &usecase.AuditExportResult{}, nil
	}
	to := now.Add(-time.Microsecond)

	req := usecase.AuditExportRequest{
		Query:       model.AuditQuery{From: &from, To: &to},
		Format:      w.format,
		Destination: w.objectPath(from, now),
	}

	startTime := time.Now()
	result, err := w.exporter.Export(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to export audit window",
			goerr.V("from", from), goerr.V("to", to), goerr.V("destination", req.Destination))
	}
	w.windowStart = now

	logging.From(ctx).Info("Audit export completed",
		"destination", result.Destination,
		"entries", result.Entries,
		"duration", time.Since(startTime).String())
	return result, nil
}

func (w *AuditExportWorker) objectPath(from, to time.Time) string {
	name := usecase.ExportObjectName(from, to, w.format)
	if strings.HasPrefix(w.destination, "gs://") {
		return strings.TrimRight(w.destination, "/") + "/" + name
	}
	return filepath.Join(w.destination, name)
}
