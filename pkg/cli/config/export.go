package config

import (
	"context"
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/betwatch/casekeeper/pkg/service/storage"
	"github.com/betwatch/casekeeper/pkg/service/worker"
	"github.com/betwatch/casekeeper/pkg/usecase"
)

// Export configures object storage for audit exports and the scheduled export worker
type Export struct {
	gcs         bool
	schedule    string
	destination string
	format      string
}

func (x *Export) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "gcs",
			Usage:       "Enable Cloud Storage (gs://) export destinations",
			Category:    "Audit export",
			Sources:     cli.EnvVars("CASEKEEPER_GCS"),
			Destination: &x.gcs,
		},
		&cli.StringFlag{
			Name:        "export-schedule",
			Usage:       "Cron schedule for periodic audit exports, e.g. \"@daily\" or \"0 3 * * *\". Disabled when empty",
			Category:    "Audit export",
			Sources:     cli.EnvVars("CASEKEEPER_EXPORT_SCHEDULE"),
			Destination: &x.schedule,
		},
		&cli.StringFlag{
			Name:        "export-destination",
			Usage:       "Directory or gs://bucket/prefix receiving scheduled exports",
			Category:    "Audit export",
			Sources:     cli.EnvVars("CASEKEEPER_EXPORT_DESTINATION"),
			Destination: &x.destination,
		},
		&cli.StringFlag{
			Name:        "export-format",
			Usage:       "Format of scheduled exports [jsonl|xlsx]",
			Value:       string(usecase.ExportJSONL),
			Category:    "Audit export",
			Sources:     cli.EnvVars("CASEKEEPER_EXPORT_FORMAT"),
			Destination: &x.format,
		},
	}
}

func (x Export) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("gcs", x.gcs),
		slog.String("schedule", x.schedule),
		slog.String("destination", x.destination),
		slog.String("format", x.format),
	)
}

// NeedsGCS reports whether a Cloud Storage client is required for the configured destination or any
// of the extra ones
func (x *Export) NeedsGCS(extra ...string) bool {
	if x.gcs || strings.HasPrefix(x.destination, "gs://") {
		return true
	}
	for _, d := range extra {
		if strings.HasPrefix(d, "gs://") {
			return true
		}
	}
	return false
}

// Storage opens the Cloud Storage client when needed. The caller closes it.
func (x *Export) Storage(ctx context.Context, extra ...string) (*storage.GCS, error) {
	if !x.NeedsGCS(extra...) {
		return nil, nil
	}
	gcs, err := storage.NewGCS(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize Cloud Storage")
	}
	return gcs, nil
}

// Worker builds the scheduled export worker, or nil when no schedule is set
func (x *Export) Worker(exporter worker.Exporter) (*worker.AuditExportWorker, error) {
	if x.schedule == "" {
		return nil, nil
	}
	if x.destination == "" {
		return nil, goerr.Wrap(ErrMissingOption, "--export-destination is required with --export-schedule",
			goerr.V(OptionKey, "export-destination"))
	}
	return worker.NewAuditExportWorker(exporter, x.schedule, x.destination, usecase.ExportFormat(x.format))
}
