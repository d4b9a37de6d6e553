package usecase

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/xuri/excelize/v2"

	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/utils/logging"
	"github.com/betwatch/casekeeper/pkg/utils/safe"
)

// ExportFormat is the file format of an audit export
type ExportFormat string

const (
	ExportJSONL ExportFormat = "jsonl"
	ExportXLSX  ExportFormat = "xlsx"
)

// Validate checks the format is supported
func (f ExportFormat) Validate() error {
	switch f {
	case ExportJSONL, ExportXLSX:
		return nil
	}
	return goerr.Wrap(model.ErrValidation, "unknown export format", goerr.V("format", string(f)))
}

// Ext returns the file extension without the leading dot
func (f ExportFormat) Ext() string {
	return string(f)
}

const xlsxSheet = "audit"

// AuditExportRequest selects the entries to export and where to write them. Destination is a local
// path or gs://bucket/object.
type AuditExportRequest struct {
	Query       model.AuditQuery
	Format      ExportFormat
	Destination string
}

type AuditExportResult struct {
	Destination string
	Entries     int
}

// AuditExportUseCase copies audit entries out of the store for archival and review
type AuditExportUseCase struct {
	env *engine
}

// Export writes every entry matching the request's query. The object is only committed when every
// entry has been written.
func (uc *AuditExportUseCase) Export(ctx context.Context, req AuditExportRequest) (*AuditExportResult, error) {
	if err := req.Format.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Destination) == "" {
		return nil, goerr.Wrap(model.ErrValidation, "export destination is required")
	}

	entries, err := uc.env.recorder.ListAuditEntries(ctx, req.Query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read audit entries for export")
	}

	w, err := uc.openDestination(ctx, req.Destination)
	if err != nil {
		return nil, err
	}

	var writeErr error
	switch req.Format {
	case ExportJSONL:
		writeErr = writeJSONL(w, entries)
	case ExportXLSX:
		writeErr = writeXLSX(w, entries)
	}
	if writeErr != nil {
		safe.Close(ctx, w)
		return nil, goerr.Wrap(writeErr, "failed to write audit export", goerr.V("destination", req.Destination))
	}
	if err := w.Close(); err != nil {
		return nil, goerr.Wrap(err, "failed to commit audit export", goerr.V("destination", req.Destination))
	}

	logging.From(ctx).Info("exported audit entries",
		"destination", req.Destination,
		"format", req.Format,
		"entries", len(entries),
	)
	return &AuditExportResult{Destination: req.Destination, Entries: len(entries)}, nil
}

func (uc *AuditExportUseCase) openDestination(ctx context.Context, dest string) (io.WriteCloser, error) {
	if bucket, object, ok := parseGCSPath(dest); ok {
		if uc.env.blob == nil {
			return nil, goerr.Wrap(model.ErrValidation, "object storage is not configured", goerr.V("destination", dest))
		}
		w, err := uc.env.blob.NewWriter(ctx, bucket, object)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open export object", goerr.V("destination", dest))
		}
		return w, nil
	}
	if strings.HasPrefix(dest, "gs://") {
		return nil, goerr.Wrap(model.ErrValidation, "object path must be gs://bucket/object", goerr.V("destination", dest))
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create export directory", goerr.V("destination", dest))
	}
	f, err := os.Create(filepath.Clean(dest))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create export file", goerr.V("destination", dest))
	}
	return f, nil
}

// parseGCSPath splits gs://bucket/object. Both parts must be present.
func parseGCSPath(dest string) (bucket, object string, ok bool) {
	rest, found := strings.CutPrefix(dest, "gs://")
	if !found {
		return "", "", false
	}
	bucket, object, found = strings.Cut(rest, "/")
	if !found || bucket == "" || object == "" {
		return "", "", false
	}
	return bucket, object, true
}

// ExportObjectName builds the file name of a scheduled export covering [from, to]
func ExportObjectName(from, to time.Time, format ExportFormat) string {
	const layout = "20060102T150405Z"
	return "audit-" + from.UTC().Format(layout) + "-" + to.UTC().Format(layout) + "." + format.Ext()
}

func writeJSONL(w io.Writer, entries []*model.AuditLogEntry) error {
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return goerr.Wrap(err, "failed to encode audit entry", goerr.V("audit_id", e.ID))
		}
	}
	return nil
}

func writeXLSX(w io.Writer, entries []*model.AuditLogEntry) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return goerr.Wrap(err, "failed to name sheet")
	}

	header := []any{"id", "table", "operation", "timestamp", "old", "new"}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return goerr.Wrap(err, "failed to write header row")
	}

	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return goerr.Wrap(err, "failed to address row", goerr.V("row", i+2))
		}
		row := []any{
			e.ID,
			e.TableName.String(),
			string(e.Operation()),
			e.Timestamp.Format(time.RFC3339Nano),
			string(e.Old),
			string(e.New),
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return goerr.Wrap(err, "failed to write audit row", goerr.V("audit_id", e.ID))
		}
	}

	if err := f.Write(w); err != nil {
		return goerr.Wrap(err, "failed to write workbook")
	}
	return nil
}
