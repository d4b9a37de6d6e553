package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/betwatch/casekeeper/pkg/cli/config"
	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
	"github.com/betwatch/casekeeper/pkg/usecase"
)

type auditQueryFlags struct {
	table string
	from  string
	to    string
}

func (x *auditQueryFlags) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "table",
			Usage:       "Only entries of this table [cases|case-incidents|case-incident-assignments|case-notes|bot-executions]",
			Destination: &x.table,
		},
		&cli.StringFlag{
			Name:        "from",
			Usage:       "Inclusive lower bound (RFC3339)",
			Destination: &x.from,
		},
		&cli.StringFlag{
			Name:        "to",
			Usage:       "Inclusive upper bound (RFC3339)",
			Destination: &x.to,
		},
	}
}

func parseTimeFlag(name, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, goerr.Wrap(model.ErrValidation, "invalid time flag", goerr.V("flag", name), goerr.V("value", raw))
	}
	t = t.UTC()
	return &t, nil
}

func (x *auditQueryFlags) query(limit int) (model.AuditQuery, error) {
	from, err := parseTimeFlag("from", x.from)
	if err != nil {
		return model.AuditQuery{}, err
	}
	to, err := parseTimeFlag("to", x.to)
	if err != nil {
		return model.AuditQuery{}, err
	}
	return model.AuditQuery{
		TableName: types.TableName(x.table),
		From:      from,
		To:        to,
		Limit:     limit,
	}, nil
}

func cmdAudit() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Inspect and export the audit trail",
		Commands: []*cli.Command{
			cmdAuditList(),
			cmdAuditExport(),
		},
	}
}

var (
	opColor = map[model.AuditOperation]func(a ...any) string{
		model.AuditCreate: color.New(color.FgGreen).Add(color.Bold).SprintFunc(),
		model.AuditUpdate: color.New(color.FgYellow).Add(color.Bold).SprintFunc(),
		model.AuditDelete: color.New(color.FgRed).Add(color.Bold).SprintFunc(),
	}
	tableColor = color.New(color.FgCyan).SprintFunc()
	dimColor   = color.New(color.Faint).SprintFunc()
)

func printAuditEntry(w io.Writer, e *model.AuditLogEntry) {
	op := e.Operation()
	paint, ok := opColor[op]
	if !ok {
		paint = fmt.Sprint
	}
	_, _ = fmt.Fprintf(w, "%s  %-26s %s  %s\n",
		e.Timestamp.Format(time.RFC3339Nano), tableColor(string(e.TableName)), paint(string(op)), dimColor(e.ID))
	if len(e.Old) > 0 {
		_, _ = fmt.Fprintf(w, "  old: %s\n", string(e.Old))
	}
	if len(e.New) > 0 {
		_, _ = fmt.Fprintf(w, "  new: %s\n", string(e.New))
	}
}

func cmdAuditList() *cli.Command {
	var q auditQueryFlags
	var limit int
	var wfCfg config.WorkflowConfig
	var repoCfg config.Repository

	flags := q.Flags()
	flags = append(flags, &cli.IntFlag{
		Name:        "limit",
		Usage:       "Maximum number of entries (0 for all)",
		Value:       100,
		Destination: &limit,
	})
	flags = append(flags, wfCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:  "list",
		Usage: "Print audit entries in timestamp order",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			query, err := q.query(limit)
			if err != nil {
				return err
			}

			uc, _, closeRepo, err := setupUseCases(ctx, &wfCfg, &repoCfg)
			if err != nil {
				return err
			}
			defer closeRepo()

			entries, err := uc.Audit.ListAuditEntries(ctx, query)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			for _, e := range entries {
				printAuditEntry(w, e)
			}
			return nil
		},
	}
}

func cmdAuditExport() *cli.Command {
	var q auditQueryFlags
	var format string
	var output string
	var wfCfg config.WorkflowConfig
	var repoCfg config.Repository
	var exportCfg config.Export

	flags := q.Flags()
	flags = append(flags,
		&cli.StringFlag{
			Name:        "format",
			Usage:       "Export format [jsonl|xlsx]",
			Value:       string(usecase.ExportJSONL),
			Destination: &format,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "Local file or gs://bucket/object",
			Required:    true,
			Destination: &output,
		},
	)
	flags = append(flags, wfCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, exportCfg.Flags()...)

	return &cli.Command{
		Name:  "export",
		Usage: "Write audit entries to a JSON Lines or XLSX file",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			query, err := q.query(0)
			if err != nil {
				return err
			}

			var ucOpts []usecase.Option
			gcs, err := exportCfg.Storage(ctx, output)
			if err != nil {
				return err
			}
			if gcs != nil {
				defer func() { _ = gcs.Close() }()
				ucOpts = append(ucOpts, usecase.WithBlobStorage(gcs))
			}

			uc, _, closeRepo, err := setupUseCases(ctx, &wfCfg, &repoCfg, ucOpts...)
			if err != nil {
				return err
			}
			defer closeRepo()

			result, err := uc.Export.Export(ctx, usecase.AuditExportRequest{
				Query:       query,
				Format:      usecase.ExportFormat(format),
				Destination: output,
			})
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(c.Root().Writer, "exported %d entries to %s\n", result.Entries, result.Destination)
			return nil
		},
	}
}
