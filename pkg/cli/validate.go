package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/betwatch/casekeeper/pkg/cli/config"
	"github.com/betwatch/casekeeper/pkg/utils/logging"
)

func cmdValidate() *cli.Command {
	var wfCfg config.WorkflowConfig
	var repoCfg config.Repository
	var checkDB bool

	var flags []cli.Flag
	flags = append(flags, wfCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, &cli.BoolFlag{
		Name:        "check-db",
		Usage:       "Also check stored cases and incidents for consistency",
		Destination: &checkDB,
	})

	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate the workflow file and optionally check DB consistency",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			// Step 1: Load and validate the workflow
			wf, err := wfCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "workflow validation failed")
			}

			graph := wf.Graph
			logger.Info("Workflow validation passed",
				"initial", graph.Initial(),
				"states", len(graph.States()),
				"edges", len(graph.Edges()),
				"note_policy", wf.NotePolicy.OnExpired,
				"note_grace_period", wf.NotePolicy.GracePeriod.String(),
				"archive_on_close", wf.ArchiveOnClose,
			)
			for _, s := range graph.States() {
				logger.Info("State validated",
					"id", s.ID,
					"name", s.Name,
					"terminal", graph.IsTerminal(s.ID),
					"requires_closure", s.RequiresClosure,
				)
			}

			// Step 2: DB consistency check
			if !checkDB {
				logger.Info("DB consistency check skipped")
				return nil
			}

			uc, _, closeRepo, err := setupUseCases(ctx, &wfCfg, &repoCfg)
			if err != nil {
				return err
			}
			defer closeRepo()

			result, err := uc.ValidateDB(ctx)
			if err != nil {
				return goerr.Wrap(err, "DB consistency check failed")
			}

			if result.HasIssues() {
				for _, issue := range result.Issues {
					logger.Warn("DB consistency issue found",
						"case_id", issue.CaseID,
						"incident_id", issue.IncidentID,
						"message", issue.Message,
						"expected", issue.Expected,
						"actual", issue.Actual,
					)
				}

				return fmt.Errorf("DB consistency check found %d issue(s)", len(result.Issues))
			}

			logger.Info("DB consistency check passed", "cases", result.Cases, "incidents", result.Incidents)
			return nil
		},
	}
}
