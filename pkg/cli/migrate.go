package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/betwatch/casekeeper/pkg/cli/config"
	"github.com/betwatch/casekeeper/pkg/utils/logging"
)

func cmdMigrate() *cli.Command {
	var dryRun bool
	var wfCfg config.WorkflowConfig
	var repoCfg config.Repository

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Preview changes without applying",
			Destination: &dryRun,
		},
	}
	flags = append(flags, wfCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Migrate the SQL schema or Firestore indexes",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			logger.Info("Migrate configuration",
				"repository", repoCfg,
				"dryRun", dryRun)

			wf, err := wfCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to load workflow")
			}

			steps, err := repoCfg.Migrate(ctx, wf.Graph, dryRun)
			if err != nil {
				return goerr.Wrap(err, "failed to migrate", goerr.V(config.BackendKey, repoCfg.Backend()))
			}

			if len(steps) == 0 {
				logger.Info("No changes required")
				return nil
			}
			for _, step := range steps {
				logger.Info("Migration step",
					"target", step.Target,
					"operation", step.Operation,
					"description", step.Description,
					"destructive", step.Destructive)
			}
			return nil
		},
	}
}
