package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"github.com/betwatch/casekeeper/pkg/cli/config"
	httpctrl "github.com/betwatch/casekeeper/pkg/controller/http"
	"github.com/betwatch/casekeeper/pkg/domain/types"
	"github.com/betwatch/casekeeper/pkg/service/worker"
	"github.com/betwatch/casekeeper/pkg/usecase"
	"github.com/betwatch/casekeeper/pkg/utils/async"
	"github.com/betwatch/casekeeper/pkg/utils/logging"
)

func cmdServe() *cli.Command {
	var addr string
	var defaultActor string
	var allowOrigins []string
	var enableMetrics bool
	var timeout time.Duration
	var ingestConcurrency int
	var wfCfg config.WorkflowConfig
	var repoCfg config.Repository
	var slackCfg config.Slack
	var exportCfg config.Export

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("CASEKEEPER_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "default-actor",
			Usage:       "Actor recorded for requests without the " + httpctrl.ActorHeader + " header (development only)",
			Sources:     cli.EnvVars("CASEKEEPER_DEFAULT_ACTOR"),
			Destination: &defaultActor,
		},
		&cli.StringSliceFlag{
			Name:        "allow-origin",
			Usage:       "Allowed CORS origin; repeat for several",
			Sources:     cli.EnvVars("CASEKEEPER_ALLOW_ORIGINS"),
			Destination: &allowOrigins,
		},
		&cli.BoolFlag{
			Name:        "metrics",
			Usage:       "Expose Prometheus metrics on /metrics",
			Value:       true,
			Sources:     cli.EnvVars("CASEKEEPER_METRICS"),
			Destination: &enableMetrics,
		},
		&cli.DurationFlag{
			Name:        "persistence-timeout",
			Usage:       "Upper bound for a single storage operation",
			Value:       usecase.DefaultPersistenceTimeout,
			Sources:     cli.EnvVars("CASEKEEPER_PERSISTENCE_TIMEOUT"),
			Destination: &timeout,
		},
		&cli.IntFlag{
			Name:        "ingest-concurrency",
			Usage:       "Parallel incident registrations per bot execution",
			Value:       usecase.DefaultIngestConcurrency,
			Sources:     cli.EnvVars("CASEKEEPER_INGEST_CONCURRENCY"),
			Destination: &ingestConcurrency,
		},
	}

	flags = append(flags, wfCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)
	flags = append(flags, exportCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logging.Default().Info("Serve configuration",
				"repository", repoCfg,
				"slack", slackCfg,
				"export", exportCfg)

			ucOpts := []usecase.Option{
				usecase.WithTimeout(timeout),
				usecase.WithIngestConcurrency(ingestConcurrency),
			}

			notifier, err := slackCfg.Configure()
			if err != nil {
				return err
			}
			if notifier != nil {
				ucOpts = append(ucOpts, usecase.WithNotifier(notifier))
				logging.Default().Info("Slack notifications enabled")
			}

			gcs, err := exportCfg.Storage(ctx)
			if err != nil {
				return err
			}
			if gcs != nil {
				defer func() {
					if err := gcs.Close(); err != nil {
						logging.Default().Error("failed to close Cloud Storage client", "error", err.Error())
					}
				}()
				ucOpts = append(ucOpts, usecase.WithBlobStorage(gcs))
			}

			uc, _, closeRepo, err := setupUseCases(ctx, &wfCfg, &repoCfg, ucOpts...)
			if err != nil {
				return err
			}
			defer closeRepo()

			var exportWorker *worker.AuditExportWorker
			if w, err := exportCfg.Worker(uc.Export); err != nil {
				return goerr.Wrap(err, "failed to configure audit export worker")
			} else if w != nil {
				exportWorker = w
				if err := exportWorker.Start(ctx); err != nil {
					return goerr.Wrap(err, "failed to start audit export worker")
				}
			}

			httpOpts := []httpctrl.Options{
				httpctrl.WithDefaultActor(types.ActorID(defaultActor)),
				httpctrl.WithAllowedOrigins(allowOrigins),
			}
			if enableMetrics {
				registry := prometheus.NewRegistry()
				registry.MustRegister(
					collectors.NewGoCollector(),
					collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
				)
				httpOpts = append(httpOpts, httpctrl.WithRegistry(registry))
			}

			httpHandler, err := httpctrl.New(uc, httpOpts...)
			if err != nil {
				return goerr.Wrap(err, "failed to create http server")
			}
			server := &http.Server{
				Addr:              addr,
				Handler:           httpHandler,
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				if exportWorker != nil {
					exportWorker.Stop()
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				// Pending notifications
				async.Wait()

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
