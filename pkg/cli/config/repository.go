package config

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/m-mizutani/fireconf"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/repository/firestore"
	"github.com/betwatch/casekeeper/pkg/repository/memory"
	"github.com/betwatch/casekeeper/pkg/repository/sqlstore"
	"github.com/betwatch/casekeeper/pkg/utils/logging"
)

// Repository backends
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

// Repository holds CLI flags for repository backend configuration
type Repository struct {
	backend          string
	sqlitePath       string
	postgresDSN      string
	projectID        string
	databaseID       string
	collectionPrefix string
}

// Flags returns CLI flags for repository configuration
func (r *Repository) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repository-backend",
			Usage:       "Repository backend type [memory|sqlite|postgres|firestore]",
			Value:       BackendSQLite,
			Category:    "Repository",
			Sources:     cli.EnvVars("CASEKEEPER_REPOSITORY_BACKEND"),
			Destination: &r.backend,
		},
		&cli.StringFlag{
			Name:        "sqlite-path",
			Usage:       "SQLite database file (sqlite backend)",
			Value:       "casekeeper.db",
			Category:    "Repository",
			Sources:     cli.EnvVars("CASEKEEPER_SQLITE_PATH"),
			Destination: &r.sqlitePath,
		},
		&cli.StringFlag{
			Name:        "postgres-dsn",
			Usage:       "PostgreSQL connection string (postgres backend)",
			Category:    "Repository",
			Sources:     cli.EnvVars("CASEKEEPER_POSTGRES_DSN"),
			Destination: &r.postgresDSN,
		},
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore Project ID (firestore backend)",
			Category:    "Repository",
			Sources:     cli.EnvVars("CASEKEEPER_FIRESTORE_PROJECT_ID"),
			Destination: &r.projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore Database ID",
			Category:    "Repository",
			Sources:     cli.EnvVars("CASEKEEPER_FIRESTORE_DATABASE_ID"),
			Destination: &r.databaseID,
		},
		&cli.StringFlag{
			Name:        "firestore-collection-prefix",
			Usage:       "Prefix for Firestore collection names",
			Category:    "Repository",
			Sources:     cli.EnvVars("CASEKEEPER_FIRESTORE_COLLECTION_PREFIX"),
			Destination: &r.collectionPrefix,
		},
	}
}

func (r Repository) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", r.backend),
		slog.String("sqlite_path", r.sqlitePath),
		slog.Int("postgres_dsn.len", len(r.postgresDSN)),
		slog.String("firestore_project_id", r.projectID),
		slog.String("firestore_database_id", r.databaseID),
		slog.String("firestore_collection_prefix", r.collectionPrefix),
	)
}

// Backend returns the configured backend type
func (r *Repository) Backend() string {
	return r.backend
}

func (r *Repository) openSQL(ctx context.Context) (*sqlstore.Store, error) {
	switch r.backend {
	case BackendSQLite:
		if r.sqlitePath == "" {
			return nil, goerr.Wrap(ErrMissingOption, "sqlite-path is required", goerr.V(OptionKey, "sqlite-path"))
		}
		return sqlstore.Open(ctx, sqlstore.DialectSQLite, sqlstore.SQLiteDSN(r.sqlitePath))
	case BackendPostgres:
		if r.postgresDSN == "" {
			return nil, goerr.Wrap(ErrMissingOption, "postgres-dsn is required", goerr.V(OptionKey, "postgres-dsn"))
		}
		return sqlstore.Open(ctx, sqlstore.DialectPostgres, r.postgresDSN)
	}
	return nil, goerr.Wrap(ErrInvalidConfig, "not a SQL backend", goerr.V(BackendKey, r.backend))
}

// Configure initializes and returns a repository based on the configured backend. SQL schemas are
// migrated on open so a fresh database is usable immediately.
// The caller is responsible for calling Close() on the returned repository.
func (r *Repository) Configure(ctx context.Context, graph *model.StateGraph) (interfaces.Repository, error) {
	switch r.backend {
	case BackendMemory:
		logging.Default().Info("Using in-memory repository (development mode)")
		return memory.New(), nil

	case BackendSQLite, BackendPostgres:
		store, err := r.openSQL(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open SQL repository")
		}
		if err := store.Migrate(ctx, graph); err != nil {
			_ = store.Close()
			return nil, goerr.Wrap(err, "failed to migrate SQL repository")
		}
		logging.Default().Info("Using SQL repository", "dialect", store.Dialect())
		return store, nil

	case BackendFirestore:
		if r.projectID == "" {
			return nil, goerr.Wrap(ErrMissingOption, "firestore-project-id is required when using firestore backend",
				goerr.V(OptionKey, "firestore-project-id"))
		}
		repo, err := firestore.New(ctx, r.projectID, r.databaseID, firestore.WithCollectionPrefix(r.collectionPrefix))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize firestore repository")
		}
		logging.Default().Info("Using Firestore repository",
			"project_id", r.projectID,
			"database_id", r.databaseID,
		)
		return repo, nil

	default:
		return nil, goerr.Wrap(ErrInvalidConfig, "invalid repository backend", goerr.V(BackendKey, r.backend))
	}
}

// MigrationStep is one planned or applied schema change
type MigrationStep struct {
	Target      string
	Operation   string
	Description string
	Destructive bool
}

// Migrate brings the backend schema up to date. For SQL backends the goose migrations run and the
// workflow states are synced; for Firestore the composite indexes are reconciled with fireconf.
// dryRun only reports the Firestore plan and the current SQL version.
func (r *Repository) Migrate(ctx context.Context, graph *model.StateGraph, dryRun bool) ([]MigrationStep, error) {
	switch r.backend {
	case BackendSQLite, BackendPostgres:
		store, err := r.openSQL(ctx)
		if err != nil {
			return nil, err
		}
		defer func() { _ = store.Close() }()

		if dryRun {
			version, err := store.MigrationVersion(ctx)
			if err != nil {
				return nil, err
			}
			return []MigrationStep{{
				Target:      string(store.Dialect()),
				Operation:   "version",
				Description: "current schema version " + strconv.FormatInt(version, 10),
			}}, nil
		}
		if err := store.Migrate(ctx, graph); err != nil {
			return nil, err
		}
		return []MigrationStep{{Target: string(store.Dialect()), Operation: "migrate", Description: "schema up to date"}}, nil

	case BackendFirestore:
		if r.projectID == "" {
			return nil, goerr.Wrap(ErrMissingOption, "firestore-project-id is required", goerr.V(OptionKey, "firestore-project-id"))
		}
		client, err := fireconf.NewClient(ctx, r.projectID, r.databaseID)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create fireconf client")
		}
		defer func() { _ = client.Close() }()

		indexConfig := firestore.IndexConfig(r.collectionPrefix)
		if dryRun {
			plan, err := client.GetMigrationPlan(ctx, indexConfig)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to create migration plan")
			}
			steps := make([]MigrationStep, 0, len(plan.Steps))
			for _, s := range plan.Steps {
				steps = append(steps, MigrationStep{
					Target:      s.Collection,
					Operation:   fmt.Sprint(s.Operation),
					Description: s.Description,
					Destructive: s.Destructive,
				})
			}
			return steps, nil
		}
		if err := client.Migrate(ctx, indexConfig); err != nil {
			return nil, goerr.Wrap(err, "failed to apply index migrations")
		}
		return []MigrationStep{{Target: "firestore", Operation: "migrate", Description: "indexes up to date"}}, nil

	case BackendMemory:
		return nil, nil
	}
	return nil, goerr.Wrap(ErrInvalidConfig, "invalid repository backend", goerr.V(BackendKey, r.backend))
}
