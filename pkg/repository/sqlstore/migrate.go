package sqlstore

import (
	"context"
	"embed"
	"io/fs"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pressly/goose/v3"

	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/utils/logging"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

func (s *Store) provider() (*goose.Provider, error) {
	dialect := goose.DialectSQLite3
	dir := "migrations/sqlite"
	if s.dialect == DialectPostgres {
		dialect = goose.DialectPostgres
		dir = "migrations/postgres"
	}

	sub, err := fs.Sub(migrationFS, dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open embedded migrations", goerr.V("dir", dir))
	}

	p, err := goose.NewProvider(dialect, s.db, sub)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create migration provider", goerr.V("dialect", s.dialect))
	}
	return p, nil
}

// Migrate applies pending schema migrations and upserts the case state lookup table from graph
func (s *Store) Migrate(ctx context.Context, graph *model.StateGraph) error {
	p, err := s.provider()
	if err != nil {
		return err
	}

	results, err := p.Up(ctx)
	if err != nil {
		return model.WrapPersistence(err, "failed to apply migrations", goerr.V("dialect", s.dialect))
	}
	for _, r := range results {
		logging.From(ctx).Info("applied migration",
			"dialect", s.dialect,
			"version", r.Source.Version,
			"duration", r.Duration,
		)
	}

	return s.syncStates(ctx, graph)
}

// MigrationVersion returns the current schema version
func (s *Store) MigrationVersion(ctx context.Context) (int64, error) {
	p, err := s.provider()
	if err != nil {
		return 0, err
	}
	v, err := p.GetDBVersion(ctx)
	if err != nil {
		return 0, model.WrapPersistence(err, "failed to read migration version")
	}
	return v, nil
}

func (s *Store) syncStates(ctx context.Context, graph *model.StateGraph) error {
	if graph == nil {
		graph = model.DefaultStateGraph()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.WrapPersistence(err, "failed to begin state sync")
	}
	defer func() { _ = tx.Rollback() }()

	c := s.conn(tx)
	for i, st := range graph.States() {
		if _, err := c.exec(ctx, `INSERT INTO case_states (id, name, requires_closure, position)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name,
				requires_closure = excluded.requires_closure,
				position = excluded.position`,
			st.ID.String(), st.Name, st.RequiresClosure, i,
		); err != nil {
			return model.WrapPersistence(err, "failed to upsert case state", goerr.V("state", st.ID))
		}
	}

	if err := tx.Commit(); err != nil {
		return model.WrapPersistence(err, "failed to commit state sync")
	}
	return nil
}
