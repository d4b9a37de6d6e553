package config_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/betwatch/casekeeper/pkg/cli/config"
	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
)

func TestRepositoryConfigure(t *testing.T) {
	ctx := context.Background()
	graph := model.DefaultStateGraph()

	t.Run("memory", func(t *testing.T) {
		repo, err := config.NewRepositoryForTest(config.BackendMemory, "").Configure(ctx, graph)
		gt.NoError(t, err).Required()
		gt.NoError(t, repo.Close())
	})

	t.Run("sqlite is migrated on open", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "casekeeper.db")
		repo, err := config.NewRepositoryForTest(config.BackendSQLite, path).Configure(ctx, graph)
		gt.NoError(t, err).Required()
		defer func() { gt.NoError(t, repo.Close()) }()

		cases, err := repo.Case().List(ctx)
		gt.NoError(t, err).Required()
		gt.Array(t, cases).Length(0)
	})

	t.Run("sqlite migrate reports version in dry run", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "casekeeper.db")
		cfg := config.NewRepositoryForTest(config.BackendSQLite, path)

		steps, err := cfg.Migrate(ctx, graph, false)
		gt.NoError(t, err).Required()
		gt.Array(t, steps).Length(1)

		steps, err = cfg.Migrate(ctx, graph, true)
		gt.NoError(t, err).Required()
		gt.Array(t, steps).Length(1)
		gt.Value(t, steps[0].Operation).Equal("version")
	})

	t.Run("firestore requires project", func(t *testing.T) {
		_, err := config.NewRepositoryForTest(config.BackendFirestore, "").Configure(ctx, graph)
		gt.Error(t, err).Is(config.ErrMissingOption)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := config.NewRepositoryForTest("mongodb", "").Configure(ctx, graph)
		gt.Error(t, err).Is(config.ErrInvalidConfig)
	})

	t.Run("states are synced for custom workflow", func(t *testing.T) {
		custom, err := model.NewStateGraph("NEW",
			[]model.StateDefinition{{ID: "NEW"}, {ID: "DONE", RequiresClosure: true}},
			[]model.StateEdge{{From: "NEW", To: "DONE"}})
		gt.NoError(t, err).Required()

		path := filepath.Join(t.TempDir(), "casekeeper.db")
		repo, err := config.NewRepositoryForTest(config.BackendSQLite, path).Configure(ctx, custom)
		gt.NoError(t, err).Required()
		defer func() { gt.NoError(t, repo.Close()) }()

		gt.Value(t, custom.Initial()).Equal(types.CaseState("NEW"))
	})
}

func TestExportWorker(t *testing.T) {
	t.Run("disabled without schedule", func(t *testing.T) {
		w, err := config.NewExportForTest("", "", "jsonl").Worker(nil)
		gt.NoError(t, err).Required()
		gt.Value(t, w).Nil()
	})

	t.Run("schedule requires destination", func(t *testing.T) {
		_, err := config.NewExportForTest("@daily", "", "jsonl").Worker(nil)
		gt.Error(t, err).Is(config.ErrMissingOption)
	})

	t.Run("gs destination needs storage", func(t *testing.T) {
		gt.Bool(t, config.NewExportForTest("@daily", "gs://bucket/audit", "jsonl").NeedsGCS()).True()
		gt.Bool(t, config.NewExportForTest("@daily", t.TempDir(), "jsonl").NeedsGCS()).False()
		gt.Bool(t, config.NewExportForTest("", "", "jsonl").NeedsGCS("gs://bucket/audit.jsonl")).True()
	})
}
