package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/betwatch/casekeeper/pkg/utils/logging"
	"github.com/m-mizutani/gt"
)

func TestFrom(t *testing.T) {
	t.Run("falls back to default logger", func(t *testing.T) {
		gt.Value(t, logging.From(context.Background())).Equal(logging.Default())
	})

	t.Run("returns logger stored in context", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		ctx := logging.With(context.Background(), logger)

		logging.From(ctx).Info("hello", "case_id", 7)
		gt.String(t, buf.String()).Contains("case_id=7")
	})
}

func TestSetDefault(t *testing.T) {
	orig := logging.Default()
	t.Cleanup(func() { logging.SetDefault(orig) })

	var buf bytes.Buffer
	logging.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	logging.Default().Info("switched")
	gt.String(t, buf.String()).Contains("switched")

	// nil is ignored
	logging.SetDefault(nil)
	gt.Value(t, logging.Default()).NotNil()
}
