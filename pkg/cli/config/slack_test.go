package config_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/betwatch/casekeeper/pkg/cli/config"
)

func TestSlackConfigure(t *testing.T) {
	t.Run("not configured returns no notifier", func(t *testing.T) {
		n, err := config.NewSlackForTest("", "", "").Configure()
		gt.NoError(t, err).Required()
		gt.Value(t, n).Nil()
	})

	t.Run("token without channel", func(t *testing.T) {
		_, err := config.NewSlackForTest("xoxb-test", "", "").Configure()
		gt.Error(t, err).Is(config.ErrMissingOption)
	})

	t.Run("channel without token", func(t *testing.T) {
		_, err := config.NewSlackForTest("", "C123", "").Configure()
		gt.Error(t, err).Is(config.ErrMissingOption)
	})

	t.Run("fully configured", func(t *testing.T) {
		n, err := config.NewSlackForTest("xoxb-test", "C123", "https://cases.example.com").Configure()
		gt.NoError(t, err).Required()
		gt.Value(t, n).NotNil()
	})
}
