package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/service/slack"
)

type Slack struct {
	botToken  string
	channelID string
	baseURL   string
}

func (x *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-bot-token",
			Usage:       "Slack Bot User OAuth Token for case notifications",
			Category:    "Slack",
			Destination: &x.botToken,
			Sources:     cli.EnvVars("CASEKEEPER_SLACK_BOT_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "slack-channel-id",
			Usage:       "Slack channel receiving case notifications",
			Category:    "Slack",
			Destination: &x.channelID,
			Sources:     cli.EnvVars("CASEKEEPER_SLACK_CHANNEL_ID"),
		},
		&cli.StringFlag{
			Name:        "base-url",
			Usage:       "Base URL of the case UI, used for links in notifications",
			Category:    "Slack",
			Destination: &x.baseURL,
			Sources:     cli.EnvVars("CASEKEEPER_BASE_URL"),
		},
	}
}

func (x Slack) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("bot-token.len", len(x.botToken)),
		slog.String("channel-id", x.channelID),
	)
}

// IsConfigured reports whether notifications are enabled
func (x *Slack) IsConfigured() bool {
	return x.botToken != "" || x.channelID != ""
}

// Configure returns the notifier, or nil when Slack is not configured. A token without a channel (or
// the reverse) is an error.
func (x *Slack) Configure() (interfaces.Notifier, error) {
	if !x.IsConfigured() {
		return nil, nil
	}
	if x.botToken == "" || x.channelID == "" {
		return nil, goerr.Wrap(ErrMissingOption, "both --slack-bot-token and --slack-channel-id are required for notifications")
	}

	n, err := slack.New(x.botToken, x.channelID, slack.WithBaseURL(x.baseURL))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize slack notifier")
	}
	return n, nil
}
