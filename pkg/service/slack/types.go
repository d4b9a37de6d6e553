package slack

import (
	"context"

	"github.com/slack-go/slack"
)

// API is the subset of the Slack Web API the notifier uses. *slack.Client satisfies it.
type API interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Message is a rendered notification
type Message struct {
	Text   string
	Blocks []slack.Block
}
