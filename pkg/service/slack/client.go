package slack

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/utils/logging"
)

// Notifier posts case lifecycle events to a Slack channel
type Notifier struct {
	api       API
	channelID string
	baseURL   string
}

var _ interfaces.Notifier = &Notifier{}

// Option is a functional option for Notifier configuration
type Option func(*Notifier)

// WithAPI replaces the Slack client. Used by tests.
func WithAPI(api API) Option {
	return func(n *Notifier) {
		n.api = api
	}
}

// WithBaseURL links case IDs in messages to {baseURL}/cases/{id}
func WithBaseURL(baseURL string) Option {
	return func(n *Notifier) {
		n.baseURL = baseURL
	}
}

// New creates a notifier posting with the given bot token to channelID
func New(token, channelID string, opts ...Option) (*Notifier, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}
	if channelID == "" {
		return nil, goerr.New("Slack channel is required")
	}

	n := &Notifier{
		api:       slack.New(token),
		channelID: channelID,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// NotifyCaseEvent posts ev to the configured channel
func (n *Notifier) NotifyCaseEvent(ctx context.Context, ev *model.CaseEvent) error {
	msg := BuildMessage(ev, n.baseURL)

	_, ts, err := n.api.PostMessageContext(ctx, n.channelID,
		slack.MsgOptionText(msg.Text, false),
		slack.MsgOptionBlocks(msg.Blocks...),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to post Slack message",
			goerr.V("channel_id", n.channelID),
			goerr.V(model.CaseIDKey, ev.CaseID),
			goerr.V("event", ev.Type))
	}

	logging.From(ctx).Debug("Posted case event to Slack",
		"channel_id", n.channelID,
		"case_id", ev.CaseID,
		"event", ev.Type,
		"ts", ts)
	return nil
}
