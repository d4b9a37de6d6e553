package slack_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	goslack "github.com/slack-go/slack"

	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/service/slack"
)

type mockAPI struct {
	mu       sync.Mutex
	channels []string
	calls    int
	err      error
}

func (m *mockAPI) PostMessageContext(_ context.Context, channelID string, _ ...goslack.MsgOption) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.channels = append(m.channels, channelID)
	if m.err != nil {
		return "", "", m.err
	}
	return channelID, "1234567890.123456", nil
}

func TestNew(t *testing.T) {
	t.Run("returns error when token is empty", func(t *testing.T) {
		_, err := slack.New("", "C123")
		gt.Value(t, err).NotNil()
	})

	t.Run("returns error when channel is empty", func(t *testing.T) {
		_, err := slack.New("xoxb-test", "")
		gt.Value(t, err).NotNil()
	})

	t.Run("creates notifier when token and channel are provided", func(t *testing.T) {
		n, err := slack.New("xoxb-test", "C123")
		gt.NoError(t, err).Required()
		gt.Value(t, n).NotNil()
	})
}

func TestNotifyCaseEvent(t *testing.T) {
	ev := &model.CaseEvent{
		Type:        model.CaseEventOpened,
		CaseID:      42,
		Description: "card testing",
		Actor:       "analyst-5",
		At:          time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
	}

	t.Run("posts to configured channel", func(t *testing.T) {
		api := &mockAPI{}
		n, err := slack.New("xoxb-test", "C123", slack.WithAPI(api))
		gt.NoError(t, err).Required()

		gt.NoError(t, n.NotifyCaseEvent(context.Background(), ev)).Required()
		gt.Value(t, api.calls).Equal(1)
		gt.Value(t, api.channels).Equal([]string{"C123"})
	})

	t.Run("wraps API errors", func(t *testing.T) {
		apiErr := errors.New("channel_not_found")
		api := &mockAPI{err: apiErr}
		n, err := slack.New("xoxb-test", "C123", slack.WithAPI(api))
		gt.NoError(t, err).Required()

		err = n.NotifyCaseEvent(context.Background(), ev)
		gt.Error(t, err).Is(apiErr)
	})
}

func TestBuildMessage(t *testing.T) {
	t.Run("transition names both states", func(t *testing.T) {
		msg := slack.BuildMessage(&model.CaseEvent{
			Type:   model.CaseEventTransitioned,
			CaseID: 7,
			From:   "OPEN",
			To:     "INVESTIGATING",
			Actor:  "analyst-5",
		}, "")
		gt.String(t, msg.Text).Contains("case #7")
		gt.String(t, msg.Text).Contains("OPEN → INVESTIGATING")
		gt.Array(t, msg.Blocks).Length(1)
	})

	t.Run("links case when base URL is set", func(t *testing.T) {
		msg := slack.BuildMessage(&model.CaseEvent{
			Type:   model.CaseEventOpened,
			CaseID: 7,
			Actor:  "analyst-5",
		}, "https://casekeeper.example.com/")
		gt.String(t, msg.Text).Contains("<https://casekeeper.example.com/cases/7|case #7>")
	})

	t.Run("linked incidents add a context block", func(t *testing.T) {
		msg := slack.BuildMessage(&model.CaseEvent{
			Type:        model.CaseEventIncidentsLinked,
			CaseID:      7,
			Actor:       "analyst-5",
			IncidentIDs: []int64{101, 103},
			At:          time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
		}, "")
		gt.String(t, msg.Text).Contains("2 incident(s)")
		gt.Array(t, msg.Blocks).Length(2)
	})
}

func TestEscape(t *testing.T) {
	gt.Value(t, slack.Escape("<@U123> & co")).Equal("&lt;@U123&gt; &amp; co")
}

func TestTruncateToMaxBytes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{name: "short string is unchanged", input: "hello", max: 10, want: "hello"},
		{name: "ascii is cut with ellipsis", input: "abcdefghij", max: 8, want: "abcde…"},
		{name: "multibyte rune is not split", input: "ああああ", max: 8, want: "あ…"},
		{name: "too small for ellipsis", input: "abcdef", max: 2, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := slack.TruncateToMaxBytes(tt.input, tt.max)
			gt.Value(t, got).Equal(tt.want)
			gt.B(t, len(got) <= tt.max || got == tt.input).True()
		})
	}
}

func TestIntegration(t *testing.T) {
	token := os.Getenv("TEST_SLACK_BOT_TOKEN")
	channel := os.Getenv("TEST_SLACK_CHANNEL_ID")
	if token == "" || channel == "" {
		t.Skip("TEST_SLACK_BOT_TOKEN or TEST_SLACK_CHANNEL_ID is not set")
	}

	n, err := slack.New(token, channel)
	gt.NoError(t, err).Required()

	err = n.NotifyCaseEvent(context.Background(), &model.CaseEvent{
		Type:        model.CaseEventOpened,
		CaseID:      1,
		Description: strings.Repeat("integration test ", 3),
		Actor:       "test",
		At:          time.Now(),
	})
	gt.NoError(t, err)
}
