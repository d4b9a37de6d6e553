package slack

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/slack-go/slack"

	"github.com/betwatch/casekeeper/pkg/domain/model"
)

// Slack rejects section text longer than this
const maxSectionBytes = 3000

var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// escape makes user supplied text safe for mrkdwn
func escape(s string) string {
	return mrkdwnEscaper.Replace(s)
}

// truncateToMaxBytes cuts s to at most max bytes without splitting a UTF-8 sequence
func truncateToMaxBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	const ellipsis = "…"
	limit := max - len(ellipsis)
	if limit <= 0 {
		return ""
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + ellipsis
}

func caseRef(caseID int64, baseURL string) string {
	if baseURL == "" {
		return fmt.Sprintf("case #%d", caseID)
	}
	return fmt.Sprintf("<%s/cases/%d|case #%d>", strings.TrimRight(baseURL, "/"), caseID, caseID)
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}

// BuildMessage renders ev as fallback text and Block Kit blocks
func BuildMessage(ev *model.CaseEvent, baseURL string) Message {
	ref := caseRef(ev.CaseID, baseURL)

	var headline string
	switch ev.Type {
	case model.CaseEventOpened:
		headline = fmt.Sprintf(":file_folder: %s opened by %s", ref, escape(ev.Actor.String()))
	case model.CaseEventTransitioned:
		headline = fmt.Sprintf(":arrow_right: %s moved %s → %s by %s", ref, ev.From, ev.To, escape(ev.Actor.String()))
	case model.CaseEventIncidentsLinked:
		headline = fmt.Sprintf(":link: %d incident(s) linked to %s by %s", len(ev.IncidentIDs), ref, escape(ev.Actor.String()))
	default:
		headline = fmt.Sprintf("%s updated by %s", ref, escape(ev.Actor.String()))
	}

	body := headline
	if ev.Description != "" {
		body += "\n>" + escape(ev.Description)
	}
	body = truncateToMaxBytes(body, maxSectionBytes)

	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, body, false, false), nil, nil),
	}

	var ctxElems []slack.MixedElement
	if len(ev.IncidentIDs) > 0 {
		ctxElems = append(ctxElems, slack.NewTextBlockObject(slack.MarkdownType,
			truncateToMaxBytes("Incidents: "+joinIDs(ev.IncidentIDs), maxSectionBytes), false, false))
	}
	if !ev.At.IsZero() {
		ctxElems = append(ctxElems, slack.NewTextBlockObject(slack.PlainTextType,
			ev.At.UTC().Format("2006-01-02 15:04:05 UTC"), false, false))
	}
	if len(ctxElems) > 0 {
		blocks = append(blocks, slack.NewContextBlock("", ctxElems...))
	}

	return Message{Text: headline, Blocks: blocks}
}
