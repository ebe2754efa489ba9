// Package slack provides the Slack-side tools the agent can call: skip,
// profile lookup, DMs, channel messages, reactions, web search, link peeks
// and image analysis.
package slack

import (
	"context"
	"regexp"
	"strings"

	"github.com/Sami9889/grook/internal/slackapi"
)

// API is the Slack transport surface the tools need.
type API interface {
	PostMessage(ctx context.Context, channel, text, threadTS string, broadcast bool) (string, error)
	DeleteMessage(ctx context.Context, channel, ts string) error
	AddReaction(ctx context.Context, channel, ts, name string) error
	OpenDM(ctx context.Context, userIDs string) (string, error)
	UserInfo(ctx context.Context, userID string) (slackapi.UserInfo, error)
}

// Moderator screens outbound text. Blocked text comes back substituted, a
// classification failure comes back as an error.
type Moderator interface {
	Review(ctx context.Context, text string) (string, error)
}

var mentionPattern = regexp.MustCompile(`(?i)<@u[a-z0-9]{10}>`)

// splitUserIDs splits a comma-separated id list, trimming and dropping
// blanks.
func splitUserIDs(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// sendLines posts each non-blank line of text as its own message.
func sendLines(ctx context.Context, api API, channel, text, threadTS string, broadcast bool) error {
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		if _, err := api.PostMessage(ctx, channel, line, threadTS, broadcast); err != nil {
			return err
		}
	}
	return nil
}
