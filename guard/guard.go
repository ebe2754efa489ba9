// Package guard runs a classification-only model pass over every text about
// to leave the bot. The classifier sees only the candidate text; anything but
// the literal verdict "safe" blocks it.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	_ "embed"

	"github.com/Sami9889/grook/llm"
)

// BlockedSubstitution replaces blocked text. The original text never leaves
// the process.
const BlockedSubstitution = "This message was blocked by the content filter"

//go:embed prompts/classify.tmpl
var classifyPrompt string

type Guard struct {
	client llm.Client
	model  string
	log    *slog.Logger
}

func New(client llm.Client, model string, log *slog.Logger) (*Guard, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("moderation model is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Guard{client: client, model: model, log: log}, nil
}

// Review classifies text and returns what may be sent: the text itself when
// the classifier answers "safe", BlockedSubstitution otherwise. A failed
// classification call is a fatal error for the turn; there is no
// default-allow.
func (g *Guard) Review(ctx context.Context, text string) (string, error) {
	if g == nil || g.client == nil {
		return "", fmt.Errorf("guard is not initialized")
	}
	res, err := g.client.Chat(ctx, llm.Request{
		Model: g.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: strings.TrimSpace(classifyPrompt)},
			{Role: llm.RoleUser, Content: text},
		},
		Parameters: map[string]any{"temperature": 0.0},
	})
	if err != nil {
		return "", fmt.Errorf("moderation classify: %w", err)
	}
	verdict := strings.ToLower(strings.TrimSpace(res.Text))
	if verdict == "safe" {
		return text, nil
	}
	g.log.Warn("guard_blocked", "reason", strings.TrimSpace(res.Text), "chars", len(text))
	return BlockedSubstitution, nil
}
