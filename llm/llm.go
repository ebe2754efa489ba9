// Package llm defines the minimal client surface the rest of the bot needs
// from a language model provider. Providers live under providers/.
package llm

import (
	"context"
	"time"
)

// Message is a single turn in a model conversation.
//
// Content carries plain text. Blocks, when non-empty, carries typed content
// instead; providers that cannot express a block type fall back to its text.
type Message struct {
	Role    string         `json:"role"`
	Content string         `json:"content,omitempty"`
	Blocks  []ContentBlock `json:"blocks,omitempty"`
}

// Block types.
const (
	BlockText  = "text"
	BlockImage = "image"
)

// ContentBlock is one typed fragment of a message.
type ContentBlock struct {
	Type string `json:"type"` // BlockText or BlockImage

	Text string `json:"text,omitempty"`

	// Image payload, base64-encoded, with its media type (e.g. "image/png").
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

// TextOf flattens a message back to plain text for scanning and logging.
func (m Message) TextOf() string {
	if len(m.Blocks) == 0 {
		return m.Content
	}
	out := m.Content
	for _, b := range m.Blocks {
		if b.Type != BlockText || b.Text == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += b.Text
	}
	return out
}

// Request is one chat completion call.
type Request struct {
	Model     string
	Messages  []Message
	ForceJSON bool

	// Parameters carries provider-specific sampling knobs ("temperature",
	// "max_tokens").
	Parameters map[string]any
}

// Usage reports token accounting when the provider exposes it.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Result is the provider's reply.
type Result struct {
	Text     string
	Usage    Usage
	Duration time.Duration
}

// Client is a chat-completion backend. Implementations must be safe for
// concurrent use.
type Client interface {
	Chat(ctx context.Context, req Request) (Result, error)
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)
