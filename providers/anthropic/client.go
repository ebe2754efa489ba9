// Package anthropic implements llm.Client on top of the Anthropic Messages
// API.
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Sami9889/grook/llm"
)

const (
	defaultMaxTokens      = 4096
	defaultRequestTimeout = 120 * time.Second

	forceJSONNote = "Respond with a single valid JSON object and nothing else. No prose, no code fences."
)

type Config struct {
	APIKey         string
	BaseURL        string
	MaxTokens      int64
	RequestTimeout time.Duration
}

type Client struct {
	api       sdk.Client
	maxTokens int64
}

func New(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		api:       sdk.NewClient(opts...),
		maxTokens: maxTokens,
	}, nil
}

func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Result, error) {
	if c == nil {
		return llm.Result{}, fmt.Errorf("anthropic client is not initialized")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return llm.Result{}, fmt.Errorf("model is required")
	}
	system, messages := splitConversation(req.Messages)
	if req.ForceJSON {
		system = appendSystemLine(system, forceJSONNote)
	}
	if len(messages) == 0 {
		return llm.Result{}, fmt.Errorf("at least one non-system message is required")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: c.maxTokens,
		Messages:  messages,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if temp, ok := temperatureOf(req.Parameters); ok {
		params.Temperature = sdk.Float(temp)
	}

	start := time.Now()
	resp, err := c.api.Messages.New(ctx, params)
	duration := time.Since(start)
	if err != nil {
		return llm.Result{}, fmt.Errorf("anthropic messages.new: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(sdk.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	return llm.Result{
		Text: text.String(),
		Usage: llm.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
		Duration: duration,
	}, nil
}

// splitConversation separates leading system messages (joined into the
// Anthropic system prompt) from the chat turns. System notes appearing
// mid-conversation and tool results are folded into user turns, since the
// Messages API only accepts user/assistant roles.
func splitConversation(messages []llm.Message) (string, []sdk.MessageParam) {
	var system []string
	out := make([]sdk.MessageParam, 0, len(messages))
	leading := true
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem && leading {
			if text := strings.TrimSpace(msg.TextOf()); text != "" {
				system = append(system, text)
			}
			continue
		}
		leading = false
		switch msg.Role {
		case llm.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(contentBlocks(msg)...))
		case llm.RoleSystem:
			note := strings.TrimSpace(msg.TextOf())
			if note == "" {
				continue
			}
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock("System note:\n"+note)))
		default:
			out = append(out, sdk.NewUserMessage(contentBlocks(msg)...))
		}
	}
	return strings.Join(system, "\n\n"), out
}

func contentBlocks(msg llm.Message) []sdk.ContentBlockParamUnion {
	if len(msg.Blocks) == 0 {
		text := msg.Content
		if strings.TrimSpace(text) == "" {
			text = "(empty)"
		}
		return []sdk.ContentBlockParamUnion{sdk.NewTextBlock(text)}
	}
	out := make([]sdk.ContentBlockParamUnion, 0, len(msg.Blocks))
	for _, b := range msg.Blocks {
		switch b.Type {
		case llm.BlockImage:
			if b.MediaType == "" || b.Data == "" {
				continue
			}
			out = append(out, sdk.NewImageBlockBase64(b.MediaType, b.Data))
		default:
			if strings.TrimSpace(b.Text) == "" {
				continue
			}
			out = append(out, sdk.NewTextBlock(b.Text))
		}
	}
	if len(out) == 0 {
		out = append(out, sdk.NewTextBlock("(empty)"))
	}
	return out
}

func appendSystemLine(system, line string) string {
	if system == "" {
		return line
	}
	return system + "\n\n" + line
}

func temperatureOf(params map[string]any) (float64, bool) {
	if params == nil {
		return 0, false
	}
	switch v := params["temperature"].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
