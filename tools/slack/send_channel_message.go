package slack

import (
	"context"
	"strings"

	"github.com/Sami9889/grook/tools"
)

type SendChannelMessageTool struct {
	api       API
	moderator Moderator
}

func NewSendChannelMessageTool(api API, moderator Moderator) *SendChannelMessageTool {
	return &SendChannelMessageTool{api: api, moderator: moderator}
}

type sendChannelMessageParams struct {
	Text         string `json:"text" jsonschema_description:"The message text. To send multiple messages at once, place them on separate lines. Example: 'Hello, world!'"`
	SkipResponse bool   `json:"skip_response,omitempty" jsonschema_description:"If true, the turn ends after the message is sent, without a separate response."`
}

func (t *SendChannelMessageTool) Name() string { return "send_channel_message" }

func (t *SendChannelMessageTool) Description() string {
	return "Send a top-level message in both the current channel and the current thread."
}

func (t *SendChannelMessageTool) ParameterSchema() string {
	return tools.SchemaFor(sendChannelMessageParams{})
}

// Execute sends into the originating channel and thread only. The target
// comes from the scope, never from the model, so the agent cannot redirect
// output elsewhere.
func (t *SendChannelMessageTool) Execute(ctx context.Context, params map[string]any, scope tools.Scope) tools.Outcome {
	if t == nil || t.api == nil || t.moderator == nil {
		return tools.Failuref("send_channel_message is disabled")
	}
	var in sendChannelMessageParams
	if err := tools.DecodeParams(params, &in); err != nil {
		return tools.Failuref("invalid params: %v", err)
	}
	if strings.TrimSpace(in.Text) == "" {
		return tools.Failuref("missing required param: text")
	}
	if scope.ChannelID == "" {
		return tools.Failuref("no originating channel in scope")
	}

	text, err := t.moderator.Review(ctx, in.Text)
	if err != nil {
		return tools.Failuref("moderation failed: %v", err)
	}
	if err := sendLines(ctx, t.api, scope.ChannelID, text, scope.ThreadTS, true); err != nil {
		return tools.Failuref("Slack API error: %v", err)
	}
	if in.SkipResponse {
		return tools.EarlyTerminate{}
	}
	return tools.Success{Value: "success"}
}
