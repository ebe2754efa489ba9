package slack

import (
	"context"
	"strings"

	"github.com/Sami9889/grook/tools"
)

type SendDMTool struct {
	api       API
	moderator Moderator
}

func NewSendDMTool(api API, moderator Moderator) *SendDMTool {
	return &SendDMTool{api: api, moderator: moderator}
}

type sendDMParams struct {
	UserID       string `json:"user_id" jsonschema_description:"The user's member ID, or a comma-separated list of them. Example: U12345ABCDE,U67890FGHIJ"`
	Text         string `json:"text" jsonschema_description:"The message text. To send multiple messages at once, place them on separate lines. Example: 'Hello, world!'"`
	SkipResponse bool   `json:"skip_response,omitempty" jsonschema_description:"If true, the turn ends after the message is sent, without a separate response."`
}

func (t *SendDMTool) Name() string { return "send_direct_message" }

func (t *SendDMTool) Description() string {
	return "Send a direct message to a user."
}

func (t *SendDMTool) ParameterSchema() string {
	return tools.SchemaFor(sendDMParams{})
}

func (t *SendDMTool) Execute(ctx context.Context, params map[string]any, scope tools.Scope) tools.Outcome {
	if t == nil || t.api == nil || t.moderator == nil {
		return tools.Failuref("send_direct_message is disabled")
	}
	var in sendDMParams
	if err := tools.DecodeParams(params, &in); err != nil {
		return tools.Failuref("invalid params: %v", err)
	}
	if len(splitUserIDs(in.UserID)) == 0 {
		return tools.Failuref("missing required param: user_id")
	}
	if strings.TrimSpace(in.Text) == "" {
		return tools.Failuref("missing required param: text")
	}
	if !mentionsRequester(in.Text, scope.UserID) {
		return tools.Failuref("Text must mention the person who requested the DM")
	}

	text, err := t.moderator.Review(ctx, in.Text)
	if err != nil {
		return tools.Failuref("moderation failed: %v", err)
	}

	channel, err := t.api.OpenDM(ctx, in.UserID)
	if err != nil {
		return tools.Failuref("Couldn't open conversation - are you sure that user exists? (%v)", err)
	}
	if err := sendLines(ctx, t.api, channel, text, "", false); err != nil {
		return tools.Failuref("Slack API error: %v", err)
	}
	if in.SkipResponse {
		return tools.EarlyTerminate{}
	}
	return tools.Success{Value: "success"}
}

// mentionsRequester requires the DM text to reference the user who triggered
// the turn, so the agent cannot cold-DM third parties. When the requester is
// unknown any user mention satisfies the rule.
func mentionsRequester(text, requesterID string) bool {
	if requesterID != "" {
		return strings.Contains(strings.ToUpper(text), "<@"+strings.ToUpper(requesterID)+">")
	}
	return mentionPattern.MatchString(text)
}
