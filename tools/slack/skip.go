package slack

import (
	"context"

	"github.com/Sami9889/grook/tools"
)

type SkipTool struct{}

func NewSkipTool() *SkipTool { return &SkipTool{} }

func (t *SkipTool) Name() string { return "skip" }

func (t *SkipTool) Description() string {
	return "Immediately end the assistant turn without responding to the user. " +
		"Use this when the input message is irrelevant or when you have already " +
		"called send_channel_message and do not want to send another message."
}

func (t *SkipTool) ParameterSchema() string {
	return tools.SchemaFor(struct{}{})
}

func (t *SkipTool) Execute(context.Context, map[string]any, tools.Scope) tools.Outcome {
	return tools.EarlyTerminate{}
}
