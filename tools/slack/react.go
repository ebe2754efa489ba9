package slack

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Sami9889/grook/internal/emoji"
	"github.com/Sami9889/grook/tools"
)

type ReactTool struct {
	api API
}

func NewReactTool(api API) *ReactTool {
	return &ReactTool{api: api}
}

type reactParams struct {
	Emojis       []string `json:"emojis" jsonschema_description:"The reaction(s) to add, in separate strings. Emojis should either be Unicode emojis (e.g. \"😀\") or Slack emoji names without surrounding colons (e.g. \"grinning\")."`
	SkipResponse bool     `json:"skip_response,omitempty" jsonschema_description:"If true, the turn ends after reacting, without a separate response."`
}

func (t *ReactTool) Name() string { return "react" }

func (t *ReactTool) Description() string {
	return "React to the most recent message."
}

func (t *ReactTool) ParameterSchema() string {
	return tools.SchemaFor(reactParams{})
}

// Execute validates every identifier before applying any reaction: one
// invalid identifier fails the whole call with no side effects. Valid
// reactions are applied concurrently and the call waits for all of them.
func (t *ReactTool) Execute(ctx context.Context, params map[string]any, scope tools.Scope) tools.Outcome {
	if t == nil || t.api == nil {
		return tools.Failuref("react is disabled")
	}
	var in reactParams
	if err := tools.DecodeParams(params, &in); err != nil {
		return tools.Failuref("invalid params: %v", err)
	}

	var names, invalid []string
	for _, raw := range in.Emojis {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if emoji.IsLiteral(raw) {
			name, ok := emoji.Lookup(raw)
			if !ok {
				invalid = append(invalid, raw)
				continue
			}
			names = append(names, name)
			continue
		}
		name := strings.Trim(raw, ":")
		if !emoji.KnownName(name) {
			invalid = append(invalid, raw)
			continue
		}
		names = append(names, name)
	}
	if len(invalid) > 0 {
		return tools.Failuref("Emojis invalid or unavailable: %s", strings.Join(invalid, ", "))
	}
	if len(names) == 0 {
		return tools.Failuref("missing required param: emojis")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			return t.api.AddReaction(gctx, scope.ChannelID, scope.MessageTS, name)
		})
	}
	if err := g.Wait(); err != nil {
		return tools.Failuref("Slack API error: %v", err)
	}
	if in.SkipResponse {
		return tools.EarlyTerminate{}
	}
	return tools.Success{Value: "Reacted with " + strings.Join(names, ", ")}
}
