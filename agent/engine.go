// Package agent drives the model/tool loop for one turn: it submits the
// conversation with the tool listing, dispatches the tool calls the model
// asks for, intercepts the skip signal and runs the final text through the
// moderation gate before handing it back.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Sami9889/grook/guard"
	"github.com/Sami9889/grook/llm"
	"github.com/Sami9889/grook/tools"
)

const (
	defaultMaxSteps = 12

	// skipSentinel is the tool-result payload recorded for EarlyTerminate.
	// It is checked before every model call, not acted on inline, so a skip
	// in the middle of a batch still lets the batch's remaining calls run.
	skipSentinel = "_skip"

	parseRetryNote = "Your last reply was not a valid response object. Reply with a single JSON object per the Response Protocol."
	concludeNote   = "You have reached the maximum number of steps. Provide your final output NOW as a JSON final response."
)

// TurnResult is the terminal value of one engine run. Skipped means the turn
// ended via the skip signal; otherwise Text holds the moderated final text,
// possibly empty.
type TurnResult struct {
	Skipped bool
	Text    string
}

type Engine struct {
	client   llm.Client
	registry *tools.Registry
	guard    *guard.Guard
	model    string
	maxSteps int
	params   map[string]any
	log      *slog.Logger
}

type Option func(*Engine)

func WithGuard(g *guard.Guard) Option {
	return func(e *Engine) { e.guard = g }
}

func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

func WithParameters(params map[string]any) Option {
	return func(e *Engine) { e.params = params }
}

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func New(client llm.Client, registry *tools.Registry, model string, opts ...Option) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	e := &Engine{
		client:   client,
		registry: registry,
		model:    model,
		maxSteps: defaultMaxSteps,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run executes one agent turn over the prepared conversation. directoryNote,
// when non-empty, is appended as a trailing system note. The scope pins
// side-effecting tools to the originating channel and thread.
func (e *Engine) Run(ctx context.Context, conversation []llm.Message, directoryNote string, scope tools.Scope, botID, creatorID string) (TurnResult, error) {
	system := buildPromptSpec(botID, creatorID, e.registry).Render()
	messages := make([]llm.Message, 0, len(conversation)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	messages = append(messages, conversation...)
	if directoryNote != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: directoryNote})
	}

	skipped := false
	for step := 1; step <= e.maxSteps; step++ {
		if skipped {
			e.log.Info("turn_skipped", "step", step)
			return TurnResult{Skipped: true}, nil
		}

		result, err := e.client.Chat(ctx, llm.Request{
			Model:      e.model,
			Messages:   messages,
			ForceJSON:  true,
			Parameters: e.params,
		})
		if err != nil {
			return TurnResult{}, fmt.Errorf("model call (step %d): %w", step, err)
		}

		resp, err := ParseResponse(result)
		if err != nil {
			e.log.Warn("response_parse_error", "step", step, "error", err)
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: parseRetryNote})
			continue
		}

		if resp.Type == TypeFinal {
			return e.finish(ctx, resp.Output)
		}

		for _, call := range resp.Calls {
			payload, terminate := e.dispatch(ctx, call, scope)
			if terminate {
				skipped = true
			}
			messages = append(messages, llm.Message{
				Role:    llm.RoleTool,
				Content: fmt.Sprintf("Tool %q result: %s", call.Name, payload),
			})
		}
	}

	if skipped {
		return TurnResult{Skipped: true}, nil
	}
	return e.forceConclusion(ctx, messages)
}

func (e *Engine) dispatch(ctx context.Context, call ToolCall, scope tools.Scope) (payload string, terminate bool) {
	outcome := e.registry.Dispatch(ctx, call.Name, call.Params, scope)
	switch o := outcome.(type) {
	case tools.Success:
		e.log.Info("tool_ok", "tool", call.Name)
		return successPayload(o.Value), false
	case tools.Failure:
		e.log.Warn("tool_failed", "tool", call.Name, "message", o.Message)
		return "[error] " + o.Message, false
	case tools.EarlyTerminate:
		e.log.Info("tool_skip", "tool", call.Name)
		return skipSentinel, true
	default:
		e.log.Error("tool_unknown_outcome", "tool", call.Name)
		return "[error] internal: unknown tool outcome", false
	}
}

func successPayload(value any) string {
	if value == nil {
		return "success"
	}
	if s, ok := value.(string); ok {
		return s
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(raw)
}

// finish moderates the raw final text. Empty text is a valid "nothing to
// say" result and is not moderated.
func (e *Engine) finish(ctx context.Context, raw string) (TurnResult, error) {
	if strings.TrimSpace(raw) == "" {
		return TurnResult{Text: ""}, nil
	}
	if e.guard == nil {
		return TurnResult{}, fmt.Errorf("no moderation gate configured")
	}
	text, err := e.guard.Review(ctx, raw)
	if err != nil {
		return TurnResult{}, err
	}
	return TurnResult{Text: text}, nil
}

// forceConclusion runs after the step bound: one last model call demanding a
// final response. Anything but a usable final ends the turn empty.
func (e *Engine) forceConclusion(ctx context.Context, messages []llm.Message) (TurnResult, error) {
	e.log.Warn("force_conclusion", "messages", len(messages))
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: concludeNote})
	result, err := e.client.Chat(ctx, llm.Request{
		Model:      e.model,
		Messages:   messages,
		ForceJSON:  true,
		Parameters: e.params,
	})
	if err != nil {
		return TurnResult{}, fmt.Errorf("force conclusion: %w", err)
	}
	resp, err := ParseResponse(result)
	if err != nil || resp.Type != TypeFinal {
		e.log.Warn("force_conclusion_invalid", "error", err)
		return TurnResult{Text: ""}, nil
	}
	return e.finish(ctx, resp.Output)
}
