package agent

import (
	"fmt"
	"strings"

	"github.com/Sami9889/grook/internal/jsonutil"
	"github.com/Sami9889/grook/llm"
)

// Response types the model may return.
const (
	TypeFinal     = "final"
	TypeToolCalls = "tool_calls"
)

// Response is the model's structured reply: either a final text or a batch of
// tool calls.
type Response struct {
	Type   string     `json:"type"`
	Output string     `json:"output,omitempty"`
	Calls  []ToolCall `json:"calls,omitempty"`
}

// ToolCall is one model-issued request to run a registered tool.
type ToolCall struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// ParseResponse decodes a model result into a Response, tolerating code
// fences and surrounding prose. It rejects unknown types and tool_calls
// batches that are empty or name no tool.
func ParseResponse(result llm.Result) (*Response, error) {
	var resp Response
	if err := jsonutil.DecodeWithFallback(result.Text, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	switch resp.Type {
	case TypeFinal:
		return &resp, nil
	case TypeToolCalls:
		if len(resp.Calls) == 0 {
			return nil, fmt.Errorf("tool_calls response with no calls")
		}
		for i, call := range resp.Calls {
			if strings.TrimSpace(call.Name) == "" {
				return nil, fmt.Errorf("tool call %d has no name", i)
			}
		}
		return &resp, nil
	case "":
		return nil, fmt.Errorf("response missing type")
	default:
		return nil, fmt.Errorf("unknown response type %q", resp.Type)
	}
}
