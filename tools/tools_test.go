package tools

import (
	"context"
	"testing"
)

type fakeTool struct {
	name    string
	schema  string
	outcome Outcome
	gotScope  Scope
	gotParams map[string]any
}

func (t *fakeTool) Name() string            { return t.name }
func (t *fakeTool) Description() string     { return "fake" }
func (t *fakeTool) ParameterSchema() string { return t.schema }

func (t *fakeTool) Execute(_ context.Context, params map[string]any, scope Scope) Outcome {
	t.gotParams = params
	t.gotScope = scope
	return t.outcome
}

const echoSchema = `{
  "type": "object",
  "properties": {
    "text": {"type": "string"},
    "skip_response": {"type": "boolean"}
  },
  "required": ["text"]
}`

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	if err := reg.Register(&fakeTool{name: "echo", schema: echoSchema}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register(&fakeTool{name: "echo", schema: echoSchema}); err == nil {
		t.Fatalf("expected duplicate name error")
	}
}

func TestDispatchValidatesBeforeExecute(t *testing.T) {
	t.Parallel()

	tool := &fakeTool{name: "echo", schema: echoSchema, outcome: Success{Value: "ok"}}
	reg := NewRegistry()
	if err := reg.Register(tool); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	out := reg.Dispatch(context.Background(), "echo", map[string]any{"skip_response": true}, Scope{})
	fail, ok := out.(Failure)
	if !ok {
		t.Fatalf("expected Failure for missing required param, got %#v", out)
	}
	if fail.Message == "" {
		t.Fatalf("failure message is empty")
	}
	if tool.gotParams != nil {
		t.Fatalf("handler ran despite schema violation")
	}
}

func TestDispatchPassesScope(t *testing.T) {
	t.Parallel()

	tool := &fakeTool{name: "echo", schema: echoSchema, outcome: Success{Value: "ok"}}
	reg := NewRegistry()
	if err := reg.Register(tool); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	scope := Scope{ChannelID: "C1", ThreadTS: "1.0001", MessageTS: "1.0002", UserID: "U1"}
	out := reg.Dispatch(context.Background(), "echo", map[string]any{"text": "hi"}, scope)
	if _, ok := out.(Success); !ok {
		t.Fatalf("expected Success, got %#v", out)
	}
	if tool.gotScope != scope {
		t.Fatalf("scope = %#v, want %#v", tool.gotScope, scope)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	out := reg.Dispatch(context.Background(), "nope", nil, Scope{})
	if _, ok := out.(Failure); !ok {
		t.Fatalf("expected Failure for unknown tool, got %#v", out)
	}
}

func TestAllSortedByName(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := reg.Register(&fakeTool{name: name, schema: "{}"}); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}
	all := reg.All()
	if len(all) != 3 {
		t.Fatalf("len(All()) = %d, want 3", len(all))
	}
	if all[0].Name() != "alpha" || all[2].Name() != "zeta" {
		t.Fatalf("All() not sorted: %s, %s, %s", all[0].Name(), all[1].Name(), all[2].Name())
	}
}
