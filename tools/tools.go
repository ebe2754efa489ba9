// Package tools defines the agent's callable tool surface: the Tool
// interface, the outcome union, and a registry that validates parameters
// against each tool's schema before dispatching.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Outcome is the result of one tool execution. Exactly one of Success,
// Failure or EarlyTerminate.
//
// Failure is non-fatal: it is returned to the model as the tool result so it
// can self-correct. EarlyTerminate ends the agent turn with no response.
type Outcome interface {
	outcome()
}

// Success carries the tool result back to the model. Value may be a string
// or any JSON-marshalable structure; non-strings are serialized before being
// appended to the conversation.
type Success struct {
	Value any
}

type Failure struct {
	Message string
}

type EarlyTerminate struct{}

func (Success) outcome()        {}
func (Failure) outcome()        {}
func (EarlyTerminate) outcome() {}

func Failuref(format string, args ...any) Failure {
	return Failure{Message: fmt.Sprintf(format, args...)}
}

// Scope is the request-scoped configuration passed to every execution. The
// model never controls these values; they pin side effects to the
// conversation that triggered the turn.
type Scope struct {
	ChannelID string // originating channel
	ThreadTS  string // thread to reply into ("" for top-level)
	MessageTS string // the triggering message
	UserID    string // the user who triggered the turn
}

type Tool interface {
	Name() string
	Description() string
	ParameterSchema() string
	Execute(ctx context.Context, params map[string]any, scope Scope) Outcome
}

// Registry holds the process-wide tool set. Built once at startup; reads are
// lock-free thereafter.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) error {
	if r == nil || t == nil {
		return fmt.Errorf("registry and tool are required")
	}
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("duplicate tool name: %s", name)
	}
	r.tools[name] = t
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.tools[strings.TrimSpace(name)]
	return t, ok
}

// All returns the registered tools sorted by name.
func (r *Registry) All() []Tool {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

// Dispatch validates params against the named tool's schema, then executes
// it. Unknown tools and schema violations come back as Failure so the model
// can correct itself.
func (r *Registry) Dispatch(ctx context.Context, name string, params map[string]any, scope Scope) Outcome {
	t, ok := r.Get(name)
	if !ok {
		return Failuref("unknown tool: %s", strings.TrimSpace(name))
	}
	if err := ValidateParams(t.ParameterSchema(), params); err != nil {
		return Failuref("invalid parameters for %s: %v", t.Name(), err)
	}
	return t.Execute(ctx, params, scope)
}

// DecodeParams copies validated params into a typed input struct.
func DecodeParams(params map[string]any, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
