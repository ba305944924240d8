package tools

import (
	"context"
	"fmt"

	"github.com/barekit/agrilab/pkg/llm"
)

// UnknownToolError reports a model-requested function that is not
// registered. Its Error string is the exact diagnostic shown to the user;
// an unknown tool degrades to a visible message, never a crashed session.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("Error: function %s does not exist", e.Name)
}

// MalformedArgumentsError reports a tool argument payload that could not be
// parsed as the tool's declared schema.
type MalformedArgumentsError struct {
	Tool string
	Err  error
}

func (e *MalformedArgumentsError) Error() string {
	return fmt.Sprintf("malformed arguments for %s: %v", e.Tool, e.Err)
}

func (e *MalformedArgumentsError) Unwrap() error {
	return e.Err
}

// Registry maps function names to callables and their declared schemas.
type Registry struct {
	tools map[string]*Tool
	order []string
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(ts ...*Tool) *Registry {
	r := &Registry{tools: make(map[string]*Tool)}
	for _, t := range ts {
		r.Register(t)
	}
	return r
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Lookup returns the registered tool with the given name.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the declared schemas in registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// Dispatch validates and invokes the named tool with the given JSON
// argument payload. An unregistered name returns the literal diagnostic
// string alongside an *UnknownToolError; the result of a registered tool
// is returned verbatim with no result-shape validation.
func (r *Registry) Dispatch(ctx context.Context, name, argsJSON string) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		err := &UnknownToolError{Name: name}
		return err.Error(), err
	}
	return t.Call(ctx, argsJSON)
}
