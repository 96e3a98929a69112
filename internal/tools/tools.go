// Package tools implements the built-in tools the model can call and
// the registry that executes them. Execution never fails across the
// tool boundary: every failure mode comes back as descriptive text the
// model can read and recover from.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"nightjar/internal/llm"
)

// maxResultChars caps tool output before it re-enters the model
// context.
const maxResultChars = 8000

// Tool is one callable capability exposed to the model.
type Tool interface {
	Spec() llm.ToolSpec
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// Registry stores tools by name for execution.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(tool Tool) {
	r.tools[tool.Spec().Name] = tool
}

func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Specs returns the specs for the named tools in the given order.
// Unknown names are skipped.
func (r *Registry) Specs(names ...string) []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(names))
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			specs = append(specs, tool.Spec())
		}
	}
	return specs
}

// Run executes the named tool and always produces text: unknown tools
// and execution failures come back as descriptive strings with isError
// set, never as errors. Output is truncated to a fixed ceiling.
func (r *Registry) Run(ctx context.Context, name string, args json.RawMessage) (text string, isError bool) {
	tool, ok := r.tools[name]
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q.", name), true
	}
	out, err := tool.Execute(ctx, args)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), true
	}
	return Truncate(out), false
}

// Truncate trims a tool result to the registry ceiling, appending a
// marker so the model knows content was cut.
func Truncate(s string) string {
	if len(s) > maxResultChars {
		return s[:maxResultChars] + "\n\n[output truncated at 8,000 characters]"
	}
	return s
}
