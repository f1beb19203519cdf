package tools

import (
	"context"

	"connectai/pkg/errors"
)

// Tool represents a callable capability exposed to the model.
type Tool interface {
	// Name returns the unique tool identifier.
	Name() string
	// Description returns a short human-readable summary.
	Description() string
	// Parameters returns the JSON-schema parameter description advertised at
	// session setup.
	Parameters() map[string]interface{}
	// Execute performs the tool's action using the provided arguments.
	Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)
}

// HandlerFunc is the function signature for tool handlers.
type HandlerFunc func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)

// FunctionTool is a simple Tool implementation backed by a handler function.
type FunctionTool struct {
	name        string
	description string
	params      map[string]interface{}
	handler     HandlerFunc
}

// New creates a new function-backed Tool.
func New(name, description string, params map[string]interface{}, handler HandlerFunc) Tool {
	return &FunctionTool{
		name:        name,
		description: description,
		params:      params,
		handler:     handler,
	}
}

// Name returns the tool identifier.
func (t *FunctionTool) Name() string { return t.name }

// Description returns a human description of the tool.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the advertised parameter schema.
func (t *FunctionTool) Parameters() map[string]interface{} { return t.params }

// Execute runs the underlying handler.
func (t *FunctionTool) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	if t.handler == nil {
		return nil, errors.Wrap(errors.ErrTool, "tool handler is not defined")
	}

	return t.handler(ctx, args)
}
