package tools

import (
	"connectai/pkg/logger"
)

// RegisterBuiltinTools registers the process-wide tools every agent may be
// granted. Agent configs reference these by name; a name missing here is
// simply never advertised to the model.
func RegisterBuiltinTools(registry *Registry) {
	log := logger.Get().With("component", "tool_registration")

	registry.Register(NewEndCallTool())
	registry.Register(NewCurrentTimeTool())

	log.Infof("Tool registration complete: %d tools available", len(registry.List()))
}
