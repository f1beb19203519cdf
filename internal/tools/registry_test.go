package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	registry.Register(New("echo", "Echo arguments back", nil,
		func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			return args, nil
		}))

	tool, ok := registry.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", tool.Name())

	_, ok = registry.Get("missing")
	assert.False(t, ok)
	assert.Contains(t, registry.List(), "echo")
}

func TestRegistryDeclarations(t *testing.T) {
	registry := NewRegistry()
	RegisterBuiltinTools(registry)

	decls := registry.Declarations([]string{"end_call", "not_registered"})
	require.Len(t, decls, 1, "unknown grants must not be advertised")
	assert.Equal(t, "end_call", decls[0].Name)
	assert.NotEmpty(t, decls[0].Description)
	assert.Equal(t, "object", decls[0].Parameters["type"])
}
