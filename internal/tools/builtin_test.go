package tools_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcphost/mcphost/internal/tools"
)

func TestEchoReturnsMessageUnchanged(t *testing.T) {
	r := tools.NewRegistry()
	result, ok, callErr := r.Call(context.Background(), "echo", map[string]any{"message": "hi there"})
	require.True(t, ok)
	require.Nil(t, callErr)
	require.Equal(t, "hi there", result["echo"])
	require.NotEmpty(t, result["timestamp"])
}

func TestEchoRequiresMessage(t *testing.T) {
	r := tools.NewRegistry()
	_, ok, callErr := r.Call(context.Background(), "echo", map[string]any{})
	require.True(t, ok)
	require.NotNil(t, callErr)
	require.Equal(t, -32602, callErr.Code)
}

func TestTimestampReturnsRFC3339(t *testing.T) {
	r := tools.NewRegistry()
	result, ok, callErr := r.Call(context.Background(), "timestamp", nil)
	require.True(t, ok)
	require.Nil(t, callErr)
	require.NotEmpty(t, result["timestamp"])
}

func TestRandomNumberRespectsBounds(t *testing.T) {
	r := tools.NewRegistry()
	result, ok, callErr := r.Call(context.Background(), "random_number", map[string]any{"min": float64(5), "max": float64(5)})
	require.True(t, ok)
	require.Nil(t, callErr)
	require.Equal(t, 5, result["number"])
	require.Equal(t, 5, result["min"])
	require.Equal(t, 5, result["max"])
}

func TestRandomNumberRejectsInvertedBounds(t *testing.T) {
	r := tools.NewRegistry()
	_, ok, callErr := r.Call(context.Background(), "random_number", map[string]any{"min": float64(10), "max": float64(1)})
	require.True(t, ok)
	require.NotNil(t, callErr)
	require.Equal(t, -32602, callErr.Code)
}

func TestRandomNumberRequiresMinAndMax(t *testing.T) {
	r := tools.NewRegistry()
	_, ok, callErr := r.Call(context.Background(), "random_number", map[string]any{"min": float64(1)})
	require.True(t, ok)
	require.NotNil(t, callErr)
	require.Equal(t, -32602, callErr.Code)
}

func TestCallUnknownToolReturnsNotOK(t *testing.T) {
	r := tools.NewRegistry()
	_, ok, _ := r.Call(context.Background(), "not_a_builtin", nil)
	require.False(t, ok)
}

func TestListIncludesAllBuiltins(t *testing.T) {
	r := tools.NewRegistry()
	names := make(map[string]bool)
	for _, entry := range r.List() {
		names[entry.Name] = true
	}
	require.True(t, names["echo"])
	require.True(t, names["timestamp"])
	require.True(t, names["random_number"])
}
