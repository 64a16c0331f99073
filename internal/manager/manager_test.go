package manager_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcphost/mcphost/internal/backend"
	"github.com/mcphost/mcphost/internal/backend/backendtest"
	"github.com/mcphost/mcphost/internal/manager"
)

// TestFakeBackendProcess is not a real test: when re-executed with
// BACKENDTEST_FAKE_BACKEND=1 (see backendtest.NewConfig), this test binary
// acts as a fake backend child process instead of running the suite.
func TestFakeBackendProcess(t *testing.T) {
	if !backendtest.Active() {
		t.Skip("not running as a fake backend")
	}
	backendtest.Main()
}

func startedManager(t *testing.T, configs []backend.Config) *manager.Manager {
	t.Helper()
	m := manager.New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.Start(ctx, configs)
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return m
}

func fakeConfig(t *testing.T, id string, behavior backendtest.Behavior) backend.Config {
	t.Helper()
	cfg, err := backendtest.NewConfig(id, behavior)
	require.NoError(t, err)
	return cfg
}

func TestExecuteToolRoutesByToolName(t *testing.T) {
	cfgA := fakeConfig(t, "alpha", backendtest.Behavior{
		Tools:   map[string]backend.ToolSchema{"only_alpha": {}},
		Results: map[string]map[string]any{"only_alpha": {"from": "alpha"}},
	})
	cfgB := fakeConfig(t, "beta", backendtest.Behavior{
		Tools:   map[string]backend.ToolSchema{"only_beta": {}},
		Results: map[string]map[string]any{"only_beta": {"from": "beta"}},
	})

	m := startedManager(t, []backend.Config{cfgA, cfgB})

	result, callErr := m.ExecuteTool(context.Background(), "", "only_beta", nil)
	require.Nil(t, callErr)
	require.Equal(t, "beta", result["from"])
}

func TestExecuteToolUnknownToolIsServerNotFound(t *testing.T) {
	m := startedManager(t, nil)
	_, callErr := m.ExecuteTool(context.Background(), "", "nope", nil)
	require.NotNil(t, callErr)
	require.Equal(t, -32004, callErr.Code)
}

func TestToolNameCollisionShadowsEarlierBackend(t *testing.T) {
	cfgA := fakeConfig(t, "first", backendtest.Behavior{
		Tools:   map[string]backend.ToolSchema{"shared": {}},
		Results: map[string]map[string]any{"shared": {"from": "first"}},
	})
	cfgB := fakeConfig(t, "second", backendtest.Behavior{
		Tools:   map[string]backend.ToolSchema{"shared": {}},
		Results: map[string]map[string]any{"shared": {"from": "second"}},
	})

	m := startedManager(t, []backend.Config{cfgA, cfgB})

	result, callErr := m.ExecuteTool(context.Background(), "", "shared", nil)
	require.Nil(t, callErr)
	require.Equal(t, "second", result["from"], "later-started backend should win the collision")
}

func TestExecuteToolWithExplicitBackendIDBypassesRouting(t *testing.T) {
	cfgA := fakeConfig(t, "first", backendtest.Behavior{
		Tools:   map[string]backend.ToolSchema{"shared": {}},
		Results: map[string]map[string]any{"shared": {"from": "first"}},
	})
	cfgB := fakeConfig(t, "second", backendtest.Behavior{
		Tools:   map[string]backend.ToolSchema{"shared": {}},
		Results: map[string]map[string]any{"shared": {"from": "second"}},
	})

	m := startedManager(t, []backend.Config{cfgA, cfgB})

	result, callErr := m.ExecuteTool(context.Background(), "first", "shared", nil)
	require.Nil(t, callErr)
	require.Equal(t, "first", result["from"])
}

func TestDisabledBackendIsSkipped(t *testing.T) {
	cfg := fakeConfig(t, "disabled-one", backendtest.Behavior{
		Tools: map[string]backend.ToolSchema{"hidden": {}},
	})
	cfg.Disabled = true

	m := startedManager(t, []backend.Config{cfg})

	statuses := m.BackendStatus()
	require.NotContains(t, statuses, "disabled-one")

	_, callErr := m.ExecuteTool(context.Background(), "", "hidden", nil)
	require.NotNil(t, callErr)
}

func TestListToolsIsSortedAndReflectsSchemas(t *testing.T) {
	cfg := fakeConfig(t, "alpha", backendtest.Behavior{
		Tools: map[string]backend.ToolSchema{
			"zeta":  {Description: "z"},
			"alpha": {Description: "a"},
		},
	})

	m := startedManager(t, []backend.Config{cfg})

	entries := m.ListTools()
	require.Len(t, entries, 2)
	require.Equal(t, "alpha", entries[0].Name)
	require.Equal(t, "zeta", entries[1].Name)
	require.Equal(t, "a", entries[0].Schema.Description)
	require.Equal(t, "z", entries[1].Schema.Description)
}

func TestFailedBackendStartLeavesOthersRunning(t *testing.T) {
	broken := backend.Config{BackendID: "broken", Command: "/nonexistent/binary-that-does-not-exist"}
	ok := fakeConfig(t, "healthy", backendtest.Behavior{
		Tools: map[string]backend.ToolSchema{"ping": {}},
	})

	m := startedManager(t, []backend.Config{broken, ok})

	statuses := m.BackendStatus()
	require.Equal(t, backend.StatusFailed, statuses["broken"])
	require.Equal(t, backend.StatusReady, statuses["healthy"])
}
