package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcphost/mcphost/internal/backend"
	"github.com/mcphost/mcphost/internal/config"
)

func writeBackendFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backends.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadBackendsPreservesDeclarationOrder(t *testing.T) {
	path := writeBackendFile(t, `{
		"mcpServers": {
			"zeta": {"command": "zeta-bin"},
			"alpha": {"command": "alpha-bin"}
		}
	}`)

	configs, err := config.LoadBackends(path)
	require.NoError(t, err)
	require.Len(t, configs, 2)
	require.Equal(t, "zeta", configs[0].BackendID)
	require.Equal(t, "alpha", configs[1].BackendID)
}

func TestLoadBackendsDefaultsTransportAndRestart(t *testing.T) {
	path := writeBackendFile(t, `{"mcpServers": {"one": {"command": "one-bin"}}}`)

	configs, err := config.LoadBackends(path)
	require.NoError(t, err)
	require.Equal(t, backend.TransportStdio, configs[0].Transport)
	require.Equal(t, backend.RestartNone, configs[0].Restart)
}

func TestLoadBackendsRejectsMissingCommand(t *testing.T) {
	path := writeBackendFile(t, `{"mcpServers": {"broken": {}}}`)

	_, err := config.LoadBackends(path)
	require.Error(t, err)
}

func TestLoadBackendsParsesAutoApproveList(t *testing.T) {
	path := writeBackendFile(t, `{
		"mcpServers": {
			"one": {"command": "one-bin", "autoApprove": ["tool1", "tool2"], "disabled": false}
		}
	}`)

	configs, err := config.LoadBackends(path)
	require.NoError(t, err)
	require.Equal(t, []string{"tool1", "tool2"}, configs[0].AutoApprove)
}

func TestLoadBackendsMissingFile(t *testing.T) {
	_, err := config.LoadBackends(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
