// Package manager implements the Server Manager (spec §4.1): it owns the
// pool of backend processes, starts and stops them, and maintains the
// tool-name-to-backend routing table that the Host Dispatcher consults on
// every tool call.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mcphost/mcphost/internal/backend"
	"github.com/mcphost/mcphost/internal/protocol"
)

// Manager supervises every configured backend process and resolves tool
// calls to the backend that should handle them.
type Manager struct {
	logger *slog.Logger

	mu       sync.RWMutex
	backends map[string]*backend.Process
	// routes maps a tool name to the backend_id that currently owns it.
	// When two backends advertise the same tool name, the later Start call
	// wins and shadows the earlier one (spec's resolved tool-name-collision
	// ambiguity: last-registered wins).
	routes map[string]string
	order  []string // backend ids in configured order, for deterministic listing
}

// New constructs an empty Manager.
func New(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:   logger,
		backends: make(map[string]*backend.Process),
		routes:   make(map[string]string),
	}
}

// Start spawns every enabled backend in configs, in order. A backend whose
// Start fails is logged and left out of the routing table rather than
// aborting the other backends (spec §4.1: one misbehaving backend must not
// take down the host).
func (m *Manager) Start(ctx context.Context, configs []backend.Config) {
	for _, cfg := range configs {
		if cfg.Disabled {
			m.logger.Info("skipping disabled backend", slog.String("backend_id", cfg.BackendID))
			continue
		}
		if cfg.Restart == backend.RestartOnExit {
			m.logger.Warn("restart policy on_exit is not implemented; treating as none",
				slog.String("backend_id", cfg.BackendID))
		}

		proc := backend.New(cfg, m.logger)

		m.mu.Lock()
		m.backends[cfg.BackendID] = proc
		m.order = append(m.order, cfg.BackendID)
		m.mu.Unlock()

		if err := proc.Start(ctx); err != nil {
			m.logger.Error("backend failed to start; its tools are unavailable",
				slog.String("backend_id", cfg.BackendID), slog.Any("error", err))
			continue
		}

		m.registerTools(cfg.BackendID, proc)
		m.logger.Info("backend ready", slog.String("backend_id", cfg.BackendID), slog.Int("tool_count", len(proc.Tools())))
	}
}

func (m *Manager) registerTools(backendID string, proc *backend.Process) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name := range proc.Tools() {
		if prev, exists := m.routes[name]; exists && prev != backendID {
			m.logger.Warn("tool name collision; shadowing earlier backend",
				slog.String("tool", name), slog.String("previous_backend_id", prev), slog.String("backend_id", backendID))
		}
		m.routes[name] = backendID
	}
}

// ExecuteTool routes a tool call to the backend that owns toolName, or to
// preferredBackendID directly if it is non-empty (spec §4.2: a client may
// address a backend explicitly).
func (m *Manager) ExecuteTool(ctx context.Context, preferredBackendID, toolName string, arguments map[string]any) (map[string]any, *protocol.Error) {
	backendID := preferredBackendID

	m.mu.RLock()
	if backendID == "" {
		backendID = m.routes[toolName]
	}
	proc, ok := m.backends[backendID]
	m.mu.RUnlock()

	if backendID == "" || !ok {
		return nil, protocol.ServerNotFound(toolName)
	}

	return proc.ExecuteTool(ctx, toolName, arguments)
}

// ListTools returns every routed tool name alongside the backend that owns
// it, and the schema that backend advertised, sorted by tool name for a
// stable capabilities listing.
func (m *Manager) ListTools() []ToolEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]ToolEntry, 0, len(m.routes))
	for name, backendID := range m.routes {
		proc, ok := m.backends[backendID]
		if !ok {
			continue
		}
		schema := proc.Tools()[name]
		entries = append(entries, ToolEntry{Name: name, BackendID: backendID, Schema: schema})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// ToolEntry is one routed tool, as surfaced in the capabilities listing.
type ToolEntry struct {
	Name      string
	BackendID string
	Schema    backend.ToolSchema
}

// BackendStatus reports the lifecycle status of every started (non-disabled)
// backend, keyed by backend id.
func (m *Manager) BackendStatus() map[string]backend.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make(map[string]backend.Status, len(m.order))
	for _, id := range m.order {
		if proc, ok := m.backends[id]; ok {
			statuses[id] = proc.Status()
		}
	}
	return statuses
}

// Stop gracefully shuts down a single backend by id.
func (m *Manager) Stop(ctx context.Context, backendID string) error {
	m.mu.RLock()
	proc, ok := m.backends[backendID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("manager: no such backend %q", backendID)
	}
	return proc.Stop(ctx)
}

// Shutdown gracefully stops every managed backend, in configured order.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	ids := append([]string(nil), m.order...)
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.Stop(ctx, id); err != nil {
			m.logger.Error("error stopping backend during shutdown", slog.String("backend_id", id), slog.Any("error", err))
		}
	}
}
