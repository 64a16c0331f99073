package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/mcphost/mcphost/internal/backend"
)

// backendFile is the on-disk shape of the backend configuration file (spec
// §6): a single "mcpServers" object keyed by backend_id, matching the
// upstream MCP client config convention.
type backendFile struct {
	Backends map[string]backendEntry `json:"mcpServers"`
}

type backendEntry struct {
	Command     string                        `json:"command"`
	Args        []string                      `json:"args"`
	Env         map[string]string             `json:"env"`
	Tools       map[string]backend.ToolSchema `json:"tools"`
	AutoApprove []string                      `json:"autoApprove"`
	Disabled    bool                          `json:"disabled"`
	Transport   backend.Transport             `json:"transport"`
	Restart     backend.Restart               `json:"restart"`
}

// LoadBackends reads and parses the backend configuration file at path into
// a slice of backend.Config, in the stable order their keys were declared
// in the file. It is a single startup read: this host does not hot-reload
// backend configuration (spec §9).
func LoadBackends(path string) ([]backend.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read backend config %q: %w", path, err)
	}

	var file backendFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("config: parse backend config %q: %w", path, err)
	}

	order, err := orderedKeys(raw)
	if err != nil {
		return nil, fmt.Errorf("config: determine backend order %q: %w", path, err)
	}

	configs := make([]backend.Config, 0, len(file.Backends))
	for _, id := range order {
		entry, ok := file.Backends[id]
		if !ok {
			continue
		}
		if entry.Command == "" {
			return nil, fmt.Errorf("config: backend %q is missing a command", id)
		}
		transport := entry.Transport
		if transport == "" {
			transport = backend.TransportStdio
		}
		restart := entry.Restart
		if restart == "" {
			restart = backend.RestartNone
		}
		configs = append(configs, backend.Config{
			BackendID:   id,
			Command:     entry.Command,
			Args:        entry.Args,
			Env:         entry.Env,
			Tools:       entry.Tools,
			AutoApprove: entry.AutoApprove,
			Disabled:    entry.Disabled,
			Transport:   transport,
			Restart:     restart,
		})
	}
	return configs, nil
}

// orderedKeys re-reads the raw JSON to recover the declaration order of the
// "mcpServers" object's keys, which encoding/json's map decoding discards.
func orderedKeys(raw []byte) ([]string, error) {
	var probe struct {
		Backends json.RawMessage `json:"mcpServers"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader(probe.Backends))
	tok, err := decoder.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("mcpServers must be a JSON object")
	}

	var keys []string
	for decoder.More() {
		tok, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected non-string key")
		}
		keys = append(keys, key)

		var discard json.RawMessage
		if err := decoder.Decode(&discard); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// WatchBackendConfig watches path for changes and logs a single notice per
// change event telling the operator to restart the host to apply it. This
// host does not hot-reload backend configuration (spec §9); the watch exists
// purely to shorten the loop between editing the file and noticing it
// needs a restart.
func WatchBackendConfig(ctx context.Context, path string, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch %q: %w", path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					logger.Warn("backend configuration file changed on disk; restart mcphost to apply it",
						slog.String("path", path))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("backend config watcher error", slog.Any("error", err))
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}
