// Package backendtest provides a fake MCP backend child process for testing
// internal/backend.Process without spawning a real tool server binary.
//
// It reuses the standard re-exec-the-test-binary trick from the stdlib's own
// os/exec tests: NewConfig points a backend.Config at the test binary itself
// (os.Args[0]), and the test binary's TestFakeBackendProcess test recognizes
// an environment flag and calls Main instead of running as a normal test,
// turning the very same binary into the fake backend's child process.
package backendtest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mcphost/mcphost/internal/backend"
	"github.com/mcphost/mcphost/internal/protocol"
)

// EnvFlag, when set to "1" in the child's environment, tells the re-executed
// test binary to run as a fake backend instead of the real test suite.
const EnvFlag = "BACKENDTEST_FAKE_BACKEND"

// BehaviorEnvVar carries a JSON-encoded Behavior to the re-executed process.
const BehaviorEnvVar = "BACKENDTEST_BEHAVIOR"

// Behavior declares how a fake backend responds, in a form that survives
// crossing a process boundary as JSON (closures cannot).
type Behavior struct {
	// Tools is advertised verbatim in the initialize response's
	// capabilities.tools field.
	Tools map[string]backend.ToolSchema `json:"tools"`
	// Results maps a tool name to the result payload tools/call returns for it.
	Results map[string]map[string]any `json:"results"`
	// HangTools lists tool names the fake backend accepts but never replies
	// to, simulating a backend stuck mid-call.
	HangTools []string `json:"hang_tools"`
	// CrashTools lists tool names that cause the fake backend to exit
	// immediately, without responding, simulating a crash mid-call.
	CrashTools []string `json:"crash_tools"`
	// RefuseInitialize makes the fake backend exit before answering the
	// initialize handshake at all.
	RefuseInitialize bool `json:"refuse_initialize"`
	// InitializeDelay pads the handshake response, to exercise the host's
	// handshake timeout.
	InitializeDelay time.Duration `json:"initialize_delay"`
}

// NewConfig builds a backend.Config whose Command re-invokes the current
// test binary as a fake backend exhibiting behavior.
func NewConfig(backendID string, behavior Behavior) (backend.Config, error) {
	encoded, err := json.Marshal(behavior)
	if err != nil {
		return backend.Config{}, fmt.Errorf("backendtest: marshal behavior: %w", err)
	}

	return backend.Config{
		BackendID: backendID,
		Command:   os.Args[0],
		Args:      []string{"-test.run=TestFakeBackendProcess"},
		Env: map[string]string{
			EnvFlag:        "1",
			BehaviorEnvVar: string(encoded),
		},
		Transport: backend.TransportStdio,
		Restart:   backend.RestartNone,
	}, nil
}

// Active reports whether the current process was re-executed to act as a
// fake backend, per EnvFlag.
func Active() bool {
	return os.Getenv(EnvFlag) == "1"
}

// Main runs the fake backend's stdio loop: it answers one initialize call on
// id 0 and then services tools/call requests according to the Behavior
// encoded in BehaviorEnvVar, until stdin closes. Callers invoke this from a
// test named TestFakeBackendProcess, guarded by Active().
func Main() {
	var behavior Behavior
	if raw := os.Getenv(BehaviorEnvVar); raw != "" {
		if err := json.Unmarshal([]byte(raw), &behavior); err != nil {
			fmt.Fprintln(os.Stderr, "backendtest: bad behavior payload:", err)
			os.Exit(1)
		}
	}

	reader := bufio.NewReader(os.Stdin)
	writer := bufio.NewWriter(os.Stdout)

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			handleLine(line, behavior, writer)
		}
		if err != nil {
			return
		}
	}
}

func handleLine(line []byte, behavior Behavior, writer *bufio.Writer) {
	parsed, err := protocol.Parse(line)
	if err != nil {
		return
	}
	if parsed.Kind != protocol.KindRequest && parsed.Kind != protocol.KindNotification {
		return
	}
	req := parsed.Request

	switch req.Method {
	case "initialize":
		if behavior.RefuseInitialize {
			os.Exit(1)
		}
		if behavior.InitializeDelay > 0 {
			time.Sleep(behavior.InitializeDelay)
		}
		result := map[string]any{
			"capabilities": map[string]any{"tools": behavior.Tools},
			"serverInfo":   map[string]any{"name": "fake-backend", "version": "test"},
		}
		writeResult(writer, req.ID, result)

	case "tools/call":
		if req.IsNotification() {
			return
		}
		var params struct {
			Name string `json:"name"`
		}
		_ = json.Unmarshal(req.Params, &params)

		if contains(behavior.CrashTools, params.Name) {
			os.Exit(1)
		}
		if contains(behavior.HangTools, params.Name) {
			return
		}
		result := behavior.Results[params.Name]
		if result == nil {
			result = map[string]any{}
		}
		writeResult(writer, req.ID, result)

	case "shutdown", "$/cancelRequest":
		// No response expected.

	default:
		if !req.IsNotification() {
			resp := protocol.NewError(req.ID, protocol.MethodNotFound(req.Method))
			writeResponse(writer, resp)
		}
	}
}

func writeResult(writer *bufio.Writer, id *protocol.ID, result any) {
	resp, err := protocol.NewResult(id, result)
	if err != nil {
		return
	}
	writeResponse(writer, resp)
}

func writeResponse(writer *bufio.Writer, resp *protocol.Response) {
	line, err := protocol.EncodeResponse(resp)
	if err != nil {
		return
	}
	writer.Write(line)
	writer.WriteByte('\n')
	writer.Flush()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
