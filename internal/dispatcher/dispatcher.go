// Package dispatcher implements the Host Dispatcher (spec §4.2): it parses
// an inbound JSON-RPC envelope, routes it to the right internal operation,
// and renders the JSON-RPC response. It knows nothing about HTTP framing or
// SSE; internal/httpapi wires it to net/http.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/mcphost/mcphost/internal/bus"
	"github.com/mcphost/mcphost/internal/logctx"
	"github.com/mcphost/mcphost/internal/manager"
	"github.com/mcphost/mcphost/internal/protocol"
	"github.com/mcphost/mcphost/internal/tools"
)

// Dispatcher resolves JSON-RPC requests against the backend pool and the
// host's built-in tools, and publishes a record of every handled request
// (client id, request envelope, latency) on the bus's mcp:requests topic.
type Dispatcher struct {
	logger  *slog.Logger
	manager *manager.Manager
	bus     *bus.Bus
	builtin *tools.Registry
}

// New constructs a Dispatcher.
func New(mgr *manager.Manager, notifications *bus.Bus, builtin *tools.Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger, manager: mgr, bus: notifications, builtin: builtin}
}

// HandleMessage parses a single raw JSON-RPC message from clientID and
// returns the bytes to write back (nil for a Notification, which produces
// no response per JSON-RPC 2.0). Panics inside operation handling are
// recovered and reported as InternalError so one malformed call cannot take
// the whole connection down (spec §7).
func (d *Dispatcher) HandleMessage(ctx context.Context, clientID string, raw []byte) (response []byte, isNotification bool) {
	parsed, err := protocol.Parse(raw)
	if err != nil {
		var syntaxErr *protocol.SyntaxError
		var rpcErr *protocol.Error
		if errors.As(err, &syntaxErr) {
			rpcErr = protocol.ParseError(err.Error())
		} else {
			rpcErr = protocol.InvalidRequest(err.Error())
		}
		resp := protocol.NewError(nil, rpcErr)
		return encodeOrPanic(resp), false
	}

	if parsed.Kind == protocol.KindResponse {
		resp := protocol.NewError(parsed.Response.ID, protocol.InvalidRequest("host does not accept response envelopes"))
		return encodeOrPanic(resp), false
	}

	req := parsed.Request
	isNotification = req.IsNotification()

	start := time.Now()
	result, rpcErr := d.dispatchRecovered(ctx, clientID, req)
	if d.bus != nil {
		if event, err := json.Marshal(map[string]any{
			"client_id":  clientID,
			"request":    json.RawMessage(raw),
			"latency_ms": time.Since(start).Milliseconds(),
		}); err == nil {
			d.bus.Publish(bus.TopicRequests, event)
		}
	}

	if isNotification {
		return nil, true
	}

	var resp *protocol.Response
	if rpcErr != nil {
		resp = protocol.NewError(req.ID, rpcErr)
	} else {
		resp, err = protocol.NewResult(req.ID, result)
		if err != nil {
			resp = protocol.NewError(req.ID, protocol.InternalError(err.Error()))
		}
	}
	return encodeOrPanic(resp), isNotification
}

func (d *Dispatcher) dispatchRecovered(ctx context.Context, clientID string, req *protocol.Request) (result any, rpcErr *protocol.Error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("recovered panic while dispatching request",
				slog.String("method", req.Method), slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			rpcErr = protocol.InternalError(fmt.Sprintf("panic: %v", r))
		}
	}()
	return d.dispatch(ctx, clientID, req)
}

func (d *Dispatcher) dispatch(ctx context.Context, clientID string, req *protocol.Request) (any, *protocol.Error) {
	switch req.Method {
	case "initialize":
		return d.handleInitialize(), nil

	case "invoke_tool", "execute":
		return d.handleToolCall(ctx, parseInvokeToolParams(req.Params))

	case "call_tool", "tools/call":
		return d.handleToolCall(ctx, parseCallToolParams(req.Params))

	case "list_tools", "tools/list":
		return d.handleListTools(), nil

	default:
		return nil, protocol.MethodNotFound(req.Method)
	}
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      map[string]any `json:"serverInfo"`
}

// handleInitialize returns the merged capabilities document: the current
// tool schemas from every ready backend plus the built-in tools, plus a
// small (here: empty, since resource serving is out of scope) resource list
// (spec §4.2). Idempotent: two calls with no intervening backend
// start/stop produce byte-identical documents.
func (d *Dispatcher) handleInitialize() initializeResult {
	return initializeResult{
		ProtocolVersion: "0.1.0",
		Capabilities: map[string]any{
			"tools":     d.toolEntries(),
			"resources": []any{},
		},
		ServerInfo: map[string]any{"name": "mcphost", "version": "0.1.0"},
	}
}

// toolCallParams is the host's normalized view of a tool-call request, after
// whichever alias's wire key names have been mapped onto it.
type toolCallParams struct {
	backendID string
	name      string
	arguments map[string]any
	err       *protocol.Error
}

// invokeToolParams is the wire shape of invoke_tool and its alias execute:
// {server_id?, tool, parameters} (spec §4.2).
type invokeToolParams struct {
	ServerID   string         `json:"server_id"`
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
}

func parseInvokeToolParams(raw json.RawMessage) toolCallParams {
	if len(raw) == 0 {
		return toolCallParams{}
	}
	var p invokeToolParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return toolCallParams{err: protocol.InvalidParams(err.Error())}
	}
	return toolCallParams{backendID: p.ServerID, name: p.Tool, arguments: p.Parameters}
}

// callToolParams is the wire shape of call_tool (and its tools/call alias,
// the canonical backend-facing method name): {server_id?, name, arguments}
// (spec §4.2).
type callToolParams struct {
	ServerID  string         `json:"server_id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func parseCallToolParams(raw json.RawMessage) toolCallParams {
	if len(raw) == 0 {
		return toolCallParams{}
	}
	var p callToolParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return toolCallParams{err: protocol.InvalidParams(err.Error())}
	}
	return toolCallParams{backendID: p.ServerID, name: p.Name, arguments: p.Arguments}
}

func (d *Dispatcher) handleToolCall(ctx context.Context, params toolCallParams) (any, *protocol.Error) {
	if params.err != nil {
		return nil, params.err
	}
	if params.name == "" {
		return nil, protocol.InvalidParams("tool name is required")
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.name, BackendID: params.backendID})
	d.logger.InfoContext(ctx, "dispatching tool call")

	// Built-ins answer only calls that name no backend explicitly.
	if params.backendID == "" {
		if builtinResult, ok, callErr := d.builtin.Call(ctx, params.name, params.arguments); ok {
			if callErr != nil {
				return nil, callErr
			}
			return builtinResult, nil
		}
	}

	result, callErr := d.manager.ExecuteTool(ctx, params.backendID, params.name, params.arguments)
	if callErr != nil {
		return nil, callErr
	}
	return result, nil
}

type toolListEntry struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	BackendID   string           `json:"backend_id,omitempty"`
	Parameters  []map[string]any `json:"parameters,omitempty"`
}

func (d *Dispatcher) handleListTools() any {
	return map[string]any{"tools": d.toolEntries()}
}

// toolEntries merges the built-in tools with every backend-routed tool,
// built-ins first, in the shape both initialize and list_tools expose.
func (d *Dispatcher) toolEntries() []toolListEntry {
	entries := make([]toolListEntry, 0)
	for _, t := range d.builtin.List() {
		entries = append(entries, toolListEntry{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	for _, t := range d.manager.ListTools() {
		params := make([]map[string]any, 0, len(t.Schema.Parameters))
		for _, p := range t.Schema.Parameters {
			params = append(params, map[string]any{
				"name": p.Name, "type": p.Type, "required": p.Required, "description": p.Description,
			})
		}
		entries = append(entries, toolListEntry{
			Name: t.Name, Description: t.Schema.Description, BackendID: t.BackendID, Parameters: params,
		})
	}
	return entries
}

func encodeOrPanic(resp *protocol.Response) []byte {
	line, err := protocol.EncodeResponse(resp)
	if err != nil {
		// EncodeResponse only fails to marshal an ID, which NewResult/NewError
		// always construct from an already-valid protocol.ID.
		panic(fmt.Sprintf("dispatcher: unreachable: %v", err))
	}
	return line
}
