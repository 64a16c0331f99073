package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcphost/mcphost/internal/bus"
	"github.com/mcphost/mcphost/internal/bus/memory"
	"github.com/mcphost/mcphost/internal/dispatcher"
	"github.com/mcphost/mcphost/internal/httpapi"
	"github.com/mcphost/mcphost/internal/manager"
	"github.com/mcphost/mcphost/internal/tools"
)

func newTestServer() *httpapi.Server {
	b := bus.New(memory.New(nil))
	mgr := manager.New(nil)
	d := dispatcher.New(mgr, b, tools.NewRegistry(), nil)
	return httpapi.New(d, b, mgr, nil)
}

func TestHealthzReportsOK(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, "ok", payload["status"])
}

func TestRPCJSONResponseForEchoTool(t *testing.T) {
	s := newTestServer()
	body := `{"jsonrpc":"2.0","method":"call_tool","params":{"name":"echo","arguments":{"message":"hi"}},"id":1}`
	req := httptest.NewRequest(http.MethodPost, "/mcp/rpc", strings.NewReader(body))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	result := resp["result"].(map[string]any)
	require.Equal(t, "hi", result["echo"])
}

func TestRPCNotificationReturnsNoContent(t *testing.T) {
	s := newTestServer()
	body := `{"jsonrpc":"2.0","method":"bump","params":{}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp/rpc", strings.NewReader(body))
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, rec.Body.Bytes())
}

func TestRPCInvokeToolAcceptsSpecParamNames(t *testing.T) {
	s := newTestServer()
	body := `{"jsonrpc":"2.0","method":"invoke_tool","params":{"tool":"echo","parameters":{"message":"hi"}},"id":7}`
	req := httptest.NewRequest(http.MethodPost, "/mcp/rpc", strings.NewReader(body))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	result := resp["result"].(map[string]any)
	require.Equal(t, "hi", result["echo"])
}

// TestRPCUpgradesToEventStreamWhenAccepted runs against a real listener
// because the SSE path streams until the request's context is cancelled;
// httptest.NewRecorder has no way to simulate a client disconnect.
func TestRPCUpgradesToEventStreamWhenAccepted(t *testing.T) {
	s := newTestServer()
	server := httptest.NewServer(s)
	defer server.Close()

	body := `{"jsonrpc":"2.0","method":"call_tool","params":{"name":"echo","arguments":{"message":"hi"}},"id":1}`
	httpReq, err := http.NewRequest(http.MethodPost, server.URL+"/mcp/rpc", strings.NewReader(body))
	require.NoError(t, err)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := server.Client().Do(httpReq)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
}
