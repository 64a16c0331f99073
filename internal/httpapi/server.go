// Package httpapi wires the Host Dispatcher, Notification Bus, SSE
// Connection and Server Manager behind net/http (spec §6 External
// Interfaces).
package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/mcphost/mcphost/internal/bus"
	"github.com/mcphost/mcphost/internal/dispatcher"
	"github.com/mcphost/mcphost/internal/logctx"
	"github.com/mcphost/mcphost/internal/manager"
	"github.com/mcphost/mcphost/internal/sse"
)

var (
	jsonMediaType        = contenttype.NewMediaType("application/json")
	eventStreamMediaType = contenttype.NewMediaType("text/event-stream")
)

const clientIDHeader = "X-Mcp-Client-Id"

// Server assembles the host's HTTP surface.
type Server struct {
	logger     *slog.Logger
	dispatcher *dispatcher.Dispatcher
	bus        *bus.Bus
	manager    *manager.Manager
	mux        *http.ServeMux
}

// New builds a Server and registers its routes.
func New(d *dispatcher.Dispatcher, notifications *bus.Bus, mgr *manager.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{logger: logger, dispatcher: d, bus: notifications, manager: mgr, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /mcp/stream", s.handleStream)
	s.mux.HandleFunc("POST /mcp/rpc", s.handleRPC)
	s.mux.HandleFunc("POST /mcp", s.handleRPC)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	statuses := s.manager.BackendStatus()
	payload := map[string]any{"status": "ok", "backends": statuses}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	clientID := r.Header.Get(clientIDHeader)
	if clientID == "" {
		clientID = uuid.NewString()
	}
	r = withRequestContext(r, clientID)
	conn := sse.New(clientID, s.bus, s.logger)

	if err := conn.Serve(w, r, s.capabilities()); err != nil {
		s.logger.Warn("sse connection ended with error", slog.String("client_id", clientID), slog.Any("error", err))
	}
}

// withRequestContext attaches logctx request and client metadata to r's
// context, so every log line emitted while handling it carries the
// request id, path, and client id without threading them through every
// call explicitly.
func withRequestContext(r *http.Request, clientID string) *http.Request {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})
	ctx = logctx.WithClientData(ctx, &logctx.ClientData{ClientID: clientID})
	return r.WithContext(ctx)
}

// handleRPC serves POST /mcp(/rpc): if the message is a Request and the
// client's Accept header prefers text/event-stream, the call is treated as a
// combined request-and-stream upgrade (spec's resolved ambiguity: a POST may
// itself upgrade to SSE rather than only GET /mcp/stream doing so); a
// Notification gets 204 No Content; otherwise a single JSON response is
// written. The client id header is echoed on every reply.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	clientID := r.Header.Get(clientIDHeader)
	if clientID == "" {
		clientID = uuid.NewString()
	}
	r = withRequestContext(r, clientID)
	w.Header().Set(clientIDHeader, clientID)

	mediaType, _, err := contenttype.GetAcceptableMediaType(r, []contenttype.MediaType{jsonMediaType, eventStreamMediaType})
	if err != nil {
		http.Error(w, "no acceptable media type", http.StatusNotAcceptable)
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	response, isNotification := s.dispatcher.HandleMessage(r.Context(), clientID, raw)

	if mediaType.Matches(eventStreamMediaType) && !isNotification {
		s.upgradeToStream(w, r, clientID, response, isNotification)
		return
	}

	if isNotification {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(response)
}

func (s *Server) upgradeToStream(w http.ResponseWriter, r *http.Request, clientID string, response []byte, isNotification bool) {
	conn := sse.New(clientID, s.bus, s.logger)

	if isNotification {
		response = nil
	}
	if err := conn.ServeWithResult(w, r, s.capabilities(), response); err != nil {
		s.logger.Warn("sse upgrade ended with error", slog.String("client_id", clientID), slog.Any("error", err))
	}
}

func (s *Server) capabilities() sse.Capabilities {
	entries := s.manager.ListTools()
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return sse.Capabilities{ProtocolVersion: "0.1.0", Tools: names}
}
