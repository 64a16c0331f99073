// Package logctx threads request-scoped metadata through a context.Context
// so a single slog.Handler can attach it to every log line written while
// handling that request, without every call site having to pass it
// explicitly.
package logctx

import (
	"context"
	"log/slog"
)

// Handler wraps a slog.Handler, adding grouped attributes for whichever of
// RequestData, ClientData, and ToolCallData are present on the record's
// context.
type Handler struct {
	slog.Handler
}

// Handle implements slog.Handler.
func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("method", rd.Method),
			slog.String("remote_addr", rd.RemoteAddr),
			slog.String("path", rd.Path),
		))
	}

	if cd, ok := ctx.Value(clientDataKey{}).(*ClientData); ok {
		r.AddAttrs(slog.Group("client",
			slog.String("id", cd.ClientID),
		))
	}

	if td, ok := ctx.Value(toolCallDataKey{}).(*ToolCallData); ok {
		r.AddAttrs(slog.Group("tool",
			slog.String("name", td.ToolName),
			slog.String("backend_id", td.BackendID),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type requestDataKey struct{}

// RequestData describes the inbound HTTP request a log line was emitted
// while handling.
type RequestData struct {
	RequestID  string
	Method     string
	RemoteAddr string
	Path       string
}

// WithRequestData attaches RequestData to ctx.
func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

type clientDataKey struct{}

// ClientData identifies the MCP client a log line pertains to.
type ClientData struct {
	ClientID string
}

// WithClientData attaches ClientData to ctx.
func WithClientData(ctx context.Context, data *ClientData) context.Context {
	return context.WithValue(ctx, clientDataKey{}, data)
}

type toolCallDataKey struct{}

// ToolCallData identifies the tool call a log line pertains to.
type ToolCallData struct {
	ToolName  string
	BackendID string
}

// WithToolCallData attaches ToolCallData to ctx.
func WithToolCallData(ctx context.Context, data *ToolCallData) context.Context {
	return context.WithValue(ctx, toolCallDataKey{}, data)
}
