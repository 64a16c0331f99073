// Package sse implements the SSE Connection (spec §4.4): the long-lived
// GET stream each client opens to receive notifications. It writes the
// capabilities event first, then relays bus.Envelope deliveries as
// notification events and emits a keep-alive ping on an interval.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mcphost/mcphost/internal/bus"
)

// KeepAliveInterval is how often a ping event is written absent other
// traffic, so intermediaries don't time out the connection (spec §4.4).
const KeepAliveInterval = 30 * time.Second

// State is a connection's position in its lifecycle.
type State string

const (
	StateOpening   State = "opening"
	StateStreaming State = "streaming"
	StateClosed    State = "closed"
)

type writeFlusher interface {
	io.Writer
	http.Flusher
}

// Capabilities is the payload of the first event written on every
// connection, advertising what this host can do (spec §4.4 step 1).
type Capabilities struct {
	ProtocolVersion string   `json:"protocolVersion"`
	Tools           []string `json:"tools"`
}

// Connection serves one client's SSE stream.
type Connection struct {
	logger    *slog.Logger
	bus       *bus.Bus
	keepAlive time.Duration
	clientID  string
	state     State
}

// New constructs a Connection. clientID, if empty, is minted fresh with
// google/uuid (spec §4.4: each client is identified by a 128-bit id).
func New(clientID string, notifications *bus.Bus, logger *slog.Logger) *Connection {
	if clientID == "" {
		clientID = uuid.NewString()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Connection{
		logger:    logger.With(slog.String("client_id", clientID)),
		bus:       notifications,
		keepAlive: KeepAliveInterval,
		clientID:  clientID,
		state:     StateOpening,
	}
}

// ClientID returns the identifier this connection was opened (or minted) for.
func (c *Connection) ClientID() string {
	return c.clientID
}

// Serve writes SSE framing to w until r's context is cancelled (the client
// disconnects) or a write fails. It subscribes to the client's own
// notification topic and to any additional topics callers pass, tying the
// bus subscription's lifetime to the connection's (spec §4.4, §4.5).
func (c *Connection) Serve(w http.ResponseWriter, r *http.Request, capabilities Capabilities, extraTopics ...string) error {
	return c.serve(w, r, capabilities, nil, extraTopics...)
}

// ServeWithResult is Serve, but writes a "result" event carrying a
// request's already-computed JSON-RPC response before entering the
// notification loop. It lets a POST whose Accept header prefers
// text/event-stream upgrade to a stream without a publish/subscribe race
// against the SSE connection's own subscription (spec §6, resolved
// ambiguity: a POST may itself upgrade to SSE).
func (c *Connection) ServeWithResult(w http.ResponseWriter, r *http.Request, capabilities Capabilities, result []byte) error {
	return c.serve(w, r, capabilities, result)
}

func (c *Connection) serve(w http.ResponseWriter, r *http.Request, capabilities Capabilities, initialResult []byte, extraTopics ...string) error {
	wf, ok := w.(writeFlusher)
	if !ok {
		return fmt.Errorf("sse: response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Mcp-Client-Id", c.clientID)
	w.WriteHeader(http.StatusOK)
	wf.Flush()

	c.state = StateStreaming
	defer func() { c.state = StateClosed }()

	topic := bus.NotificationTopic(c.clientID)
	ch := c.bus.Subscribe(c.clientID, topic)
	for _, extra := range extraTopics {
		ch = c.bus.Subscribe(c.clientID, extra)
	}
	defer c.bus.Unsubscribe(c.clientID)

	if err := writeEvent(wf, "capabilities", capabilities); err != nil {
		return err
	}
	if len(initialResult) > 0 {
		if err := writeRawEvent(wf, "result", initialResult); err != nil {
			return err
		}
	}

	c.bus.Publish(bus.TopicClientConnected, mustMarshal(map[string]string{"client_id": c.clientID}))
	defer c.bus.Publish(bus.TopicClientDisconnected, mustMarshal(map[string]string{"client_id": c.clientID}))

	ticker := time.NewTicker(c.keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("sse connection closed by client")
			return nil

		case envelope, ok := <-ch:
			if !ok {
				c.logger.Warn("notification channel closed unexpectedly")
				return nil
			}
			if err := writeRawEvent(wf, "notification", envelope.Payload); err != nil {
				return err
			}
			// A ping is only due after a full interval with no other event.
			ticker.Reset(c.keepAlive)

		case <-ticker.C:
			if err := writeEvent(wf, "ping", map[string]string{"timestamp": time.Now().UTC().Format(time.RFC3339)}); err != nil {
				return err
			}
		}
	}
}

// writeEvent JSON-encodes message as the data field of an SSE event and
// flushes immediately (spec §4.4 Framing: "event: <name>\ndata: <json>\n\n").
func writeEvent(wf writeFlusher, eventType string, message any) error {
	raw, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("sse: encode %s event: %w", eventType, err)
	}
	return writeRawEvent(wf, eventType, raw)
}

func writeRawEvent(wf writeFlusher, eventType string, payload []byte) error {
	if _, err := fmt.Fprintf(wf, "event: %s\ndata: ", eventType); err != nil {
		return fmt.Errorf("sse: write event header: %w", err)
	}
	if _, err := wf.Write(payload); err != nil {
		return fmt.Errorf("sse: write event data: %w", err)
	}
	if _, err := wf.Write([]byte("\n\n")); err != nil {
		return fmt.Errorf("sse: write event footer: %w", err)
	}
	wf.Flush()
	return nil
}

func mustMarshal(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return raw
}
