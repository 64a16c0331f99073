// Package bus implements the host's in-process topic publish/subscribe
// fabric (spec §4.5). Topics are opaque strings; a subscription whose
// pattern ends in "*" matches any topic sharing that prefix.
package bus

import (
	"strings"
)

// Envelope is one delivered message: the topic it was published to and the
// JSON-ready payload.
type Envelope struct {
	Topic   string
	Payload []byte
}

// deliveryCapacity bounds each subscriber's channel. Neither broker lets a
// full channel block a publisher: the memory broker drops and removes a
// subscriber that falls this far behind, while the Redis broker discards the
// delivery and keeps the subscriber registered.
const deliveryCapacity = 64

// Broker is the pluggable backing for the Bus. The default implementation,
// internal/bus/memory, is in-memory; internal/bus/redisbroker provides a
// Redis-backed alternative for surviving a blue/green process restart.
type Broker interface {
	// Publish fans a payload out to every subscription whose pattern
	// matches topic.
	Publish(topic string, payload []byte)
	// Subscribe registers subscriberID for topicPattern and returns a
	// channel the caller reads delivered envelopes from. Repeat calls for
	// the same subscriberID add patterns to that subscriber's existing
	// channel instead of replacing it.
	Subscribe(subscriberID, topicPattern string) <-chan Envelope
	// Unsubscribe removes every subscription owned by subscriberID.
	Unsubscribe(subscriberID string)
}

// Bus is the Notification Bus described in spec §4.5. Both the subscription
// registry and the fan-out loop live in its Broker, so that a single-node
// deployment can stay purely in-memory while a multi-process one can opt
// into Redis pub/sub.
type Bus struct {
	broker Broker
}

// New wraps broker as a Bus. Pass memory.New(logger) for a single-node deployment.
func New(broker Broker) *Bus {
	return &Bus{broker: broker}
}

// Publish delivers payload to every subscriber whose pattern matches topic.
func (b *Bus) Publish(topic string, payload []byte) {
	b.broker.Publish(topic, payload)
}

// Subscribe registers subscriberID for topicPattern ("mcp:foo" or
// "mcp:foo*") and returns the channel it will receive envelopes on.
func (b *Bus) Subscribe(subscriberID, topicPattern string) <-chan Envelope {
	return b.broker.Subscribe(subscriberID, topicPattern)
}

// Unsubscribe tears down every subscription owned by subscriberID.
func (b *Bus) Unsubscribe(subscriberID string) {
	b.broker.Unsubscribe(subscriberID)
}

// MatchTopic reports whether pattern matches topic. A pattern ending in "*"
// matches any topic sharing that prefix; otherwise the match is exact.
func MatchTopic(pattern, topic string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(topic, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == topic
}

// Pre-defined topics emitted by the host (spec §4.5).
const (
	TopicClientConnected    = "mcp:client_connected"
	TopicClientDisconnected = "mcp:client_disconnected"
	TopicRequests           = "mcp:requests"
)

// NotificationTopic returns the per-client delivery-queue topic a client's
// own SSE connection subscribes to at minimum.
func NotificationTopic(clientID string) string {
	return "mcp:notifications:" + clientID
}

// DeliveryCapacity is the bound each Broker implementation should apply to a
// subscriber's channel (spec §4.5: "bounded capacity, e.g., 64").
const DeliveryCapacity = deliveryCapacity
