// Package memory provides an in-memory implementation of bus.Broker using
// Go channels for fan-out. It is the default, single-node broker; see
// internal/bus/redisbroker for a distributed alternative.
package memory

import (
	"log/slog"
	"sync"

	"github.com/mcphost/mcphost/internal/bus"
)

// Broker fans published payloads out to subscribers held in a process-local
// map. Dead or slow subscribers are dropped rather than blocked on.
type Broker struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]*subscriber // subscriberID -> subscriber
}

type subscriber struct {
	patterns []string
	ch       chan bus.Envelope
}

func (s *subscriber) matches(topic string) bool {
	for _, p := range s.patterns {
		if bus.MatchTopic(p, topic) {
			return true
		}
	}
	return false
}

// New constructs an empty memory broker.
func New(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{logger: logger, subs: make(map[string]*subscriber)}
}

// Publish implements bus.Broker.
func (b *Broker) Publish(topic string, payload []byte) {
	env := bus.Envelope{Topic: topic, Payload: payload}
	slow := make(map[string]*subscriber)

	b.mu.RLock()
	for id, sub := range b.subs {
		if !sub.matches(topic) {
			continue
		}
		select {
		case sub.ch <- env:
		default:
			b.logger.Warn("dropping slow bus subscriber",
				slog.String("subscriber_id", id), slog.String("topic", topic))
			slow[id] = sub
		}
	}
	b.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	// Remove the full subscribers under the write lock; closing the channel
	// tells the consumer it has been dropped.
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range slow {
		if b.subs[id] == sub {
			close(sub.ch)
			delete(b.subs, id)
		}
	}
}

// Subscribe implements bus.Broker. A second call with the same subscriberID
// adds topicPattern to that subscriber's existing set rather than replacing
// the channel, so one client's single delivery channel can accumulate
// several topic patterns over its lifetime.
func (b *Broker) Subscribe(subscriberID, topicPattern string) <-chan bus.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[subscriberID]
	if !ok {
		sub = &subscriber{ch: make(chan bus.Envelope, bus.DeliveryCapacity)}
		b.subs[subscriberID] = sub
	}
	sub.patterns = append(sub.patterns, topicPattern)
	return sub.ch
}

// Unsubscribe implements bus.Broker.
func (b *Broker) Unsubscribe(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[subscriberID]; ok {
		close(sub.ch)
		delete(b.subs, subscriberID)
	}
}
