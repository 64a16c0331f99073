// Package redisbroker provides a Redis pub/sub-backed implementation of
// bus.Broker, for deployments where several host processes share one
// notification fabric (e.g. old and new processes during a blue/green
// deploy). Redis pub/sub does not store messages: a notification published
// while no process holds a matching subscription is not delivered to anyone
// later. It intentionally does not implement
// clustering (a stated Non-goal): every host instance still owns its own
// backend pool and routing table, only the notification fabric is shared.
package redisbroker

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/mcphost/mcphost/internal/bus"
)

// Config is decoded from the environment with envdecode; see
// internal/config.HostConfig for the fields that feed it.
type Config struct {
	Addr      string `env:"MCPHOST_BUS_REDIS_ADDR"`
	KeyPrefix string `env:"MCPHOST_BUS_REDIS_PREFIX,default=mcphost:bus:"`
}

// LoadConfig decodes Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Broker fans messages out using Redis PSUBSCRIBE, relying on Redis's own
// glob matching (identical semantics to bus.MatchTopic's trailing "*") so
// the wire channel name doubles as the topic pattern.
type Broker struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]*redisSubscription
}

type redisSubscription struct {
	cancel context.CancelFunc
	ch     chan bus.Envelope
}

// New constructs a broker against an existing Redis client.
func New(client redis.UniversalClient, cfg Config, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "mcphost:bus:"
	}
	return &Broker{client: client, prefix: prefix, logger: logger, subs: make(map[string]*redisSubscription)}
}

func (b *Broker) channel(topic string) string {
	return b.prefix + topic
}

// Publish implements bus.Broker.
func (b *Broker) Publish(topic string, payload []byte) {
	ctx := context.Background()
	if err := b.client.Publish(ctx, b.channel(topic), payload).Err(); err != nil {
		b.logger.Error("redis bus publish failed", slog.String("topic", topic), slog.Any("error", err))
	}
}

// Subscribe implements bus.Broker. Each call spawns a goroutine bridging a
// Redis PSUBSCRIBE to the subscriber's delivery channel; multiple patterns
// for the same subscriberID multiplex onto one channel. A delivery that finds
// the channel full is discarded with a warning; the subscriber itself stays
// registered until Unsubscribe.
func (b *Broker) Subscribe(subscriberID, topicPattern string) <-chan bus.Envelope {
	b.mu.Lock()
	sub, ok := b.subs[subscriberID]
	if !ok {
		sub = &redisSubscription{ch: make(chan bus.Envelope, bus.DeliveryCapacity)}
		b.subs[subscriberID] = sub
	}
	b.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	pattern := b.channel(topicPattern)
	pubsub := b.client.PSubscribe(ctx, pattern)

	go func() {
		defer cancel()
		defer pubsub.Close()
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				return
			}
			topic := strings.TrimPrefix(msg.Channel, b.prefix)
			select {
			case sub.ch <- bus.Envelope{Topic: topic, Payload: []byte(msg.Payload)}:
			default:
				b.logger.Warn("dropping slow redis bus subscriber",
					slog.String("subscriber_id", subscriberID), slog.String("topic", topic))
			}
		}
	}()

	b.mu.Lock()
	prevCancel := sub.cancel
	sub.cancel = func() {
		cancel()
		if prevCancel != nil {
			prevCancel()
		}
	}
	b.mu.Unlock()

	return sub.ch
}

// Unsubscribe implements bus.Broker.
func (b *Broker) Unsubscribe(subscriberID string) {
	b.mu.Lock()
	sub, ok := b.subs[subscriberID]
	if ok {
		delete(b.subs, subscriberID)
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	if sub.cancel != nil {
		sub.cancel()
	}
	close(sub.ch)
}
