package memory_test

import (
	"testing"
	"time"

	"github.com/mcphost/mcphost/internal/bus"
	"github.com/mcphost/mcphost/internal/bus/memory"
)

func TestPublishSubscribeExactTopic(t *testing.T) {
	b := bus.New(memory.New(nil))
	ch := b.Subscribe("client-1", "mcp:notifications:client-1")

	b.Publish("mcp:notifications:client-1", []byte(`{"hello":"world"}`))

	select {
	case env := <-ch:
		if env.Topic != "mcp:notifications:client-1" {
			t.Errorf("Topic = %q, want mcp:notifications:client-1", env.Topic)
		}
		if string(env.Payload) != `{"hello":"world"}` {
			t.Errorf("Payload = %s, want literal echo", env.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestWildcardSubscription(t *testing.T) {
	b := bus.New(memory.New(nil))
	ch := b.Subscribe("admin", "mcp:requests*")

	b.Publish("mcp:requests", []byte(`1`))
	b.Publish("mcp:notifications:someone", []byte(`2`)) // should not match

	select {
	case env := <-ch:
		if string(env.Payload) != "1" {
			t.Errorf("Payload = %s, want 1", env.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for wildcard delivery")
	}

	select {
	case env := <-ch:
		t.Fatalf("unexpected second delivery: %+v", env)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeRemovesAllPatterns(t *testing.T) {
	b := bus.New(memory.New(nil))
	ch := b.Subscribe("client-1", "mcp:notifications:client-1")
	b.Subscribe("client-1", "mcp:requests*")

	b.Unsubscribe("client-1")
	b.Publish("mcp:requests", []byte(`1`))

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestSlowSubscriberIsDroppedNotBlocked(t *testing.T) {
	b := bus.New(memory.New(nil))
	b.Subscribe("slow", "mcp:requests")

	// Publish well past the bounded channel capacity; Publish must never
	// block even though nothing drains "slow"'s channel.
	done := make(chan struct{})
	go func() {
		for i := 0; i < bus.DeliveryCapacity*4; i++ {
			b.Publish("mcp:requests", []byte(`x`))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}
