// Package nats provides a NATS-backed engine.EventFactory, giving the
// Event cache a cross-process notification channel so multiple
// scheduler instances sharing a NATS cluster (and a store) observe each
// other's finished/cancelled signals.
package nats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kandev/taskscheduler/engine"
)

// Config holds connection settings for the event bus's NATS client.
type Config struct {
	URL           string
	ClientID      string
	MaxReconnects int
}

// Factory creates NATS-subject-backed events, one subject per topic.
// The engine's EventCache deduplicates Create calls per topic while an
// event is cached; subscriptions are opened by each Wait call, not by
// Create.
type Factory struct {
	conn *nats.Conn
}

// Connect dials NATS and returns a ready Factory.
func Connect(cfg Config) (*Factory, error) {
	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(2 * time.Second),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Factory{conn: conn}, nil
}

// Close drains and closes the underlying connection.
func (f *Factory) Close() {
	_ = f.conn.Drain()
}

// Create returns an Event on the topic's subject. The first Notify on an
// event publishes a single empty message and sets a local fired flag;
// Wait returns at once when the flag is set, and otherwise subscribes
// and waits for a message on the subject. A message published by
// another process before that subscription exists is not observed.
func (f *Factory) Create(topic string) engine.Event {
	return &event{conn: f.conn, topic: topic}
}

type event struct {
	conn  *nats.Conn
	topic string

	once  sync.Once
	fired bool
	mu    sync.Mutex
}

func (e *event) Notify() {
	e.once.Do(func() {
		e.mu.Lock()
		e.fired = true
		e.mu.Unlock()
		_ = e.conn.Publish(e.topic, nil)
	})
}

func (e *event) Wait(ctx context.Context) error {
	e.mu.Lock()
	if e.fired {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	sub, err := e.conn.SubscribeSync(e.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", e.topic, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	for {
		timeout := 200 * time.Millisecond
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < timeout {
				timeout = remaining
			}
		}
		_, err := sub.NextMsg(timeout)
		if err == nil {
			e.mu.Lock()
			e.fired = true
			e.mu.Unlock()
			return nil
		}
		if err == nats.ErrTimeout {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			continue
		}
		return fmt.Errorf("wait on %s: %w", e.topic, err)
	}
}
