// Package nats provides a NATS-backed engine.Queue[engine.TaskID]: a
// subject carrying JSON-encoded task ids, consumed through a
// queue-group subscription, with a Close that drains before
// disconnecting.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kandev/taskscheduler/engine"
)

// Config holds connection settings for the queue's NATS client.
type Config struct {
	URL           string
	ClientID      string
	Subject       string
	MaxReconnects int
}

// Queue is a NATS-backed FIFO work queue. Put publishes to a subject;
// Get pulls from a queue-group subscription so exactly one dispatcher
// process receives each id even when several share the subject.
type Queue struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string
}

// Connect dials NATS and opens a queue-group subscription on
// cfg.Subject, ready for Put/Get.
func Connect(cfg Config) (*Queue, error) {
	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(2 * time.Second),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	sub, err := conn.QueueSubscribeSync(cfg.Subject, cfg.Subject+".dispatch")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", cfg.Subject, err)
	}

	return &Queue{conn: conn, sub: sub, subject: cfg.Subject}, nil
}

// Close drains the connection, processing anything already in flight.
func (q *Queue) Close() {
	_ = q.sub.Drain()
	_ = q.conn.Drain()
}

// Put publishes id onto the queue's subject.
func (q *Queue) Put(_ context.Context, id engine.TaskID) error {
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("marshal task id: %w", err)
	}
	if err := q.conn.Publish(q.subject, data); err != nil {
		return fmt.Errorf("publish task id: %w", err)
	}
	return nil
}

// Get blocks until the next id arrives or ctx is cancelled.
func (q *Queue) Get(ctx context.Context) (engine.TaskID, error) {
	for {
		timeout := 200 * time.Millisecond
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < timeout {
				timeout = remaining
			}
		}
		msg, err := q.sub.NextMsg(timeout)
		if err != nil {
			if err == nats.ErrTimeout {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return "", ctxErr
				}
				continue
			}
			return "", fmt.Errorf("receive task id: %w", err)
		}
		var id engine.TaskID
		if err := json.Unmarshal(msg.Data, &id); err != nil {
			return "", fmt.Errorf("unmarshal task id: %w", err)
		}
		return id, nil
	}
}
