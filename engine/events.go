package engine

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// CancelledTopic and FinishedTopic name the two per-task topics the engine
// notifies on.
func CancelledTopic(id TaskID) string { return fmt.Sprintf("cancelled:%s", id) }
func FinishedTopic(id TaskID) string  { return fmt.Sprintf("finished:%s", id) }

// EventCache is a topic-keyed registry of level-triggered events with
// get-or-create semantics: Get returns the existing event for a topic, or
// creates one via the injected factory. The cache itself never garbage
// collects — callers (the Driver) explicitly Delete finished:<id> once a
// task's run is complete.
type EventCache struct {
	mu      sync.Mutex
	factory EventFactory
	events  map[string]Event
	group   singleflight.Group
}

// NewEventCache builds an EventCache backed by factory.
func NewEventCache(factory EventFactory) *EventCache {
	return &EventCache{factory: factory, events: make(map[string]Event)}
}

// Get returns the Event for topic, creating it if this is the first
// request for that topic. Concurrent first-requests for the same new
// topic collapse into a single factory.Create call via singleflight,
// rather than racing on a bespoke per-topic mutex.
func (c *EventCache) Get(topic string) Event {
	c.mu.Lock()
	if e, ok := c.events[topic]; ok {
		c.mu.Unlock()
		return e
	}
	c.mu.Unlock()

	v, _, _ := c.group.Do(topic, func() (any, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if e, ok := c.events[topic]; ok {
			return e, nil
		}
		e := c.factory.Create(topic)
		c.events[topic] = e
		return e, nil
	})
	return v.(Event)
}

// Delete removes topic's event from the cache, if present.
func (c *EventCache) Delete(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.events, topic)
}

// Clear removes every event from the cache.
func (c *EventCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = make(map[string]Event)
}
