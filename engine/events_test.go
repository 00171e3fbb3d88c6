package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventCacheGetOrCreate(t *testing.T) {
	factory := newChanEventFactory()
	cache := NewEventCache(factory)

	first := cache.Get("finished:a")
	second := cache.Get("finished:a")
	assert.Same(t, first, second)
	assert.Equal(t, 1, factory.createdCount("finished:a"))

	other := cache.Get("finished:b")
	assert.NotSame(t, first, other)
}

func TestEventCacheDeleteForgetsTopic(t *testing.T) {
	factory := newChanEventFactory()
	cache := NewEventCache(factory)

	first := cache.Get("finished:a")
	first.Notify()
	cache.Delete("finished:a")

	recreated := cache.Get("finished:a")
	assert.NotSame(t, first, recreated)
	assert.Equal(t, 2, factory.createdCount("finished:a"))
}

func TestEventCacheClearForgetsEverything(t *testing.T) {
	factory := newChanEventFactory()
	cache := NewEventCache(factory)

	cache.Get("finished:a")
	cache.Get("cancelled:a")
	cache.Clear()

	cache.Get("finished:a")
	assert.Equal(t, 2, factory.createdCount("finished:a"))
}

func TestEventCacheConcurrentGetCreatesOnce(t *testing.T) {
	factory := newChanEventFactory()
	cache := NewEventCache(factory)

	var wg sync.WaitGroup
	events := make([]Event, 32)
	for i := range events {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			events[i] = cache.Get("finished:shared")
		}(i)
	}
	wg.Wait()

	for _, e := range events[1:] {
		assert.Same(t, events[0], e)
	}
	assert.Equal(t, 1, factory.createdCount("finished:shared"))
}
