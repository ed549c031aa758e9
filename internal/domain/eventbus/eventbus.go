package eventbus

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

// Bus wraps a synchronous event bus for ordering-sensitive topics and an
// async worker pool for fan-out that may block (persistence, notifications).
// It is constructed explicitly and injected; there is no package singleton.
type Bus struct {
	sync  evbus.Bus
	async *asyncBus
	once  sync.Once
}

// New creates a Bus with the given number of async workers.
func New(workers int) *Bus {
	b := &Bus{
		sync:  evbus.New(),
		async: newAsyncBus(workers),
	}
	b.async.start()
	return b
}

// Publish delivers an event synchronously, in publish order, on the caller's
// goroutine. Use this for partial results and state transitions, which must
// reach subscribers in the order they happened.
func (b *Bus) Publish(topic string, args ...interface{}) {
	b.sync.Publish(topic, args...)
}

// PublishAsync hands the event to the worker pool. Ordering across topics is
// not guaranteed; full queues drop the event rather than block the pipeline.
func (b *Bus) PublishAsync(topic string, args ...interface{}) {
	b.async.publish(topic, args...)
}

// Subscribe registers a handler for synchronous events.
func (b *Bus) Subscribe(topic string, fn interface{}) error {
	return b.sync.Subscribe(topic, fn)
}

// SubscribeAsync registers a handler for asynchronous events.
func (b *Bus) SubscribeAsync(topic string, fn interface{}) error {
	return b.async.subscribe(topic, fn)
}

// Unsubscribe removes a synchronous handler.
func (b *Bus) Unsubscribe(topic string, fn interface{}) error {
	return b.sync.Unsubscribe(topic, fn)
}

// UnsubscribeAsync removes an asynchronous handler.
func (b *Bus) UnsubscribeAsync(topic string, fn interface{}) error {
	return b.async.unsubscribe(topic, fn)
}

// Shutdown stops the async workers. Synchronous subscribers need no teardown.
func (b *Bus) Shutdown() {
	b.once.Do(func() {
		b.async.stop()
	})
}
