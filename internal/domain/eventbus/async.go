package eventbus

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

const asyncQueueSize = 1000

type asyncEvent struct {
	topic string
	args  []interface{}
}

// asyncBus runs a bounded worker pool draining published events into the
// wrapped bus. Events are dropped when the queue is full so a slow subscriber
// can never stall the audio loop.
type asyncBus struct {
	bus       evbus.Bus
	workerNum int
	workChan  chan asyncEvent
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

func newAsyncBus(workerNum int) *asyncBus {
	if workerNum <= 0 {
		workerNum = 4
	}
	return &asyncBus{
		bus:       evbus.New(),
		workerNum: workerNum,
		workChan:  make(chan asyncEvent, asyncQueueSize),
		stopChan:  make(chan struct{}),
	}
}

func (a *asyncBus) start() {
	for i := 0; i < a.workerNum; i++ {
		a.wg.Add(1)
		go a.worker()
	}
}

func (a *asyncBus) stop() {
	close(a.stopChan)
	a.wg.Wait()
}

func (a *asyncBus) worker() {
	defer a.wg.Done()

	for {
		select {
		case <-a.stopChan:
			return
		case event := <-a.workChan:
			func() {
				defer func() {
					// A panicking subscriber must not take the worker down.
					_ = recover()
				}()
				a.bus.Publish(event.topic, event.args...)
			}()
		}
	}
}

func (a *asyncBus) publish(topic string, args ...interface{}) {
	select {
	case a.workChan <- asyncEvent{topic: topic, args: args}:
	default:
	}
}

func (a *asyncBus) subscribe(topic string, fn interface{}) error {
	return a.bus.Subscribe(topic, fn)
}

func (a *asyncBus) unsubscribe(topic string, fn interface{}) error {
	return a.bus.Unsubscribe(topic, fn)
}
