// Package events provides a pub/sub event bus for narration observability.
//
// The scheduler publishes job, unit, and merge lifecycle events; listeners
// (metrics, telemetry, the websocket status broadcaster) subscribe without
// coupling to scheduling internals. Dispatch is asynchronous and a panicking
// listener never takes down the publisher.
package events

import "sync"

// Listener is a function that handles events.
type Listener func(*Event)

// Default dispatch settings.
const (
	defaultWorkerPoolSize  = 4
	defaultEventBufferSize = 64
)

// busConfig holds the settings applied by BusOption values.
type busConfig struct {
	workerPoolSize  int
	eventBufferSize int
}

// BusOption configures an EventBus.
type BusOption func(*busConfig)

// WithWorkerPoolSize sets the number of dispatch workers. Values below one
// are ignored. With more than one worker, delivery order across events is
// not guaranteed.
func WithWorkerPoolSize(n int) BusOption {
	return func(cfg *busConfig) {
		if n > 0 {
			cfg.workerPoolSize = n
		}
	}
}

// WithEventBufferSize sets the publish queue capacity. Values below one
// are ignored.
func WithEventBufferSize(n int) BusOption {
	return func(cfg *busConfig) {
		if n > 0 {
			cfg.eventBufferSize = n
		}
	}
}

// registration wraps a listener so it can be removed again by identity.
type registration struct {
	fn Listener
}

// EventBus distributes events to listeners from a small worker pool.
// Publish never blocks the caller: events queue into a bounded buffer and
// are dropped when the buffer is full or the bus is closed.
type EventBus struct {
	mu              sync.RWMutex
	listeners       map[EventType][]*registration
	globalListeners []*registration

	stateMu sync.RWMutex
	closed  bool
	queue   chan *Event
	workers sync.WaitGroup
}

// NewEventBus creates an event bus and starts its dispatch workers.
func NewEventBus(opts ...BusOption) *EventBus {
	cfg := busConfig{
		workerPoolSize:  defaultWorkerPoolSize,
		eventBufferSize: defaultEventBufferSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	eb := &EventBus{
		listeners: make(map[EventType][]*registration),
		queue:     make(chan *Event, cfg.eventBufferSize),
	}
	eb.workers.Add(cfg.workerPoolSize)
	for range cfg.workerPoolSize {
		go eb.worker()
	}
	return eb
}

// Subscribe registers a listener for a specific event type and returns a
// function that removes it again.
func (eb *EventBus) Subscribe(eventType EventType, listener Listener) func() {
	reg := &registration{fn: listener}
	eb.mu.Lock()
	eb.listeners[eventType] = append(eb.listeners[eventType], reg)
	eb.mu.Unlock()

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		eb.listeners[eventType] = without(eb.listeners[eventType], reg)
	}
}

// SubscribeAll registers a listener for all event types and returns a
// function that removes it again.
func (eb *EventBus) SubscribeAll(listener Listener) func() {
	reg := &registration{fn: listener}
	eb.mu.Lock()
	eb.globalListeners = append(eb.globalListeners, reg)
	eb.mu.Unlock()

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		eb.globalListeners = without(eb.globalListeners, reg)
	}
}

// Publish queues an event for asynchronous delivery. It reports false when
// the event was dropped because the bus is closed or the buffer is full.
func (eb *EventBus) Publish(event *Event) bool {
	eb.stateMu.RLock()
	defer eb.stateMu.RUnlock()

	if eb.closed {
		return false
	}
	select {
	case eb.queue <- event:
		return true
	default:
		return false
	}
}

// Close drains queued events and stops the workers. Later publishes are
// dropped. Close may be called more than once.
func (eb *EventBus) Close() {
	eb.stateMu.Lock()
	if eb.closed {
		eb.stateMu.Unlock()
		return
	}
	eb.closed = true
	close(eb.queue)
	eb.stateMu.Unlock()

	eb.workers.Wait()
}

// Clear removes all listeners (primarily for tests).
func (eb *EventBus) Clear() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.listeners = make(map[EventType][]*registration)
	eb.globalListeners = nil
}

func (eb *EventBus) worker() {
	defer eb.workers.Done()
	for event := range eb.queue {
		eb.dispatch(event)
	}
}

func (eb *EventBus) dispatch(event *Event) {
	eb.mu.RLock()
	typeListeners := eb.listeners[event.Type]

	specific := make([]*registration, len(typeListeners))
	copy(specific, typeListeners)

	global := make([]*registration, len(eb.globalListeners))
	copy(global, eb.globalListeners)
	eb.mu.RUnlock()

	for _, reg := range specific {
		safeInvoke(reg.fn, event)
	}
	for _, reg := range global {
		safeInvoke(reg.fn, event)
	}
}

// without returns regs with target removed, leaving the original backing
// array untouched for concurrent readers holding a copy.
func without(regs []*registration, target *registration) []*registration {
	for i, reg := range regs {
		if reg == target {
			return append(regs[:i:i], regs[i+1:]...)
		}
	}
	return regs
}

func safeInvoke(listener Listener, event *Event) {
	defer func() { _ = recover() }()
	listener(event)
}
