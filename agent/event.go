package agent

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventType identifies a runtime event.
type EventType string

const (
	EventStateChange    EventType = "state_change"
	EventRequestHandled EventType = "request_handled"
	EventAgentStarted   EventType = "agent_started"
	EventAgentStopped   EventType = "agent_stopped"
)

// subscriptionCounter generates unique subscription IDs; an atomic counter
// instead of time.Now().UnixNano() to avoid collisions under concurrency.
var subscriptionCounter int64

// Event is the interface all bus events implement.
type Event interface {
	Timestamp() time.Time
	Type() EventType
}

// EventHandler handles a single event.
type EventHandler func(Event)

// EventBus fans runtime events out to subscribers. Handler panics are
// recovered and logged; they never reach the publisher.
type EventBus interface {
	Publish(event Event)
	Subscribe(eventType EventType, handler EventHandler) string
	Unsubscribe(subscriptionID string)
	Stop()
}

// SimpleEventBus is a buffered in-process EventBus.
type SimpleEventBus struct {
	mu           sync.RWMutex
	handlers     map[EventType]map[string]EventHandler
	eventChannel chan Event
	done         chan struct{}
	stopOnce     sync.Once
	logger       *zap.Logger
}

// NewEventBus creates an event bus and starts its dispatch loop.
func NewEventBus(logger *zap.Logger) EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := &SimpleEventBus{
		handlers:     make(map[EventType]map[string]EventHandler),
		eventChannel: make(chan Event, 256),
		done:         make(chan struct{}),
		logger:       logger,
	}
	go bus.processEvents()
	return bus
}

// Publish enqueues an event. Events are dropped when the buffer is full so a
// slow subscriber cannot stall the runtime.
func (b *SimpleEventBus) Publish(event Event) {
	select {
	case b.eventChannel <- event:
	case <-b.done:
	default:
		b.logger.Warn("event bus buffer full, dropping event", zap.String("type", string(event.Type())))
	}
}

// Subscribe registers a handler for the given event type and returns a
// subscription ID usable with Unsubscribe.
func (b *SimpleEventBus) Subscribe(eventType EventType, handler EventHandler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]EventHandler)
	}

	id := fmt.Sprintf("%s-%d", eventType, atomic.AddInt64(&subscriptionCounter, 1))
	b.handlers[eventType][id] = handler
	return id
}

// Unsubscribe removes a subscription. Unknown IDs are a no-op.
func (b *SimpleEventBus) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, handlers := range b.handlers {
		if _, ok := handlers[subscriptionID]; ok {
			delete(handlers, subscriptionID)
			if len(handlers) == 0 {
				delete(b.handlers, eventType)
			}
			return
		}
	}
}

func (b *SimpleEventBus) processEvents() {
	for {
		select {
		case event := <-b.eventChannel:
			b.mu.RLock()
			src := b.handlers[event.Type()]
			handlers := make([]EventHandler, 0, len(src))
			for _, h := range src {
				handlers = append(handlers, h)
			}
			b.mu.RUnlock()

			for _, handler := range handlers {
				h := handler
				func() {
					defer func() {
						if r := recover(); r != nil {
							b.logger.Error("event handler panicked", zap.Any("recover", r))
						}
					}()
					h(event)
				}()
			}
		case <-b.done:
			return
		}
	}
}

// Stop shuts the bus down. Idempotent.
func (b *SimpleEventBus) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
	})
}

// StateChangeEvent is published on every validated lifecycle transition.
type StateChangeEvent struct {
	AgentID   string
	FromState State
	ToState   State
	At        time.Time
}

func (e *StateChangeEvent) Timestamp() time.Time { return e.At }
func (e *StateChangeEvent) Type() EventType      { return EventStateChange }

// RequestHandledEvent is published after every HandleMessage completion,
// success or failure. The monitor aggregates these; agents never write
// metrics directly.
type RequestHandledEvent struct {
	AgentID    string
	Capability string
	MessageID  string
	Duration   time.Duration
	Err        string
	At         time.Time
}

func (e *RequestHandledEvent) Timestamp() time.Time { return e.At }
func (e *RequestHandledEvent) Type() EventType      { return EventRequestHandled }

// LifecycleEvent is published when an agent starts or stops.
type LifecycleEvent struct {
	AgentID   string
	EventType EventType
	At        time.Time
}

func (e *LifecycleEvent) Timestamp() time.Time { return e.At }
func (e *LifecycleEvent) Type() EventType      { return e.EventType }
