package event

import (
	"fmt"
	"runtime/debug"
	"slices"
	"strconv"
	"sync"

	"github.com/Iron-Ham/releasetrain/internal/logging"
)

// Handler is a function that handles an event.
type Handler func(Event)

type subscription struct {
	id        string
	eventType string // empty for SubscribeAll
	handler   Handler
}

// Bus is a synchronous pub-sub event bus. A nil *Bus discards every event,
// so components can publish without checking whether anyone listens.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	serial uint64
	logger *logging.Logger
}

// NewBus creates a new event bus. Handler panics are reported to logger.
func NewBus(logger *logging.Logger) *Bus {
	return &Bus{logger: logging.OrNop(logger)}
}

// Subscribe registers a handler for eventType and returns an ID for
// Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.serial++
	id := "sub-" + strconv.FormatUint(b.serial, 10)
	b.subs = append(b.subs, subscription{id: id, eventType: eventType, handler: handler})
	return id
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe("", handler)
}

// Unsubscribe removes a subscription and reports whether it existed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := slices.IndexFunc(b.subs, func(s subscription) bool { return s.id == id })
	if i < 0 {
		return false
	}
	b.subs = slices.Delete(b.subs, i, i+1)
	return true
}

// Publish hands event to its subscribers: handlers of the event's type
// first, then SubscribeAll handlers, each in registration order. A
// panicking handler is logged and the remaining handlers still run.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}
	eventType := event.EventType()

	b.mu.RLock()
	var typed, all []Handler
	for _, s := range b.subs {
		switch s.eventType {
		case eventType:
			typed = append(typed, s.handler)
		case "":
			all = append(all, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range append(typed, all...) {
		b.deliver(h, event)
	}
}

func (b *Bus) deliver(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", event.EventType(),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	handler(event)
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
