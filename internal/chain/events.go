package chain

import (
	"strings"
	"sync"
)

// Chain level events fired around every command.
const (
	EventBeforeCommand = "beforeCommand"
	EventAfterCommand  = "afterCommand"
)

// Event is passed by reference to every handler. Handlers may change Data
// (its entries or the whole map); the firing command reads Data back once
// Fire returns.
type Event struct {
	Name        string
	CommandName string
	Context     *Context
	Data        map[string]any
}

// EventHandler reacts to an event. A returned error interrupts the command
// that fired the event.
type EventHandler func(e *Event) error

type subscription struct {
	command string
	event   string
	handler EventHandler
}

// EventBus dispatches events synchronously in registration order.
type EventBus struct {
	mu   sync.RWMutex
	subs []subscription
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// On subscribes to "<command>.<event>". Either part may be "*".
func (b *EventBus) On(pattern string, h EventHandler) {
	command, event, ok := strings.Cut(pattern, ".")
	if !ok {
		command, event = "*", pattern
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{command: command, event: event, handler: h})
}

// Fire runs every matching handler. It stops at the first error.
func (b *EventBus) Fire(e *Event) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.RUnlock()

	for _, s := range subs {
		if (s.command == "*" || s.command == e.CommandName) && (s.event == "*" || s.event == e.Name) {
			if err := s.handler(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// Count returns the number of subscriptions.
func (b *EventBus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
