package event

import (
	"sync"

	"github.com/erp/vendorsync/internal/domain/shared"
)

// subscription is one handler registration, optionally narrowed by a filter
type subscription struct {
	handler shared.EventHandler
	filter  shared.Predicate
}

// accepts reports whether the subscription wants event
func (s subscription) accepts(event shared.DomainEvent) bool {
	return matches(s.filter, event)
}

// HandlerRegistry manages event handler registrations
type HandlerRegistry struct {
	mu       sync.RWMutex
	byType   map[string][]subscription
	wildcard []subscription
}

// NewHandlerRegistry creates a new handler registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		byType: make(map[string][]subscription),
	}
}

// Register adds a handler for specific event types.
// If no event types are provided, the handler receives all events.
func (r *HandlerRegistry) Register(handler shared.EventHandler, eventTypes ...string) {
	r.RegisterFiltered(handler, shared.Predicate{}, eventTypes...)
}

// RegisterFiltered adds a handler that only receives events whose fields
// satisfy filter. A zero filter matches everything.
func (r *HandlerRegistry) RegisterFiltered(handler shared.EventHandler, filter shared.Predicate, eventTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub := subscription{handler: handler, filter: filter}
	if len(eventTypes) == 0 {
		r.wildcard = append(r.wildcard, sub)
		return
	}
	for _, eventType := range eventTypes {
		r.byType[eventType] = append(r.byType[eventType], sub)
	}
}

// Unregister removes a handler from all event types
func (r *HandlerRegistry) Unregister(handler shared.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.wildcard = without(r.wildcard, handler)
	for eventType, subs := range r.byType {
		if rest := without(subs, handler); len(rest) > 0 {
			r.byType[eventType] = rest
		} else {
			delete(r.byType, eventType)
		}
	}
}

// HandlersFor returns the handlers that should receive event: type-specific
// subscriptions first, then wildcards, each passed through its filter.
func (r *HandlerRegistry) HandlersFor(event shared.DomainEvent) []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	typed := r.byType[event.EventType()]
	out := make([]shared.EventHandler, 0, len(typed)+len(r.wildcard))
	for _, group := range [][]subscription{typed, r.wildcard} {
		for _, sub := range group {
			if sub.accepts(event) {
				out = append(out, sub.handler)
			}
		}
	}
	return out
}

// Count returns the number of distinct registered handlers
func (r *HandlerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[shared.EventHandler]struct{})
	for _, sub := range r.wildcard {
		seen[sub.handler] = struct{}{}
	}
	for _, subs := range r.byType {
		for _, sub := range subs {
			seen[sub.handler] = struct{}{}
		}
	}
	return len(seen)
}

func without(subs []subscription, target shared.EventHandler) []subscription {
	out := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.handler != target {
			out = append(out, s)
		}
	}
	return out
}
