package event

import (
	"context"

	"github.com/erp/vendorsync/internal/domain/shared"
)

// matches evaluates filter against the event's field view. Events that do
// not expose fields only pass the zero filter.
func matches(filter shared.Predicate, event shared.DomainEvent) bool {
	if filter.IsZero() {
		return true
	}
	fe, ok := event.(shared.FieldEvent)
	if !ok {
		return false
	}
	return filter.Evaluate(fe.Fields())
}

// FilteredHandler forwards only the events matching a predicate. It is the
// handler-side equivalent of InMemoryEventBus.SubscribeFiltered, for buses
// that have no filter support of their own.
type FilteredHandler struct {
	handler shared.EventHandler
	filter  shared.Predicate
}

// NewFilteredHandler wraps handler with filter. The filter must be valid.
func NewFilteredHandler(handler shared.EventHandler, filter shared.Predicate) (*FilteredHandler, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return &FilteredHandler{handler: handler, filter: filter}, nil
}

// EventTypes returns the wrapped handler's event types
func (h *FilteredHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

// Handle drops events that do not match and forwards the rest
func (h *FilteredHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !matches(h.filter, event) {
		return nil
	}
	return h.handler.Handle(ctx, event)
}

var _ shared.EventHandler = (*FilteredHandler)(nil)
