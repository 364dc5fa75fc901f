// Package event provides the in-process event bus the sync engine publishes
// job transitions on, plus the subscribers that persist them.
package event

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/erp/vendorsync/internal/domain/shared"
	"go.uber.org/zap"
)

// ErrBusStopped is returned by Publish after Stop
var ErrBusStopped = errors.New("event: bus is stopped")

// InMemoryEventBus implements EventBus with synchronous in-memory pub/sub.
// Handler failures and panics are logged and never reach the publisher.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
	stopped  atomic.Bool
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger.Named("event_bus"),
	}
}

// Publish delivers events to every matching handler in registration order
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if b.stopped.Load() {
		return ErrBusStopped
	}
	for _, event := range events {
		for _, handler := range b.registry.HandlersFor(event) {
			if err := b.dispatch(ctx, handler, event); err != nil {
				b.logger.Error("handler failed to process event",
					zap.String("event_type", event.EventType()),
					zap.String("event_id", event.EventID().String()),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}

// Subscribe registers a handler for specific event types. With no types the
// handler's own EventTypes are used; an empty list there means all events.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// SubscribeFiltered registers a handler that only sees events whose fields
// satisfy filter.
func (b *InMemoryEventBus) SubscribeFiltered(handler shared.EventHandler, filter shared.Predicate, eventTypes ...string) error {
	if err := filter.Validate(); err != nil {
		return fmt.Errorf("invalid subscription filter: %w", err)
	}
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.RegisterFiltered(handler, filter, eventTypes...)
	b.logger.Debug("filtered handler subscribed", zap.Strings("event_types", eventTypes))
	return nil
}

// Unsubscribe removes a handler
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
	b.logger.Debug("handler unsubscribed")
}

// Start (re)opens the bus for publishing
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.stopped.Store(false)
	b.logger.Info("event bus started", zap.Int("handlers", b.registry.Count()))
	return nil
}

// Stop rejects further publishes. Delivery is synchronous, so nothing is in
// flight once the last Publish returns.
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.stopped.Store(true)
	b.logger.Info("event bus stopped")
	return nil
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, event)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
