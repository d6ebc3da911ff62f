// internal/events/handler.go
package events

import (
	"context"

	"github.com/google/uuid"
)

// Handler processes events of a specific type.
type Handler interface {
	// Handle processes an event. Should not block.
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc is an adapter to allow the use of ordinary functions as event handlers.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls f(ctx, event).
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscription represents a subscription to one or more event types.
type Subscription interface {
	// Unsubscribe removes the subscription from every type it was registered for.
	Unsubscribe()
}

type subscription struct {
	id    uuid.UUID
	bus   *Bus
	types []EventType
}

func (s *subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id, s.types)
}
