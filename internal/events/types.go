// internal/events/types.go
package events

import (
	"time"

	"github.com/rovshanmuradov/candymint/internal/eligibility"
	"github.com/rovshanmuradov/candymint/internal/failure"
	"github.com/rovshanmuradov/candymint/internal/mintflow"
)

// EventType represents the type of event.
type EventType string

const (
	// Refresh events
	SnapshotRefreshed EventType = "refresh.snapshot"
	RefreshFailed     EventType = "refresh.failed"

	// Mint events
	MintTransition EventType = "mint.transition"
	MintSettled    EventType = "mint.settled"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
	// TierName returns the sale tier the event belongs to.
	TierName() string
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
	Tier      string
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// TierName returns the tier.
func (e BaseEvent) TierName() string {
	return e.Tier
}

// SnapshotRefreshedEvent is emitted after a successful refresh or an
// optimistic post-mint update.
type SnapshotRefreshedEvent struct {
	BaseEvent
	Snapshot   eligibility.Snapshot
	Optimistic bool
}

// RefreshFailedEvent is emitted when a tier refresh fails.
type RefreshFailedEvent struct {
	BaseEvent
	Err *failure.Error
}

// MintTransitionEvent carries one mint session state change.
type MintTransitionEvent struct {
	BaseEvent
	Mint mintflow.Event
}

// MintSettledEvent is emitted exactly once per mint session, on its terminal state.
type MintSettledEvent struct {
	BaseEvent
	Mint mintflow.Event
}

// NewSnapshotRefreshed builds a SnapshotRefreshedEvent.
func NewSnapshotRefreshed(snap eligibility.Snapshot, optimistic bool) SnapshotRefreshedEvent {
	return SnapshotRefreshedEvent{
		BaseEvent:  BaseEvent{EventType: SnapshotRefreshed, EventTime: time.Now(), Tier: snap.Tier},
		Snapshot:   snap,
		Optimistic: optimistic,
	}
}

// NewRefreshFailed builds a RefreshFailedEvent.
func NewRefreshFailed(tier string, err *failure.Error) RefreshFailedEvent {
	return RefreshFailedEvent{
		BaseEvent: BaseEvent{EventType: RefreshFailed, EventTime: time.Now(), Tier: tier},
		Err:       err,
	}
}

// NewMintTransition builds a MintTransitionEvent.
func NewMintTransition(ev mintflow.Event) MintTransitionEvent {
	return MintTransitionEvent{
		BaseEvent: BaseEvent{EventType: MintTransition, EventTime: ev.At, Tier: ev.Tier},
		Mint:      ev,
	}
}

// NewMintSettled builds a MintSettledEvent.
func NewMintSettled(ev mintflow.Event) MintSettledEvent {
	return MintSettledEvent{
		BaseEvent: BaseEvent{EventType: MintSettled, EventTime: ev.At, Tier: ev.Tier},
		Mint:      ev,
	}
}
