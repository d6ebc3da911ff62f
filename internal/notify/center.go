// Package notify keeps the user-facing alerts and mint notifications.
package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candymint/internal/events"
	"github.com/rovshanmuradov/candymint/internal/failure"
	"github.com/rovshanmuradov/candymint/internal/mintflow"
)

// Severity of a message.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// MintSucceededMessage is shown after a confirmed mint.
const MintSucceededMessage = "Congratulations! Mint succeeded!"

// Alert is the single active refresh problem of a tier.
type Alert struct {
	Tier     string       `json:"tier"`
	Kind     failure.Kind `json:"kind"`
	Message  string       `json:"message"`
	Severity Severity     `json:"severity"`
	Since    time.Time    `json:"since"`
}

// Notification is posted once per finished mint session.
type Notification struct {
	Tier      string           `json:"tier"`
	SessionID uuid.UUID        `json:"session_id"`
	State     mintflow.State   `json:"state"`
	Severity  Severity         `json:"severity"`
	Message   string           `json:"message"`
	Signature solana.Signature `json:"signature"`
	At        time.Time        `json:"at"`
}

// Sink forwards notifications outside the process.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

const sinkTimeout = 10 * time.Second

// HistorySize bounds the notifications a center keeps; older ones are dropped.
const HistorySize = 100

// Center holds at most one alert per tier and one notification per mint
// session, keeping the latest HistorySize notifications. Safe for concurrent
// use.
type Center struct {
	mu            sync.RWMutex
	alerts        map[string]Alert
	notifications []Notification
	seen          map[uuid.UUID]struct{}
	limit         int
	sinks         []Sink
	logger        *zap.Logger
}

// NewCenter creates an empty center.
func NewCenter(logger *zap.Logger) *Center {
	return &Center{
		alerts: make(map[string]Alert),
		seen:   make(map[uuid.UUID]struct{}),
		limit:  HistorySize,
		logger: logger.Named("notify"),
	}
}

// Attach subscribes the center to refresh and settlement events on bus.
func (c *Center) Attach(bus *events.Bus) events.Subscription {
	return bus.SubscribeFunc(func(_ context.Context, e events.Event) error {
		switch ev := e.(type) {
		case events.RefreshFailedEvent:
			c.SetAlert(ev.Tier, ev.Err)
		case events.SnapshotRefreshedEvent:
			if !ev.Optimistic {
				c.ClearAlert(ev.Tier)
			}
		case events.MintSettledEvent:
			c.Notify(ev.Mint)
		}
		return nil
	}, events.RefreshFailed, events.SnapshotRefreshed, events.MintSettled)
}

// AddSink registers s; every later notification is delivered to it.
func (c *Center) AddSink(s Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, s)
}

// SetAlert replaces the tier's active alert.
func (c *Center) SetAlert(tier string, err *failure.Error) {
	if err == nil {
		return
	}
	severity := SeverityError
	if err.Kind.Retryable() {
		severity = SeverityWarning
	}

	c.mu.Lock()
	prev, had := c.alerts[tier]
	c.alerts[tier] = Alert{
		Tier:     tier,
		Kind:     err.Kind,
		Message:  err.Message,
		Severity: severity,
		Since:    time.Now(),
	}
	c.mu.Unlock()

	if !had || prev.Kind != err.Kind {
		c.logger.Warn("Tier alert",
			zap.String("tier", tier),
			zap.String("kind", string(err.Kind)),
			zap.String("message", err.Message))
	}
}

// ClearAlert removes the tier's alert, if any.
func (c *Center) ClearAlert(tier string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.alerts, tier)
}

// Alert returns the tier's active alert.
func (c *Center) Alert(tier string) (Alert, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.alerts[tier]
	return a, ok
}

// Alerts returns all active alerts ordered by tier.
func (c *Center) Alerts() []Alert {
	c.mu.RLock()
	out := make([]Alert, 0, len(c.alerts))
	for _, a := range c.alerts {
		out = append(out, a)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out
}

// Notify posts the notification for a terminal mint event. Repeated calls
// for the same session and non-terminal events are ignored.
func (c *Center) Notify(ev mintflow.Event) {
	if !ev.State.Terminal() {
		return
	}

	n := Notification{
		Tier:      ev.Tier,
		SessionID: ev.SessionID,
		State:     ev.State,
		Signature: ev.Signature,
		At:        ev.At,
	}
	switch {
	case ev.State == mintflow.Confirmed:
		n.Severity = SeveritySuccess
		n.Message = MintSucceededMessage
	case ev.Err != nil:
		n.Severity = SeverityError
		if ev.State == mintflow.Ambiguous {
			n.Severity = SeverityWarning
		}
		n.Message = ev.Err.Message
	default:
		n.Severity = SeverityError
		n.Message = failure.DefaultMessage(failure.Rejected)
	}

	c.mu.Lock()
	if _, dup := c.seen[ev.SessionID]; dup {
		c.mu.Unlock()
		return
	}
	c.seen[ev.SessionID] = struct{}{}
	c.notifications = append(c.notifications, n)
	if over := len(c.notifications) - c.limit; over > 0 {
		for _, old := range c.notifications[:over] {
			delete(c.seen, old.SessionID)
		}
		c.notifications = append(c.notifications[:0:0], c.notifications[over:]...)
	}
	sinks := append([]Sink(nil), c.sinks...)
	c.mu.Unlock()

	c.logger.Info("Mint notification",
		zap.String("tier", n.Tier),
		zap.Stringer("state", n.State),
		zap.String("message", n.Message))

	for _, s := range sinks {
		c.deliver(s, n)
	}
}

// deliver isolates the center from a failing or panicking sink.
func (c *Center) deliver(s Sink, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Notification sink panicked", zap.Any("panic", r))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := s.Deliver(ctx, n); err != nil {
		c.logger.Warn("Failed to deliver notification",
			zap.String("tier", n.Tier),
			zap.Error(err))
	}
}

// Notifications returns the retained notifications, oldest first.
func (c *Center) Notifications() []Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Notification, len(c.notifications))
	copy(out, c.notifications)
	return out
}
