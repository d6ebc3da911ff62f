package notify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/candymint/internal/eligibility"
	"github.com/rovshanmuradov/candymint/internal/events"
	"github.com/rovshanmuradov/candymint/internal/failure"
	"github.com/rovshanmuradov/candymint/internal/mintflow"
)

func TestAlertsReplaceNotStack(t *testing.T) {
	c := NewCenter(zaptest.NewLogger(t))

	c.SetAlert("standard", failure.New(failure.NetworkUnavailable, nil))
	c.SetAlert("standard", failure.New(failure.ConfigNotFound, nil))
	c.SetAlert("premium", failure.New(failure.NetworkUnavailable, nil))

	alerts := c.Alerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, "premium", alerts[0].Tier)
	assert.Equal(t, SeverityWarning, alerts[0].Severity)
	assert.Equal(t, failure.ConfigNotFound, alerts[1].Kind)
	assert.Equal(t, SeverityError, alerts[1].Severity)

	c.ClearAlert("standard")
	_, ok := c.Alert("standard")
	assert.False(t, ok)
	_, ok = c.Alert("premium")
	assert.True(t, ok)
}

func TestNotifyOncePerSession(t *testing.T) {
	c := NewCenter(zaptest.NewLogger(t))
	id := uuid.New()

	c.Notify(mintflow.Event{Tier: "standard", SessionID: id, State: mintflow.MintSubmitted})
	assert.Empty(t, c.Notifications())

	ev := mintflow.Event{Tier: "standard", SessionID: id, State: mintflow.Confirmed, At: time.Now()}
	c.Notify(ev)
	c.Notify(ev)

	notes := c.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, MintSucceededMessage, notes[0].Message)
	assert.Equal(t, SeveritySuccess, notes[0].Severity)

	c.Notify(mintflow.Event{
		Tier:      "premium",
		SessionID: uuid.New(),
		State:     mintflow.Ambiguous,
		Err:       failure.New(failure.AmbiguousMintOutcome, nil),
	})
	notes = c.Notifications()
	require.Len(t, notes, 2)
	assert.Equal(t, SeverityWarning, notes[1].Severity)
	assert.Contains(t, notes[1].Message, "Anti-bot fee")
}

func TestAttachToBus(t *testing.T) {
	bus := events.NewBus(zaptest.NewLogger(t), 4)
	defer bus.Shutdown(context.Background())

	c := NewCenter(zaptest.NewLogger(t))
	c.Attach(bus)
	ctx := context.Background()

	require.NoError(t, bus.PublishSync(ctx, events.NewRefreshFailed("standard", failure.New(failure.NetworkUnavailable, nil))))
	_, ok := c.Alert("standard")
	assert.True(t, ok)

	// optimistic updates keep the alert
	require.NoError(t, bus.PublishSync(ctx, events.NewSnapshotRefreshed(eligibility.Snapshot{Tier: "standard"}, true)))
	_, ok = c.Alert("standard")
	assert.True(t, ok)

	require.NoError(t, bus.PublishSync(ctx, events.NewSnapshotRefreshed(eligibility.Snapshot{Tier: "standard"}, false)))
	_, ok = c.Alert("standard")
	assert.False(t, ok)

	require.NoError(t, bus.PublishSync(ctx, events.NewMintSettled(mintflow.Event{
		Tier: "standard", SessionID: uuid.New(), State: mintflow.Failed, Err: failure.New(failure.SoldOut, nil),
	})))
	notes := c.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, "SOLD OUT!", notes[0].Message)
}

type recordingSink struct {
	got   []Notification
	err   error
	panic bool
}

func (s *recordingSink) Deliver(_ context.Context, n Notification) error {
	if s.panic {
		panic("boom")
	}
	s.got = append(s.got, n)
	return s.err
}

func TestSinksReceiveEachNotificationOnce(t *testing.T) {
	c := NewCenter(zaptest.NewLogger(t))
	ok := &recordingSink{}
	failing := &recordingSink{err: assert.AnError}
	c.AddSink(&recordingSink{panic: true})
	c.AddSink(failing)
	c.AddSink(ok)

	ev := mintflow.Event{Tier: "premium", SessionID: uuid.New(), State: mintflow.Confirmed}
	c.Notify(ev)
	c.Notify(ev)

	require.Len(t, ok.got, 1)
	assert.Equal(t, MintSucceededMessage, ok.got[0].Message)
	assert.Len(t, failing.got, 1)
	assert.Len(t, c.Notifications(), 1)
}

func TestHistoryKeepsLatestSessions(t *testing.T) {
	c := NewCenter(zaptest.NewLogger(t))
	c.limit = 3

	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = uuid.New()
		c.Notify(mintflow.Event{Tier: "standard", SessionID: ids[i], State: mintflow.Confirmed})
	}

	notes := c.Notifications()
	require.Len(t, notes, 3)
	assert.Equal(t, ids[2], notes[0].SessionID)
	assert.Equal(t, ids[4], notes[2].SessionID)
	assert.Len(t, c.seen, 3)

	// retained sessions are still deduplicated
	c.Notify(mintflow.Event{Tier: "standard", SessionID: ids[4], State: mintflow.Confirmed})
	assert.Len(t, c.Notifications(), 3)
}
