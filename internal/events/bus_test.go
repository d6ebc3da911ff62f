package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/candymint/internal/eligibility"
	"github.com/rovshanmuradov/candymint/internal/failure"
)

func TestPublishSyncDeliversByType(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 4)
	defer bus.Shutdown(context.Background())

	var got []EventType
	sub := bus.SubscribeFunc(func(_ context.Context, e Event) error {
		got = append(got, e.Type())
		return nil
	}, RefreshFailed, SnapshotRefreshed)

	require.NoError(t, bus.PublishSync(context.Background(), NewRefreshFailed("standard", failure.New(failure.NetworkUnavailable, nil))))
	require.NoError(t, bus.PublishSync(context.Background(), NewSnapshotRefreshed(eligibility.Snapshot{Tier: "premium"}, false)))
	assert.Equal(t, []EventType{RefreshFailed, SnapshotRefreshed}, got)

	sub.Unsubscribe()
	require.NoError(t, bus.PublishSync(context.Background(), NewRefreshFailed("standard", nil)))
	assert.Len(t, got, 2)
}

func TestPublishSyncJoinsHandlerErrors(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 1)
	defer bus.Shutdown(context.Background())

	boom := errors.New("boom")
	bus.SubscribeFunc(func(context.Context, Event) error { return boom }, RefreshFailed)

	err := bus.PublishSync(context.Background(), NewRefreshFailed("standard", nil))
	assert.ErrorIs(t, err, boom)
}

func TestPublishAsync(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 8)

	var wg sync.WaitGroup
	wg.Add(1)
	bus.SubscribeFunc(func(_ context.Context, e Event) error {
		assert.Equal(t, "premium", e.TierName())
		wg.Done()
		return nil
	}, SnapshotRefreshed)

	require.NoError(t, bus.Publish(NewSnapshotRefreshed(eligibility.Snapshot{Tier: "premium"}, true)))
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Shutdown(ctx))
	assert.ErrorIs(t, bus.Publish(NewRefreshFailed("premium", nil)), ErrBusClosed)
}
