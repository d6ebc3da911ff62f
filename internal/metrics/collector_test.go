package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/candymint/internal/eligibility"
	"github.com/rovshanmuradov/candymint/internal/failure"
	"github.com/rovshanmuradov/candymint/internal/mintflow"
)

func TestRecordRefresh(t *testing.T) {
	c := NewCollector()

	c.RecordRefresh("standard", 10*time.Millisecond, nil)
	c.RecordRefresh("standard", 10*time.Millisecond, failure.New(failure.NetworkUnavailable, nil))
	c.RecordRefresh("standard", 10*time.Millisecond, errors.New("other"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.refreshTotal.WithLabelValues("standard", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.refreshTotal.WithLabelValues("standard", "network_unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.refreshTotal.WithLabelValues("standard", "error")))
}

func TestObserveSnapshotAndSessions(t *testing.T) {
	c := NewCollector()

	c.ObserveSnapshot(eligibility.Snapshot{Tier: "premium", RemainingItems: 7, IsActive: true, EffectivePrice: 5})
	assert.Equal(t, 7.0, testutil.ToFloat64(c.remainingItems.WithLabelValues("premium")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tierActive.WithLabelValues("premium")))

	start := time.Now()
	ev := mintflow.Event{Tier: "premium", SessionID: uuid.New(), State: mintflow.Failed, Err: failure.New(failure.SoldOut, nil), At: start.Add(3 * time.Second)}
	c.RecordTransition(ev)
	c.RecordSession(ev, start)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sessions.WithLabelValues("premium", "failed", "sold_out")))

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "candymint_mint_transitions_total")
}
