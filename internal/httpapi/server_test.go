package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/candymint/internal/budget"
	"github.com/rovshanmuradov/candymint/internal/eligibility"
	"github.com/rovshanmuradov/candymint/internal/engine"
	"github.com/rovshanmuradov/candymint/internal/failure"
	"github.com/rovshanmuradov/candymint/internal/mintflow"
	"github.com/rovshanmuradov/candymint/internal/notify"
)

type fakeSource map[string]engine.TierStatus

func (f fakeSource) Tiers() []string { return []string{"standard", "premium"} }

func (f fakeSource) Status(tier string) (engine.TierStatus, error) {
	st, ok := f[tier]
	if !ok {
		return engine.TierStatus{}, fmt.Errorf("%w: %s", engine.ErrUnknownTier, tier)
	}
	return st, nil
}

func newTestServer(t *testing.T) (*Server, *notify.Center) {
	t.Helper()
	source := fakeSource{
		"standard": {
			Name:     "standard",
			Snapshot: &eligibility.Snapshot{Tier: "standard", IsActive: true, EffectivePrice: 1_000_000_000, RemainingItems: 12},
			Estimate: budget.Estimate{Bytes: 1100},
		},
		"premium": {
			Name:     "premium",
			Disabled: true,
			LastErr:  failure.New(failure.ConfigNotFound, nil),
		},
	}
	center := notify.NewCenter(zaptest.NewLogger(t))
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("candymint_up 1\n"))
	})
	return NewServer(":0", source, center, metrics, zaptest.NewLogger(t)), center
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestListTiers(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/api/v1/tiers")
	require.Equal(t, http.StatusOK, rec.Code)

	var tiers []TierResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tiers))
	require.Len(t, tiers, 2)
	assert.Equal(t, "standard", tiers[0].Name)
	require.NotNil(t, tiers[0].Snapshot)
	assert.Equal(t, uint64(12), tiers[0].Snapshot.RemainingItems)
	assert.Equal(t, uint32(1100), tiers[0].TxBytes)

	assert.True(t, tiers[1].Disabled)
	require.NotNil(t, tiers[1].LastError)
	assert.Equal(t, failure.ConfigNotFound, tiers[1].LastError.Kind)
}

func TestGetTier(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/api/v1/tiers/standard")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = get(t, s, "/api/v1/tiers/vip")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlertsAndNotifications(t *testing.T) {
	s, center := newTestServer(t)
	center.SetAlert("premium", failure.New(failure.NetworkUnavailable, nil))
	center.Notify(mintflow.Event{Tier: "standard", SessionID: uuid.New(), State: mintflow.Confirmed})

	var alerts []notify.Alert
	require.NoError(t, json.Unmarshal(get(t, s, "/api/v1/alerts").Body.Bytes(), &alerts))
	require.Len(t, alerts, 1)
	assert.Equal(t, failure.NetworkUnavailable, alerts[0].Kind)

	var notes []map[string]interface{}
	require.NoError(t, json.Unmarshal(get(t, s, "/api/v1/notifications").Body.Bytes(), &notes))
	require.Len(t, notes, 1)
	assert.Equal(t, "confirmed", notes[0]["state"])
	assert.Equal(t, notify.MintSucceededMessage, notes[0]["message"])
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, http.StatusOK, get(t, s, "/healthz").Code)

	rec := get(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "candymint_up")
}
