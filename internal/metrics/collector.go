// internal/metrics/collector.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rovshanmuradov/candymint/internal/eligibility"
	"github.com/rovshanmuradov/candymint/internal/failure"
	"github.com/rovshanmuradov/candymint/internal/mintflow"
)

const namespace = "candymint"

// Collector владеет собственным реестром, чтобы несколько движков (и тесты)
// не конфликтовали при регистрации.
type Collector struct {
	registry *prometheus.Registry

	refreshTotal    *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	remainingItems  *prometheus.GaugeVec
	tierActive      *prometheus.GaugeVec
	effectivePrice  *prometheus.GaugeVec
	transitions     *prometheus.CounterVec
	sessions        *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
}

// NewCollector creates and registers all collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_total",
				Help:      "Tier refreshes by result",
			},
			[]string{"tier", "result"},
		),
		refreshDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "refresh_duration_seconds",
				Help:      "Duration of a tier refresh",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"tier"},
		),
		remainingItems: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "remaining_items",
				Help:      "Items left in the tier's candy machine",
			},
			[]string{"tier"},
		),
		tierActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tier_active",
				Help:      "1 when the wallet may mint from the tier",
			},
			[]string{"tier"},
		),
		effectivePrice: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "effective_price",
				Help:      "Price the wallet would pay, in base units of the payment asset",
			},
			[]string{"tier"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mint_transitions_total",
				Help:      "Mint session state transitions",
			},
			[]string{"tier", "state"},
		),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mint_sessions_total",
				Help:      "Finished mint sessions by outcome",
			},
			[]string{"tier", "outcome", "kind"},
		),
		sessionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "mint_session_duration_seconds",
				Help:      "Time from mint start to terminal state",
				Buckets:   prometheus.LinearBuckets(1, 5, 12),
			},
			[]string{"tier", "outcome"},
		),
	}

	c.registry.MustRegister(
		c.refreshTotal,
		c.refreshDuration,
		c.remainingItems,
		c.tierActive,
		c.effectivePrice,
		c.transitions,
		c.sessions,
		c.sessionDuration,
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordRefresh records one refresh. err is nil on success.
func (c *Collector) RecordRefresh(tier string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = string(failure.KindOf(err))
		if result == "" {
			result = "error"
		}
	}
	c.refreshTotal.WithLabelValues(tier, result).Inc()
	c.refreshDuration.WithLabelValues(tier).Observe(duration.Seconds())
}

// ObserveSnapshot updates the per-tier gauges.
func (c *Collector) ObserveSnapshot(snap eligibility.Snapshot) {
	c.remainingItems.WithLabelValues(snap.Tier).Set(float64(snap.RemainingItems))
	c.effectivePrice.WithLabelValues(snap.Tier).Set(float64(snap.EffectivePrice))
	active := 0.0
	if snap.IsActive {
		active = 1
	}
	c.tierActive.WithLabelValues(snap.Tier).Set(active)
}

// RecordTransition counts one mint state transition.
func (c *Collector) RecordTransition(ev mintflow.Event) {
	c.transitions.WithLabelValues(ev.Tier, ev.State.String()).Inc()
}

// RecordSession records a finished session started at start.
func (c *Collector) RecordSession(ev mintflow.Event, start time.Time) {
	kind := ""
	if ev.Err != nil {
		kind = string(ev.Err.Kind)
	}
	outcome := ev.State.String()
	c.sessions.WithLabelValues(ev.Tier, outcome, kind).Inc()
	c.sessionDuration.WithLabelValues(ev.Tier, outcome).Observe(ev.At.Sub(start).Seconds())
}
