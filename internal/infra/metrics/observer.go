// internal/infra/metrics/observer.go
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	mintapp "candymint/internal/application/mint"
	mintdom "candymint/internal/domain/mint"
)

// MintMetrics は試行の状態遷移を Prometheus に記録する Observer です。
//
//   - candymint_attempt_transitions_total{status}
//   - candymint_attempt_outcomes_total{outcome}
//   - candymint_confirmation_seconds{outcome}（submitted → 終端）
type MintMetrics struct {
	transitions  *prometheus.CounterVec
	outcomes     *prometheus.CounterVec
	confirmation *prometheus.HistogramVec

	mu        sync.Mutex
	submitted map[string]time.Time
}

var _ mintapp.Observer = (*MintMetrics)(nil)

// NewMintMetrics は reg にメトリクスを登録します。reg が nil なら DefaultRegisterer。
func NewMintMetrics(reg prometheus.Registerer) *MintMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &MintMetrics{
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candymint_attempt_transitions_total",
				Help: "Total number of mint attempt status transitions",
			},
			[]string{"status"},
		),
		outcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candymint_attempt_outcomes_total",
				Help: "Total number of finished mint attempts by outcome",
			},
			[]string{"outcome"},
		),
		confirmation: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "candymint_confirmation_seconds",
				Help:    "Time from broadcast to a terminal attempt status",
				Buckets: []float64{.5, 1, 2, 4, 8, 15, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		submitted: make(map[string]time.Time),
	}
}

func (m *MintMetrics) OnEvent(_ context.Context, ev mintapp.Event) {
	m.transitions.WithLabelValues(string(ev.Status)).Inc()

	switch {
	case ev.Status == mintdom.StatusSubmitted:
		m.mu.Lock()
		m.submitted[ev.AttemptID] = ev.At
		m.mu.Unlock()

	case ev.Status.Terminal():
		kind := string(mintdom.OutcomeGenericFailure)
		if ev.Outcome != nil {
			kind = string(ev.Outcome.Kind)
		}
		m.outcomes.WithLabelValues(kind).Inc()

		m.mu.Lock()
		start, ok := m.submitted[ev.AttemptID]
		delete(m.submitted, ev.AttemptID)
		m.mu.Unlock()

		if ok {
			d := ev.At.Sub(start)
			if d < 0 {
				d = 0
			}
			m.confirmation.WithLabelValues(kind).Observe(d.Seconds())
		}
	}
}
