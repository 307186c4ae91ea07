package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	mintapp "candymint/internal/application/mint"
	mintdom "candymint/internal/domain/mint"
)

type sample struct {
	value float64
	count uint64
}

func lookup(t *testing.T, reg *prometheus.Registry, name, label, value string) (sample, bool) {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return sample{
						value: m.GetCounter().GetValue(),
						count: m.GetHistogram().GetSampleCount(),
					}, true
				}
			}
		}
	}
	return sample{}, false
}

func TestMintMetricsRecordsAttempt(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMintMetrics(reg)
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	success := mintdom.NewOutcome(mintdom.OutcomeSuccess)

	m.OnEvent(ctx, mintapp.Event{AttemptID: "a1", Status: mintdom.StatusPending, At: start})
	m.OnEvent(ctx, mintapp.Event{AttemptID: "a1", Status: mintdom.StatusSubmitted, At: start.Add(time.Second)})
	m.OnEvent(ctx, mintapp.Event{AttemptID: "a1", Status: mintdom.StatusConfirmed, Outcome: &success, At: start.Add(4 * time.Second)})

	for _, st := range []string{"pending", "submitted", "confirmed"} {
		s, ok := lookup(t, reg, "candymint_attempt_transitions_total", "status", st)
		if !ok || s.value != 1 {
			t.Fatalf("transitions{status=%s} = %v (found=%v), want 1", st, s.value, ok)
		}
	}
	if s, ok := lookup(t, reg, "candymint_attempt_outcomes_total", "outcome", "success"); !ok || s.value != 1 {
		t.Fatalf("outcomes{success} = %v, want 1", s.value)
	}
	if s, ok := lookup(t, reg, "candymint_confirmation_seconds", "outcome", "success"); !ok || s.count != 1 {
		t.Fatalf("confirmation{success} count = %d, want 1", s.count)
	}
}

func TestMintMetricsLocalRejectionHasNoLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMintMetrics(reg)
	ctx := context.Background()

	soldOut := mintdom.NewOutcome(mintdom.OutcomeSoldOut)
	m.OnEvent(ctx, mintapp.Event{AttemptID: "a2", Status: mintdom.StatusPending, At: time.Now()})
	m.OnEvent(ctx, mintapp.Event{AttemptID: "a2", Status: mintdom.StatusFailed, Outcome: &soldOut, At: time.Now()})

	if s, ok := lookup(t, reg, "candymint_attempt_outcomes_total", "outcome", "sold_out"); !ok || s.value != 1 {
		t.Fatalf("outcomes{sold_out} = %v, want 1", s.value)
	}
	if _, ok := lookup(t, reg, "candymint_confirmation_seconds", "outcome", "sold_out"); ok {
		t.Fatalf("latency recorded for an attempt that was never submitted")
	}
}
