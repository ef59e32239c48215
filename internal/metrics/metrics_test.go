package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			match := true
			for _, pair := range metric.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					match = false
				}
			}
			if match {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestRecordingUpdatesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordBottle("catalog", "positioned")
	m.RecordBottle("catalog", "positioned")
	m.RecordBottle("llm", "fallback")
	m.RecordEscalation("budget_exhausted")
	m.RecordDegrade("vision_unavailable")
	m.ObserveLLM(120 * time.Millisecond)
	m.ObserveScan("200", time.Second)

	if got := counterValue(t, reg, "winescan_recognition_bottles_total", map[string]string{"source": "catalog", "placement": "positioned"}); got != 2 {
		t.Fatalf("bottles_total = %v, want 2", got)
	}
	if got := counterValue(t, reg, "winescan_recognition_escalations_total", map[string]string{"outcome": "budget_exhausted"}); got != 1 {
		t.Fatalf("escalations_total = %v, want 1", got)
	}
	if got := counterValue(t, reg, "winescan_recognition_degraded_total", map[string]string{"reason": "vision_unavailable"}); got != 1 {
		t.Fatalf("degraded_total = %v, want 1", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordBottle("none", "dropped")
	m.RecordEscalation("failed")
	m.RecordDegrade("no_bottles")
	m.ObserveLLM(time.Millisecond)
	m.ObserveScan("500", time.Millisecond)
}
