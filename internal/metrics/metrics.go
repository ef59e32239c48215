// Package metrics exposes Prometheus collectors for the recognition pipeline.
// Every recording method is safe on a nil *Metrics so callers never guard.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "winescan"

// Metrics holds all pipeline collectors.
type Metrics struct {
	BottlesTotal        *prometheus.CounterVec
	EscalationsTotal    *prometheus.CounterVec
	LLMDurationSeconds  prometheus.Histogram
	ScanDurationSeconds *prometheus.HistogramVec
	DegradedTotal       *prometheus.CounterVec
}

// New creates and registers the collectors on reg (the default registerer
// when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		BottlesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "recognition",
				Name:      "bottles_total",
				Help:      "Bottles finalized, by result source and placement",
			},
			[]string{"source", "placement"},
		),
		EscalationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "recognition",
				Name:      "escalations_total",
				Help:      "LLM escalations by outcome",
			},
			[]string{"outcome"},
		),
		LLMDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "llm",
				Name:      "call_duration_seconds",
				Help:      "Duration of LLM fallback calls",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 8),
			},
		),
		ScanDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "scan_duration_seconds",
				Help:      "End-to-end scan request duration",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 8),
			},
			[]string{"status"},
		),
		DegradedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "recognition",
				Name:      "degraded_total",
				Help:      "Requests answered from the top-rated fallback list",
			},
			[]string{"reason"},
		),
	}
}

// RecordBottle counts one finalized bottle.
func (m *Metrics) RecordBottle(source, placement string) {
	if m == nil {
		return
	}
	m.BottlesTotal.WithLabelValues(source, placement).Inc()
}

// RecordEscalation counts one escalation outcome.
func (m *Metrics) RecordEscalation(outcome string) {
	if m == nil {
		return
	}
	m.EscalationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveLLM records the duration of one LLM call.
func (m *Metrics) ObserveLLM(d time.Duration) {
	if m == nil {
		return
	}
	m.LLMDurationSeconds.Observe(d.Seconds())
}

// ObserveScan records one scan request.
func (m *Metrics) ObserveScan(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ScanDurationSeconds.WithLabelValues(status).Observe(d.Seconds())
}

// RecordDegrade counts one degraded request.
func (m *Metrics) RecordDegrade(reason string) {
	if m == nil {
		return
	}
	m.DegradedTotal.WithLabelValues(reason).Inc()
}
