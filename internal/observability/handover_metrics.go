package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HandoverCollector exposes decision-engine metrics. It satisfies
// core.MetricsRecorder and core.DwellMetricsRecorder.
type HandoverCollector struct {
	gatherer prometheus.Gatherer

	Evaluations        *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	Reports            *prometheus.CounterVec
	UEContexts         *prometheus.GaugeVec
	DwellLookups       *prometheus.CounterVec
	DwellEntries       prometheus.Gauge
}

// NewHandoverCollector registers engine metrics against the provided registerer.
func NewHandoverCollector(reg prometheus.Registerer) (*HandoverCollector, error) {
	reg, gatherer := resolveRegistry(reg)

	evaluations, err := registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "handover_evaluations_total",
		Help: "Handover evaluations, labeled by outcome.",
	}, []string{"outcome"}), "handover_evaluations_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerCollector(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "handover_evaluation_duration_seconds",
		Help:    "Wall-clock duration of a single handover evaluation.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}), "handover_evaluation_duration_seconds")
	if err != nil {
		return nil, err
	}

	reports, err := registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "handover_reports_total",
		Help: "Inbound measurement reports, labeled by kind (a2, a4, unknown) and result.",
	}, []string{"kind", "result"}), "handover_reports_total")
	if err != nil {
		return nil, err
	}

	contexts, err := registerCollector(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "handover_ue_contexts",
		Help: "Endpoints with stored neighbour measurements, per serving cell.",
	}, []string{"cell"}), "handover_ue_contexts")
	if err != nil {
		return nil, err
	}

	lookups, err := registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "handover_dwell_lookups_total",
		Help: "Dwell time lookups, labeled by source (dataset, synthesized, cache).",
	}, []string{"source"}), "handover_dwell_lookups_total")
	if err != nil {
		return nil, err
	}

	entries, err := registerCollector(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "handover_dwell_dataset_entries",
		Help: "Number of (time bucket, base station) dwell entries held in memory.",
	}), "handover_dwell_dataset_entries")
	if err != nil {
		return nil, err
	}

	return &HandoverCollector{
		gatherer:           gatherer,
		Evaluations:        evaluations,
		EvaluationDuration: duration,
		Reports:            reports,
		UEContexts:         contexts,
		DwellLookups:       lookups,
		DwellEntries:       entries,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *HandoverCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveEvaluation counts an evaluation and records its duration.
func (c *HandoverCollector) ObserveEvaluation(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.Evaluations.WithLabelValues(outcome).Inc()
	c.EvaluationDuration.Observe(d.Seconds())
}

// IncReport counts an inbound report.
func (c *HandoverCollector) IncReport(kind, result string) {
	if c == nil {
		return
	}
	c.Reports.WithLabelValues(kind, result).Inc()
}

// SetUEContexts updates the per-cell endpoint gauge.
func (c *HandoverCollector) SetUEContexts(cell string, n int) {
	if c == nil {
		return
	}
	c.UEContexts.WithLabelValues(cell).Set(float64(n))
}

// ObserveDwellLookup counts a dwell lookup by source.
func (c *HandoverCollector) ObserveDwellLookup(source string) {
	if c == nil {
		return
	}
	c.DwellLookups.WithLabelValues(source).Inc()
}

// SetDwellEntries updates the dwell entry gauge.
func (c *HandoverCollector) SetDwellEntries(n int) {
	if c == nil {
		return
	}
	c.DwellEntries.Set(float64(n))
}
