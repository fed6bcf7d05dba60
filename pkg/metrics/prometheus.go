package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	runsTotal    *prometheus.CounterVec
	runDuration  prometheus.Histogram
	instruments  *prometheus.CounterVec
	instrMAE     *prometheus.GaugeVec
	stageLatency *prometheus.HistogramVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// New creates a recorder registered on reg, or on the default registry
// when reg is nil.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_runs_total",
				Help: "Forecast runs by result",
			},
			[]string{"result"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fincast_run_duration_seconds",
				Help:    "Wall time of a forecast run",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
			},
		),
		instruments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_instruments_total",
				Help: "Instrument outcomes; outcome is forecasted or an error kind",
			},
			[]string{"outcome"},
		),
		instrMAE: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fincast_instrument_mae",
				Help: "Held-out MAE of the selected model per symbol",
			},
			[]string{"symbol"},
		),
		stageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fincast_stage_duration_seconds",
				Help:    "Duration of pipeline stages",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fincast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
	reg.MustRegister(r.runsTotal, r.runDuration, r.instruments, r.instrMAE, r.stageLatency, r.errorsTotal, r.latency)
	return r
}

// RecordRun records a finished run. A run with no successes counts as failed.
func (r *Recorder) RecordRun(succeeded, failed int, seconds float64) {
	result := "ok"
	switch {
	case succeeded == 0 && failed > 0:
		result = "failed"
	case failed > 0:
		result = "partial"
	}
	r.runsTotal.WithLabelValues(result).Inc()
	r.runDuration.Observe(seconds)
}

// RecordInstrument records one instrument outcome. mae is only kept for
// forecasted instruments.
func (r *Recorder) RecordInstrument(symbol, outcome string, mae float64) {
	r.instruments.WithLabelValues(outcome).Inc()
	if outcome == OutcomeForecasted {
		r.instrMAE.WithLabelValues(symbol).Set(mae)
	}
}

// RecordStage records the duration of one pipeline stage.
func (r *Recorder) RecordStage(stage string, seconds float64) {
	r.stageLatency.WithLabelValues(stage).Observe(seconds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// OutcomeForecasted labels instruments that produced a forecast.
const OutcomeForecasted = "forecasted"
