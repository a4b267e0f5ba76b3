// Package metrics provides custom Prometheus metrics for the ycry components.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Request outcome label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// InferenceMetrics contains all Prometheus metrics related to cry analysis
// requests.
type InferenceMetrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	StageDuration      *prometheus.HistogramVec
	PredictionsTotal   *prometheus.CounterVec
	PredictionConf     prometheus.Histogram
	ModelLoadTotal     *prometheus.CounterVec
	ModelLoadedGauge   prometheus.Gauge
	InFlightGauge      prometheus.Gauge
	ObserverErrorTotal *prometheus.CounterVec
}

// NewInferenceMetrics creates a new instance of InferenceMetrics.
// It requires a Prometheus registry to register the metrics.
// It returns an error if metric registration fails.
func NewInferenceMetrics(registry *prometheus.Registry) (*InferenceMetrics, error) {
	m := &InferenceMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register inference metrics: %w", err)
	}
	return m, nil
}

func (m *InferenceMetrics) initMetrics() {
	m.RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ycry_requests_total",
			Help: "Total number of cry analysis requests by outcome and failing stage.",
		},
		[]string{"status", "stage"},
	)
	m.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ycry_request_duration_seconds",
			Help:    "End to end cry analysis duration.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"status"},
	)
	m.StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ycry_stage_duration_seconds",
			Help:    "Time spent reaching each pipeline stage from the previous one.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"stage"},
	)
	m.PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ycry_predictions_total",
			Help: "Total number of predictions partitioned by label.",
		},
		[]string{"label"},
	)
	m.PredictionConf = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ycry_prediction_confidence",
			Help:    "Confidence of the winning label.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		},
	)
	m.ModelLoadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ycry_model_load_total",
			Help: "Total number of model load attempts.",
		},
		[]string{"status"},
	)
	m.ModelLoadedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ycry_model_loaded",
			Help: "Whether a classifier is loaded (1) or the service is degraded (0).",
		},
	)
	m.InFlightGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ycry_requests_in_flight",
			Help: "Number of cry analysis requests currently being processed.",
		},
	)
	m.ObserverErrorTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ycry_observer_errors_total",
			Help: "Total number of failed prediction observer notifications.",
		},
		[]string{"observer"},
	)
}

// RecordRequest records the outcome of one request. stage is the stage that
// failed, or empty on success.
func (m *InferenceMetrics) RecordRequest(stage string, durationSeconds float64, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.RequestsTotal.WithLabelValues(status, stage).Inc()
	m.RequestDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordStage records the time taken to reach stage.
func (m *InferenceMetrics) RecordStage(stage string, durationSeconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordPrediction records a successful prediction.
func (m *InferenceMetrics) RecordPrediction(label string, confidence float64) {
	m.PredictionsTotal.WithLabelValues(label).Inc()
	m.PredictionConf.Observe(confidence)
}

// RecordModelLoad records a model load attempt and updates the loaded gauge.
func (m *InferenceMetrics) RecordModelLoad(err error) {
	if err != nil {
		m.ModelLoadTotal.WithLabelValues(StatusError).Inc()
		m.ModelLoadedGauge.Set(0)
		return
	}
	m.ModelLoadTotal.WithLabelValues(StatusSuccess).Inc()
	m.ModelLoadedGauge.Set(1)
}

// RecordObserverError counts a failed observer notification.
func (m *InferenceMetrics) RecordObserverError(observer string) {
	m.ObserverErrorTotal.WithLabelValues(observer).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *InferenceMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.RequestsTotal.Describe(ch)
	m.RequestDuration.Describe(ch)
	m.StageDuration.Describe(ch)
	m.PredictionsTotal.Describe(ch)
	ch <- m.PredictionConf.Desc()
	m.ModelLoadTotal.Describe(ch)
	ch <- m.ModelLoadedGauge.Desc()
	ch <- m.InFlightGauge.Desc()
	m.ObserverErrorTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *InferenceMetrics) Collect(ch chan<- prometheus.Metric) {
	m.RequestsTotal.Collect(ch)
	m.RequestDuration.Collect(ch)
	m.StageDuration.Collect(ch)
	m.PredictionsTotal.Collect(ch)
	ch <- m.PredictionConf
	m.ModelLoadTotal.Collect(ch)
	ch <- m.ModelLoadedGauge
	ch <- m.InFlightGauge
	m.ObserverErrorTotal.Collect(ch)
}
