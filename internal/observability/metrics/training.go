package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Dataset split label values.
const (
	SplitTrain      = "train"
	SplitValidation = "validation"
)

// TrainingMetrics contains Prometheus metrics for dataset preprocessing and
// model fitting.
type TrainingMetrics struct {
	FilesProcessed *prometheus.CounterVec
	ImagesWritten  *prometheus.CounterVec
	Epoch          prometheus.Gauge
	Loss           *prometheus.GaugeVec
	Accuracy       *prometheus.GaugeVec
	LearningRate   prometheus.Gauge
	EpochDuration  prometheus.Histogram
}

// NewTrainingMetrics creates and registers TrainingMetrics.
func NewTrainingMetrics(registry *prometheus.Registry) (*TrainingMetrics, error) {
	m := &TrainingMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register training metrics: %w", err)
	}
	return m, nil
}

func (m *TrainingMetrics) initMetrics() {
	m.FilesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ycry_preprocess_files_total",
		Help: "Dataset recordings processed, by label and outcome.",
	}, []string{"label", "status"})

	m.ImagesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ycry_preprocess_images_total",
		Help: "Spectrogram images written, by augmentation tag.",
	}, []string{"tag"})

	m.Epoch = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ycry_training_epoch",
		Help: "Last completed training epoch.",
	})

	m.Loss = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ycry_training_loss",
		Help: "Loss of the last completed epoch.",
	}, []string{"split"})

	m.Accuracy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ycry_training_accuracy",
		Help: "Accuracy of the last completed epoch.",
	}, []string{"split"})

	m.LearningRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ycry_training_learning_rate",
		Help: "Current optimizer learning rate.",
	})

	m.EpochDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ycry_training_epoch_duration_seconds",
		Help:    "Wall time per training epoch.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	})
}

// RecordFile counts one preprocessed recording.
func (m *TrainingMetrics) RecordFile(label string, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.FilesProcessed.WithLabelValues(label, status).Inc()
}

// RecordImage counts one written spectrogram image.
func (m *TrainingMetrics) RecordImage(tag string) {
	m.ImagesWritten.WithLabelValues(tag).Inc()
}

// RecordEpoch publishes the results of a completed epoch.
func (m *TrainingMetrics) RecordEpoch(epoch int, trainLoss, trainAcc, valLoss, valAcc, learningRate, durationSeconds float64) {
	m.Epoch.Set(float64(epoch))
	m.Loss.WithLabelValues(SplitTrain).Set(trainLoss)
	m.Loss.WithLabelValues(SplitValidation).Set(valLoss)
	m.Accuracy.WithLabelValues(SplitTrain).Set(trainAcc)
	m.Accuracy.WithLabelValues(SplitValidation).Set(valAcc)
	m.LearningRate.Set(learningRate)
	m.EpochDuration.Observe(durationSeconds)
}

// Describe implements the prometheus.Collector interface.
func (m *TrainingMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.FilesProcessed.Describe(ch)
	m.ImagesWritten.Describe(ch)
	ch <- m.Epoch.Desc()
	m.Loss.Describe(ch)
	m.Accuracy.Describe(ch)
	ch <- m.LearningRate.Desc()
	ch <- m.EpochDuration.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *TrainingMetrics) Collect(ch chan<- prometheus.Metric) {
	m.FilesProcessed.Collect(ch)
	m.ImagesWritten.Collect(ch)
	ch <- m.Epoch
	m.Loss.Collect(ch)
	m.Accuracy.Collect(ch)
	ch <- m.LearningRate
	ch <- m.EpochDuration
}
