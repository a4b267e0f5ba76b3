package inference

import (
	"fmt"
	"time"

	"github.com/ycry/ycry-go/internal/classifier"
	"github.com/ycry/ycry-go/internal/errors"
	"github.com/ycry/ycry-go/internal/logger"
)

// LoadModel opens the artifact at path, checks its label set against the
// configured one and runs one warmup prediction. On success the classifier
// replaces the current one. On failure the current state is kept, the
// failure is logged and returned; callers typically continue degraded.
func (s *Service) LoadModel(path string) error {
	start := time.Now()
	log := s.log.With(logger.String("model_path", path))

	c, err := classifier.Open(path, s.cfg.Labels, classifier.OpenOptions{Threads: s.cfg.Threads})
	if err == nil {
		if err = warmup(c, s.cfg.Labels); err != nil {
			_ = c.Close()
		}
	}
	if s.metrics != nil {
		s.metrics.RecordModelLoad(err)
	}
	if err != nil {
		if s.currentModel() != nil && s.metrics != nil {
			s.metrics.ModelLoadedGauge.Set(1)
		}
		log.Error("Model unavailable, service is degraded",
			logger.String("configured_labels", s.cfg.Labels.String()),
			logger.Error(err),
			logger.Duration("elapsed", time.Since(start)))
		return err
	}

	s.setModel(c)
	h, w, ch := c.InputShape()
	log.Info("Model loaded",
		logger.String("labels", c.Labels().String()),
		logger.String("input_shape", fmt.Sprintf("%dx%dx%d", h, w, ch)),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// SetClassifier installs c directly, bypassing artifact loading.
func (s *Service) SetClassifier(c classifier.Classifier) error {
	if !c.Labels().Equal(s.cfg.Labels) {
		return errors.Newf("classifier label set %s does not match configured %s", c.Labels(), s.cfg.Labels).
			Component("inference").
			Category(errors.CategoryLabelLoad).
			Build()
	}
	s.setModel(c)
	return nil
}

// warmup runs one prediction on a zero tensor so that lazy allocations in
// the backend happen before the first request.
func warmup(c classifier.Classifier, labels classifier.LabelSet) error {
	h, w, ch := c.InputShape()
	probs, err := c.Predict(classifier.NewTensor(h, w, ch))
	if err == nil {
		err = classifier.CheckDistribution(probs, labels)
	}
	if err != nil {
		return errors.New(err).
			Component("inference").
			Category(errors.CategoryModelInit).
			Context("operation", "warmup").
			Build()
	}
	return nil
}

// GetLogger returns the inference package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("inference")
}
