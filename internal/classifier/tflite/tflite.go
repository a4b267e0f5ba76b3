// Package tflite runs exported TensorFlow Lite cry models. Importing it
// registers the .tflite extension with classifier.Open.
package tflite

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/tphakala/go-tflite"

	"github.com/ycry/ycry-go/internal/classifier"
	"github.com/ycry/ycry-go/internal/errors"
	"github.com/ycry/ycry-go/internal/logger"
)

// Extension is the file extension of TensorFlow Lite models.
const Extension = ".tflite"

func init() {
	classifier.RegisterBackend(Extension, func(path string, labels classifier.LabelSet, opts classifier.OpenOptions) (classifier.Classifier, error) {
		return Open(path, labels, opts.Threads)
	})
}

// Model wraps a TFLite interpreter. The interpreter is not reentrant, so
// Predict calls are serialized.
type Model struct {
	mu          sync.Mutex
	interpreter *tflite.Interpreter
	model       *tflite.Model
	labels      classifier.LabelSet
	height      int
	width       int
	channels    int
}

var _ classifier.Classifier = (*Model)(nil)

// Open loads a TFLite model. The artifact carries no label metadata, so
// labels must list the classes in the model's output order; the output
// cardinality is checked against it.
func Open(path string, labels classifier.LabelSet, threads int) (*Model, error) {
	start := time.Now()
	log := GetLogger()

	if err := labels.Validate(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("tflite").
			Category(errors.CategoryModelLoad).
			ModelContext(path, labels.Version).
			Timing("model-load", time.Since(start)).
			Build()
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, initError(fmt.Errorf("cannot load TensorFlow Lite model"), path, labels).
			Context("model_size_mb", len(data)/1024/1024).
			Build()
	}

	if threads <= 0 {
		threads = max(1, runtime.NumCPU()/2)
	}
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, user_data any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, initError(fmt.Errorf("cannot create interpreter"), path, labels).Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, initError(fmt.Errorf("tensor allocation failed: %v", status), path, labels).Build()
	}

	m := &Model{interpreter: interpreter, model: model, labels: labels}

	input := interpreter.GetInputTensor(0)
	if input == nil || input.NumDims() != 4 {
		_ = m.Close()
		return nil, initError(fmt.Errorf("model input must be a 4-D NHWC tensor"), path, labels).Build()
	}
	m.height, m.width, m.channels = input.Dim(1), input.Dim(2), input.Dim(3)

	output := interpreter.GetOutputTensor(0)
	if output == nil {
		_ = m.Close()
		return nil, initError(fmt.Errorf("model has no output tensor"), path, labels).Build()
	}
	if classes := output.Dim(output.NumDims() - 1); classes != labels.Len() {
		_ = m.Close()
		return nil, errors.Newf("model has %d outputs but label set %s has %d labels", classes, labels, labels.Len()).
			Component("tflite").
			Category(errors.CategoryLabelLoad).
			ModelContext(path, labels.Version).
			Build()
	}

	log.Info("TFLite model initialized",
		logger.String("path", path),
		logger.Int("threads", threads),
		logger.Int("input_height", m.height),
		logger.Int("input_width", m.width),
		logger.Int("classes", labels.Len()),
		logger.Duration("elapsed", time.Since(start)))
	return m, nil
}

// Predict runs the interpreter on one image.
func (m *Model) Predict(input classifier.Tensor) ([]float32, error) {
	if err := input.CheckShape(m.height, m.width, m.channels); err != nil {
		return nil, classifier.PredictionError(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.interpreter == nil {
		return nil, classifier.PredictionError(fmt.Errorf("interpreter is closed"))
	}

	tensor := m.interpreter.GetInputTensor(0)
	if tensor == nil {
		return nil, classifier.PredictionError(fmt.Errorf("cannot get input tensor"))
	}
	copy(tensor.Float32s(), input.Data)

	if status := m.interpreter.Invoke(); status != tflite.OK {
		return nil, classifier.PredictionError(fmt.Errorf("tensor invoke failed: %v", status))
	}

	output := m.interpreter.GetOutputTensor(0)
	size := output.Dim(output.NumDims() - 1)
	probs := make([]float32, size)
	copy(probs, output.Float32s())
	return probs, nil
}

// Labels returns the configured label set.
func (m *Model) Labels() classifier.LabelSet {
	return m.labels
}

// InputShape returns the model input height, width and channels.
func (m *Model) InputShape() (height, width, channels int) {
	return m.height, m.width, m.channels
}

// Close releases the interpreter and model.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.interpreter != nil {
		m.interpreter.Delete()
		m.interpreter = nil
	}
	if m.model != nil {
		m.model.Delete()
		m.model = nil
	}
	return nil
}

func initError(err error, path string, labels classifier.LabelSet) *errors.ErrorBuilder {
	return errors.New(err).
		Component("tflite").
		Category(errors.CategoryModelInit).
		ModelContext(path, labels.Version)
}

// GetLogger returns the tflite package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("classifier.tflite")
}
