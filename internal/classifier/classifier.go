// Package classifier defines the model boundary of the cry analysis pipeline:
// image tensors in, class probability distributions out. Concrete backends
// live in subpackages and register themselves by artifact extension.
package classifier

import (
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/ycry/ycry-go/internal/errors"
)

// Classifier maps a spectrogram image to a probability distribution over its
// label set. Implementations must be safe for concurrent Predict calls.
type Classifier interface {
	// Predict returns one probability per label, in label order.
	Predict(input Tensor) ([]float32, error)
	// Labels returns the label set the model was trained on.
	Labels() LabelSet
	// InputShape returns the expected input height, width and channels.
	InputShape() (height, width, channels int)
	// Close releases backend resources.
	Close() error
}

// OpenOptions carries backend tuning knobs.
type OpenOptions struct {
	Threads int // interpreter threads for backends that support it
}

// OpenFunc opens a model artifact. labels is the configured label set, used
// by backends whose artifacts carry no label metadata of their own.
type OpenFunc func(path string, labels LabelSet, opts OpenOptions) (Classifier, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]OpenFunc)
)

// RegisterBackend makes a backend available to Open for artifacts with the
// given file extension. It panics if the extension is registered twice.
func RegisterBackend(ext string, open OpenFunc) {
	ext = strings.ToLower(ext)
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if _, dup := backends[ext]; dup {
		panic("classifier: backend registered twice for " + ext)
	}
	backends[ext] = open
}

// Backends returns the registered artifact extensions.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	exts := make([]string, 0, len(backends))
	for ext := range backends {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Open loads the artifact at path with the backend registered for its
// extension and checks that its label set equals labels.
func Open(path string, labels LabelSet, opts OpenOptions) (Classifier, error) {
	ext := strings.ToLower(filepath.Ext(path))

	backendsMu.RLock()
	open, ok := backends[ext]
	backendsMu.RUnlock()
	if !ok {
		return nil, errors.Newf("no classifier backend for %q artifacts (have %v)", ext, Backends()).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			ModelContext(path, labels.Version).
			Build()
	}

	c, err := open(path, labels, opts)
	if err != nil {
		return nil, err
	}

	if got := c.Labels(); !got.Equal(labels) {
		_ = c.Close()
		return nil, errors.Newf("model label set %s does not match configured %s", got, labels).
			Component("classifier").
			Category(errors.CategoryLabelLoad).
			ModelContext(path, labels.Version).
			Context("model_labels", got.String()).
			Context("configured_labels", labels.String()).
			Build()
	}
	return c, nil
}

// CheckDistribution verifies that probs is a probability distribution over
// labels: one finite, non-negative value per label summing to one.
func CheckDistribution(probs []float32, labels LabelSet) error {
	if len(probs) != labels.Len() {
		return PredictionError(fmt.Errorf("model produced %d outputs for %d labels", len(probs), labels.Len()))
	}
	var sum float64
	for i, p := range probs {
		if math.IsNaN(float64(p)) || p < 0 || p > 1 {
			return PredictionError(fmt.Errorf("output %d (%s) is not a probability: %v", i, labels.Labels[i], p))
		}
		sum += float64(p)
	}
	if math.Abs(sum-1) > 1e-3 {
		return PredictionError(fmt.Errorf("outputs sum to %.6f, not 1", sum))
	}
	return nil
}

// PredictionError wraps a classifier runtime failure.
func PredictionError(err error) error {
	return errors.New(err).
		Component("classifier").
		Category(errors.CategoryPrediction).
		Build()
}
