package cnn

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ycry/ycry-go/internal/classifier"
	"github.com/ycry/ycry-go/internal/errors"
	"github.com/ycry/ycry-go/internal/logger"
)

// Extension is the file extension of native model artifacts.
const Extension = ".ycnn"

// formatVersion is bumped whenever the artifact layout changes.
const formatVersion = 1

type artifact struct {
	Format       int                 `msgpack:"format"`
	CreatedAt    time.Time           `msgpack:"created_at"`
	Architecture Architecture        `msgpack:"architecture"`
	Labels       classifier.LabelSet `msgpack:"labels"`
	Seed         uint64              `msgpack:"seed"`
	Weights      *Weights            `msgpack:"weights"`
}

func init() {
	classifier.RegisterBackend(Extension, func(path string, _ classifier.LabelSet, _ classifier.OpenOptions) (classifier.Classifier, error) {
		return Load(path)
	})
}

// Save writes the network to path. The file is written to a temporary name
// in the same directory and renamed into place.
func (n *Network) Save(path string) error {
	start := time.Now()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return saveError(err, path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return saveError(err, path)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := msgpack.NewEncoder(w)
	err = enc.Encode(&artifact{
		Format:       formatVersion,
		CreatedAt:    time.Now().UTC(),
		Architecture: n.arch,
		Labels:       n.labels,
		Seed:         n.seed,
		Weights:      n.weights,
	})
	if err == nil {
		err = w.Flush()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		return saveError(err, path)
	}

	GetLogger().Debug("Model artifact saved",
		logger.String("path", path),
		logger.String("labels", n.labels.String()),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// Load reads a network saved by Save.
func Load(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, loadError(err, path, "")
	}
	defer f.Close()

	var a artifact
	if err := msgpack.NewDecoder(bufio.NewReader(f)).Decode(&a); err != nil {
		return nil, loadError(fmt.Errorf("decoding model artifact: %w", err), path, "")
	}
	if a.Format != formatVersion {
		return nil, loadError(fmt.Errorf("unsupported artifact format %d, want %d", a.Format, formatVersion), path, a.Labels.Version)
	}
	if a.Weights == nil {
		return nil, loadError(fmt.Errorf("artifact has no weights"), path, a.Labels.Version)
	}

	n, err := New(a.Architecture, a.Labels, a.Seed)
	if err != nil {
		return nil, loadError(err, path, a.Labels.Version)
	}
	if err := a.Weights.checkShape(a.Architecture); err != nil {
		return nil, loadError(err, path, a.Labels.Version)
	}
	n.weights = a.Weights
	return n, nil
}

func saveError(err error, path string) error {
	return errors.New(err).
		Component("cnn").
		Category(errors.CategoryFileIO).
		Context("operation", "save_model").
		Context("path", path).
		Build()
}

func loadError(err error, path, labelSetVersion string) error {
	return errors.New(err).
		Component("cnn").
		Category(errors.CategoryModelLoad).
		ModelContext(path, labelSetVersion).
		Build()
}
