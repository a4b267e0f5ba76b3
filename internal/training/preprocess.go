// Package training builds the image dataset from labelled recordings and fits
// a classifier on it.
package training

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ycry/ycry-go/internal/augment"
	"github.com/ycry/ycry-go/internal/classifier"
	"github.com/ycry/ycry-go/internal/errors"
	"github.com/ycry/ycry-go/internal/logger"
	"github.com/ycry/ycry-go/internal/myaudio"
	"github.com/ycry/ycry-go/internal/observability/metrics"
	"github.com/ycry/ycry-go/internal/spectrogram"
)

// AudioLoader decodes an audio file into a fixed length signal.
type AudioLoader interface {
	LoadFile(ctx context.Context, path string, seconds float64) (myaudio.Signal, error)
}

// FeatureExtractor computes a log-mel spectrogram.
type FeatureExtractor interface {
	Compute(samples []float32) (*spectrogram.Spectrogram, error)
}

// ImageRenderer rasterizes a spectrogram to a PNG file.
type ImageRenderer interface {
	RenderToFile(spec *spectrogram.Spectrogram, width, height int, path string) error
}

// Dependencies are the collaborators of the preprocessing stage.
type Dependencies struct {
	Loader    AudioLoader
	Extractor FeatureExtractor
	Renderer  ImageRenderer
	Augmenter *augment.Engine
	Metrics   *metrics.TrainingMetrics // optional
	Logger    logger.Logger            // optional
}

// PreprocessConfig configures Preprocess.
type PreprocessConfig struct {
	DatasetDir string
	OutputDir  string
	Labels     classifier.LabelSet
	Seconds    float64
	Width      int
	Height     int
	Workers    int // 0 = number of CPUs
}

// PreprocessReport summarizes a preprocessing run.
type PreprocessReport struct {
	Files    int            // recordings found
	Failed   int            // recordings that could not be processed
	Images   int            // images written
	PerLabel map[string]int // images written per label
	Duration time.Duration
}

// recording is one input file and its position in the dataset.
type recording struct {
	label string
	path  string
	index int // index within the label directory, used in output names
	seq   int // index within the whole dataset, selects the random stream
}

// Preprocess renders every recording under DatasetDir/<label>/ to
// OutputDir/<label>/<label>_<index>_<tag>.png, one image per augmentation
// variant. Files that fail to decode or render are logged and counted; they
// do not stop the run.
func Preprocess(ctx context.Context, cfg PreprocessConfig, deps Dependencies) (PreprocessReport, error) {
	start := time.Now()
	log := deps.Logger
	if log == nil {
		log = GetLogger()
	}
	if err := validatePreprocess(cfg, deps); err != nil {
		return PreprocessReport{}, err
	}

	recs, err := scanDataset(cfg.DatasetDir, cfg.Labels, log)
	if err != nil {
		return PreprocessReport{}, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	log.Info("Preprocessing dataset",
		logger.String("dataset_dir", cfg.DatasetDir),
		logger.String("output_dir", cfg.OutputDir),
		logger.Int("recordings", len(recs)),
		logger.Int("workers", workers))

	var (
		mu     sync.Mutex
		report = PreprocessReport{Files: len(recs), PerLabel: make(map[string]int)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, rec := range recs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			written, err := processRecording(gctx, rec, cfg, deps)
			if deps.Metrics != nil {
				deps.Metrics.RecordFile(rec.label, err)
			}

			mu.Lock()
			report.Images += written
			report.PerLabel[rec.label] += written
			if err != nil {
				report.Failed++
			}
			mu.Unlock()

			if err != nil {
				log.Warn("Skipping recording",
					logger.String("label", rec.label),
					logger.String("path", rec.path),
					logger.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	report.Duration = time.Since(start)
	log.Info("Preprocessing complete",
		logger.Int("recordings", report.Files),
		logger.Int("failed", report.Failed),
		logger.Int("images", report.Images),
		logger.Duration("elapsed", report.Duration))
	return report, nil
}

func validatePreprocess(cfg PreprocessConfig, deps Dependencies) error {
	var problem string
	switch {
	case deps.Loader == nil || deps.Extractor == nil || deps.Renderer == nil || deps.Augmenter == nil:
		problem = "preprocessing requires a loader, an extractor, a renderer and an augmenter"
	case cfg.DatasetDir == "" || cfg.OutputDir == "":
		problem = "dataset and output directories are required"
	case cfg.Seconds <= 0:
		problem = fmt.Sprintf("invalid clip length %g s", cfg.Seconds)
	case cfg.Width <= 0 || cfg.Height <= 0:
		problem = fmt.Sprintf("invalid image size %dx%d", cfg.Width, cfg.Height)
	}
	if problem != "" {
		return errors.Newf("%s", problem).
			Component("training").
			Category(errors.CategoryValidation).
			Build()
	}
	return cfg.Labels.Validate()
}

// scanDataset lists recordings in label order (the label set is validated as
// sorted), files sorted by name. Directories outside the label set are
// reported and skipped.
func scanDataset(dir string, labels classifier.LabelSet, log logger.Logger) ([]recording, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.New(err).
			Component("training").
			Category(errors.CategoryFileIO).
			Context("dataset_dir", dir).
			Build()
	}
	for _, e := range entries {
		if e.IsDir() && labels.Index(e.Name()) < 0 {
			log.Warn("Ignoring directory outside the label set", logger.String("directory", e.Name()))
		}
	}

	var recs []recording
	for _, label := range labels.Labels {
		files, err := os.ReadDir(filepath.Join(dir, label))
		if err != nil {
			if os.IsNotExist(err) {
				log.Warn("No recordings for label", logger.String("label", label))
				continue
			}
			return nil, errors.New(err).
				Component("training").
				Category(errors.CategoryFileIO).
				Context("label", label).
				Build()
		}
		idx := 0
		for _, f := range files {
			if f.IsDir() || strings.HasPrefix(f.Name(), ".") {
				continue
			}
			recs = append(recs, recording{
				label: label,
				path:  filepath.Join(dir, label, f.Name()),
				index: idx,
				seq:   len(recs),
			})
			idx++
		}
	}
	return recs, nil
}

// processRecording writes every variant of rec and returns how many images
// were written.
func processRecording(ctx context.Context, rec recording, cfg PreprocessConfig, deps Dependencies) (int, error) {
	sig, err := deps.Loader.LoadFile(ctx, rec.path, cfg.Seconds)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, v := range deps.Augmenter.Generate(sig, rec.seq) {
		spec, err := deps.Extractor.Compute(v.Signal.Samples)
		if err != nil {
			return written, err
		}
		out := ImagePath(cfg.OutputDir, rec.label, rec.index, v.Tag)
		if err := deps.Renderer.RenderToFile(spec, cfg.Width, cfg.Height, out); err != nil {
			return written, err
		}
		if deps.Metrics != nil {
			deps.Metrics.RecordImage(v.Tag)
		}
		written++
	}
	return written, nil
}

// ImagePath returns the output path of one rendered variant.
func ImagePath(outputDir, label string, index int, tag string) string {
	return filepath.Join(outputDir, label, fmt.Sprintf("%s_%d_%s.png", label, index, tag))
}

// GetLogger returns the training package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("training")
}
