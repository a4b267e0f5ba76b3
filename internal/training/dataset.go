package training

import (
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/ycry/ycry-go/internal/classifier"
	"github.com/ycry/ycry-go/internal/errors"
	"github.com/ycry/ycry-go/internal/spectrogram"
)

// Split is one side of a dataset: tensors and their class indices.
type Split struct {
	Inputs  []classifier.Tensor
	Targets []int
	Paths   []string
}

// Len returns the number of examples.
func (s *Split) Len() int { return len(s.Inputs) }

// Counts returns the number of examples per class.
func (s *Split) Counts(classes int) []int {
	counts := make([]int, classes)
	for _, t := range s.Targets {
		counts[t]++
	}
	return counts
}

func (s *Split) add(t classifier.Tensor, target int, path string) {
	s.Inputs = append(s.Inputs, t)
	s.Targets = append(s.Targets, target)
	s.Paths = append(s.Paths, path)
}

// Dataset is the rendered image set split into training and validation.
type Dataset struct {
	Labels     classifier.LabelSet
	Train      Split
	Validation Split
}

// LoadDataset reads dir/<label>/*.png. The class index of an image is the
// position of its directory in labels. Per class the files are sorted by
// name and the last validationSplit fraction becomes validation data. Images
// are resized to width x height and scaled to [0, 1].
func LoadDataset(dir string, labels classifier.LabelSet, width, height int, validationSplit float64) (*Dataset, error) {
	if err := labels.Validate(); err != nil {
		return nil, err
	}
	if validationSplit < 0 || validationSplit >= 1 {
		return nil, errors.Newf("validation split %g outside [0, 1)", validationSplit).
			Component("training").
			Category(errors.CategoryValidation).
			Build()
	}

	ds := &Dataset{Labels: labels}
	for class, label := range labels.Labels {
		paths, err := imageFiles(filepath.Join(dir, label))
		if err != nil {
			return nil, err
		}
		trainCount := len(paths) - int(validationSplit*float64(len(paths)))
		for i, p := range paths {
			t, err := spectrogram.LoadPNGToTensor(p, width, height)
			if err != nil {
				return nil, errors.New(err).
					Component("training").
					Category(errors.CategoryFileIO).
					Context("label", label).
					Build()
			}
			if i < trainCount {
				ds.Train.add(t, class, p)
			} else {
				ds.Validation.add(t, class, p)
			}
		}
	}

	if ds.Train.Len() == 0 {
		return nil, errors.Newf("no training images found under %s", dir).
			Component("training").
			Category(errors.CategoryTraining).
			Build()
	}
	return ds, nil
}

// imageFiles lists the PNG files of dir sorted by name. A missing directory
// yields no files.
func imageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New(err).
			Component("training").
			Category(errors.CategoryFileIO).
			Context("directory", dir).
			Build()
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}

// ClassWeights returns balanced class weights,
// n_samples / (n_classes * count_c), where n_classes counts the classes that
// have examples. Empty classes get weight 0.
func ClassWeights(counts []int) []float32 {
	c := make([]float64, len(counts))
	present := 0
	for i, n := range counts {
		c[i] = float64(n)
		if n > 0 {
			present++
		}
	}
	total := floats.Sum(c)

	weights := make([]float32, len(counts))
	if present == 0 {
		return weights
	}
	for i, n := range c {
		if n > 0 {
			weights[i] = float32(total / (float64(present) * n))
		}
	}
	return weights
}
