package training

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ycry/ycry-go/internal/conf"
	"github.com/ycry/ycry-go/internal/inference"
)

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Audio.SampleRate = conf.SampleRate
	s.Audio.TrainingDuration = conf.TrainingDurationSeconds
	s.Spectrogram.TrainingWidth = 200
	s.Spectrogram.TrainingHeight = 80
	s.Model.Labels = conf.DefaultLabels
	s.Model.LabelSetVersion = "v1"
	s.Model.InputSize = 32
	s.Training = conf.TrainingSettings{
		DatasetDir:      "raw",
		ImageDir:        "images",
		ModelOut:        "out/model.ycnn",
		Epochs:          4,
		BatchSize:       8,
		LearningRate:    0.01,
		ValidationSplit: 0.25,
		Seed:            7,
		Workers:         2,
		EarlyStopping:   2,
		PlateauPatience: 1,
		PlateauFactor:   0.5,
		MinLearningRate: 1e-4,
		ImageAugment:    conf.ImageAugmentSettings{WidthShift: 0.1, Zoom: 0.2, Shear: 5},
	}
	return s
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()

	s := testSettings()

	pc := PreprocessConfigFromSettings(s)
	assert.Equal(t, "raw", pc.DatasetDir)
	assert.Equal(t, "images", pc.OutputDir)
	assert.InDelta(t, 7.0, pc.Seconds, 0)
	assert.Equal(t, 200, pc.Width)
	assert.Equal(t, 80, pc.Height)
	assert.Equal(t, conf.DefaultLabels, pc.Labels.Labels)

	tc := TrainConfigFromSettings(s)
	assert.Equal(t, 32, tc.Architecture.InputWidth)
	assert.Equal(t, 32, tc.Architecture.InputHeight)
	assert.Equal(t, len(conf.DefaultLabels), tc.Architecture.Classes)
	require.NoError(t, tc.Architecture.Validate())
	assert.Equal(t, 4, tc.Fit.Epochs)
	assert.Equal(t, uint64(7), tc.Fit.Seed)
	assert.Equal(t, ImageAugmenter{WidthShift: 0.1, Zoom: 0.2, Shear: 5}, tc.Fit.Augment)

	deps, err := DependenciesFromSettings(s)
	require.NoError(t, err)
	assert.NotNil(t, deps.Loader)
	assert.NotNil(t, deps.Augmenter)
}

func TestInferenceRendersAtTrainingSize(t *testing.T) {
	t.Parallel()

	s := testSettings()
	pc := PreprocessConfigFromSettings(s)
	ic := inference.ConfigFromSettings(s)

	assert.Equal(t, pc.Width, ic.RenderWidth)
	assert.Equal(t, pc.Height, ic.RenderHeight)
	assert.Equal(t, TrainConfigFromSettings(s).Architecture.InputWidth, ic.ImageSize)
}
