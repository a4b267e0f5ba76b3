package training

import (
	"github.com/ycry/ycry-go/internal/augment"
	"github.com/ycry/ycry-go/internal/classifier"
	"github.com/ycry/ycry-go/internal/classifier/cnn"
	"github.com/ycry/ycry-go/internal/conf"
	"github.com/ycry/ycry-go/internal/myaudio"
	"github.com/ycry/ycry-go/internal/spectrogram"
)

func labelSet(s *conf.Settings) classifier.LabelSet {
	return classifier.LabelSet{Version: s.Model.LabelSetVersion, Labels: s.Model.Labels}
}

// PreprocessConfigFromSettings builds the preprocessing configuration.
func PreprocessConfigFromSettings(s *conf.Settings) PreprocessConfig {
	return PreprocessConfig{
		DatasetDir: s.Training.DatasetDir,
		OutputDir:  s.Training.ImageDir,
		Labels:     labelSet(s),
		Seconds:    float64(s.Audio.TrainingDuration),
		Width:      s.Spectrogram.TrainingWidth,
		Height:     s.Spectrogram.TrainingHeight,
		Workers:    s.Training.Workers,
	}
}

// DependenciesFromSettings builds the loader, extractor, renderer and
// augmentation engine used by Preprocess.
func DependenciesFromSettings(s *conf.Settings) (Dependencies, error) {
	params := spectrogram.ParamsFromSettings(&s.Spectrogram, s.Audio.SampleRate)
	extractor, err := spectrogram.NewExtractor(params, nil)
	if err != nil {
		return Dependencies{}, err
	}
	engine, err := augment.New(augment.Config{
		NoiseFactor: s.Training.NoiseFactor,
		StretchRate: s.Training.StretchRate,
		FFTSize:     params.FFTSize,
		HopLength:   params.HopLength,
	}, s.Training.Seed)
	if err != nil {
		return Dependencies{}, err
	}
	return Dependencies{
		Loader: myaudio.NewLoader(myaudio.LoaderConfig{
			SampleRate: s.Audio.SampleRate,
			FfmpegPath: s.Audio.FfmpegPath,
		}, nil),
		Extractor: extractor,
		Renderer:  spectrogram.NewRenderer(nil),
		Augmenter: engine,
	}, nil
}

// TrainConfigFromSettings builds the training configuration. The network
// input matches the inference image size.
func TrainConfigFromSettings(s *conf.Settings) TrainConfig {
	labels := labelSet(s)
	arch := cnn.DefaultArchitecture(labels.Len())
	if s.Model.InputSize > 0 {
		arch.InputHeight, arch.InputWidth = s.Model.InputSize, s.Model.InputSize
	}
	t := s.Training
	return TrainConfig{
		ImageDir:        t.ImageDir,
		ModelOut:        t.ModelOut,
		Labels:          labels,
		Architecture:    arch,
		ValidationSplit: t.ValidationSplit,
		Fit: FitConfig{
			Epochs:          t.Epochs,
			BatchSize:       t.BatchSize,
			LearningRate:    t.LearningRate,
			Seed:            t.Seed,
			PlateauPatience: t.PlateauPatience,
			PlateauFactor:   t.PlateauFactor,
			MinLearningRate: t.MinLearningRate,
			EarlyStopping:   t.EarlyStopping,
			Augment: ImageAugmenter{
				WidthShift: t.ImageAugment.WidthShift,
				Zoom:       t.ImageAugment.Zoom,
				Shear:      t.ImageAugment.Shear,
			},
		},
	}
}
