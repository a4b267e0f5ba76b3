package inference

import (
	"github.com/ycry/ycry-go/internal/classifier"
	"github.com/ycry/ycry-go/internal/conf"
	"github.com/ycry/ycry-go/internal/myaudio"
	"github.com/ycry/ycry-go/internal/spectrogram"
)

// LabelSetFromSettings returns the configured label set.
func LabelSetFromSettings(s *conf.Settings) classifier.LabelSet {
	return classifier.LabelSet{Version: s.Model.LabelSetVersion, Labels: s.Model.Labels}
}

// ConfigFromSettings builds the request configuration from settings.
func ConfigFromSettings(s *conf.Settings) Config {
	return Config{
		TempDir:      s.WebServer.TempDir,
		Seconds:      float64(s.Audio.InferenceDuration),
		ImageSize:    s.Model.InputSize,
		RenderWidth:  s.Spectrogram.TrainingWidth,
		RenderHeight: s.Spectrogram.TrainingHeight,
		Labels:       LabelSetFromSettings(s),
		Threads:      s.Model.Threads,
	}
}

// DependenciesFromSettings builds the audio loader, feature extractor and
// renderer. The caller adds the classifier, metrics and observers.
func DependenciesFromSettings(s *conf.Settings) (Dependencies, error) {
	extractor, err := spectrogram.NewExtractor(spectrogram.ParamsFromSettings(&s.Spectrogram, s.Audio.SampleRate), nil)
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
	}, nil
}
