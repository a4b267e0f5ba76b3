// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateAudioSettings,
		validateSpectrogramSettings,
		validateModelSettings,
		validateWebServerSettings,
		validateTrainingSettings,
		validateMQTTSettings,
		validateJournalSettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAudioSettings(s *Settings) error {
	a := &s.Audio
	if a.SampleRate <= 0 {
		return fmt.Errorf("audio.samplerate must be positive, got %d", a.SampleRate)
	}
	if a.InferenceDuration <= 0 || a.TrainingDuration <= 0 {
		return fmt.Errorf("audio durations must be positive, got inference=%d training=%d",
			a.InferenceDuration, a.TrainingDuration)
	}
	return nil
}

func validateSpectrogramSettings(s *Settings) error {
	sp := &s.Spectrogram
	switch {
	case sp.FFTSize < 16:
		return fmt.Errorf("spectrogram.fftsize must be at least 16, got %d", sp.FFTSize)
	case sp.HopLength <= 0 || sp.HopLength > sp.FFTSize:
		return fmt.Errorf("spectrogram.hoplength must be in (0, fftsize], got %d", sp.HopLength)
	case sp.Mels <= 0:
		return fmt.Errorf("spectrogram.mels must be positive, got %d", sp.Mels)
	case sp.FMin < 0 || sp.FMax <= sp.FMin:
		return fmt.Errorf("spectrogram frequency range invalid: fmin=%v fmax=%v", sp.FMin, sp.FMax)
	case sp.FMax > float64(s.Audio.SampleRate)/2:
		return fmt.Errorf("spectrogram.fmax %v exceeds the Nyquist frequency %v", sp.FMax, float64(s.Audio.SampleRate)/2)
	case sp.TopDB <= 0:
		return fmt.Errorf("spectrogram.topdb must be positive, got %v", sp.TopDB)
	case sp.TrainingWidth <= 0 || sp.TrainingHeight <= 0:
		return fmt.Errorf("spectrogram training image size must be positive, got %dx%d", sp.TrainingWidth, sp.TrainingHeight)
	}
	return nil
}

func validateModelSettings(s *Settings) error {
	m := &s.Model
	if err := ValidateLabels(m.Labels); err != nil {
		return fmt.Errorf("model.labels: %w", err)
	}
	if strings.TrimSpace(m.LabelSetVersion) == "" {
		return fmt.Errorf("model.labelsetversion must not be empty")
	}
	if m.InputSize < 8 {
		return fmt.Errorf("model.inputsize must be at least 8, got %d", m.InputSize)
	}
	if m.Threads < 0 {
		return fmt.Errorf("model.threads must not be negative, got %d", m.Threads)
	}
	return nil
}

// ValidateLabels checks that labels are non-empty, unique and sorted. Sorted
// order is what the training folder walker assigns as class indices.
func ValidateLabels(labels []string) error {
	if len(labels) < 2 {
		return fmt.Errorf("at least two labels are required, got %d", len(labels))
	}
	for i, l := range labels {
		if strings.TrimSpace(l) == "" {
			return fmt.Errorf("label %d is empty", i)
		}
		if i > 0 && labels[i-1] == l {
			return fmt.Errorf("duplicate label %q", l)
		}
	}
	if !slices.IsSorted(labels) {
		return fmt.Errorf("labels must be in sorted order to match class indices: %v", labels)
	}
	return nil
}

func validateWebServerSettings(s *Settings) error {
	w := &s.WebServer
	if !w.Enabled {
		return nil
	}
	if w.Listen == "" {
		return fmt.Errorf("webserver.listen must not be empty")
	}
	if w.MaxUploadMB <= 0 {
		return fmt.Errorf("webserver.maxuploadmb must be positive, got %d", w.MaxUploadMB)
	}
	if w.RateLimit < 0 || w.RateBurst < 0 {
		return fmt.Errorf("webserver rate limit must not be negative")
	}
	return nil
}

func validateTrainingSettings(s *Settings) error {
	t := &s.Training
	switch {
	case t.Epochs <= 0:
		return fmt.Errorf("training.epochs must be positive, got %d", t.Epochs)
	case t.BatchSize <= 0:
		return fmt.Errorf("training.batchsize must be positive, got %d", t.BatchSize)
	case t.LearningRate <= 0:
		return fmt.Errorf("training.learningrate must be positive, got %v", t.LearningRate)
	case t.ValidationSplit < 0 || t.ValidationSplit >= 1:
		return fmt.Errorf("training.validationsplit must be in [0, 1), got %v", t.ValidationSplit)
	case t.NoiseFactor < 0:
		return fmt.Errorf("training.noisefactor must not be negative, got %v", t.NoiseFactor)
	case t.StretchRate <= 0:
		return fmt.Errorf("training.stretchrate must be positive, got %v", t.StretchRate)
	case t.PlateauFactor <= 0 || t.PlateauFactor >= 1:
		return fmt.Errorf("training.plateaufactor must be in (0, 1), got %v", t.PlateauFactor)
	case t.EarlyStopping < 0 || t.PlateauPatience < 0 || t.Workers < 0:
		return fmt.Errorf("training patience and worker counts must not be negative")
	}
	return nil
}

func validateMQTTSettings(s *Settings) error {
	m := &s.MQTT
	if !m.Enabled {
		return nil
	}
	u, err := url.Parse(m.Broker)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("mqtt.broker must be a URL like tcp://host:1883, got %q", m.Broker)
	}
	if m.Topic == "" {
		return fmt.Errorf("mqtt.topic must not be empty")
	}
	return nil
}

func validateJournalSettings(s *Settings) error {
	j := &s.Journal
	if !j.Enabled {
		return nil
	}
	if j.Driver != "sqlite" && j.Driver != "mysql" {
		return fmt.Errorf("journal.driver must be sqlite or mysql, got %q", j.Driver)
	}
	if j.DSN == "" {
		return fmt.Errorf("journal.dsn must not be empty")
	}
	return nil
}
