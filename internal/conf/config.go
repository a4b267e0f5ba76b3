// config.go: settings for the ycry cry analysis service and training tools.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/ycry/ycry-go/internal/errors"
	"github.com/ycry/ycry-go/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Preprocessing contract shared by the training pipeline and the inference service.
const (
	SampleRate                 = 22050 // Hz, every signal is converted to this rate
	InferenceDurationSeconds   = 5     // seconds of audio per analysis request
	TrainingDurationSeconds    = 7     // seconds of audio per training example
	ModelInputSize             = 64    // classifier input is ModelInputSize x ModelInputSize RGB
	DefaultLabelSetVersion     = "v1"
	DefaultTrainingImageWidth  = 1000
	DefaultTrainingImageHeight = 400
)

// DefaultLabels is the closed label set, in the alphabetical order used by the
// training folder walker and therefore by the model's output layer.
var DefaultLabels = []string{"Burping", "Discomfort", "Hunger", "Pain", "Tired"}

// AudioSettings contains settings for audio decoding.
type AudioSettings struct {
	SampleRate        int    // target sample rate in Hz
	InferenceDuration int    // seconds of audio analysed per request
	TrainingDuration  int    // seconds of audio per training example
	FfmpegPath        string // path to ffmpeg, used for containers other than WAV and FLAC
}

// SpectrogramSettings contains mel spectrogram and rendering settings.
type SpectrogramSettings struct {
	FFTSize        int     // STFT window length in samples
	HopLength      int     // STFT hop in samples
	Mels           int     // number of mel bands
	FMin           float64 // lowest filterbank frequency in Hz
	FMax           float64 // highest filterbank frequency in Hz
	TopDB          float64 // dynamic range kept below the peak, in dB
	TrainingWidth  int     // rendered training image width in pixels
	TrainingHeight int     // rendered training image height in pixels
}

// ModelSettings contains classifier settings.
type ModelSettings struct {
	Path            string   // path to a .ycnn or .tflite model artifact
	Labels          []string // ordered label set, must match the artifact
	LabelSetVersion string   // version tag of the label set
	Threads         int      // interpreter threads for the tflite backend, 0 = auto
	InputSize       int      // square image size expected by the classifier
}

// WebServerSettings contains settings for the HTTP API.
type WebServerSettings struct {
	Enabled     bool    // true to serve the HTTP API
	Listen      string  // address to listen on, e.g. ":8080"
	TempDir     string  // directory for per-request transient files, empty = os.TempDir()
	MaxUploadMB int     // maximum accepted upload size in megabytes
	RateLimit   float64 // sustained requests per second per client, 0 = unlimited
	RateBurst   int     // burst size for the rate limiter
	Debug       bool    // true to log every request
}

// ImageAugmentSettings contains the random affine jitter applied to training batches.
type ImageAugmentSettings struct {
	WidthShift float64 // fraction of the width
	Zoom       float64 // zoom range, 0.15 means [0.85, 1.15]
	Shear      float64 // shear angle range in degrees
}

// TrainingSettings contains settings for the offline training pipeline.
type TrainingSettings struct {
	DatasetDir      string  // raw dataset, one subdirectory per label
	ImageDir        string  // rendered training images, mirrors DatasetDir
	ModelOut        string  // output model artifact path
	Epochs          int     // maximum epochs
	BatchSize       int     // mini-batch size
	LearningRate    float64 // initial Adam learning rate
	ValidationSplit float64 // fraction of each class held out for validation
	Seed            uint64  // seed for shuffling, noise and dropout
	Workers         int     // preprocessing workers, 0 = number of CPUs
	NoiseFactor     float64 // gaussian noise amplitude for the noise variant
	StretchRate     float64 // time stretch rate, < 1 slows down
	EarlyStopping   int     // epochs without validation improvement before stopping
	PlateauPatience int     // epochs without improvement before reducing the learning rate
	PlateauFactor   float64 // learning rate multiplier on plateau
	MinLearningRate float64 // learning rate floor
	ImageAugment    ImageAugmentSettings
}

// MQTTSettings contains settings for publishing predictions to an MQTT broker.
type MQTTSettings struct {
	Enabled  bool   // true to publish predictions
	Broker   string // tcp://host:port
	Topic    string // topic for prediction messages
	ClientID string // client id, empty = generated
	Username string
	Password string
	Retain   bool
}

// JournalSettings contains settings for the optional prediction journal.
type JournalSettings struct {
	Enabled bool   // true to record every prediction
	Driver  string // sqlite or mysql
	DSN     string // sqlite file path or mysql DSN
}

// SentrySettings contains error telemetry settings.
type SentrySettings struct {
	Enabled     bool
	DSN         string
	Environment string
}

// Settings contains all configuration options for ycry.
type Settings struct {
	Debug bool // true to enable debug output

	Logging     logger.LoggingConfig
	Audio       AudioSettings
	Spectrogram SpectrogramSettings
	Model       ModelSettings
	WebServer   WebServerSettings
	Training    TrainingSettings
	MQTT        MQTTSettings
	Journal     JournalSettings
	Sentry      SentrySettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment, validates it and stores
// the result as the current settings instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// Sync re-reads viper into settings after command line flags were bound,
// so flags take precedence over the configuration file.
func Sync(settings *Settings) error {
	if err := viper.Unmarshal(settings); err != nil {
		return fmt.Errorf("error syncing settings: %w", err)
	}
	return ValidateSettings(settings)
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	setDefaultConfig()

	viper.SetEnvPrefix("YCRY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if viper.ConfigFileUsed() != "" {
		// an explicit file was set with --config
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("fatal error reading config file: %w", err)
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[len(configPaths)-1])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml, in order.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "get-home-directory").
			Build()
	}

	paths := []string{"."}
	if runtime.GOOS == "windows" {
		paths = append(paths, filepath.Join(homeDir, "AppData", "Roaming", "ycry"))
	} else {
		paths = append(paths, "/etc/ycry", filepath.Join(homeDir, ".config", "ycry"))
	}
	return paths, nil
}

// createDefaultConfig writes the embedded default config into dir and reads it back.
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	logger.Global().Module("conf").Info("Created default config file", logger.String("path", configPath))
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}
