package myaudio

import (
	"bytes"
	"context"
	"io"
	"os"
	"time"

	"github.com/ycry/ycry-go/internal/errors"
	"github.com/ycry/ycry-go/internal/logger"
)

// Container identifies how an input is decoded.
type Container string

const (
	ContainerWAV    Container = "wav"
	ContainerFLAC   Container = "flac"
	ContainerFFmpeg Container = "ffmpeg"
)

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	SampleRate int    // output sample rate
	FfmpegPath string // ffmpeg binary for containers without a native decoder
}

// Loader decodes audio into fixed length mono signals. It holds no per-call
// state and is safe for concurrent use.
type Loader struct {
	cfg LoaderConfig
	log logger.Logger
}

// NewLoader creates a Loader. A nil logger falls back to the global logger.
func NewLoader(cfg LoaderConfig, log logger.Logger) *Loader {
	if log == nil {
		log = GetLogger()
	}
	if cfg.FfmpegPath == "" {
		cfg.FfmpegPath = "ffmpeg"
	}
	return &Loader{cfg: cfg, log: log}
}

// SampleRate returns the output sample rate.
func (l *Loader) SampleRate() int {
	return l.cfg.SampleRate
}

// LoadFile decodes the file at path into exactly seconds of audio.
func (l *Loader) LoadFile(ctx context.Context, path string, seconds float64) (Signal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Signal{}, decodeError(err, "", path, 0)
	}
	return l.decode(ctx, data, path, seconds)
}

// Load decodes r into exactly seconds of audio.
func (l *Loader) Load(ctx context.Context, r io.Reader, seconds float64) (Signal, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Signal{}, decodeError(err, "", "", 0)
	}
	return l.decode(ctx, data, "", seconds)
}

func (l *Loader) decode(ctx context.Context, data []byte, path string, seconds float64) (Signal, error) {
	start := time.Now()
	size := int64(len(data))
	if size == 0 {
		return Signal{}, decodeError(ErrEmptyAudio, "", path, 0)
	}

	container := DetectContainer(data)

	var (
		samples    []float32
		sourceRate int
		err        error
	)
	switch container {
	case ContainerWAV:
		samples, sourceRate, err = decodeWAV(data)
		if errors.Is(err, errWAVEncoding) {
			l.log.Debug("WAV encoding handed to ffmpeg", logger.Error(err))
			samples, err = decodeWithFFmpeg(ctx, l.cfg.FfmpegPath, path, data, l.cfg.SampleRate)
			sourceRate = l.cfg.SampleRate
		}
	case ContainerFLAC:
		samples, sourceRate, err = decodeFLAC(data)
	default:
		samples, err = decodeWithFFmpeg(ctx, l.cfg.FfmpegPath, path, data, l.cfg.SampleRate)
		sourceRate = l.cfg.SampleRate
	}
	if err != nil {
		return Signal{}, decodeError(err, string(container), path, size)
	}
	if len(samples) == 0 {
		return Signal{}, decodeError(ErrEmptyAudio, string(container), path, size)
	}

	if sourceRate != l.cfg.SampleRate {
		samples, err = Resample(samples, sourceRate, l.cfg.SampleRate)
		if err != nil {
			return Signal{}, decodeErrorf(string(container), path, size, "error resampling audio from %d Hz: %v", sourceRate, err)
		}
	}

	decoded := len(samples)
	samples = FixLength(samples, SamplesFor(l.cfg.SampleRate, seconds))

	l.log.Debug("Audio decoded",
		logger.String("container", string(container)),
		logger.Int("source_rate", sourceRate),
		logger.Int("decoded_samples", decoded),
		logger.Int("samples", len(samples)),
		logger.Duration("elapsed", time.Since(start)))

	return Signal{Samples: samples, SampleRate: l.cfg.SampleRate}, nil
}

// DetectContainer sniffs the magic bytes of data.
func DetectContainer(data []byte) Container {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return ContainerWAV
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("fLaC")):
		return ContainerFLAC
	default:
		return ContainerFFmpeg
	}
}
