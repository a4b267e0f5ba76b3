// Package augment derives additional training examples from a recording.
package augment

import (
	"math/rand/v2"

	"github.com/tphakala/simd/f32"

	"github.com/ycry/ycry-go/internal/errors"
	"github.com/ycry/ycry-go/internal/myaudio"
)

// Variant tags, in the order Generate returns them.
const (
	TagOriginal = "original"
	TagNoise    = "noise"
	TagStretch  = "stretch"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultNoiseFactor = 0.005
	DefaultStretchRate = 0.9
)

// Config configures an Engine.
type Config struct {
	NoiseFactor float64
	StretchRate float64
	FFTSize     int
	HopLength   int
}

// Variant is one augmented example of a recording. It keeps the label of the
// recording it was derived from.
type Variant struct {
	Tag    string
	Signal myaudio.Signal
}

// Engine produces the original, noise and time-stretch variants of a signal.
// It holds no mutable state; randomness is drawn from a source derived from
// the engine seed and the caller supplied index, so results do not depend on
// the order in which workers process recordings.
type Engine struct {
	cfg  Config
	seed uint64
}

// New creates an Engine.
func New(cfg Config, seed uint64) (*Engine, error) {
	if cfg.NoiseFactor == 0 {
		cfg.NoiseFactor = DefaultNoiseFactor
	}
	if cfg.StretchRate == 0 {
		cfg.StretchRate = DefaultStretchRate
	}
	if cfg.FFTSize == 0 {
		cfg.FFTSize = 2048
	}
	if cfg.HopLength == 0 {
		cfg.HopLength = 512
	}

	if cfg.NoiseFactor < 0 || cfg.StretchRate <= 0 || cfg.HopLength > cfg.FFTSize {
		return nil, errors.Newf("invalid augmentation config: noise=%g stretch=%g fft=%d hop=%d",
			cfg.NoiseFactor, cfg.StretchRate, cfg.FFTSize, cfg.HopLength).
			Component("augment").
			Category(errors.CategoryValidation).
			Build()
	}
	return &Engine{cfg: cfg, seed: seed}, nil
}

// Generate returns the original, noise and stretch variants of sig. index
// identifies the recording within its dataset and selects the random stream.
// Every variant has exactly len(sig.Samples) samples.
func (e *Engine) Generate(sig myaudio.Signal, index int) []Variant {
	rng := rand.New(rand.NewPCG(e.seed, uint64(index)))
	n := len(sig.Samples)

	return []Variant{
		{Tag: TagOriginal, Signal: myaudio.Signal{Samples: myaudio.FixLength(sig.Samples, n), SampleRate: sig.SampleRate}},
		{Tag: TagNoise, Signal: myaudio.Signal{Samples: AddNoise(sig.Samples, e.cfg.NoiseFactor, rng), SampleRate: sig.SampleRate}},
		{Tag: TagStretch, Signal: myaudio.Signal{Samples: myaudio.FixLength(e.Stretch(sig.Samples), n), SampleRate: sig.SampleRate}},
	}
}

// AddNoise returns x plus factor times standard normal noise drawn from rng.
func AddNoise(x []float32, factor float64, rng *rand.Rand) []float32 {
	noise := make([]float32, len(x))
	for i := range noise {
		noise[i] = float32(rng.NormFloat64())
	}
	out := make([]float32, len(x))
	copy(out, x)
	f32.AddScaled(out, float32(factor), noise)
	return out
}

// Stretch time-stretches x by the engine rate without changing pitch. The
// result has round(len(x)/rate) samples.
func (e *Engine) Stretch(x []float32) []float32 {
	return TimeStretch(x, e.cfg.StretchRate, e.cfg.FFTSize, e.cfg.HopLength)
}
