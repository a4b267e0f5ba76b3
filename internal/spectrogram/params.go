// Package spectrogram turns fixed length mono signals into log-mel
// spectrograms and rasterizes them as magma colored RGB images. The same
// extractor and renderer serve training preprocessing and online inference so
// that both paths produce identical features.
package spectrogram

import (
	"fmt"

	"github.com/ycry/ycry-go/internal/conf"
	"github.com/ycry/ycry-go/internal/errors"
)

// Params describes the short-time Fourier and mel analysis.
type Params struct {
	SampleRate int     // Hz
	FFTSize    int     // STFT window and FFT length in samples
	HopLength  int     // samples between successive frames
	Mels       int     // number of mel bands
	FMin       float64 // lowest mel filter edge in Hz
	FMax       float64 // highest mel filter edge in Hz
	TopDB      float64 // dynamic range kept below the loudest bin
}

// DefaultParams returns the analysis used for every model in this project.
func DefaultParams(sampleRate int) Params {
	return Params{
		SampleRate: sampleRate,
		FFTSize:    2048,
		HopLength:  512,
		Mels:       128,
		FMin:       0,
		FMax:       8000,
		TopDB:      80,
	}
}

// ParamsFromSettings builds Params from the configuration. Zero fields keep
// their defaults.
func ParamsFromSettings(s *conf.SpectrogramSettings, sampleRate int) Params {
	p := DefaultParams(sampleRate)
	if s.FFTSize > 0 {
		p.FFTSize = s.FFTSize
	}
	if s.HopLength > 0 {
		p.HopLength = s.HopLength
	}
	if s.Mels > 0 {
		p.Mels = s.Mels
	}
	if s.FMax > 0 {
		p.FMin, p.FMax = s.FMin, s.FMax
	}
	if s.TopDB > 0 {
		p.TopDB = s.TopDB
	}
	return p
}

// Validate checks that p describes a usable analysis.
func (p Params) Validate() error {
	var problem string
	switch {
	case p.SampleRate <= 0:
		problem = fmt.Sprintf("sample rate must be positive, got %d", p.SampleRate)
	case p.FFTSize < 2:
		problem = fmt.Sprintf("FFT size must be at least 2, got %d", p.FFTSize)
	case p.HopLength <= 0:
		problem = fmt.Sprintf("hop length must be positive, got %d", p.HopLength)
	case p.Mels <= 0:
		problem = fmt.Sprintf("mel band count must be positive, got %d", p.Mels)
	case p.FMin < 0 || p.FMax <= p.FMin:
		problem = fmt.Sprintf("invalid mel frequency range [%g, %g]", p.FMin, p.FMax)
	case p.FMax > float64(p.SampleRate)/2:
		problem = fmt.Sprintf("fmax %g exceeds Nyquist frequency %d", p.FMax, p.SampleRate/2)
	case p.TopDB <= 0:
		problem = fmt.Sprintf("top dB must be positive, got %g", p.TopDB)
	}
	if problem == "" {
		return nil
	}
	return errors.Newf("invalid spectrogram parameters: %s", problem).
		Component("spectrogram").
		Category(errors.CategoryValidation).
		Build()
}

// Frames returns the number of STFT frames produced for n samples.
func (p Params) Frames(n int) int {
	return 1 + n/p.HopLength
}
