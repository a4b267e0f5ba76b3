package spectrogram

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/ycry/ycry-go/internal/errors"
	"github.com/ycry/ycry-go/internal/logger"
)

const amin = 1e-10

// Spectrogram is a log-mel spectrogram in decibels relative to its loudest
// bin. DB is indexed [mel][frame] with mel 0 the lowest band.
type Spectrogram struct {
	DB     [][]float64
	Mels   int
	Frames int
	Min    float64
	Max    float64
}

// Extractor computes log-mel spectrograms. The window and filterbank are
// computed once; Compute holds no shared mutable state and is safe for
// concurrent use.
type Extractor struct {
	params Params
	window []float64
	bank   [][]float64
	log    logger.Logger
}

// NewExtractor validates p and precomputes the analysis window and mel
// filterbank.
func NewExtractor(p Params, log logger.Logger) (*Extractor, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = GetLogger()
	}
	return &Extractor{
		params: p,
		window: HannWindow(p.FFTSize),
		bank:   MelFilterBank(p),
		log:    log,
	}, nil
}

// Params returns the analysis parameters.
func (e *Extractor) Params() Params {
	return e.params
}

// MelPower returns the mel power spectrogram of samples as [mel][frame].
func (e *Extractor) MelPower(samples []float32) [][]float64 {
	x := make([]float64, len(samples))
	for i, s := range samples {
		x[i] = float64(s)
	}
	power := PowerSpectrogram(x, e.params.HopLength, e.window)

	mel := make([][]float64, e.params.Mels)
	for m, filter := range e.bank {
		row := make([]float64, len(power))
		for t, frame := range power {
			row[t] = floats.Dot(filter, frame)
		}
		mel[m] = row
	}
	return mel
}

// Compute returns the log-mel spectrogram of samples.
func (e *Extractor) Compute(samples []float32) (*Spectrogram, error) {
	if len(samples) == 0 {
		return nil, errors.Newf("cannot compute spectrogram of an empty signal").
			Component("spectrogram").
			Category(errors.CategorySpectrogramRender).
			Build()
	}

	start := time.Now()
	db := PowerToDB(e.MelPower(samples), e.params.TopDB)

	spec := &Spectrogram{
		DB:     db,
		Mels:   len(db),
		Frames: len(db[0]),
		Min:    math.Inf(1),
		Max:    math.Inf(-1),
	}
	for _, row := range db {
		spec.Min = min(spec.Min, floats.Min(row))
		spec.Max = max(spec.Max, floats.Max(row))
	}

	e.log.Trace("Spectrogram computed",
		logger.Int("mels", spec.Mels),
		logger.Int("frames", spec.Frames),
		logger.Float64("min_db", spec.Min),
		logger.Duration("elapsed", time.Since(start)))
	return spec, nil
}

// PowerToDB converts power to decibels relative to the maximum value and
// clips everything more than topDB below it. The input is not modified.
func PowerToDB(power [][]float64, topDB float64) [][]float64 {
	ref := amin
	for _, row := range power {
		if len(row) > 0 {
			ref = max(ref, floats.Max(row))
		}
	}
	refDB := 10 * math.Log10(ref)

	out := make([][]float64, len(power))
	peak := math.Inf(-1)
	for i, row := range power {
		dbRow := make([]float64, len(row))
		for j, v := range row {
			dbRow[j] = 10*math.Log10(max(amin, v)) - refDB
			peak = max(peak, dbRow[j])
		}
		out[i] = dbRow
	}

	floor := peak - topDB
	for _, row := range out {
		for j, v := range row {
			row[j] = max(v, floor)
		}
	}
	return out
}
