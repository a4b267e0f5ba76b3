package spectrogram

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	melLinearStep = 200.0 / 3
	melLogMinHz   = 1000.0
	melLogMin     = melLogMinHz / melLinearStep
)

var melLogStep = math.Log(6.4) / 27

// HzToMel converts a frequency to the Slaney mel scale.
func HzToMel(hz float64) float64 {
	if hz < melLogMinHz {
		return hz / melLinearStep
	}
	return melLogMin + math.Log(hz/melLogMinHz)/melLogStep
}

// MelToHz is the inverse of HzToMel.
func MelToHz(mel float64) float64 {
	if mel < melLogMin {
		return mel * melLinearStep
	}
	return melLogMinHz * math.Exp(melLogStep*(mel-melLogMin))
}

// MelFilterBank builds Mels triangular filters over the FFTSize/2+1 bins of a
// real FFT. Each filter is area normalised so bands of different width carry
// comparable energy.
func MelFilterBank(p Params) [][]float64 {
	bins := p.FFTSize/2 + 1

	fftFreqs := make([]float64, bins)
	floats.Span(fftFreqs, 0, float64(p.SampleRate)/2)

	melPoints := make([]float64, p.Mels+2)
	floats.Span(melPoints, HzToMel(p.FMin), HzToMel(p.FMax))
	edges := make([]float64, len(melPoints))
	for i, m := range melPoints {
		edges[i] = MelToHz(m)
	}

	bank := make([][]float64, p.Mels)
	for m := range bank {
		lo, center, hi := edges[m], edges[m+1], edges[m+2]
		row := make([]float64, bins)
		for k, f := range fftFreqs {
			lower := (f - lo) / (center - lo)
			upper := (hi - f) / (hi - center)
			row[k] = max(0, min(lower, upper))
		}
		floats.Scale(2/(hi-lo), row)
		bank[m] = row
	}
	return bank
}
