package augment

import (
	"math"
	"math/cmplx"

	"github.com/ycry/ycry-go/internal/spectrogram"
)

// TimeStretch changes the duration of x by 1/rate using a phase vocoder. A
// rate below 1 lengthens the signal.
func TimeStretch(x []float32, rate float64, fftSize, hop int) []float32 {
	if len(x) == 0 {
		return nil
	}

	in := make([]float64, len(x))
	for i, v := range x {
		in[i] = float64(v)
	}

	win := spectrogram.HannWindow(fftSize)
	frames := PhaseVocoder(spectrogram.STFT(in, hop, win), rate, hop)

	length := int(math.Round(float64(len(x)) / rate))
	y := spectrogram.ISTFT(frames, hop, win, length)

	out := make([]float32, len(y))
	for i, v := range y {
		out[i] = float32(v)
	}
	return out
}

// PhaseVocoder resamples STFT frames in time by rate while keeping the phase
// advance of every bin coherent. Magnitudes are interpolated linearly between
// neighbouring frames.
func PhaseVocoder(frames [][]complex128, rate float64, hop int) [][]complex128 {
	if len(frames) == 0 {
		return nil
	}
	bins := len(frames[0])

	// Expected phase advance per hop for each bin centre frequency.
	advance := make([]float64, bins)
	for k := range advance {
		if bins > 1 {
			advance[k] = math.Pi * float64(hop) * float64(k) / float64(bins-1)
		}
	}

	phase := make([]float64, bins)
	for k, c := range frames[0] {
		phase[k] = cmplx.Phase(c)
	}

	at := func(t, k int) complex128 {
		if t < len(frames) {
			return frames[t][k]
		}
		return 0
	}

	steps := int(math.Ceil(float64(len(frames)) / rate))
	out := make([][]complex128, 0, steps)
	for i := range steps {
		step := float64(i) * rate
		if step >= float64(len(frames)) {
			break
		}
		t := int(step)
		alpha := step - float64(t)

		frame := make([]complex128, bins)
		for k := range bins {
			c0, c1 := at(t, k), at(t+1, k)
			mag := (1-alpha)*cmplx.Abs(c0) + alpha*cmplx.Abs(c1)
			frame[k] = cmplx.Rect(mag, phase[k])

			dphase := cmplx.Phase(c1) - cmplx.Phase(c0) - advance[k]
			dphase -= 2 * math.Pi * math.Round(dphase/(2*math.Pi))
			phase[k] += advance[k] + dphase
		}
		out = append(out, frame)
	}
	return out
}
