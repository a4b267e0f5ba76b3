package spectrogram

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// HannWindow returns a periodic Hann window of length n, the form used for
// spectral analysis (the symmetric window of length n+1 without its last
// point).
func HannWindow(n int) []float64 {
	return window.Hann(n + 1)[:n]
}

// STFT computes the centered short-time Fourier transform of x. The signal is
// zero padded by len(win)/2 on both sides so frame t is centered on sample
// t*hop. Each returned frame holds the len(win)/2+1 non-negative frequency
// bins.
func STFT(x []float64, hop int, win []float64) [][]complex128 {
	n := len(win)
	pad := n / 2
	padded := make([]float64, len(x)+2*pad)
	copy(padded[pad:], x)

	frames := 1 + (len(padded)-n)/hop
	bins := n/2 + 1
	out := make([][]complex128, frames)
	buf := make([]float64, n)
	for t := range out {
		seg := padded[t*hop : t*hop+n]
		for i := range buf {
			buf[i] = seg[i] * win[i]
		}
		spec := fft.FFTReal(buf)
		out[t] = spec[:bins:bins]
	}
	return out
}

// ISTFT inverts STFT by weighted overlap-add and trims the centering pad.
// length is the number of output samples; a value <= 0 keeps every
// reconstructed sample.
func ISTFT(frames [][]complex128, hop int, win []float64, length int) []float64 {
	n := len(win)
	pad := n / 2
	total := n + hop*(len(frames)-1)
	if len(frames) == 0 {
		total = 0
	}
	out := make([]float64, total)
	norm := make([]float64, total)

	full := make([]complex128, n)
	for t, half := range frames {
		// Rebuild the Hermitian spectrum so the inverse is real.
		copy(full, half)
		for k := 1; k < n-len(half)+1; k++ {
			full[n-k] = cmplx.Conj(half[k])
		}
		frame := fft.IFFT(full)
		offset := t * hop
		for i := range n {
			out[offset+i] += real(frame[i]) * win[i]
			norm[offset+i] += win[i] * win[i]
		}
	}
	for i := range out {
		if norm[i] > 1e-10 {
			out[i] /= norm[i]
		}
	}

	if len(out) > 2*pad {
		out = out[pad : len(out)-pad]
	} else {
		out = out[:0]
	}
	if length > 0 {
		fixed := make([]float64, length)
		copy(fixed, out)
		return fixed
	}
	return out
}

// PowerSpectrogram returns |STFT(x)|^2 as [frame][bin].
func PowerSpectrogram(x []float64, hop int, win []float64) [][]float64 {
	frames := STFT(x, hop, win)
	power := make([][]float64, len(frames))
	for t, frame := range frames {
		row := make([]float64, len(frame))
		for k, c := range frame {
			re, im := real(c), imag(c)
			row[k] = re*re + im*im
		}
		power[t] = row
	}
	return power
}
