// Package myaudio decodes uploaded or on-disk audio into fixed length mono
// PCM signals at the pipeline sample rate.
package myaudio

import "time"

// Signal is a mono PCM signal with samples in [-1, 1].
type Signal struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the signal length as a time.Duration.
func (s Signal) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.Samples)) * time.Second / time.Duration(s.SampleRate)
}

// FixLength returns samples zero-padded or truncated at the tail to exactly n
// samples. The input slice is never modified.
func FixLength(samples []float32, n int) []float32 {
	out := make([]float32, n)
	copy(out, samples)
	return out
}

// SamplesFor returns the number of samples for seconds of audio at rate.
func SamplesFor(rate int, seconds float64) int {
	return int(float64(rate) * seconds)
}

// downmix averages interleaved frames into a mono signal.
func downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float32, frames)
	scale := 1 / float32(channels)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum * scale
	}
	return mono
}
