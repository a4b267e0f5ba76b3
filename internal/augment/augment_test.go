package augment

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ycry/ycry-go/internal/myaudio"
)

const rate = 22050

func chirp(seconds float64) myaudio.Signal {
	n := int(seconds * rate)
	s := make([]float32, n)
	for i := range s {
		t := float64(i) / rate
		s[i] = float32(0.4 * math.Sin(2*math.Pi*(300+200*t)*t))
	}
	return myaudio.Signal{Samples: s, SampleRate: rate}
}

func tone(freq, seconds float64) []float32 {
	s := make([]float32, int(seconds*rate))
	for i := range s {
		s[i] = float32(0.4 * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	return s
}

func rms(x []float32) float64 {
	sum := 0.0
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(x)))
}

func TestGeneratePreservesLengthAndOrder(t *testing.T) {
	t.Parallel()

	e, err := New(Config{}, 42)
	require.NoError(t, err)

	for _, seconds := range []float64{0.25, 1, 7} {
		sig := chirp(seconds)
		variants := e.Generate(sig, 3)
		require.Len(t, variants, 3)

		assert.Equal(t, TagOriginal, variants[0].Tag)
		assert.Equal(t, TagNoise, variants[1].Tag)
		assert.Equal(t, TagStretch, variants[2].Tag)
		for _, v := range variants {
			assert.Len(t, v.Signal.Samples, len(sig.Samples), "%s at %vs", v.Tag, seconds)
			assert.Equal(t, rate, v.Signal.SampleRate)
		}
		assert.Equal(t, sig.Samples, variants[0].Signal.Samples)
	}
}

func TestGenerateIsDeterministicPerIndex(t *testing.T) {
	t.Parallel()

	e, err := New(Config{}, 7)
	require.NoError(t, err)
	sig := chirp(0.5)

	a := e.Generate(sig, 11)
	b := e.Generate(sig, 11)
	c := e.Generate(sig, 12)

	assert.Equal(t, a[1].Signal.Samples, b[1].Signal.Samples)
	assert.NotEqual(t, a[1].Signal.Samples, c[1].Signal.Samples)
	assert.Equal(t, a[2].Signal.Samples, c[2].Signal.Samples, "stretch is not random")
}

func TestAddNoiseAmplitude(t *testing.T) {
	t.Parallel()

	silent := make([]float32, 50000)
	noisy := AddNoise(silent, 0.005, rand.New(rand.NewPCG(1, 2)))

	assert.InDelta(t, 0.005, rms(noisy), 0.0005)
	assert.Zero(t, silent[0], "input untouched")
}

func TestStretchLengthensSignal(t *testing.T) {
	t.Parallel()

	e, err := New(Config{StretchRate: 0.9}, 1)
	require.NoError(t, err)
	sig := chirp(2)

	stretched := e.Stretch(sig.Samples)
	assert.Len(t, stretched, int(math.Round(float64(len(sig.Samples))/0.9)))

	// A steady tone keeps its loudness. Sweeps smear across bins and lose
	// some energy, so only the stationary case is held to a bound.
	steady := tone(440, 2)
	out := e.Stretch(steady)
	mid := out[len(out)/4 : 3*len(out)/4]
	assert.InDelta(t, rms(steady), rms(mid), 0.05)
}

func TestTimeStretchUnitRateIsNearIdentity(t *testing.T) {
	t.Parallel()

	sig := chirp(1).Samples
	out := TimeStretch(sig, 1, 2048, 512)
	require.Len(t, out, len(sig))

	for i := 2048; i < len(sig)-2048; i += 101 {
		assert.InDelta(t, sig[i], out[i], 1e-3, "sample %d", i)
	}
}

func TestPhaseVocoderFrameCount(t *testing.T) {
	t.Parallel()

	frames := make([][]complex128, 10)
	for i := range frames {
		frames[i] = make([]complex128, 5)
	}
	assert.Len(t, PhaseVocoder(frames, 0.5, 4), 20)
	assert.Len(t, PhaseVocoder(frames, 2, 4), 5)
	assert.Nil(t, PhaseVocoder(nil, 1, 4))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{StretchRate: -1}, 0)
	require.Error(t, err)
	_, err = New(Config{FFTSize: 256, HopLength: 512}, 0)
	require.Error(t, err)
}
