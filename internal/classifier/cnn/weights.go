package cnn

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// ConvWeights is a 3x3 convolution. Kernel is laid out [ky][kx][in][out].
type ConvWeights struct {
	In     int       `msgpack:"in"`
	Out    int       `msgpack:"out"`
	Kernel []float32 `msgpack:"kernel"`
	Bias   []float32 `msgpack:"bias"`
}

// NormWeights is a batch normalization layer.
type NormWeights struct {
	Gamma      []float32 `msgpack:"gamma"`
	Beta       []float32 `msgpack:"beta"`
	MovingMean []float32 `msgpack:"moving_mean"`
	MovingVar  []float32 `msgpack:"moving_var"`
}

// DenseWeights is a fully connected layer. Kernel is laid out [in][out].
type DenseWeights struct {
	In     int       `msgpack:"in"`
	Out    int       `msgpack:"out"`
	Kernel []float32 `msgpack:"kernel"`
	Bias   []float32 `msgpack:"bias"`
}

// Weights holds every parameter of a network, including batch normalization
// moving statistics.
type Weights struct {
	Conv   []ConvWeights `msgpack:"conv"`
	Norm   []NormWeights `msgpack:"norm"`
	Hidden DenseWeights  `msgpack:"hidden"`
	Output DenseWeights  `msgpack:"output"`
}

// initWeights creates Glorot-uniform kernels, zero biases, unit gamma and
// unit moving variance.
func initWeights(a Architecture, rng *rand.Rand) *Weights {
	w := &Weights{}
	_, _, in := a.stageShape(0)
	for _, out := range a.Stages {
		w.Conv = append(w.Conv, ConvWeights{
			In:     in,
			Out:    out,
			Kernel: glorot(rng, 9*in*out, 9*in, 9*out),
			Bias:   make([]float32, out),
		})
		w.Norm = append(w.Norm, NormWeights{
			Gamma:      filled(out, 1),
			Beta:       make([]float32, out),
			MovingMean: make([]float32, out),
			MovingVar:  filled(out, 1),
		})
		in = out
	}

	flat := a.flatSize()
	w.Hidden = DenseWeights{In: flat, Out: a.Dense, Kernel: glorot(rng, flat*a.Dense, flat, a.Dense), Bias: make([]float32, a.Dense)}
	w.Output = DenseWeights{In: a.Dense, Out: a.Classes, Kernel: glorot(rng, a.Dense*a.Classes, a.Dense, a.Classes), Bias: make([]float32, a.Classes)}
	return w
}

func glorot(rng *rand.Rand, n, fanIn, fanOut int) []float32 {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32((rng.Float64()*2 - 1) * limit)
	}
	return out
}

func filled(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// trainable returns the optimized parameter slices in a fixed order.
// Moving statistics are excluded.
func (w *Weights) trainable() [][]float32 {
	var ps [][]float32
	for i := range w.Conv {
		ps = append(ps, w.Conv[i].Kernel, w.Conv[i].Bias)
	}
	for i := range w.Norm {
		ps = append(ps, w.Norm[i].Gamma, w.Norm[i].Beta)
	}
	return append(ps, w.Hidden.Kernel, w.Hidden.Bias, w.Output.Kernel, w.Output.Bias)
}

// all returns every parameter slice, moving statistics included.
func (w *Weights) all() [][]float32 {
	ps := w.trainable()
	for i := range w.Norm {
		ps = append(ps, w.Norm[i].MovingMean, w.Norm[i].MovingVar)
	}
	return ps
}

// Clone returns a deep copy.
func (w *Weights) Clone() *Weights {
	c := w.zeroLike()
	src, dst := w.all(), c.all()
	for i := range src {
		copy(dst[i], src[i])
	}
	return c
}

// zeroLike returns weights of the same shape with every value zero.
func (w *Weights) zeroLike() *Weights {
	z := &Weights{
		Hidden: DenseWeights{In: w.Hidden.In, Out: w.Hidden.Out, Kernel: make([]float32, len(w.Hidden.Kernel)), Bias: make([]float32, len(w.Hidden.Bias))},
		Output: DenseWeights{In: w.Output.In, Out: w.Output.Out, Kernel: make([]float32, len(w.Output.Kernel)), Bias: make([]float32, len(w.Output.Bias))},
	}
	for _, c := range w.Conv {
		z.Conv = append(z.Conv, ConvWeights{In: c.In, Out: c.Out, Kernel: make([]float32, len(c.Kernel)), Bias: make([]float32, len(c.Bias))})
	}
	for _, n := range w.Norm {
		z.Norm = append(z.Norm, NormWeights{
			Gamma:      make([]float32, len(n.Gamma)),
			Beta:       make([]float32, len(n.Beta)),
			MovingMean: make([]float32, len(n.MovingMean)),
			MovingVar:  make([]float32, len(n.MovingVar)),
		})
	}
	return z
}

// checkShape verifies that w matches the architecture.
func (w *Weights) checkShape(a Architecture) error {
	want := initWeights(a, rand.New(rand.NewPCG(0, 0))).all()
	got := w.all()
	if len(got) != len(want) {
		return fmt.Errorf("weights hold %d tensors, architecture needs %d", len(got), len(want))
	}
	for i := range want {
		if len(got[i]) != len(want[i]) {
			return fmt.Errorf("weight tensor %d has %d values, architecture needs %d", i, len(got[i]), len(want[i]))
		}
	}
	return nil
}
