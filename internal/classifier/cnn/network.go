package cnn

import (
	"fmt"
	"math/rand/v2"

	"github.com/ycry/ycry-go/internal/classifier"
	"github.com/ycry/ycry-go/internal/errors"
)

// Network is the native classifier. Predict only reads the weights and is
// safe for concurrent use; TrainBatch mutates them and must not overlap with
// any other call.
type Network struct {
	arch    Architecture
	labels  classifier.LabelSet
	weights *Weights
	seed    uint64

	dropoutRng *rand.Rand
	opt        *adam
}

var _ classifier.Classifier = (*Network)(nil)

// New builds a freshly initialized network for labels. seed makes weight
// initialization and dropout reproducible.
func New(arch Architecture, labels classifier.LabelSet, seed uint64) (*Network, error) {
	if err := labels.Validate(); err != nil {
		return nil, err
	}
	if arch.Classes != labels.Len() {
		return nil, errors.Newf("architecture has %d classes but label set %s has %d", arch.Classes, labels, labels.Len()).
			Component("cnn").
			Category(errors.CategoryModelInit).
			Build()
	}
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	return &Network{
		arch:       arch,
		labels:     labels,
		weights:    initWeights(arch, rand.New(rand.NewPCG(seed, 0))),
		seed:       seed,
		dropoutRng: rand.New(rand.NewPCG(seed, 1)),
	}, nil
}

// Architecture returns the network topology.
func (n *Network) Architecture() Architecture {
	return n.arch
}

// Labels returns the label set the network classifies into.
func (n *Network) Labels() classifier.LabelSet {
	return n.labels
}

// InputShape returns the expected input height, width and channels.
func (n *Network) InputShape() (height, width, channels int) {
	return n.arch.InputHeight, n.arch.InputWidth, n.arch.InputChannels
}

// Close is a no-op; the network holds no external resources.
func (n *Network) Close() error {
	return nil
}

// Predict returns the class probabilities for a single image.
func (n *Network) Predict(input classifier.Tensor) ([]float32, error) {
	probs, err := n.PredictBatch([]classifier.Tensor{input})
	if err != nil {
		return nil, err
	}
	return probs[0], nil
}

// PredictBatch returns class probabilities for every input.
func (n *Network) PredictBatch(inputs []classifier.Tensor) ([][]float32, error) {
	x, err := n.pack(inputs)
	if err != nil {
		return nil, classifier.PredictionError(err)
	}
	probs := n.forward(x, nil)

	out := make([][]float32, len(inputs))
	for i := range out {
		out[i] = probs[i*n.arch.Classes : (i+1)*n.arch.Classes]
	}
	return out, nil
}

// pack copies inputs into one batch activation after checking their shape.
func (n *Network) pack(inputs []classifier.Tensor) (*activation, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	h, w, c := n.InputShape()
	x := newActivation(len(inputs), h, w, c)
	for i, t := range inputs {
		if err := t.CheckShape(h, w, c); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		copy(x.image(i), t.Data)
	}
	return x, nil
}

// forward runs the network. With a nil tape it runs in inference mode:
// moving statistics, no dropout, no mutation. With a tape it runs in
// training mode and records everything backward needs.
func (n *Network) forward(x *activation, tp *tape) []float32 {
	training := tp != nil
	a := x
	for s := range n.arch.Stages {
		conv := convReLU(a, &n.weights.Conv[s])
		norm, cache := batchNorm(conv, &n.weights.Norm[s], n.arch.BNMomentum, n.arch.BNEpsilon, training)
		pooled, argmax := maxPool(norm)
		if training {
			tp.stages = append(tp.stages, stageTape{input: a, conv: conv, norm: cache, pre: norm, argmax: argmax})
		}
		a = pooled
	}

	batch := x.n
	flat := a.data
	hidden := dense(flat, batch, &n.weights.Hidden, true)

	dropped := hidden
	if training {
		tp.flat = a
		tp.hidden = hidden
		if n.arch.Dropout > 0 {
			keep := 1 - n.arch.Dropout
			scale := float32(1 / keep)
			tp.mask = make([]float32, len(hidden))
			dropped = make([]float32, len(hidden))
			for i, v := range hidden {
				if n.dropoutRng.Float64() < keep {
					tp.mask[i] = scale
					dropped[i] = v * scale
				}
			}
		}
		tp.dropped = dropped
	}

	logits := dense(dropped, batch, &n.weights.Output, false)
	softmax(logits, batch, n.arch.Classes)
	return logits
}
