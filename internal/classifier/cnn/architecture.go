// Package cnn is a small native convolutional network for spectrogram
// classification, with its own training step and a msgpack artifact format.
//
// Each stage is Conv3x3 (same padding, ReLU, L2) -> BatchNorm -> MaxPool2.
// The stages are followed by Flatten -> Dense (ReLU, L2) -> Dropout ->
// Dense (softmax). Tensors are NHWC float32 throughout.
package cnn

import (
	"fmt"

	"github.com/ycry/ycry-go/internal/errors"
)

// Architecture describes the network topology and regularization.
type Architecture struct {
	InputHeight   int       `msgpack:"input_height" yaml:"input_height"`
	InputWidth    int       `msgpack:"input_width" yaml:"input_width"`
	InputChannels int       `msgpack:"input_channels" yaml:"input_channels"`
	Stages        []int     `msgpack:"stages" yaml:"stages"` // conv filters per stage
	Dense         int       `msgpack:"dense" yaml:"dense"`
	Dropout       float64   `msgpack:"dropout" yaml:"dropout"`
	L2            float64   `msgpack:"l2" yaml:"l2"`
	Classes       int       `msgpack:"classes" yaml:"classes"`
	BNMomentum    float64   `msgpack:"bn_momentum" yaml:"bn_momentum"`
	BNEpsilon     float64   `msgpack:"bn_epsilon" yaml:"bn_epsilon"`
	Adam          AdamParam `msgpack:"adam" yaml:"adam"`
}

// AdamParam holds the optimizer constants.
type AdamParam struct {
	Beta1   float64 `msgpack:"beta1" yaml:"beta1"`
	Beta2   float64 `msgpack:"beta2" yaml:"beta2"`
	Epsilon float64 `msgpack:"epsilon" yaml:"epsilon"`
}

// DefaultArchitecture returns the production network for 64x64 RGB
// spectrograms.
func DefaultArchitecture(classes int) Architecture {
	return Architecture{
		InputHeight:   64,
		InputWidth:    64,
		InputChannels: 3,
		Stages:        []int{32, 64, 128, 256},
		Dense:         256,
		Dropout:       0.5,
		L2:            1e-4,
		Classes:       classes,
		BNMomentum:    0.99,
		BNEpsilon:     1e-3,
		Adam:          AdamParam{Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-7},
	}
}

// Validate checks that the topology is buildable.
func (a Architecture) Validate() error {
	var problem string
	switch {
	case a.InputHeight <= 0 || a.InputWidth <= 0 || a.InputChannels <= 0:
		problem = fmt.Sprintf("invalid input shape %dx%dx%d", a.InputHeight, a.InputWidth, a.InputChannels)
	case len(a.Stages) == 0:
		problem = "at least one convolution stage is required"
	case a.InputHeight>>len(a.Stages) == 0 || a.InputWidth>>len(a.Stages) == 0:
		problem = fmt.Sprintf("%d pooling stages collapse a %dx%d input", len(a.Stages), a.InputHeight, a.InputWidth)
	case a.Dense <= 0:
		problem = "dense width must be positive"
	case a.Dropout < 0 || a.Dropout >= 1:
		problem = fmt.Sprintf("dropout %g outside [0, 1)", a.Dropout)
	case a.L2 < 0:
		problem = "l2 must not be negative"
	case a.Classes < 2:
		problem = fmt.Sprintf("need at least two classes, got %d", a.Classes)
	case a.BNMomentum <= 0 || a.BNMomentum >= 1 || a.BNEpsilon <= 0:
		problem = "invalid batch normalization constants"
	case a.Adam.Beta1 <= 0 || a.Adam.Beta1 >= 1 || a.Adam.Beta2 <= 0 || a.Adam.Beta2 >= 1 || a.Adam.Epsilon <= 0:
		problem = "invalid Adam constants"
	}
	for i, f := range a.Stages {
		if problem == "" && f <= 0 {
			problem = fmt.Sprintf("stage %d has %d filters", i, f)
		}
	}
	if problem == "" {
		return nil
	}
	return errors.Newf("invalid network architecture: %s", problem).
		Component("cnn").
		Category(errors.CategoryModelInit).
		Build()
}

// stageShape returns the input height, width and channels of stage i. For
// i == len(Stages) it is the shape fed to the flatten layer.
func (a Architecture) stageShape(i int) (h, w, c int) {
	h, w, c = a.InputHeight, a.InputWidth, a.InputChannels
	for s := range i {
		h, w, c = h/2, w/2, a.Stages[s]
	}
	return h, w, c
}

// flatSize is the length of the flattened feature vector.
func (a Architecture) flatSize() int {
	h, w, c := a.stageShape(len(a.Stages))
	return h * w * c
}
