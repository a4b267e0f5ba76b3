package cnn

import (
	"fmt"
	"math"

	"github.com/ycry/ycry-go/internal/classifier"
	"github.com/ycry/ycry-go/internal/errors"
)

// probability clip used by the cross-entropy loss
const lossEpsilon = 1e-7

// evalBatch bounds memory when evaluating large sets.
const evalBatch = 64

type stageTape struct {
	input  *activation // convolution input
	conv   *activation // ReLU output, batch norm input
	norm   *normCache
	pre    *activation // batch norm output, pooling input
	argmax []int32
}

// tape records one training forward pass.
type tape struct {
	stages  []stageTape
	flat    *activation
	hidden  []float32
	mask    []float32
	dropped []float32
}

// BatchResult is the loss and accuracy over one batch or evaluation set.
// Loss includes the L2 penalty.
type BatchResult struct {
	Loss     float64
	Accuracy float64
}

type adam struct {
	m, v *Weights
	t    int
}

// TrainBatch runs one optimization step on a batch. targets are class
// indices; sampleWeights scales each sample's loss and may be nil.
func (n *Network) TrainBatch(inputs []classifier.Tensor, targets []int, sampleWeights []float32, learningRate float64) (BatchResult, error) {
	x, err := n.pack(inputs)
	if err != nil {
		return BatchResult{}, trainingError(err)
	}
	if err := n.checkTargets(len(inputs), targets, sampleWeights); err != nil {
		return BatchResult{}, trainingError(err)
	}

	tp := &tape{}
	probs := n.forward(x, tp)
	batch := len(inputs)
	classes := n.arch.Classes

	var loss float64
	correct := 0
	dLogits := make([]float32, len(probs))
	for i := range batch {
		row := probs[i*classes : (i+1)*classes]
		w := float32(1)
		if sampleWeights != nil {
			w = sampleWeights[i]
		}
		p := min(max(float64(row[targets[i]]), lossEpsilon), 1-lossEpsilon)
		loss += float64(w) * -math.Log(p)
		if best, _ := classifier.ArgMax(row); best == targets[i] {
			correct++
		}

		d := dLogits[i*classes : (i+1)*classes]
		for j, pj := range row {
			d[j] = w * pj / float32(batch)
		}
		d[targets[i]] -= w / float32(batch)
	}
	loss /= float64(batch)

	grad := n.backward(tp, dLogits, batch)
	loss += n.applyL2(grad)
	n.applyAdam(grad, learningRate)

	return BatchResult{Loss: loss, Accuracy: float64(correct) / float64(batch)}, nil
}

// Evaluate returns the unweighted loss and accuracy over inputs in inference
// mode.
func (n *Network) Evaluate(inputs []classifier.Tensor, targets []int) (BatchResult, error) {
	if err := n.checkTargets(len(inputs), targets, nil); err != nil {
		return BatchResult{}, trainingError(err)
	}
	if len(inputs) == 0 {
		return BatchResult{}, trainingError(fmt.Errorf("empty evaluation set"))
	}

	var loss float64
	correct := 0
	for start := 0; start < len(inputs); start += evalBatch {
		end := min(start+evalBatch, len(inputs))
		probs, err := n.PredictBatch(inputs[start:end])
		if err != nil {
			return BatchResult{}, trainingError(err)
		}
		for i, row := range probs {
			target := targets[start+i]
			loss += -math.Log(min(max(float64(row[target]), lossEpsilon), 1-lossEpsilon))
			if best, _ := classifier.ArgMax(row); best == target {
				correct++
			}
		}
	}
	return BatchResult{
		Loss:     loss/float64(len(inputs)) + n.l2Penalty(),
		Accuracy: float64(correct) / float64(len(inputs)),
	}, nil
}

// Snapshot returns a copy of the current weights.
func (n *Network) Snapshot() any {
	return n.weights.Clone()
}

// Restore replaces the weights with a snapshot taken from a network of the
// same architecture.
func (n *Network) Restore(snapshot any) error {
	w, ok := snapshot.(*Weights)
	if !ok {
		return trainingError(fmt.Errorf("unexpected snapshot type %T", snapshot))
	}
	if err := w.checkShape(n.arch); err != nil {
		return trainingError(err)
	}
	n.weights = w.Clone()
	return nil
}

func (n *Network) checkTargets(batch int, targets []int, sampleWeights []float32) error {
	if len(targets) != batch {
		return fmt.Errorf("%d targets for %d inputs", len(targets), batch)
	}
	if sampleWeights != nil && len(sampleWeights) != batch {
		return fmt.Errorf("%d sample weights for %d inputs", len(sampleWeights), batch)
	}
	for i, t := range targets {
		if t < 0 || t >= n.arch.Classes {
			return fmt.Errorf("target %d of sample %d outside [0, %d)", t, i, n.arch.Classes)
		}
	}
	return nil
}

// backward propagates the logit gradient through the recorded pass.
func (n *Network) backward(tp *tape, dLogits []float32, batch int) *Weights {
	grad := n.weights.zeroLike()

	dHidden := denseBackward(tp.dropped, dLogits, batch, &n.weights.Output, &grad.Output)
	for i := range dHidden {
		if tp.mask != nil {
			dHidden[i] *= tp.mask[i]
		}
		if tp.hidden[i] <= 0 {
			dHidden[i] = 0
		}
	}

	dFlat := denseBackward(tp.flat.data, dHidden, batch, &n.weights.Hidden, &grad.Hidden)
	d := &activation{n: tp.flat.n, h: tp.flat.h, w: tp.flat.w, c: tp.flat.c, data: dFlat}

	for s := len(tp.stages) - 1; s >= 0; s-- {
		st := tp.stages[s]
		dPre := maxPoolBackward(d, st.argmax, st.pre)
		dConv := batchNormBackward(dPre, st.norm, &n.weights.Norm[s], &grad.Norm[s])
		d = convReLUBackward(st.input, st.conv, dConv, &n.weights.Conv[s], &grad.Conv[s], s > 0)
	}
	return grad
}

// regularized returns the kernels that carry an L2 penalty, paired with
// their gradients.
func (n *Network) regularized(grad *Weights) (params, grads [][]float32) {
	for i := range n.weights.Conv {
		params = append(params, n.weights.Conv[i].Kernel)
		if grad != nil {
			grads = append(grads, grad.Conv[i].Kernel)
		}
	}
	params = append(params, n.weights.Hidden.Kernel)
	if grad != nil {
		grads = append(grads, grad.Hidden.Kernel)
	}
	return params, grads
}

func (n *Network) l2Penalty() float64 {
	if n.arch.L2 == 0 {
		return 0
	}
	params, _ := n.regularized(nil)
	var sum float64
	for _, p := range params {
		for _, v := range p {
			sum += float64(v) * float64(v)
		}
	}
	return n.arch.L2 * sum
}

// applyL2 adds the penalty gradient and returns the penalty.
func (n *Network) applyL2(grad *Weights) float64 {
	if n.arch.L2 == 0 {
		return 0
	}
	params, grads := n.regularized(grad)
	coeff := float32(2 * n.arch.L2)
	for i, p := range params {
		g := grads[i]
		for j, v := range p {
			g[j] += coeff * v
		}
	}
	return n.l2Penalty()
}

func (n *Network) applyAdam(grad *Weights, learningRate float64) {
	if n.opt == nil {
		n.opt = &adam{m: n.weights.zeroLike(), v: n.weights.zeroLike()}
	}
	n.opt.t++

	cfg := n.arch.Adam
	t := float64(n.opt.t)
	lr := learningRate * math.Sqrt(1-math.Pow(cfg.Beta2, t)) / (1 - math.Pow(cfg.Beta1, t))
	b1, b2 := float32(cfg.Beta1), float32(cfg.Beta2)

	params, grads := n.weights.trainable(), grad.trainable()
	ms, vs := n.opt.m.trainable(), n.opt.v.trainable()
	for i, p := range params {
		g, m, v := grads[i], ms[i], vs[i]
		for j := range p {
			m[j] = b1*m[j] + (1-b1)*g[j]
			v[j] = b2*v[j] + (1-b2)*g[j]*g[j]
			p[j] -= float32(lr * float64(m[j]) / (math.Sqrt(float64(v[j])) + cfg.Epsilon))
		}
	}
}

func trainingError(err error) error {
	return errors.New(err).
		Component("cnn").
		Category(errors.CategoryTraining).
		Build()
}
