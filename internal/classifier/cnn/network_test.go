package cnn

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ycry/ycry-go/internal/classifier"
	"github.com/ycry/ycry-go/internal/errors"
)

var testLabels = classifier.LabelSet{Version: "test", Labels: []string{"Hunger", "Pain", "Tired"}}

func tinyArch(classes int) Architecture {
	a := DefaultArchitecture(classes)
	a.InputHeight, a.InputWidth = 8, 8
	a.Stages = []int{4, 8}
	a.Dense = 8
	a.Dropout = 0
	a.BNMomentum = 0.5
	return a
}

func newTiny(t *testing.T, seed uint64) *Network {
	t.Helper()
	n, err := New(tinyArch(testLabels.Len()), testLabels, seed)
	require.NoError(t, err)
	return n
}

// bandImage lights up one horizontal band per class.
func bandImage(class int, jitter float32) classifier.Tensor {
	t := classifier.NewTensor(8, 8, 3)
	rows := 8 / testLabels.Len()
	for y := range 8 {
		for x := range 8 {
			v := jitter * float32((x+y)%3) / 3
			if y/rows == class {
				v += 0.9
			}
			for c := range 3 {
				t.Data[t.Index(y, x, c)] = v
			}
		}
	}
	return t
}

func toyDataset() ([]classifier.Tensor, []int) {
	var xs []classifier.Tensor
	var ys []int
	for i := range 12 {
		class := i % testLabels.Len()
		xs = append(xs, bandImage(class, float32(i%4)*0.05))
		ys = append(ys, class)
	}
	return xs, ys
}

func TestPredictReturnsDistribution(t *testing.T) {
	t.Parallel()

	n := newTiny(t, 1)
	probs, err := n.Predict(bandImage(1, 0))
	require.NoError(t, err)
	require.Len(t, probs, testLabels.Len())
	require.NoError(t, classifier.CheckDistribution(probs, testLabels))
}

func TestPredictRejectsWrongShape(t *testing.T) {
	t.Parallel()

	n := newTiny(t, 1)
	_, err := n.Predict(classifier.NewTensor(64, 64, 3))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryPrediction))

	bad := classifier.Tensor{Height: 8, Width: 8, Channels: 3, Data: make([]float32, 10)}
	_, err = n.Predict(bad)
	require.Error(t, err)
}

func TestPredictIsConcurrencySafe(t *testing.T) {
	t.Parallel()

	n := newTiny(t, 2)
	input := bandImage(2, 0.1)
	want, err := n.Predict(input)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]float32, 16)
	for i := range results {
		wg.Go(func() {
			results[i], _ = n.Predict(input)
		})
	}
	wg.Wait()
	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestNewValidatesArchitecture(t *testing.T) {
	t.Parallel()

	_, err := New(tinyArch(2), testLabels, 0)
	require.Error(t, err, "class count must match label set")

	arch := tinyArch(3)
	arch.Stages = []int{4, 4, 4, 4}
	_, err = New(arch, testLabels, 0)
	require.Error(t, err, "8x8 cannot be pooled four times")
	assert.True(t, errors.IsCategory(err, errors.CategoryModelInit))

	_, err = New(tinyArch(3), classifier.LabelSet{Version: "x", Labels: []string{"b", "a", "c"}}, 0)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLabelLoad))
}

func TestDefaultArchitectureShapes(t *testing.T) {
	t.Parallel()

	a := DefaultArchitecture(5)
	require.NoError(t, a.Validate())
	assert.Equal(t, 4*4*256, a.flatSize())
	h, w, c := a.stageShape(2)
	assert.Equal(t, [3]int{16, 16, 64}, [3]int{h, w, c})
}

func TestTrainingReducesLoss(t *testing.T) {
	t.Parallel()

	n := newTiny(t, 3)
	xs, ys := toyDataset()

	before, err := n.Evaluate(xs, ys)
	require.NoError(t, err)

	var first, last BatchResult
	for step := range 60 {
		res, err := n.TrainBatch(xs, ys, nil, 0.01)
		require.NoError(t, err)
		require.False(t, math.IsNaN(res.Loss))
		if step == 0 {
			first = res
		}
		last = res
	}

	after, err := n.Evaluate(xs, ys)
	require.NoError(t, err)

	assert.Less(t, last.Loss, first.Loss)
	assert.Less(t, after.Loss, before.Loss)
	assert.GreaterOrEqual(t, after.Accuracy, 0.9)
}

func TestSampleWeightsScaleLoss(t *testing.T) {
	t.Parallel()

	xs, ys := toyDataset()

	a := newTiny(t, 4)
	a.arch.L2 = 0
	b := newTiny(t, 4)
	b.arch.L2 = 0

	unit, err := a.TrainBatch(xs, ys, nil, 0)
	require.NoError(t, err)

	weights := make([]float32, len(xs))
	for i := range weights {
		weights[i] = 2
	}
	doubled, err := b.TrainBatch(xs, ys, weights, 0)
	require.NoError(t, err)

	assert.InDelta(t, 2*unit.Loss, doubled.Loss, 1e-5)
}

func TestTrainBatchValidatesTargets(t *testing.T) {
	t.Parallel()

	n := newTiny(t, 5)
	xs, ys := toyDataset()

	_, err := n.TrainBatch(xs, ys[:3], nil, 0.01)
	require.Error(t, err)

	bad := append([]int(nil), ys...)
	bad[0] = 7
	_, err = n.TrainBatch(xs, bad, nil, 0.01)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryTraining))
}

func TestGradientMatchesFiniteDifference(t *testing.T) {
	t.Parallel()

	n := newTiny(t, 6)
	n.arch.L2 = 0
	xs, ys := toyDataset()
	x, err := n.pack(xs)
	require.NoError(t, err)

	lossAt := func() float64 {
		probs := n.forward(x, &tape{})
		var loss float64
		for i, y := range ys {
			loss -= math.Log(float64(probs[i*3+y]))
		}
		return loss / float64(len(ys))
	}

	tp := &tape{}
	probs := n.forward(x, tp)
	dLogits := make([]float32, len(probs))
	for i, y := range ys {
		for j := range 3 {
			dLogits[i*3+j] = probs[i*3+j] / float32(len(ys))
		}
		dLogits[i*3+y] -= 1 / float32(len(ys))
	}
	grad := n.backward(tp, dLogits, len(ys))

	numericAt := func(param []float32, idx int, eps float32) float64 {
		orig := param[idx]
		hi, lo := orig+eps, orig-eps
		param[idx] = hi
		plus := lossAt()
		param[idx] = lo
		minus := lossAt()
		param[idx] = orig
		return (plus - minus) / float64(hi-lo)
	}

	// Indices where a ReLU or pooling switch falls inside the step give
	// estimates that change with the step size; those are skipped.
	check := func(name string, param, g []float32) {
		checked := 0
		for idx := range param {
			coarse := numericAt(param, idx, 2e-3)
			fine := numericAt(param, idx, 5e-4)
			if math.Abs(coarse-fine) > 2e-3+0.05*math.Abs(fine) {
				t.Logf("%s[%d]: non-smooth at step size, coarse=%.5f fine=%.5f", name, idx, coarse, fine)
				continue
			}
			assert.InDelta(t, fine, float64(g[idx]), 3e-3+0.1*math.Abs(fine), "%s[%d]", name, idx)
			if checked++; checked == 3 {
				break
			}
		}
		assert.Positive(t, checked, "%s has no smooth index to check", name)
	}

	check("output.bias", n.weights.Output.Bias, grad.Output.Bias)
	check("output.kernel", n.weights.Output.Kernel, grad.Output.Kernel)
	check("hidden.bias", n.weights.Hidden.Bias, grad.Hidden.Bias)
	check("norm1.beta", n.weights.Norm[1].Beta, grad.Norm[1].Beta)
	check("norm0.gamma", n.weights.Norm[0].Gamma, grad.Norm[0].Gamma)
}

func TestSnapshotRestore(t *testing.T) {
	t.Parallel()

	n := newTiny(t, 7)
	xs, ys := toyDataset()
	input := bandImage(0, 0)

	snap := n.Snapshot()
	want, err := n.Predict(input)
	require.NoError(t, err)

	for range 5 {
		_, err := n.TrainBatch(xs, ys, nil, 0.05)
		require.NoError(t, err)
	}
	changed, err := n.Predict(input)
	require.NoError(t, err)
	require.NotEqual(t, want, changed)

	require.NoError(t, n.Restore(snap))
	got, err := n.Predict(input)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.Error(t, n.Restore("not a snapshot"))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	n := newTiny(t, 8)
	xs, ys := toyDataset()
	_, err := n.TrainBatch(xs, ys, nil, 0.01)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "models", "tiny"+Extension)
	require.NoError(t, n.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.Labels().Equal(testLabels))
	assert.Equal(t, n.Architecture(), loaded.Architecture())

	for _, x := range xs[:3] {
		want, err := n.Predict(x)
		require.NoError(t, err)
		got, err := loaded.Predict(x)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestOpenChecksLabelSet(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model"+Extension)
	require.NoError(t, newTiny(t, 9).Save(path))

	c, err := classifier.Open(path, testLabels, classifier.OpenOptions{})
	require.NoError(t, err)
	h, w, ch := c.InputShape()
	assert.Equal(t, [3]int{8, 8, 3}, [3]int{h, w, ch})
	require.NoError(t, c.Close())

	other := classifier.LabelSet{Version: "v2", Labels: testLabels.Labels}
	_, err = classifier.Open(path, other, classifier.OpenOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLabelLoad))
}

func TestLoadRejectsCorruptArtifact(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken"+Extension)
	require.NoError(t, os.WriteFile(path, []byte("not msgpack at all"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad))

	_, err = Load(filepath.Join(t.TempDir(), "missing"+Extension))
	require.Error(t, err)
}
