package classifier

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ycry/ycry-go/internal/errors"
)

var cryLabels = LabelSet{Version: "v1", Labels: []string{"Burping", "Discomfort", "Hunger", "Pain", "Tired"}}

type fakeModel struct {
	labels LabelSet
	closed bool
}

func (f *fakeModel) Predict(Tensor) ([]float32, error) { return []float32{0.5, 0.5}, nil }
func (f *fakeModel) Labels() LabelSet                  { return f.labels }
func (f *fakeModel) InputShape() (int, int, int)       { return 64, 64, 3 }
func (f *fakeModel) Close() error                      { f.closed = true; return nil }

var lastFake *fakeModel

func init() {
	RegisterBackend(".fake", func(path string, labels LabelSet, _ OpenOptions) (Classifier, error) {
		lastFake = &fakeModel{labels: LabelSet{Version: filepath.Base(path), Labels: labels.Labels}}
		return lastFake, nil
	})
}

func TestLabelSetValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, cryLabels.Validate())

	tests := []struct {
		name string
		set  LabelSet
	}{
		{"no version", LabelSet{Labels: []string{"a", "b"}}},
		{"single label", LabelSet{Version: "v1", Labels: []string{"a"}}},
		{"unsorted", LabelSet{Version: "v1", Labels: []string{"b", "a"}}},
		{"duplicate", LabelSet{Version: "v1", Labels: []string{"a", "a", "b"}}},
		{"blank", LabelSet{Version: "v1", Labels: []string{" ", "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryLabelLoad))
		})
	}
}

func TestLabelSetEqualAndIndex(t *testing.T) {
	t.Parallel()

	same := LabelSet{Version: "v1", Labels: append([]string(nil), cryLabels.Labels...)}
	assert.True(t, cryLabels.Equal(same))
	assert.False(t, cryLabels.Equal(LabelSet{Version: "v2", Labels: cryLabels.Labels}))
	assert.False(t, cryLabels.Equal(LabelSet{Version: "v1", Labels: cryLabels.Labels[:4]}))

	assert.Equal(t, 2, cryLabels.Index("Hunger"))
	assert.Equal(t, -1, cryLabels.Index("Colic"))
	assert.Equal(t, "v1:[Burping Discomfort Hunger Pain Tired]", cryLabels.String())
}

func TestArgMax(t *testing.T) {
	t.Parallel()

	i, v := ArgMax([]float32{0.1, 0.7, 0.2})
	assert.Equal(t, 1, i)
	assert.InDelta(t, 0.7, v, 1e-7)

	i, _ = ArgMax([]float32{0.4, 0.4})
	assert.Equal(t, 0, i, "ties resolve to the first index")

	i, _ = ArgMax(nil)
	assert.Equal(t, -1, i)
}

func TestCheckDistribution(t *testing.T) {
	t.Parallel()

	require.NoError(t, CheckDistribution([]float32{0.1, 0.2, 0.3, 0.25, 0.15}, cryLabels))

	for name, probs := range map[string][]float32{
		"wrong cardinality": {0.5, 0.5},
		"negative":          {-0.1, 0.3, 0.3, 0.3, 0.2},
		"not normalised":    {0.5, 0.5, 0.5, 0.5, 0.5},
	} {
		err := CheckDistribution(probs, cryLabels)
		require.Error(t, err, name)
		assert.True(t, errors.IsCategory(err, errors.CategoryPrediction), name)
	}
}

func TestTensorShape(t *testing.T) {
	t.Parallel()

	tensor := NewTensor(2, 3, 3)
	assert.Equal(t, 18, tensor.Len())
	assert.Equal(t, (1*3+2)*3+1, tensor.Index(1, 2, 1))
	require.NoError(t, tensor.CheckShape(2, 3, 3))
	require.Error(t, tensor.CheckShape(3, 2, 3))
}

func TestOpenSelectsBackendByExtension(t *testing.T) {
	t.Parallel()

	_, err := Open("model.unknown", cryLabels, OpenOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad))
	assert.Contains(t, Backends(), ".fake")
}

func TestOpenRejectsLabelMismatch(t *testing.T) {
	// Serial: inspects the package level fake.
	c, err := Open("/models/v1.FAKE", LabelSet{Version: "v1.FAKE", Labels: cryLabels.Labels}, OpenOptions{})
	require.NoError(t, err)
	assert.False(t, lastFake.closed)
	require.NoError(t, c.Close())

	_, err = Open("/models/v2.fake", cryLabels, OpenOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLabelLoad))
	assert.True(t, lastFake.closed, "mismatched model must be closed")
}

func TestRegisterBackendTwicePanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		RegisterBackend(".FAKE", func(string, LabelSet, OpenOptions) (Classifier, error) { return nil, nil })
	})
}
