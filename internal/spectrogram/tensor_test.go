package spectrogram

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ycry/ycry-go/internal/errors"
)

func TestLoadPNGToTensorResizesAndScales(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	spec, err := e.Compute(tone(500, 7))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "train.png")
	require.NoError(t, NewRenderer(quietLogger()).RenderToFile(spec, 1000, 400, path))

	tensor, err := LoadPNGToTensor(path, 64, 64)
	require.NoError(t, err)
	require.NoError(t, tensor.CheckShape(64, 64, 3))
	for _, v := range tensor.Data {
		require.GreaterOrEqual(t, v, float32(0))
		require.LessOrEqual(t, v, float32(1))
	}
}

func TestImageToTensorNearestNeighbour(t *testing.T) {
	t.Parallel()

	// Left half red, right half blue.
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for y := range 2 {
		for x := range 4 {
			c := color.RGBA{R: 255, A: 255}
			if x >= 2 {
				c = color.RGBA{B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}

	tensor := ImageToTensor(img, 2, 1)
	assert.Equal(t, []float32{1, 0, 0, 0, 0, 1}, tensor.Data)
}

func TestLoadPNGToTensorErrors(t *testing.T) {
	t.Parallel()

	_, err := LoadPNGToTensor(filepath.Join(t.TempDir(), "missing.png"), 64, 64)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryPrediction))
}
