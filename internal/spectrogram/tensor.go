package spectrogram

import (
	"fmt"
	"image"
	_ "image/png"
	"os"

	"github.com/ycry/ycry-go/internal/classifier"
	"github.com/ycry/ycry-go/internal/errors"
)

// LoadPNGToTensor decodes the PNG at path, resizes it to width x height with
// nearest-neighbour sampling and returns its RGB values scaled to [0, 1] as
// an NHWC tensor with batch size 1.
func LoadPNGToTensor(path string, width, height int) (classifier.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return classifier.Tensor{}, tensorError(err, path)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return classifier.Tensor{}, tensorError(err, path)
	}
	if width <= 0 || height <= 0 {
		return classifier.Tensor{}, tensorError(fmt.Errorf("invalid tensor size %dx%d", width, height), path)
	}
	return ImageToTensor(img, width, height), nil
}

// ImageToTensor resizes img to width x height with nearest-neighbour sampling
// and scales its RGB values to [0, 1].
func ImageToTensor(img image.Image, width, height int) classifier.Tensor {
	t := classifier.NewTensor(height, width, 3)
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	for y := range height {
		sy := bounds.Min.Y + y*srcH/height
		for x := range width {
			sx := bounds.Min.X + x*srcW/width
			r32, g32, b32, _ := img.At(sx, sy).RGBA()
			base := t.Index(y, x, 0)
			// Convert 16-bit color to 8-bit before scaling.
			t.Data[base+0] = float32(r32>>8) / 255
			t.Data[base+1] = float32(g32>>8) / 255
			t.Data[base+2] = float32(b32>>8) / 255
		}
	}
	return t
}

func tensorError(err error, path string) error {
	return errors.New(err).
		Component("spectrogram").
		Category(errors.CategoryPrediction).
		Context("operation", "load_png_tensor").
		Context("path", path).
		Build()
}
