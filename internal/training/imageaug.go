package training

import (
	"math"
	"math/rand/v2"

	"github.com/ycry/ycry-go/internal/classifier"
)

// ImageAugmenter applies a random affine transform to training images:
// horizontal shift, independent zoom per axis and shear. Pixels that map
// outside the source take the value of the nearest edge pixel.
type ImageAugmenter struct {
	WidthShift float64 // fraction of the width, shift drawn from [-WidthShift, WidthShift]
	Zoom       float64 // zoom factors drawn from [1-Zoom, 1+Zoom]
	Shear      float64 // shear angle drawn from [-Shear, Shear] degrees
}

// Enabled reports whether the augmenter changes images at all.
func (a ImageAugmenter) Enabled() bool {
	return a.WidthShift > 0 || a.Zoom > 0 || a.Shear > 0
}

// Apply returns a transformed copy of in. The transform maps every output
// pixel back to a source pixel about the image center.
func (a ImageAugmenter) Apply(in classifier.Tensor, rng *rand.Rand) classifier.Tensor {
	if !a.Enabled() {
		return in
	}

	h, w, ch := in.Height, in.Width, in.Channels
	shift := uniform(rng, a.WidthShift) * float64(w)
	shear := uniform(rng, a.Shear) * math.Pi / 180
	zy, zx := 1.0, 1.0
	if a.Zoom > 0 {
		zy = 1 + uniform(rng, a.Zoom)
		zx = 1 + uniform(rng, a.Zoom)
	}

	// Source row = zy*dr - sin(shear)*zx*dc, source col = cos(shear)*zx*dc + shift.
	m00, m01 := zy, -math.Sin(shear)*zx
	m11 := math.Cos(shear) * zx
	cr, cc := float64(h)/2-0.5, float64(w)/2-0.5

	out := classifier.NewTensor(h, w, ch)
	for r := range h {
		dr := float64(r) - cr
		for c := range w {
			dc := float64(c) - cc
			sr := clampIndex(math.Round(m00*dr+m01*dc+cr), h)
			sc := clampIndex(math.Round(m11*dc+cc+shift), w)
			copy(out.Data[out.Index(r, c, 0):out.Index(r, c, 0)+ch], in.Data[in.Index(sr, sc, 0):in.Index(sr, sc, 0)+ch])
		}
	}
	return out
}

func uniform(rng *rand.Rand, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return (2*rng.Float64() - 1) * limit
}

func clampIndex(v float64, n int) int {
	switch {
	case v < 0:
		return 0
	case v > float64(n-1):
		return n - 1
	default:
		return int(v)
	}
}
