package classifier

import "fmt"

// Tensor is a single image in NHWC order with batch size 1. Data holds
// Height*Width*Channels values, row by row with channels interleaved.
type Tensor struct {
	Height   int
	Width    int
	Channels int
	Data     []float32
}

// NewTensor allocates a zero tensor.
func NewTensor(height, width, channels int) Tensor {
	return Tensor{
		Height:   height,
		Width:    width,
		Channels: channels,
		Data:     make([]float32, height*width*channels),
	}
}

// Len returns the number of values the shape describes.
func (t Tensor) Len() int {
	return t.Height * t.Width * t.Channels
}

// Index returns the offset of (y, x, c) in Data.
func (t Tensor) Index(y, x, c int) int {
	return (y*t.Width+x)*t.Channels + c
}

// CheckShape verifies that t has the given shape and a matching buffer.
func (t Tensor) CheckShape(height, width, channels int) error {
	if t.Height != height || t.Width != width || t.Channels != channels {
		return fmt.Errorf("tensor shape %dx%dx%d, want %dx%dx%d",
			t.Height, t.Width, t.Channels, height, width, channels)
	}
	if len(t.Data) != t.Len() {
		return fmt.Errorf("tensor holds %d values, shape needs %d", len(t.Data), t.Len())
	}
	return nil
}

// ArgMax returns the index and value of the largest element. It returns -1
// for an empty slice.
func ArgMax(values []float32) (int, float32) {
	best := -1
	var bestValue float32
	for i, v := range values {
		if best < 0 || v > bestValue {
			best, bestValue = i, v
		}
	}
	return best, bestValue
}
