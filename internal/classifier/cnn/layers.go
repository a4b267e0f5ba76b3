package cnn

import (
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// activation is a batch of NHWC feature maps.
type activation struct {
	n, h, w, c int
	data       []float32
}

func newActivation(n, h, w, c int) *activation {
	return &activation{n: n, h: h, w: w, c: c, data: make([]float32, n*h*w*c)}
}

// image returns the slice holding sample i.
func (a *activation) image(i int) []float32 {
	size := a.h * a.w * a.c
	return a.data[i*size : (i+1)*size]
}

func matrix(rows, cols int, data []float32) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}

// im2col expands a single h x w x c image into a (h*w) x (9*c) patch matrix
// for a 3x3 kernel with same padding.
func im2col(img []float32, h, w, c int, cols []float32) {
	row := 9 * c
	for y := range h {
		for x := range w {
			dst := cols[(y*w+x)*row : (y*w+x+1)*row]
			for ky := range 3 {
				sy := y + ky - 1
				for kx := range 3 {
					sx := x + kx - 1
					seg := dst[(ky*3+kx)*c : (ky*3+kx+1)*c]
					if sy < 0 || sy >= h || sx < 0 || sx >= w {
						clear(seg)
						continue
					}
					copy(seg, img[(sy*w+sx)*c:(sy*w+sx+1)*c])
				}
			}
		}
	}
}

// col2im accumulates a patch matrix gradient back into image space.
func col2im(cols []float32, h, w, c int, img []float32) {
	row := 9 * c
	for y := range h {
		for x := range w {
			src := cols[(y*w+x)*row : (y*w+x+1)*row]
			for ky := range 3 {
				sy := y + ky - 1
				if sy < 0 || sy >= h {
					continue
				}
				for kx := range 3 {
					sx := x + kx - 1
					if sx < 0 || sx >= w {
						continue
					}
					seg := src[(ky*3+kx)*c : (ky*3+kx+1)*c]
					dst := img[(sy*w+sx)*c : (sy*w+sx+1)*c]
					for i, v := range seg {
						dst[i] += v
					}
				}
			}
		}
	}
}

// convReLU applies a same-padded 3x3 convolution followed by ReLU.
func convReLU(in *activation, cw *ConvWeights) *activation {
	out := newActivation(in.n, in.h, in.w, cw.Out)
	hw := in.h * in.w
	cols := make([]float32, hw*9*cw.In)
	kernel := matrix(9*cw.In, cw.Out, cw.Kernel)

	for i := range in.n {
		im2col(in.image(i), in.h, in.w, in.c, cols)
		dst := out.image(i)
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, matrix(hw, 9*cw.In, cols), kernel, 0, matrix(hw, cw.Out, dst))
		for p := range hw {
			px := dst[p*cw.Out : (p+1)*cw.Out]
			for o := range px {
				px[o] = max(0, px[o]+cw.Bias[o])
			}
		}
	}
	return out
}

// convReLUBackward takes the gradient with respect to the ReLU output and
// accumulates kernel and bias gradients. It returns the gradient with respect
// to the convolution input, or nil when needInput is false.
func convReLUBackward(in, out, dOut *activation, cw, grad *ConvWeights, needInput bool) *activation {
	hw := in.h * in.w
	patch := 9 * cw.In
	cols := make([]float32, hw*patch)
	dCols := make([]float32, hw*patch)
	kernel := matrix(patch, cw.Out, cw.Kernel)
	dKernel := matrix(patch, cw.Out, grad.Kernel)

	var dIn *activation
	if needInput {
		dIn = newActivation(in.n, in.h, in.w, in.c)
	}

	for i := range in.n {
		// ReLU mask: the output is positive exactly where the unit was active.
		d := dOut.image(i)
		o := out.image(i)
		for j := range d {
			if o[j] <= 0 {
				d[j] = 0
			}
		}
		for p := range hw {
			for c, v := range d[p*cw.Out : (p+1)*cw.Out] {
				grad.Bias[c] += v
			}
		}

		im2col(in.image(i), in.h, in.w, in.c, cols)
		dPre := matrix(hw, cw.Out, d)
		blas32.Gemm(blas.Trans, blas.NoTrans, 1, matrix(hw, patch, cols), dPre, 1, dKernel)

		if needInput {
			blas32.Gemm(blas.NoTrans, blas.Trans, 1, dPre, kernel, 0, matrix(hw, patch, dCols))
			col2im(dCols, in.h, in.w, in.c, dIn.image(i))
		}
	}
	return dIn
}

// normCache keeps what the batch normalization backward pass needs.
type normCache struct {
	xhat   []float32
	invStd []float64
}

// batchNorm normalizes per channel. In training mode it uses batch
// statistics, updates the moving statistics and returns a cache; otherwise
// it uses the moving statistics.
func batchNorm(in *activation, nw *NormWeights, momentum, eps float64, training bool) (*activation, *normCache) {
	out := newActivation(in.n, in.h, in.w, in.c)
	c := in.c
	m := len(in.data) / c

	if !training {
		scale := make([]float32, c)
		shift := make([]float32, c)
		for ch := range c {
			inv := 1 / math.Sqrt(float64(nw.MovingVar[ch])+eps)
			scale[ch] = float32(float64(nw.Gamma[ch]) * inv)
			shift[ch] = nw.Beta[ch] - float32(float64(nw.MovingMean[ch])*float64(nw.Gamma[ch])*inv)
		}
		for i, v := range in.data {
			ch := i % c
			out.data[i] = v*scale[ch] + shift[ch]
		}
		return out, nil
	}

	mean := make([]float64, c)
	variance := make([]float64, c)
	for i, v := range in.data {
		mean[i%c] += float64(v)
	}
	for ch := range mean {
		mean[ch] /= float64(m)
	}
	for i, v := range in.data {
		d := float64(v) - mean[i%c]
		variance[i%c] += d * d
	}

	cache := &normCache{xhat: make([]float32, len(in.data)), invStd: make([]float64, c)}
	for ch := range c {
		variance[ch] /= float64(m)
		cache.invStd[ch] = 1 / math.Sqrt(variance[ch]+eps)
		nw.MovingMean[ch] = float32(momentum*float64(nw.MovingMean[ch]) + (1-momentum)*mean[ch])
		nw.MovingVar[ch] = float32(momentum*float64(nw.MovingVar[ch]) + (1-momentum)*variance[ch])
	}
	for i, v := range in.data {
		ch := i % c
		xh := float32((float64(v) - mean[ch]) * cache.invStd[ch])
		cache.xhat[i] = xh
		out.data[i] = nw.Gamma[ch]*xh + nw.Beta[ch]
	}
	return out, cache
}

// batchNormBackward returns the input gradient and accumulates gamma and beta
// gradients.
func batchNormBackward(dOut *activation, cache *normCache, nw, grad *NormWeights) *activation {
	c := dOut.c
	m := float64(len(dOut.data) / c)
	dIn := newActivation(dOut.n, dOut.h, dOut.w, c)

	sumD := make([]float64, c)
	sumDX := make([]float64, c)
	for i, d := range dOut.data {
		ch := i % c
		dxhat := float64(d) * float64(nw.Gamma[ch])
		sumD[ch] += dxhat
		sumDX[ch] += dxhat * float64(cache.xhat[i])
		grad.Gamma[ch] += d * cache.xhat[i]
		grad.Beta[ch] += d
	}
	for i, d := range dOut.data {
		ch := i % c
		dxhat := float64(d) * float64(nw.Gamma[ch])
		xh := float64(cache.xhat[i])
		dIn.data[i] = float32(cache.invStd[ch] / m * (m*dxhat - sumD[ch] - xh*sumDX[ch]))
	}
	return dIn
}

// maxPool applies 2x2 max pooling with stride 2, dropping odd edges. argmax
// records the input offset chosen for each output value.
func maxPool(in *activation) (*activation, []int32) {
	oh, ow := in.h/2, in.w/2
	out := newActivation(in.n, oh, ow, in.c)
	argmax := make([]int32, len(out.data))

	for i := range in.n {
		src := in.image(i)
		base := int32(i * in.h * in.w * in.c)
		dst := out.image(i)
		dstBase := i * oh * ow * in.c
		for y := range oh {
			for x := range ow {
				for ch := range in.c {
					best := ((2*y)*in.w+2*x)*in.c + ch
					for _, off := range [3]int{
						((2*y)*in.w + 2*x + 1) * in.c,
						((2*y+1)*in.w + 2*x) * in.c,
						((2*y+1)*in.w + 2*x + 1) * in.c,
					} {
						if src[off+ch] > src[best] {
							best = off + ch
						}
					}
					o := (y*ow+x)*in.c + ch
					dst[o] = src[best]
					argmax[dstBase+o] = base + int32(best)
				}
			}
		}
	}
	return out, argmax
}

// maxPoolBackward routes each output gradient to the input that won.
func maxPoolBackward(dOut *activation, argmax []int32, in *activation) *activation {
	dIn := newActivation(in.n, in.h, in.w, in.c)
	for i, d := range dOut.data {
		dIn.data[argmax[i]] += d
	}
	return dIn
}

// dense computes x*W + b for an n x in matrix x.
func dense(x []float32, n int, dw *DenseWeights, relu bool) []float32 {
	out := make([]float32, n*dw.Out)
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, matrix(n, dw.In, x), matrix(dw.In, dw.Out, dw.Kernel), 0, matrix(n, dw.Out, out))
	for r := range n {
		row := out[r*dw.Out : (r+1)*dw.Out]
		for j := range row {
			row[j] += dw.Bias[j]
			if relu {
				row[j] = max(0, row[j])
			}
		}
	}
	return out
}

// denseBackward accumulates kernel and bias gradients and returns the input
// gradient.
func denseBackward(x, dOut []float32, n int, dw, grad *DenseWeights) []float32 {
	blas32.Gemm(blas.Trans, blas.NoTrans, 1, matrix(n, dw.In, x), matrix(n, dw.Out, dOut), 1, matrix(dw.In, dw.Out, grad.Kernel))
	for r := range n {
		for j, v := range dOut[r*dw.Out : (r+1)*dw.Out] {
			grad.Bias[j] += v
		}
	}
	dIn := make([]float32, n*dw.In)
	blas32.Gemm(blas.NoTrans, blas.Trans, 1, matrix(n, dw.Out, dOut), matrix(dw.In, dw.Out, dw.Kernel), 0, matrix(n, dw.In, dIn))
	return dIn
}

// softmax converts each row of logits to probabilities in place.
func softmax(logits []float32, n, classes int) {
	for r := range n {
		row := logits[r*classes : (r+1)*classes]
		peak := row[0]
		for _, v := range row[1:] {
			peak = max(peak, v)
		}
		var sum float64
		for j, v := range row {
			e := math.Exp(float64(v - peak))
			row[j] = float32(e)
			sum += e
		}
		for j := range row {
			row[j] = float32(float64(row[j]) / sum)
		}
	}
}
