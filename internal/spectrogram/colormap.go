package spectrogram

import "image/color"

// magmaAnchors are evenly spaced samples of the perceptually uniform magma
// map from black through purple and orange to pale yellow.
var magmaAnchors = [...]color.RGBA{
	{0x00, 0x00, 0x04, 0xff},
	{0x1c, 0x10, 0x44, 0xff},
	{0x4f, 0x12, 0x7b, 0xff},
	{0x81, 0x25, 0x81, 0xff},
	{0xb5, 0x36, 0x7a, 0xff},
	{0xe5, 0x50, 0x64, 0xff},
	{0xfb, 0x87, 0x61, 0xff},
	{0xfe, 0xc2, 0x87, 0xff},
	{0xfc, 0xfd, 0xbf, 0xff},
}

// Colormap maps a normalised intensity to a color.
type Colormap [256]color.RGBA

// Magma returns the 256 entry magma lookup table.
func Magma() *Colormap {
	var cm Colormap
	segments := len(magmaAnchors) - 1
	for i := range cm {
		pos := float64(i) / 255 * float64(segments)
		seg := min(int(pos), segments-1)
		frac := pos - float64(seg)
		a, b := magmaAnchors[seg], magmaAnchors[seg+1]
		cm[i] = color.RGBA{
			R: lerp(a.R, b.R, frac),
			G: lerp(a.G, b.G, frac),
			B: lerp(a.B, b.B, frac),
			A: 0xff,
		}
	}
	return &cm
}

// At returns the color for v in [0, 1]; values outside are clamped.
func (cm *Colormap) At(v float64) color.RGBA {
	if v != v || v <= 0 {
		return cm[0]
	}
	if v >= 1 {
		return cm[255]
	}
	return cm[int(v*255+0.5)]
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
}
