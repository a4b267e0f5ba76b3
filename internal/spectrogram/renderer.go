package spectrogram

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ycry/ycry-go/internal/errors"
	"github.com/ycry/ycry-go/internal/logger"
)

const outputDirPermissions = 0o755

// Renderer rasterizes spectrograms with the magma colormap. All renders share
// one canvas, so a Renderer serializes them; callers compute spectrograms
// concurrently and only the rasterization is exclusive.
type Renderer struct {
	mu     sync.Mutex
	canvas *image.RGBA
	cmap   *Colormap
	logger logger.Logger
}

// NewRenderer creates a renderer. If log is nil the package logger is used.
func NewRenderer(log logger.Logger) *Renderer {
	if log == nil {
		log = GetLogger()
	}
	return &Renderer{cmap: Magma(), logger: log}
}

// Render rasterizes spec into a width x height PNG with low frequencies at the
// bottom and time running left to right. No axes, labels or padding are drawn.
func (r *Renderer) Render(spec *Spectrogram, width, height int) ([]byte, error) {
	if err := validateRender(spec, width, height); err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := r.paintLocked(spec, width, height)
	if err != nil {
		return nil, err
	}

	r.logger.Trace("Spectrogram rendered",
		logger.Int("width", width),
		logger.Int("height", height),
		logger.Int("png_bytes", len(data)),
		logger.Duration("elapsed", time.Since(start)))
	return data, nil
}

// RenderToFile renders spec and writes the PNG to outputPath, creating the
// parent directory when needed.
func (r *Renderer) RenderToFile(spec *Spectrogram, width, height int, outputPath string) error {
	data, err := r.Render(spec, width, height)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), outputDirPermissions); err != nil {
		return renderError(err, "ensure_output_directory", outputPath)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return renderError(err, "write_png", outputPath)
	}
	return nil
}

func (r *Renderer) paintLocked(spec *Spectrogram, width, height int) (data []byte, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A failed render must not take the lock holder down with it; the
	// canvas is fully repainted on the next call.
	defer func() {
		if rec := recover(); rec != nil {
			data = nil
			err = renderError(fmt.Errorf("panic during rasterization: %v", rec), "paint", "")
		}
	}()

	if r.canvas == nil || r.canvas.Rect.Dx() != width || r.canvas.Rect.Dy() != height {
		r.canvas = image.NewRGBA(image.Rect(0, 0, width, height))
	}

	span := spec.Max - spec.Min
	for y := range height {
		// Row 0 is the top of the image and shows the highest band.
		mel := (height - 1 - y) * spec.Mels / height
		row := spec.DB[mel]
		for x := range width {
			frame := x * spec.Frames / width
			v := 0.0
			if span > 0 {
				v = (row[frame] - spec.Min) / span
			}
			r.canvas.SetRGBA(x, y, r.cmap.At(v))
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, r.canvas); err != nil {
		return nil, renderError(err, "encode_png", "")
	}
	return buf.Bytes(), nil
}

func validateRender(spec *Spectrogram, width, height int) error {
	switch {
	case spec == nil || spec.Mels == 0 || spec.Frames == 0:
		return renderError(errors.NewStd("empty spectrogram"), "validate", "")
	case width <= 0 || height <= 0:
		return renderError(fmt.Errorf("invalid image size %dx%d", width, height), "validate", "")
	}
	return nil
}

func renderError(err error, operation, outputPath string) error {
	b := errors.New(err).
		Component("spectrogram").
		Category(errors.CategorySpectrogramRender).
		Context("operation", operation)
	if outputPath != "" {
		b = b.Context("output_path", outputPath)
	}
	return b.Build()
}
