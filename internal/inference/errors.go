package inference

import (
	"github.com/ycry/ycry-go/internal/errors"
)

var (
	// ErrNoFile is returned when a request carries no upload.
	ErrNoFile = errors.NewStd("no audio file provided")
	// ErrModelUnavailable is returned while no classifier is loaded.
	ErrModelUnavailable = errors.NewStd("classifier not loaded")
)

// Kind classifies an analysis failure for the outer boundary.
type Kind string

const (
	KindNone             Kind = ""
	KindNoFile           Kind = "no-file"
	KindSaveFailed       Kind = "save-failed"
	KindDecode           Kind = "decode"
	KindRender           Kind = "render"
	KindModelUnavailable Kind = "model-unavailable"
	KindPrediction       Kind = "prediction"
	KindInternal         Kind = "internal"
)

// KindOf maps an error returned by Analyze to its failure kind.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	switch errors.CategoryOf(err) {
	case errors.CategoryUpload:
		return KindNoFile
	case errors.CategoryFileIO:
		return KindSaveFailed
	case errors.CategoryAudioDecode:
		return KindDecode
	case errors.CategorySpectrogramRender:
		return KindRender
	case errors.CategoryModelUnavailable:
		return KindModelUnavailable
	case errors.CategoryPrediction:
		return KindPrediction
	default:
		return KindInternal
	}
}
