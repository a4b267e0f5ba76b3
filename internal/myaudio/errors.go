package myaudio

import (
	"fmt"

	"github.com/ycry/ycry-go/internal/errors"
)

// ErrEmptyAudio is returned when the input holds no bytes or no samples.
var ErrEmptyAudio = errors.NewStd("empty audio input")

// decodeError wraps err as an audio-decode failure.
func decodeError(err error, format, path string, size int64) error {
	return errors.New(err).
		Component("myaudio").
		Category(errors.CategoryAudioDecode).
		Context("container", format).
		FileContext(path, size).
		Build()
}

// decodeErrorf is decodeError with a formatted message.
func decodeErrorf(format, path string, size int64, msg string, args ...any) error {
	return decodeError(fmt.Errorf(msg, args...), format, path, size)
}

// IsDecodeError reports whether err is an unreadable or unsupported audio failure.
func IsDecodeError(err error) bool {
	return errors.IsCategory(err, errors.CategoryAudioDecode)
}
