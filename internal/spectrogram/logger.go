package spectrogram

import (
	"github.com/ycry/ycry-go/internal/logger"
)

// GetLogger returns the spectrogram package logger.
// Fetched dynamically to ensure it uses the current centralized logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("spectrogram")
}
