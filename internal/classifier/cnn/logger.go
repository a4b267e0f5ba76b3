package cnn

import (
	"github.com/ycry/ycry-go/internal/logger"
)

// GetLogger returns the cnn package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("classifier.cnn")
}
