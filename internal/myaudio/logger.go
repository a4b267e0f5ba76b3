package myaudio

import (
	"sync"

	"github.com/ycry/ycry-go/internal/logger"
)

var (
	serviceLogger logger.Logger
	loggerOnce    sync.Once
)

// GetLogger returns the myaudio package logger.
func GetLogger() logger.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logger.Global().Module("myaudio")
	})
	return serviceLogger
}
