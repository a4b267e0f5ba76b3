package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ycry/ycry-go/internal/inference"
	"github.com/ycry/ycry-go/internal/logger"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id"` // Unique identifier for tracking this error
}

// clientError is the status and message returned for a failure kind.
type clientError struct {
	status  int
	message string
}

var kindResponses = map[inference.Kind]clientError{
	inference.KindNoFile:           {http.StatusBadRequest, "No audio file provided"},
	inference.KindSaveFailed:       {http.StatusInternalServerError, "Failed to save uploaded file"},
	inference.KindDecode:           {http.StatusBadRequest, "Error reading audio file. Please try a different format (WAV/MP3)."},
	inference.KindRender:           {http.StatusInternalServerError, "Failed to generate spectrogram"},
	inference.KindModelUnavailable: {http.StatusInternalServerError, "AI Model not loaded."},
	inference.KindPrediction:       {http.StatusInternalServerError, "Prediction failed"},
}

var internalError = clientError{http.StatusInternalServerError, "Internal server error"}

// responseFor returns the client facing status and message of kind.
func responseFor(kind inference.Kind) clientError {
	if r, ok := kindResponses[kind]; ok {
		return r
	}
	return internalError
}

// correlationID returns the request id assigned by the request id
// middleware, or a fresh id.
func correlationID(c echo.Context) string {
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return uuid.NewString()
}

// HandleError logs err and writes the error envelope for kind.
func (s *Server) HandleError(c echo.Context, err error, kind inference.Kind) error {
	r := responseFor(kind)
	resp := ErrorResponse{Error: r.message, CorrelationID: correlationID(c)}

	log := s.log.WithContext(c.Request().Context())
	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("kind", string(kind)),
		logger.Int("status", r.status),
		logger.String("path", c.Request().URL.Path),
		logger.String("ip", c.RealIP()),
		logger.Error(err),
	}
	if r.status >= http.StatusInternalServerError {
		log.Error("API error", fields...)
	} else {
		log.Warn("API error", fields...)
	}

	return c.JSON(r.status, resp)
}

// rateLimited writes the 429 envelope.
func (s *Server) rateLimited(c echo.Context) error {
	if s.metrics != nil {
		s.metrics.HTTP.RecordRateLimited()
	}
	return c.JSON(http.StatusTooManyRequests, ErrorResponse{
		Error:         "Too many requests, please wait before trying again",
		CorrelationID: correlationID(c),
	})
}

// httpErrorHandler renders errors returned by routing and middleware, such
// as 404 or 413, in the same envelope as analysis failures.
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := internalError.message
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(status)
		}
	}
	if status == http.StatusRequestEntityTooLarge {
		message = "Uploaded file is too large"
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("Unhandled error", logger.Error(err), logger.String("path", c.Request().URL.Path))
	}

	resp := ErrorResponse{Error: message, CorrelationID: correlationID(c)}
	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, resp)
	}
	if writeErr != nil {
		s.log.Warn("Failed to write error response", logger.Error(writeErr))
	}
}

func (s *Server) uptime() time.Duration {
	return time.Since(s.startTime)
}
