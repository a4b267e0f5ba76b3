package api

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ycry/ycry-go/internal/inference"
	"github.com/ycry/ycry-go/internal/logger"
)

// Multipart form fields carrying the upload; the second is an alias.
const (
	uploadField      = "audio"
	uploadFieldAlias = "file"
)

// CryResponse is the body of a successful analysis.
type CryResponse struct {
	Prediction string `json:"prediction"`
	Confidence string `json:"confidence"`
	Advice     string `json:"advice"`
	Success    bool   `json:"success"`
}

// LabelsResponse lists the label set the service predicts.
type LabelsResponse struct {
	Version string   `json:"version"`
	Labels  []string `json:"labels"`
}

// HealthResponse reports whether predictions can be served.
type HealthResponse struct {
	Status      string  `json:"status"`
	ModelLoaded bool    `json:"model_loaded"`
	Uptime      float64 `json:"uptime_seconds"`
}

// handleCry analyzes one uploaded recording.
func (s *Server) handleCry(c echo.Context) error {
	fh, err := uploadedFile(c)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
	}

	up := inference.Upload{}
	if fh != nil {
		src, err := fh.Open()
		if err != nil {
			return s.HandleError(c, err, inference.KindSaveFailed)
		}
		defer src.Close()

		up = inference.Upload{Filename: fh.Filename, Body: src}
		if s.metrics != nil {
			s.metrics.HTTP.RecordUpload(fh.Size)
		}
	}

	pred, err := s.analyzer.Analyze(c.Request().Context(), up)
	if err != nil {
		return s.HandleError(c, err, inference.KindOf(err))
	}

	return c.JSON(http.StatusOK, CryResponse{
		Prediction: pred.Label,
		Confidence: inference.FormatConfidence(pred.Confidence),
		Advice:     pred.Advice,
		Success:    true,
	})
}

// uploadedFile returns the file of the upload field or its alias. A missing
// file yields nil and the multipart error.
func uploadedFile(c echo.Context) (*multipart.FileHeader, error) {
	fh, err := c.FormFile(uploadField)
	if err == nil {
		return fh, nil
	}
	if errors.Is(err, http.ErrMissingFile) {
		if fh, aliasErr := c.FormFile(uploadFieldAlias); aliasErr == nil {
			return fh, nil
		}
	}
	return nil, err
}

// handleLabels returns the configured label set.
func (s *Server) handleLabels(c echo.Context) error {
	ls := s.analyzer.Labels()
	return c.JSON(http.StatusOK, LabelsResponse{Version: ls.Version, Labels: ls.Labels})
}

// handleHealth reports ok when a classifier is loaded and degraded otherwise.
func (s *Server) handleHealth(c echo.Context) error {
	loaded := s.analyzer.ModelLoaded()
	status := "ok"
	if !loaded {
		status = "degraded"
	}
	s.log.Trace("Health check", logger.String("status", status))
	return c.JSON(http.StatusOK, HealthResponse{
		Status:      status,
		ModelLoaded: loaded,
		Uptime:      s.uptime().Seconds(),
	})
}
