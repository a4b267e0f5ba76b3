// Package inference implements the online cry analysis request: save the
// upload, decode it, render its spectrogram, classify the image and attach
// advice. Each request owns its temporary files, which are removed on every
// exit path.
package inference

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ycry/ycry-go/internal/classifier"
	"github.com/ycry/ycry-go/internal/errors"
	"github.com/ycry/ycry-go/internal/logger"
	"github.com/ycry/ycry-go/internal/myaudio"
	"github.com/ycry/ycry-go/internal/observability/metrics"
	"github.com/ycry/ycry-go/internal/spectrogram"
)

// Temporary file naming. Every path touched by a request embeds its id.
const (
	tempPrefix      = "ycry_"
	audioSuffix     = ".audio"
	imageSuffix     = "_spec.png"
	tempPermissions = 0o600
)

// AudioLoader decodes an audio file into a fixed length signal.
type AudioLoader interface {
	LoadFile(ctx context.Context, path string, seconds float64) (myaudio.Signal, error)
}

// FeatureExtractor computes a log-mel spectrogram.
type FeatureExtractor interface {
	Compute(samples []float32) (*spectrogram.Spectrogram, error)
}

// ImageRenderer rasterizes a spectrogram to a PNG file.
type ImageRenderer interface {
	RenderToFile(spec *spectrogram.Spectrogram, width, height int, path string) error
}

// Config holds the request parameters.
type Config struct {
	TempDir   string
	Seconds   float64 // clip length fed to the model
	ImageSize int     // classifier input width and height
	// Raster size of the rendered spectrogram before it is resized to the
	// classifier input. Training images use the same size so both paths
	// produce identical tensors. Zero renders at ImageSize.
	RenderWidth  int
	RenderHeight int
	Labels    classifier.LabelSet
	Threads   int // classifier threads for backends that support it
}

// Dependencies are the collaborators of a Service. Classifier, Metrics and
// Observers are optional; without a classifier the service runs degraded.
type Dependencies struct {
	Loader     AudioLoader
	Extractor  FeatureExtractor
	Renderer   ImageRenderer
	Classifier classifier.Classifier
	Metrics    *metrics.InferenceMetrics
	Observers  []Observer
	Logger     logger.Logger
}

// Upload is an audio file received from a client.
type Upload struct {
	Filename string
	Body     io.Reader
}

// Prediction is the result of a successful analysis.
type Prediction struct {
	RequestID     string             `json:"request_id"`
	Label         string             `json:"prediction"`
	Confidence    float64            `json:"confidence"`
	Advice        string             `json:"advice"`
	Probabilities map[string]float64 `json:"probabilities"`
	Duration      time.Duration      `json:"-"`
}

// Service runs cry analysis requests. It is safe for concurrent use.
type Service struct {
	cfg       Config
	loader    AudioLoader
	extractor FeatureExtractor
	renderer  ImageRenderer
	metrics   *metrics.InferenceMetrics
	observers []Observer
	log       logger.Logger

	mu    sync.RWMutex
	model classifier.Classifier

	notifyWG sync.WaitGroup
}

// New creates a Service and ensures the temporary directory exists.
func New(cfg Config, deps Dependencies) (*Service, error) {
	if deps.Loader == nil || deps.Extractor == nil || deps.Renderer == nil {
		return nil, errors.Newf("inference service requires a loader, an extractor and a renderer").
			Component("inference").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := cfg.Labels.Validate(); err != nil {
		return nil, err
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.Seconds <= 0 {
		cfg.Seconds = 5
	}
	if cfg.ImageSize <= 0 {
		cfg.ImageSize = 64
	}
	if cfg.RenderWidth <= 0 || cfg.RenderHeight <= 0 {
		cfg.RenderWidth, cfg.RenderHeight = cfg.ImageSize, cfg.ImageSize
	}
	if err := os.MkdirAll(cfg.TempDir, 0o750); err != nil {
		return nil, errors.New(err).
			Component("inference").
			Category(errors.CategoryFileIO).
			Context("temp_dir", cfg.TempDir).
			Build()
	}

	log := deps.Logger
	if log == nil {
		log = GetLogger()
	}

	s := &Service{
		cfg:       cfg,
		loader:    deps.Loader,
		extractor: deps.Extractor,
		renderer:  deps.Renderer,
		metrics:   deps.Metrics,
		observers: deps.Observers,
		log:       log,
	}
	if deps.Classifier != nil {
		s.setModel(deps.Classifier)
	}
	return s, nil
}

// Labels returns the configured label set.
func (s *Service) Labels() classifier.LabelSet {
	return s.cfg.Labels
}

// ModelLoaded reports whether a classifier is available.
func (s *Service) ModelLoaded() bool {
	return s.currentModel() != nil
}

func (s *Service) currentModel() classifier.Classifier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

func (s *Service) setModel(c classifier.Classifier) {
	s.mu.Lock()
	old := s.model
	s.model = c
	s.mu.Unlock()

	if old != nil && old != c {
		if err := old.Close(); err != nil {
			s.log.Warn("Failed to close previous classifier", logger.Error(err))
		}
	}
	if s.metrics != nil {
		s.metrics.ModelLoadedGauge.Set(1)
	}
}

// Close waits for pending observer notifications and releases the
// classifier.
func (s *Service) Close() error {
	s.notifyWG.Wait()

	s.mu.Lock()
	model := s.model
	s.model = nil
	s.mu.Unlock()

	if model != nil {
		return model.Close()
	}
	return nil
}

// Analyze runs one request to completion. The request is detached from ctx
// cancellation; ctx only contributes its trace id to the logs.
func (s *Service) Analyze(ctx context.Context, up Upload) (*Prediction, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	requestID := uuid.NewString()
	if logger.TraceIDFromContext(ctx) == "" {
		ctx = logger.WithTraceID(ctx, requestID)
	}

	req := &request{
		svc:       s,
		id:        requestID,
		filename:  up.Filename,
		stage:     StageReceived,
		start:     start,
		lastStage: start,
		log:       s.log.WithContext(ctx).With(logger.String("request_id", requestID)),
	}

	if s.metrics != nil {
		s.metrics.InFlightGauge.Inc()
		defer s.metrics.InFlightGauge.Dec()
	}

	pred, err := req.run(ctx, up)

	if err != nil {
		failedIn := req.abort()
		if s.metrics != nil {
			s.metrics.RecordRequest(failedIn.String(), time.Since(start).Seconds(), err)
		}
		req.log.Warn("Analysis failed",
			logger.String("stage", req.stage.String()),
			logger.String("failed_in", failedIn.String()),
			logger.String("kind", string(KindOf(err))),
			logger.Error(err),
			logger.Duration("elapsed", time.Since(start)))
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordRequest("", time.Since(start).Seconds(), nil)
	}
	req.log.Info("Analysis complete",
		logger.String("prediction", pred.Label),
		logger.String("confidence", FormatConfidence(pred.Confidence)),
		logger.Duration("elapsed", pred.Duration))
	s.notify(ctx, req.log, pred, up.Filename)
	return pred, nil
}

// request carries the per-call state of Analyze.
type request struct {
	svc       *Service
	id        string
	filename  string
	stage     Stage
	start     time.Time
	lastStage time.Time
	log       logger.Logger
}

func (r *request) advance(stage Stage) {
	now := time.Now()
	if r.svc.metrics != nil {
		r.svc.metrics.RecordStage(stage.String(), now.Sub(r.lastStage).Seconds())
	}
	r.log.Debug("Stage reached", logger.String("stage", stage.String()))
	r.stage, r.lastStage = stage, now
}

// abort moves the request to StageFailed and returns the stage it failed in.
func (r *request) abort() Stage {
	failedIn := r.stage
	r.stage = StageFailed
	return failedIn
}

// fail wraps err with the request stage and category.
func (r *request) fail(err error, category errors.ErrorCategory, operation string) error {
	return errors.New(err).
		Component("inference").
		Category(category).
		Context("request_id", r.id).
		Context("stage", r.stage.String()).
		Context("operation", operation).
		Timing("analysis", time.Since(r.start)).
		Build()
}

func (r *request) run(ctx context.Context, up Upload) (pred *Prediction, err error) {
	s := r.svc

	if strings.TrimSpace(up.Filename) == "" || up.Body == nil {
		return nil, r.fail(ErrNoFile, errors.CategoryUpload, "receive")
	}

	audioPath := filepath.Join(s.cfg.TempDir, tempPrefix+r.id+audioSuffix)
	imagePath := filepath.Join(s.cfg.TempDir, tempPrefix+r.id+imageSuffix)
	defer r.cleanup(audioPath, imagePath)

	size, err := saveUpload(audioPath, up.Body)
	if err != nil {
		return nil, r.fail(err, errors.CategoryFileIO, "save_upload")
	}
	r.log.Debug("Upload saved", logger.String("filename", up.Filename), logger.Int64("size_bytes", size))

	sig, err := s.loader.LoadFile(ctx, audioPath, s.cfg.Seconds)
	if err != nil {
		return nil, r.fail(err, errors.CategoryAudioDecode, "decode")
	}
	r.advance(StageDecoded)

	// Feature extraction runs concurrently across requests; only the
	// rasterization inside RenderToFile is serialized.
	spec, err := s.extractor.Compute(sig.Samples)
	if err != nil {
		return nil, r.fail(err, errors.CategorySpectrogramRender, "compute_spectrogram")
	}
	if err := s.renderer.RenderToFile(spec, s.cfg.RenderWidth, s.cfg.RenderHeight, imagePath); err != nil {
		return nil, r.fail(err, errors.CategorySpectrogramRender, "render_spectrogram")
	}
	r.advance(StageRendered)

	model := s.currentModel()
	if model == nil {
		return nil, r.fail(ErrModelUnavailable, errors.CategoryModelUnavailable, "classify")
	}

	h, w, _ := model.InputShape()
	tensor, err := spectrogram.LoadPNGToTensor(imagePath, w, h)
	if err != nil {
		return nil, r.fail(err, errors.CategoryPrediction, "load_tensor")
	}
	probs, err := model.Predict(tensor)
	if err == nil {
		err = classifier.CheckDistribution(probs, s.cfg.Labels)
	}
	if err != nil {
		return nil, r.fail(err, errors.CategoryPrediction, "predict")
	}
	r.advance(StageClassified)

	idx, confidence := classifier.ArgMax(probs)
	label := s.cfg.Labels.Labels[idx]
	pred = &Prediction{
		RequestID:     r.id,
		Label:         label,
		Confidence:    float64(confidence),
		Advice:        Advice(label),
		Probabilities: make(map[string]float64, len(probs)),
	}
	for i, p := range probs {
		pred.Probabilities[s.cfg.Labels.Labels[i]] = float64(p)
	}
	if s.metrics != nil {
		s.metrics.RecordPrediction(label, pred.Confidence)
	}

	r.advance(StageResponded)
	pred.Duration = time.Since(r.start)
	return pred, nil
}

// cleanup removes the request's temporary files. It runs deferred, so it
// also runs while a panic unwinds.
func (r *request) cleanup(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			r.log.Warn("Failed to remove temporary file", logger.String("path", p), logger.Error(err))
		}
	}
}

func saveUpload(path string, body io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, tempPermissions)
	if err != nil {
		return 0, fmt.Errorf("creating upload file: %w", err)
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("writing upload file: %w", err)
	}
	return n, nil
}
