package inference

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ycry/ycry-go/internal/classifier"
	"github.com/ycry/ycry-go/internal/classifier/cnn"
	"github.com/ycry/ycry-go/internal/errors"
	"github.com/ycry/ycry-go/internal/logger"
	"github.com/ycry/ycry-go/internal/myaudio"
	"github.com/ycry/ycry-go/internal/observability"
	"github.com/ycry/ycry-go/internal/spectrogram"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testRate = 22050

var testLabels = classifier.LabelSet{Version: "v1", Labels: []string{"Burping", "Discomfort", "Hunger", "Pain", "Tired"}}

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(&bytes.Buffer{}, logger.LogLevelError, nil)
}

// fixedClassifier always returns the same distribution.
type fixedClassifier struct {
	probs  []float32
	labels classifier.LabelSet
	err    error
	calls  atomic.Int32
}

func (f *fixedClassifier) Predict(in classifier.Tensor) ([]float32, error) {
	f.calls.Add(1)
	if err := in.CheckShape(64, 64, 3); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return append([]float32(nil), f.probs...), nil
}
func (f *fixedClassifier) Labels() classifier.LabelSet { return f.labels }
func (f *fixedClassifier) InputShape() (int, int, int) { return 64, 64, 3 }
func (f *fixedClassifier) Close() error                { return nil }

type failingRenderer struct{}

func (failingRenderer) RenderToFile(*spectrogram.Spectrogram, int, int, string) error {
	return errors.Newf("canvas unavailable").Category(errors.CategorySpectrogramRender).Build()
}

type recordingObserver struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (o *recordingObserver) Name() string { return "recording" }
func (o *recordingObserver) OnPrediction(_ context.Context, ev Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
	return o.err
}

type env struct {
	svc     *Service
	tempDir string
	metrics *observability.Metrics
}

func newEnv(t *testing.T, model classifier.Classifier, mutate func(*Dependencies)) *env {
	t.Helper()

	extractor, err := spectrogram.NewExtractor(spectrogram.DefaultParams(testRate), quietLogger())
	require.NoError(t, err)
	m, err := observability.NewMetrics()
	require.NoError(t, err)

	deps := Dependencies{
		Loader:     myaudio.NewLoader(myaudio.LoaderConfig{SampleRate: testRate, FfmpegPath: "ycry-no-such-ffmpeg"}, quietLogger()),
		Extractor:  extractor,
		Renderer:   spectrogram.NewRenderer(quietLogger()),
		Classifier: model,
		Metrics:    m.Inference,
		Logger:     quietLogger(),
	}
	if mutate != nil {
		mutate(&deps)
	}

	dir := filepath.Join(t.TempDir(), "uploads")
	svc, err := New(Config{TempDir: dir, Seconds: 5, ImageSize: 64, Labels: testLabels}, deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return &env{svc: svc, tempDir: dir, metrics: m}
}

func wavBytes(t *testing.T, samples []float32) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), fmt.Sprintf("clip_%d.wav", len(samples)))
	require.NoError(t, myaudio.WriteWAVFile(path, samples, testRate))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func toneSamples(freq, seconds float64) []float32 {
	out := make([]float32, int(seconds*testRate))
	for i := range out {
		out[i] = float32(0.4 * math.Sin(2*math.Pi*freq*float64(i)/testRate))
	}
	return out
}

func assertTempDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Empty(t, names, "temporary files left behind")
}

func TestAnalyzeSilentClip(t *testing.T) {
	t.Parallel()

	model := &fixedClassifier{probs: []float32{0.05, 0.05, 0.8, 0.05, 0.05}, labels: testLabels}
	e := newEnv(t, model, nil)

	pred, err := e.svc.Analyze(context.Background(), Upload{
		Filename: "silence.wav",
		Body:     bytes.NewReader(wavBytes(t, make([]float32, 5*testRate))),
	})
	require.NoError(t, err)

	assert.Equal(t, "Hunger", pred.Label)
	assert.Equal(t, "Feed baby", pred.Advice)
	assert.InDelta(t, 0.8, pred.Confidence, 1e-6)
	assert.Equal(t, "80.0", FormatConfidence(pred.Confidence))
	assert.Len(t, pred.Probabilities, 5)
	assert.NotEmpty(t, pred.RequestID)
	assert.EqualValues(t, 1, model.calls.Load())

	assertTempDirEmpty(t, e.tempDir)
}

func TestAnalyzeWithNativeNetwork(t *testing.T) {
	t.Parallel()

	arch := cnn.DefaultArchitecture(testLabels.Len())
	arch.Stages = []int{2, 4}
	arch.Dense = 8
	net, err := cnn.New(arch, testLabels, 1)
	require.NoError(t, err)
	e := newEnv(t, net, nil)

	pred, err := e.svc.Analyze(context.Background(), Upload{
		Filename: "silence.wav",
		Body:     bytes.NewReader(wavBytes(t, make([]float32, 5*testRate))),
	})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, testLabels.Index(pred.Label), 0)
	assert.Greater(t, pred.Confidence, 0.0)
	assert.LessOrEqual(t, pred.Confidence, 1.0)
	assertTempDirEmpty(t, e.tempDir)
}

func TestAnalyzeNoFile(t *testing.T) {
	t.Parallel()

	e := newEnv(t, &fixedClassifier{labels: testLabels}, nil)

	for _, up := range []Upload{
		{Filename: "", Body: strings.NewReader("data")},
		{Filename: "   ", Body: strings.NewReader("data")},
		{Filename: "clip.wav", Body: nil},
	} {
		_, err := e.svc.Analyze(context.Background(), up)
		require.Error(t, err)
		assert.Equal(t, KindNoFile, KindOf(err))
		assert.ErrorIs(t, err, ErrNoFile)
	}
	assertTempDirEmpty(t, e.tempDir)
}

func TestAnalyzeNonAudio(t *testing.T) {
	t.Parallel()

	model := &fixedClassifier{labels: testLabels}
	e := newEnv(t, model, nil)

	_, err := e.svc.Analyze(context.Background(), Upload{
		Filename: "notes.wav",
		Body:     strings.NewReader("this is a shopping list, not a recording"),
	})
	require.Error(t, err)
	assert.Equal(t, KindDecode, KindOf(err))
	assert.Zero(t, model.calls.Load())
	assertTempDirEmpty(t, e.tempDir)
}

func TestAnalyzeWithoutModel(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil, nil)
	require.False(t, e.svc.ModelLoaded())

	_, err := e.svc.Analyze(context.Background(), Upload{
		Filename: "tone.wav",
		Body:     bytes.NewReader(wavBytes(t, toneSamples(440, 2))),
	})
	require.Error(t, err)
	assert.Equal(t, KindModelUnavailable, KindOf(err))
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assertTempDirEmpty(t, e.tempDir)
}

func TestAnalyzeRenderFailure(t *testing.T) {
	t.Parallel()

	e := newEnv(t, &fixedClassifier{labels: testLabels}, func(d *Dependencies) {
		d.Renderer = failingRenderer{}
	})

	_, err := e.svc.Analyze(context.Background(), Upload{
		Filename: "tone.wav",
		Body:     bytes.NewReader(wavBytes(t, toneSamples(440, 1))),
	})
	require.Error(t, err)
	assert.Equal(t, KindRender, KindOf(err))
	assertTempDirEmpty(t, e.tempDir)
}

func TestFailedRequestEndsInFailedStage(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	e := newEnv(t, &fixedClassifier{labels: testLabels}, func(d *Dependencies) {
		d.Renderer = failingRenderer{}
		d.Logger = logger.NewSlogLogger(&logs, logger.LogLevelWarn, nil)
	})

	_, err := e.svc.Analyze(context.Background(), Upload{
		Filename: "tone.wav",
		Body:     bytes.NewReader(wavBytes(t, toneSamples(440, 1))),
	})
	require.Error(t, err)

	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, StageDecoded.String(), ee.GetContext()["stage"])

	out := logs.String()
	assert.Contains(t, out, "stage=failed")
	assert.Contains(t, out, "failed_in=decoded")
	assert.Contains(t, out, "kind=render")

	r := &request{stage: StageRendered}
	assert.Equal(t, StageRendered, r.abort())
	assert.Equal(t, StageFailed, r.stage)
}

func TestAnalyzePredictionFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		model *fixedClassifier
	}{
		{"backend error", &fixedClassifier{labels: testLabels, err: errors.NewStd("invoke failed")}},
		{"wrong cardinality", &fixedClassifier{labels: testLabels, probs: []float32{0.5, 0.5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.model, nil)
			_, err := e.svc.Analyze(context.Background(), Upload{
				Filename: "tone.wav",
				Body:     bytes.NewReader(wavBytes(t, toneSamples(300, 1))),
			})
			require.Error(t, err)
			assert.Equal(t, KindPrediction, KindOf(err))
			assertTempDirEmpty(t, e.tempDir)
		})
	}
}

func TestAnalyzeIgnoresCancellation(t *testing.T) {
	t.Parallel()

	e := newEnv(t, &fixedClassifier{probs: []float32{0.6, 0.1, 0.1, 0.1, 0.1}, labels: testLabels}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pred, err := e.svc.Analyze(ctx, Upload{
		Filename: "tone.wav",
		Body:     bytes.NewReader(wavBytes(t, toneSamples(500, 1))),
	})
	require.NoError(t, err)
	assert.Equal(t, "Burping", pred.Label)
}

func TestConcurrentRequestsDoNotContaminate(t *testing.T) {
	t.Parallel()

	arch := cnn.DefaultArchitecture(testLabels.Len())
	arch.Stages = []int{4, 4}
	arch.Dense = 16
	net, err := cnn.New(arch, testLabels, 99)
	require.NoError(t, err)
	e := newEnv(t, net, nil)

	const requests = 10
	clips := make([][]byte, requests)
	want := make([]map[string]float64, requests)
	for i := range requests {
		clips[i] = wavBytes(t, toneSamples(150+float64(i)*350, 2))
		pred, err := e.svc.Analyze(context.Background(), Upload{Filename: "clip.wav", Body: bytes.NewReader(clips[i])})
		require.NoError(t, err)
		want[i] = pred.Probabilities
	}

	got := make([]*Prediction, requests)
	errs := make([]error, requests)
	var wg sync.WaitGroup
	for i := range requests {
		wg.Go(func() {
			got[i], errs[i] = e.svc.Analyze(context.Background(), Upload{Filename: "clip.wav", Body: bytes.NewReader(clips[i])})
		})
	}
	wg.Wait()

	ids := make(map[string]bool)
	for i := range requests {
		require.NoError(t, errs[i])
		assert.Equal(t, want[i], got[i].Probabilities, "request %d", i)
		assert.False(t, ids[got[i].RequestID], "request ids must be unique")
		ids[got[i].RequestID] = true
	}
	assertTempDirEmpty(t, e.tempDir)
}

func TestObserversReceivePredictions(t *testing.T) {
	t.Parallel()

	ok := &recordingObserver{}
	failing := &recordingObserver{err: errors.NewStd("broker down")}
	e := newEnv(t, &fixedClassifier{probs: []float32{0.1, 0.1, 0.1, 0.6, 0.1}, labels: testLabels}, func(d *Dependencies) {
		d.Observers = []Observer{ok, failing}
	})

	pred, err := e.svc.Analyze(context.Background(), Upload{
		Filename: "cry.wav",
		Body:     bytes.NewReader(wavBytes(t, toneSamples(700, 1))),
	})
	require.NoError(t, err, "observer failures never fail a request")
	require.NoError(t, e.svc.Close())

	require.Len(t, ok.events, 1)
	ev := ok.events[0]
	assert.Equal(t, pred.RequestID, ev.RequestID)
	assert.Equal(t, "Pain", ev.Label)
	assert.Equal(t, "Check injury", ev.Advice)
	assert.Equal(t, "cry.wav", ev.Filename)
	assert.Equal(t, "v1", ev.LabelSet)
	assert.Len(t, failing.events, 1)
}

func TestLoadModel(t *testing.T) {
	t.Parallel()

	arch := cnn.DefaultArchitecture(testLabels.Len())
	arch.Stages = []int{2}
	arch.Dense = 4
	net, err := cnn.New(arch, testLabels, 5)
	require.NoError(t, err)

	dir := t.TempDir()
	good := filepath.Join(dir, "good"+cnn.Extension)
	require.NoError(t, net.Save(good))

	other := classifier.LabelSet{Version: "v0", Labels: testLabels.Labels}
	wrongNet, err := cnn.New(arch, other, 5)
	require.NoError(t, err)
	wrong := filepath.Join(dir, "wrong"+cnn.Extension)
	require.NoError(t, wrongNet.Save(wrong))

	e := newEnv(t, nil, nil)

	err = e.svc.LoadModel(filepath.Join(dir, "missing"+cnn.Extension))
	require.Error(t, err)
	assert.False(t, e.svc.ModelLoaded())

	err = e.svc.LoadModel(wrong)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLabelLoad))
	assert.False(t, e.svc.ModelLoaded())

	require.NoError(t, e.svc.LoadModel(good))
	assert.True(t, e.svc.ModelLoaded())

	// A failed reload keeps the working model.
	require.Error(t, e.svc.LoadModel(wrong))
	assert.True(t, e.svc.ModelLoaded())
}

func TestSetClassifierChecksLabels(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil, nil)
	err := e.svc.SetClassifier(&fixedClassifier{labels: classifier.LabelSet{Version: "v9", Labels: testLabels.Labels}})
	require.Error(t, err)
	require.NoError(t, e.svc.SetClassifier(&fixedClassifier{labels: testLabels}))
	assert.True(t, e.svc.ModelLoaded())
}

func TestAdviceIsTotal(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Hunger":     "Feed baby",
		"Pain":       "Check injury",
		"Burping":    "Burp baby",
		"Discomfort": "Check diaper",
		"Tired":      "Sleep time",
		"Colic":      "Check baby",
		"":           "Check baby",
		"hunger":     "Check baby",
	}
	for label, want := range tests {
		assert.Equal(t, want, Advice(label), "label %q", label)
	}
}

func TestFormatConfidence(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "87.3", FormatConfidence(0.8734))
	assert.Equal(t, "100.0", FormatConfidence(1))
	assert.Equal(t, "0.1", FormatConfidence(0.0012))
}

func TestStageString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "received", StageReceived.String())
	assert.Equal(t, "responded", StageResponded.String())
	assert.Equal(t, "failed", StageFailed.String())
	assert.Equal(t, "unknown", Stage(42).String())
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindNone, KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.NewStd("boom")))
	assert.Equal(t, KindDecode, KindOf(errors.New(errors.NewStd("x")).Category(errors.CategoryAudioDecode).Build()))
}

// capturingClassifier keeps the last tensor it was asked to classify.
type capturingClassifier struct {
	fixedClassifier
	mu   sync.Mutex
	last classifier.Tensor
}

func (c *capturingClassifier) Predict(in classifier.Tensor) ([]float32, error) {
	c.mu.Lock()
	c.last = in
	c.mu.Unlock()
	return c.fixedClassifier.Predict(in)
}

func TestInferenceTensorMatchesTrainingImage(t *testing.T) {
	t.Parallel()

	const renderW, renderH = 200, 80
	model := &capturingClassifier{fixedClassifier: fixedClassifier{probs: []float32{0.2, 0.2, 0.2, 0.2, 0.2}, labels: testLabels}}

	loader := myaudio.NewLoader(myaudio.LoaderConfig{SampleRate: testRate, FfmpegPath: "ycry-no-such-ffmpeg"}, quietLogger())
	extractor, err := spectrogram.NewExtractor(spectrogram.DefaultParams(testRate), quietLogger())
	require.NoError(t, err)
	renderer := spectrogram.NewRenderer(quietLogger())

	svc, err := New(Config{
		TempDir:      t.TempDir(),
		Seconds:      5,
		ImageSize:    64,
		RenderWidth:  renderW,
		RenderHeight: renderH,
		Labels:       testLabels,
	}, Dependencies{Loader: loader, Extractor: extractor, Renderer: renderer, Classifier: model, Logger: quietLogger()})
	require.NoError(t, err)
	defer svc.Close()

	clip := wavBytes(t, toneSamples(660, 2))
	_, err = svc.Analyze(context.Background(), Upload{Filename: "tone.wav", Body: bytes.NewReader(clip)})
	require.NoError(t, err)

	// The preprocessing path: render at the training raster size, then load
	// the PNG at the classifier input size.
	sig, err := loader.Load(context.Background(), bytes.NewReader(clip), 5)
	require.NoError(t, err)
	spec, err := extractor.Compute(sig.Samples)
	require.NoError(t, err)
	png := filepath.Join(t.TempDir(), "train.png")
	require.NoError(t, renderer.RenderToFile(spec, renderW, renderH, png))
	want, err := spectrogram.LoadPNGToTensor(png, 64, 64)
	require.NoError(t, err)

	model.mu.Lock()
	defer model.mu.Unlock()
	assert.Equal(t, want, model.last)
}
