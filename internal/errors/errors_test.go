package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	reported []*EnhancedError
}

func (r *recordingReporter) ReportError(ee *EnhancedError) { r.reported = append(r.reported, ee) }
func (r *recordingReporter) IsEnabled() bool               { return true }

func TestBuilderSetsFields(t *testing.T) {
	base := fmt.Errorf("boom")
	ee := New(base).
		Component("myaudio").
		Category(CategoryAudioDecode).
		Priority(PriorityHigh).
		Context("stage", "decoded").
		FileContext("/tmp/upload.WAV", 1024).
		Timing("decode", 15*time.Millisecond).
		Build()

	require.NotNil(t, ee)
	assert.Equal(t, "boom", ee.Error())
	assert.Equal(t, "myaudio", ee.GetComponent())
	assert.Equal(t, CategoryAudioDecode, ee.Category)
	assert.Equal(t, PriorityHigh, ee.Priority)

	ctx := ee.GetContext()
	assert.Equal(t, "decoded", ctx["stage"])
	assert.Equal(t, ".wav", ctx["file_extension"])
	assert.Equal(t, int64(1024), ctx["file_size_bytes"])
	assert.Equal(t, "decode", ctx["operation"])
	assert.ErrorIs(t, ee, base)
}

func TestUnknownPriorityFallsBackToMedium(t *testing.T) {
	ee := Newf("x").Priority("urgent").Build()
	assert.Equal(t, PriorityMedium, ee.Priority)
}

func TestCategoryIsInheritedFromWrappedError(t *testing.T) {
	inner := New(fmt.Errorf("bad header")).Category(CategoryAudioDecode).Build()
	outer := New(fmt.Errorf("load: %w", inner)).Build()

	assert.Equal(t, CategoryAudioDecode, outer.Category)
	assert.True(t, IsCategory(outer, CategoryAudioDecode))
	assert.False(t, IsCategory(outer, CategoryPrediction))
	assert.Equal(t, CategoryAudioDecode, CategoryOf(fmt.Errorf("wrapped: %w", outer)))
	assert.Equal(t, CategoryGeneric, CategoryOf(fmt.Errorf("plain")))
}

func TestTelemetryReporterReceivesErrors(t *testing.T) {
	rec := &recordingReporter{}
	SetTelemetryReporter(rec)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := Newf("render failed").Category(CategorySpectrogramRender).Build()

	require.Len(t, rec.reported, 1)
	assert.Same(t, ee, rec.reported[0])
	assert.NotEqual(t, ComponentUnknown, ee.GetComponent())
}

func TestScrubPaths(t *testing.T) {
	got := scrubPaths("open /var/tmp/ycry_abc.audio: no such file")
	assert.NotContains(t, got, "/var/tmp")
	assert.Contains(t, got, "[path]")
}
