package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLoggerWritesModuleAndFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelDebug, time.UTC).Module("inference").Module("render")

	log.Info("rendered", String("request_id", "abc"), Int("width", 64), Float64("ms", 1.23456))

	out := buf.String()
	assert.Contains(t, out, "module=inference.render")
	assert.Contains(t, out, "request_id=abc")
	assert.Contains(t, out, "width=64")
	assert.Contains(t, out, "ms=1.235")
}

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelWarn, time.UTC)

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestWithContextAddsTraceID(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelInfo, time.UTC)

	ctx := WithTraceID(context.Background(), "req-42")
	log.WithContext(ctx).Info("hello")
	log.WithContext(context.Background()).Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "trace_id=req-42")
	assert.NotContains(t, lines[1], "trace_id")
}

func TestWithDoesNotLeakIntoParent(t *testing.T) {
	buf := &bytes.Buffer{}
	parent := NewSlogLogger(buf, LogLevelInfo, time.UTC)
	child := parent.With(String("k", "v"))

	parent.Info("parent")
	child.Info("child")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "k=v")
	assert.Contains(t, lines[1], "k=v")
}

func TestCentralLoggerFileOutputIsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ycry.log")
	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: path},
		ModuleLevels: map[string]string{"quiet": "error"},
	})
	require.NoError(t, err)

	cl.Module("training").Debug("epoch done", Int("epoch", 3))
	cl.Module("quiet").Info("suppressed")
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "epoch done", rec["msg"])
	assert.Equal(t, "training", rec["module"])
	assert.InDelta(t, 3, rec["epoch"], 0)
}

func TestNewCentralLoggerRejectsBadTimezone(t *testing.T) {
	_, err := NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)
}

func TestEchoAdapterRoutesToLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	a := NewEchoAdapter(NewSlogLogger(buf, LogLevelDebug, time.UTC).Module("echo"))

	a.Printf("recovered %s", "panic")
	a.Warnj(map[string]any{"route": "/api/v1/cry"})
	a.Debug("detail")
	a.SetLevel(0)

	out := buf.String()
	assert.Contains(t, out, "recovered panic")
	assert.Contains(t, out, "module=echo")
	assert.Contains(t, out, "/api/v1/cry")
	assert.Contains(t, out, "detail")
	assert.Equal(t, io.Discard, a.Output())

	assert.PanicsWithValue(t, "fatal: boom", func() { a.Fatalf("fatal: %s", "boom") })
	assert.Contains(t, buf.String(), "fatal: boom")
}
