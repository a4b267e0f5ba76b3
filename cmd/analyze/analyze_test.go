package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ycry/ycry-go/internal/conf"
)

func TestWriteTable(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, write(&out, []Result{
		{File: "a.wav", Prediction: "Hunger", Confidence: "87.3", Advice: "Feed baby"},
		{File: "b.wav", Error: "bad", Kind: "decode"},
	}, false))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "FILE"))
	assert.Contains(t, lines[1], "87.3%")
	assert.Contains(t, lines[1], "Feed baby")
	assert.Contains(t, lines[2], "decode")
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, write(&out, []Result{{File: "a.wav", Prediction: "Pain", Confidence: "50.0", Advice: "Check injury", Seconds: 0.2}}, true))

	var got Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "Pain", got.Prediction)
	assert.Empty(t, got.Error)
}

func TestRunRequiresModel(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Audio.SampleRate = conf.SampleRate
	settings.Audio.InferenceDuration = conf.InferenceDurationSeconds
	settings.Model.Labels = conf.DefaultLabels
	settings.Model.LabelSetVersion = conf.DefaultLabelSetVersion
	settings.Model.Path = filepath.Join(t.TempDir(), "missing.ycnn")
	settings.WebServer.TempDir = t.TempDir()

	var out bytes.Buffer
	err := Run(context.Background(), settings, []string{"a.wav"}, &out, false)
	require.Error(t, err)
	assert.Empty(t, out.String())
}
