package journal

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ycry/ycry-go/internal/errors"
	"github.com/ycry/ycry-go/internal/inference"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "db", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func event(id, label string, at time.Time) inference.Event {
	return inference.Event{
		RequestID:     id,
		Filename:      id + ".wav",
		Label:         label,
		Confidence:    0.75,
		Advice:        inference.Advice(label),
		Probabilities: map[string]float64{label: 0.75, "Tired": 0.25},
		LabelSet:      "v1",
		DurationMs:    42,
		Time:          at,
	}
}

func TestJournalRecordsPredictions(t *testing.T) {
	t.Parallel()

	j := openTestJournal(t)
	var _ inference.Observer = j
	assert.Equal(t, "journal", j.Name())

	ctx := context.Background()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	labels := []string{"Hunger", "Pain", "Hunger", "Burping"}
	for i, label := range labels {
		require.NoError(t, j.OnPrediction(ctx, event(fmt.Sprintf("req-%d", i), label, base.Add(time.Duration(i)*time.Minute))))
	}

	recent, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "req-3", recent[0].RequestID)
	assert.Equal(t, "req-2", recent[1].RequestID)
	assert.Equal(t, "Burp baby", recent[0].Advice)
	assert.InDelta(t, 0.25, recent[0].Probabilities["Tired"], 1e-9)

	counts, err := j.CountByLabel(ctx)
	require.NoError(t, err)
	assert.Equal(t, []LabelCount{{"Burping", 1}, {"Hunger", 2}, {"Pain", 1}}, counts)
}

func TestJournalRejectsDuplicateRequest(t *testing.T) {
	t.Parallel()

	j := openTestJournal(t)
	ev := event("req-dup", "Pain", time.Now().UTC())
	require.NoError(t, j.OnPrediction(context.Background(), ev))

	err := j.OnPrediction(context.Background(), ev)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))
}

func TestOpenUnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := Open("postgres", "host=localhost")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
