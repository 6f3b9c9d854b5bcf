//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permitscope/permitscope/internal/model"
)

func TestParseSinceFlag(t *testing.T) {
	got, err := parseSinceFlag("2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), got)

	got, err = parseSinceFlag("2024-03-15T08:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 8, 30, 0, 0, time.UTC), got)

	_, err = parseSinceFlag("last tuesday")
	assert.Error(t, err)
}

func TestCounterHelpers(t *testing.T) {
	counters := map[string]any{
		"nextOffset": 4000,
		"fetched":    int64(12),
		"ratio":      3.0,
		"done":       true,
	}

	v, ok := counterInt(counters, "nextOffset")
	assert.True(t, ok)
	assert.Equal(t, 4000, v)

	v, ok = counterInt(counters, "fetched")
	assert.True(t, ok)
	assert.Equal(t, 12, v)

	v, ok = counterInt(counters, "ratio")
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = counterInt(counters, "missing")
	assert.False(t, ok)

	b, ok := counterBool(counters, "done")
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = counterBool(counters, "nextOffset")
	assert.False(t, ok)
}

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 5, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.JobRun{
		{
			ID:         "abc12345-6789-0000-0000-000000000000",
			JobName:    "sync_permits",
			SourceKey:  "LADBS_PERMITS",
			Status:     model.JobSuccess,
			RowCount:   1250,
			StartedAt:  now,
			FinishedAt: now.Add(90 * time.Second),
		},
		{
			ID:         "def12345-6789-0000-0000-000000000000",
			JobName:    "compute_durations",
			SourceKey:  "DERIVED",
			Status:     model.JobFailed,
			Message:    "durations: query inspections",
			StartedAt:  now.Add(-1 * time.Hour),
			FinishedAt: now.Add(-59 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "JOB")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "sync_permits")
	assert.Contains(t, output, "SUCCESS")
	assert.Contains(t, output, "1250")
	assert.Contains(t, output, "compute_durations")
	assert.Contains(t, output, "FAILED")
	assert.Contains(t, output, "2026-05-15 10:30")
	assert.Contains(t, output, "1m30s")
}
