package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/kirkifier/internal/store"
	"github.com/andresmejia3/kirkifier/internal/workspace"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunInit(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	eng := &fakeEngine{}
	var stdout, stderr bytes.Buffer
	err := runInit(context.Background(), func(context.Context) (engine, error) { return eng, nil }, zap.NewNop(), &stdout, &stderr)
	require.NoError(t, err)

	assert.Equal(t, "initialized!!\n", stdout.String())
	assert.True(t, eng.closed)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries, "init must not create working files")
}

func TestRunInit_Failure(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := runInit(context.Background(), func(context.Context) (engine, error) {
		return nil, errors.New("CUDA driver version is insufficient")
	}, zap.NewNop(), &stdout, &stderr)

	var reported *reportedError
	require.ErrorAs(t, err, &reported)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "Model initialization failed")
	assert.Contains(t, stderr.String(), "CUDA driver")
}

func TestRenderHistory(t *testing.T) {
	start := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	runs := []store.Run{{
		ID:           uuid.MustParse("0b9f3c1e-8f2a-4c55-9d0e-111111111111"),
		InputPath:    "holiday.mp4",
		OutputPath:   "holiday_kirk.mp4",
		Reference:    "kirks/kirk_1.jpg",
		FrameRate:    "30000/1001",
		Frames:       900,
		FacesSwapped: 1234,
		StartedAt:    start,
		FinishedAt:   start.Add(95 * time.Second),
	}}

	out := renderHistory(runs)
	for _, want := range []string{"INPUT", "FACES", "0b9f3c1e", "holiday_kirk.mp4", "kirk_1.jpg", "30000/1001", "900", "1234", "1m35s"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "kirks/", "only the image name is shown")
}

func leftoverWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws := workspace.New(t.TempDir())
	_, err := ws.Prepare()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(ws.UnprocessedDir(), "frame_0001.png"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(ws.AudioPath(), []byte("aac"), 0644))
	return ws
}

func TestReset_Files(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		removed bool
	}{
		{"confirmed", "y\n", true},
		{"confirmed long form", "YES\n", true},
		{"declined", "n\n", false},
		{"no answer", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := leftoverWorkspace(t)
			var out bytes.Buffer
			r := resetter{in: strings.NewReader(tt.answer), out: &out, ws: ws}

			require.NoError(t, r.run(context.Background(), false, true))
			assert.Contains(t, out.String(), "System Reset Complete")
			if tt.removed {
				assert.Empty(t, ws.Leftovers())
			} else {
				assert.Len(t, ws.Leftovers(), 3)
			}
			assert.NoFileExists(t, filepath.Join(ws.Root, ".kirkifier.lock"))
		})
	}
}

func TestReset_NothingToDo(t *testing.T) {
	var out bytes.Buffer
	r := resetter{in: strings.NewReader(""), out: &out, ws: workspace.New(t.TempDir())}

	// No flags means everything; with no database and no files there is nothing to ask.
	require.NoError(t, r.run(context.Background(), false, false))
	assert.Contains(t, out.String(), "No database configured")
	assert.Contains(t, out.String(), "No leftover working files")
	assert.NotContains(t, out.String(), "[y/N]")
}
