package detection

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const recording = `{"frame":1,"detections":[{"track_id":1,"box":[450,350,80,120],"confidence":0.9,"class_id":0}]}

{"frame":3,"detections":[{"track_id":1,"box":[452,351,80,120],"confidence":0.88,"class_id":0}]}
{"detections":[]}
`

func TestNewReplay(t *testing.T) {
	r, err := NewReplay(strings.NewReader(recording))
	require.NoError(t, err)
	assert.Equal(t, 4, r.Frames())

	ctx := context.Background()

	f1, err := r.Track(ctx, nil)
	require.NoError(t, err)
	require.Len(t, f1, 1)
	assert.Equal(t, 1, *f1[0].TrackID)

	f2, err := r.Track(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, f2, "gap replays as an empty frame")

	f3, err := r.Track(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 452.0, f3[0].CenterX)

	f4, err := r.Track(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, f4)

	_, err = r.Track(ctx, nil)
	assert.ErrorIs(t, err, ErrReplayExhausted)

	r.Rewind()
	again, err := r.Track(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, f1, again)
}

func TestNewReplay_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bad json", "{nope}\n", "line 1"},
		{"duplicate frame", `{"frame":2,"detections":[]}` + "\n" + `{"frame":2,"detections":[]}`, "duplicate frame 2"},
		{"negative frame", `{"frame":-1,"detections":[]}`, "negative frame"},
		{"negative box", `{"frame":1,"detections":[{"box":[0,0,1,-1]}]}`, "negative box size"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewReplay(strings.NewReader(tc.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestRecord_LoadReplay(t *testing.T) {
	frames := [][]Detection{
		{{TrackID: IntPtr(2), CenterX: 400, CenterY: 300, Width: 50, Height: 90, Confidence: 0.7}},
		{},
		{{TrackID: nil, CenterX: 10, CenterY: 10, Width: 5, Height: 5, Confidence: 0.4, ClassID: 56}},
	}

	var buf bytes.Buffer
	require.NoError(t, Record(&buf, frames))

	path := filepath.Join(t.TempDir(), "run.jsonl")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	r, err := LoadReplay(path)
	require.NoError(t, err)
	require.Equal(t, len(frames), r.Frames())

	for i, want := range frames {
		got, err := r.Track(context.Background(), nil)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("frame %d mismatch (-want +got):\n%s", i+1, diff)
		}
	}
}

func TestReplay_ClosedAndCanceled(t *testing.T) {
	r := NewReplayFrames([][]Detection{{}, {}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Track(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, r.Close())
	_, err = r.Track(context.Background(), nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLoadReplay_Missing(t *testing.T) {
	_, err := LoadReplay(filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.Error(t, err)
}
