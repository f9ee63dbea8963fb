package detection

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

const maxReplayLine = 4 << 20

// Replay serves recorded tracker output one frame per Track call.
// Frames are keyed by their 1-based frame number; gaps in the recording
// replay as frames with no detections.
type Replay struct {
	mu     sync.Mutex
	frames [][]Detection
	next   int
	closed bool
}

// LoadReplay reads a JSON lines recording from path.
func LoadReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("detection: open replay: %w", err)
	}
	defer f.Close()
	return NewReplay(f)
}

// NewReplay parses a recording with one {"frame":n,"detections":[...]}
// object per line. Lines without a frame number take the next index.
func NewReplay(r io.Reader) (*Replay, error) {
	byFrame := make(map[int][]Detection)
	last := 0

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxReplayLine)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}

		var wf wireFrame
		if err := json.Unmarshal(raw, &wf); err != nil {
			return nil, fmt.Errorf("detection: replay line %d: %w", line, err)
		}
		idx := wf.Frame
		if idx == 0 {
			idx = last + 1
		}
		if idx < 0 {
			return nil, fmt.Errorf("detection: replay line %d: negative frame %d", line, idx)
		}
		if _, dup := byFrame[idx]; dup {
			return nil, fmt.Errorf("detection: replay line %d: duplicate frame %d", line, idx)
		}

		dets, err := fromWire(wf.Detections)
		if err != nil {
			return nil, fmt.Errorf("detection: replay line %d: %w", line, err)
		}
		byFrame[idx] = dets
		if idx > last {
			last = idx
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("detection: read replay: %w", err)
	}

	frames := make([][]Detection, last)
	for idx, dets := range byFrame {
		frames[idx-1] = dets
	}
	return &Replay{frames: frames}, nil
}

// NewReplayFrames builds a replay from in-memory frames, first frame first.
func NewReplayFrames(frames [][]Detection) *Replay {
	cp := make([][]Detection, len(frames))
	copy(cp, frames)
	return &Replay{frames: cp}
}

// Frames returns the number of recorded frames.
func (r *Replay) Frames() int {
	return len(r.frames)
}

// Track returns the next recorded frame. The image is ignored.
func (r *Replay) Track(ctx context.Context, _ []byte) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if r.next >= len(r.frames) {
		return nil, ErrReplayExhausted
	}
	dets := r.frames[r.next]
	r.next++

	out := make([]Detection, len(dets))
	copy(out, dets)
	return out, nil
}

// Rewind restarts the replay from the first frame.
func (r *Replay) Rewind() {
	r.mu.Lock()
	r.next = 0
	r.mu.Unlock()
}

// Close implements PersonTracker.
func (r *Replay) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Record writes frames in the replay format, numbering from 1.
func Record(w io.Writer, frames [][]Detection) error {
	enc := json.NewEncoder(w)
	for i, dets := range frames {
		wf := wireFrame{Frame: i + 1, Detections: make([]wireDetection, len(dets))}
		for j, d := range dets {
			wf.Detections[j] = toWire(d)
		}
		if err := enc.Encode(wf); err != nil {
			return fmt.Errorf("detection: write frame %d: %w", i+1, err)
		}
	}
	return nil
}
