// Package monitor drives the per-frame loop: read a frame, ask the person
// tracker who is in it, update table occupancy and fan the result out to
// sinks.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/teslashibe/tablewatch/internal/log"
	"github.com/teslashibe/tablewatch/pkg/detection"
	"github.com/teslashibe/tablewatch/pkg/occupancy"
	"github.com/teslashibe/tablewatch/pkg/report"
	"github.com/teslashibe/tablewatch/pkg/video"
)

// Sink receives every frame result, in frame order, from the loop goroutine.
type Sink interface {
	Publish(occupancy.FrameResult)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(occupancy.FrameResult)

// Publish calls f(r).
func (f SinkFunc) Publish(r occupancy.FrameResult) { f(r) }

// Config configures a Monitor.
type Config struct {
	SessionID string
	ClassID   int  // Detection class counted as a person
	Realtime  bool // Pace frames at the source frame rate
	MaxFrames int  // Stop after this many frames; 0 runs to end of stream

	// ProgressEvery logs a progress line every N frames; 0 disables.
	ProgressEvery int

	Logger *slog.Logger
}

// DefaultConfig returns the offline, as-fast-as-possible configuration.
func DefaultConfig() Config {
	return Config{
		ClassID:       detection.ClassPerson,
		ProgressEvery: 300,
	}
}

// Snapshot is the state after the most recent frame.
type Snapshot struct {
	Running    bool                       `json:"running"`
	SessionID  string                     `json:"session_id,omitempty"`
	FrameIndex int                        `json:"frame_index"`
	Timestamp  float64                    `json:"timestamp"`
	FPS        float64                    `json:"fps"`
	Region     []occupancy.Point          `json:"region"`
	Last       occupancy.FrameResult      `json:"last"`
	Occupants  []occupancy.OccupantRecord `json:"occupants"`
}

// Monitor owns the occupancy tracker and runs it over a video source.
type Monitor struct {
	source    video.Source
	persons   detection.PersonTracker
	tracker   *occupancy.Tracker
	collector *report.Collector
	sinks     []Sink
	config    Config
	fps       float64
	logger    *slog.Logger

	mu       sync.RWMutex
	snapshot Snapshot
}

// New creates a monitor. The occupancy tracker must not be shared.
func New(src video.Source, persons detection.PersonTracker, tracker *occupancy.Tracker, cfg Config, sinks ...Sink) (*Monitor, error) {
	if src == nil || persons == nil || tracker == nil {
		return nil, errors.New("monitor: source, person tracker and occupancy tracker are required")
	}
	fps := src.FPS()
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return nil, fmt.Errorf("monitor: source frame rate %v must be positive", fps)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.L()
	}
	logger = logger.With("component", "monitor")

	if tfps := tracker.Config().FrameRate; tfps != fps {
		logger.Warn("occupancy frame rate differs from source, grace period will be off",
			"source_fps", fps,
			"tracker_fps", tfps,
		)
	}

	return &Monitor{
		source:    src,
		persons:   persons,
		tracker:   tracker,
		collector: report.NewCollector(cfg.SessionID, fps),
		sinks:     sinks,
		config:    cfg,
		fps:       fps,
		logger:    logger,
		snapshot: Snapshot{
			SessionID: cfg.SessionID,
			FPS:       fps,
			Region:    tracker.Region().Vertices(),
			Occupants: []occupancy.OccupantRecord{},
		},
	}, nil
}

// Collector returns the run's report collector.
func (m *Monitor) Collector() *report.Collector {
	return m.collector
}

// Snapshot returns the state after the latest frame. Safe to call while
// Run is active.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.Occupants = make([]occupancy.OccupantRecord, len(m.snapshot.Occupants))
	copy(s.Occupants, m.snapshot.Occupants)
	return s
}

// Summary returns the report so far.
func (m *Monitor) Summary() report.Summary {
	return m.collector.Summary()
}

// Run processes frames until end of stream, MaxFrames, a source error or
// context cancellation. The summary is returned in every case; the error
// is nil only for a clean end of stream.
func (m *Monitor) Run(ctx context.Context) (report.Summary, error) {
	m.setRunning(true)
	defer m.setRunning(false)

	var tick <-chan time.Time
	if m.config.Realtime {
		ticker := time.NewTicker(time.Duration(float64(time.Second) / m.fps))
		defer ticker.Stop()
		tick = ticker.C
	}

	m.logger.Info("monitor started", "fps", m.fps, "realtime", m.config.Realtime)
	started := time.Now()

	err := m.loop(ctx, tick)

	summary := m.collector.Summary()
	m.logger.Info("monitor stopped",
		"frames", summary.Frames,
		"video_seconds", summary.VideoSeconds,
		"visits", summary.Visits,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return summary, err
}

func (m *Monitor) loop(ctx context.Context, tick <-chan time.Time) error {
	for frame := 1; ; frame++ {
		if m.config.MaxFrames > 0 && frame > m.config.MaxFrames {
			return nil
		}

		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		jpeg, err := m.source.Next()
		if errors.Is(err, io.EOF) {
			m.logger.Info("end of video", "frames", frame-1)
			return nil
		}
		if err != nil {
			return fmt.Errorf("monitor: read frame %d: %w", frame, err)
		}

		dets, err := m.persons.Track(ctx, jpeg)
		switch {
		case err == nil:
		case errors.Is(err, detection.ErrReplayExhausted):
			m.logger.Info("tracker replay exhausted", "frames", frame-1)
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			// The frame still counts; records age toward eviction.
			m.logger.Warn("person tracking failed, treating frame as empty", "frame", frame, "error", err)
			dets = nil
		}

		m.step(frame, detection.ToObservations(dets, m.config.ClassID))
	}
}

func (m *Monitor) step(frame int, obs []occupancy.Observation) {
	ts := float64(frame) / m.fps
	result := m.tracker.ProcessFrame(obs, frame, ts)

	m.mu.Lock()
	m.snapshot.FrameIndex = frame
	m.snapshot.Timestamp = ts
	m.snapshot.Last = result
	m.snapshot.Occupants = m.tracker.Occupants()
	m.mu.Unlock()

	m.collector.Publish(result)
	for _, s := range m.sinks {
		s.Publish(result)
	}

	if n := m.config.ProgressEvery; n > 0 && frame%n == 0 {
		m.logger.Debug("progress",
			"frame", frame,
			"timestamp", ts,
			"occupants", len(result.Durations),
		)
	}
}

func (m *Monitor) setRunning(running bool) {
	m.mu.Lock()
	m.snapshot.Running = running
	m.mu.Unlock()
}
