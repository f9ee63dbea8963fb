// Package report summarizes a monitoring run: frame totals, completed
// visits and dwell statistics, and who is still seated at the end.
package report

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/teslashibe/tablewatch/pkg/occupancy"
)

// Visit is a completed stay at the table.
type Visit struct {
	TrackID   int     `json:"track_id"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"` // last time the occupant was seen
	Dwell     float64 `json:"dwell"`    // last reported duration
}

// Occupant is someone still at the table.
type Occupant struct {
	TrackID  int     `json:"track_id"`
	Duration float64 `json:"duration"`
}

// Summary is the end-of-run report. Dwell statistics cover completed
// visits only.
type Summary struct {
	SessionID     string     `json:"session_id,omitempty"`
	Frames        int        `json:"frames"`
	VideoSeconds  float64    `json:"video_seconds"`
	Visits        int        `json:"visits"`
	PeakOccupancy int        `json:"peak_occupancy"`
	MeanDwell     float64    `json:"mean_dwell"`
	StdDevDwell   float64    `json:"stddev_dwell"`
	MedianDwell   float64    `json:"median_dwell"`
	P90Dwell      float64    `json:"p90_dwell"`
	LongestDwell  float64    `json:"longest_dwell"`
	Occupants     []Occupant `json:"occupants"`
}

// Collector accumulates frame results. It is safe for concurrent use,
// so the web server can read a live summary while frames arrive.
type Collector struct {
	sessionID string
	fps       float64

	mu        sync.Mutex
	frames    int
	lastFrame int
	peak      int
	visits    []Visit
	current   map[int]float64
}

// NewCollector creates a collector for a run at fps.
func NewCollector(sessionID string, fps float64) *Collector {
	return &Collector{
		sessionID: sessionID,
		fps:       fps,
		current:   make(map[int]float64),
	}
}

// Publish records one frame.
func (c *Collector) Publish(r occupancy.FrameResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.frames++
	if r.FrameIndex > c.lastFrame {
		c.lastFrame = r.FrameIndex
	}
	if r.OccupantCount > c.peak {
		c.peak = r.OccupantCount
	}
	for _, d := range r.Departures {
		c.visits = append(c.visits, Visit{
			TrackID:   d.TrackID,
			StartTime: d.StartTime,
			EndTime:   d.LastSeenTime,
			Dwell:     d.Duration,
		})
	}

	c.current = make(map[int]float64, len(r.Durations))
	for id, dur := range r.Durations {
		c.current[id] = dur
	}
}

// Visits returns the completed visits in departure order.
func (c *Collector) Visits() []Visit {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Visit, len(c.visits))
	copy(out, c.visits)
	return out
}

// Summary builds the report from everything published so far.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		SessionID:     c.sessionID,
		Frames:        c.frames,
		Visits:        len(c.visits),
		PeakOccupancy: c.peak,
		Occupants:     make([]Occupant, 0, len(c.current)),
	}
	if c.fps > 0 {
		s.VideoSeconds = float64(c.lastFrame) / c.fps
	}

	for id, dur := range c.current {
		s.Occupants = append(s.Occupants, Occupant{TrackID: id, Duration: dur})
	}
	sort.Slice(s.Occupants, func(i, j int) bool {
		return s.Occupants[i].TrackID < s.Occupants[j].TrackID
	})

	if len(c.visits) > 0 {
		dwell := make([]float64, len(c.visits))
		for i, v := range c.visits {
			dwell[i] = v.Dwell
		}
		sort.Float64s(dwell)
		s.MeanDwell, s.StdDevDwell = stat.MeanStdDev(dwell, nil)
		s.MedianDwell = stat.Quantile(0.5, stat.Empirical, dwell, nil)
		s.P90Dwell = stat.Quantile(0.9, stat.Empirical, dwell, nil)
		s.LongestDwell = floats.Max(dwell)
		if len(dwell) == 1 {
			s.StdDevDwell = 0
		}
	}
	return s
}

// Write prints the console summary.
func (s Summary) Write(w io.Writer) error {
	ew := &errWriter{w: w}
	ew.printf("\n=== SUMMARY ===\n")
	if s.SessionID != "" {
		ew.printf("Session: %s\n", s.SessionID)
	}
	ew.printf("Total frames processed: %d\n", s.Frames)
	ew.printf("Video time: %.1f seconds\n", s.VideoSeconds)
	ew.printf("Completed visits: %d (peak occupancy %d)\n", s.Visits, s.PeakOccupancy)
	if s.Visits > 0 {
		ew.printf("Dwell: mean %.1fs, median %.1fs, p90 %.1fs, longest %.1fs\n",
			s.MeanDwell, s.MedianDwell, s.P90Dwell, s.LongestDwell)
	}
	if len(s.Occupants) > 0 {
		ew.printf("Still at the table:\n")
		for _, o := range s.Occupants {
			ew.printf("  ID %d: %.1f seconds\n", o.TrackID, o.Duration)
		}
	} else {
		ew.printf("No one at the table at end of video.\n")
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
