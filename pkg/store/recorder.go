package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/tablewatch/pkg/occupancy"
)

const writeTimeout = 5 * time.Second

// Recorder persists departures as they happen. Write failures are logged
// and counted; they never stop the monitor.
type Recorder struct {
	store     *Store
	sessionID string
	logger    *slog.Logger

	mu       sync.Mutex
	written  int
	failures int
}

// NewRecorder creates a recorder for sessionID.
func NewRecorder(s *Store, sessionID string) *Recorder {
	return &Recorder{
		store:     s,
		sessionID: sessionID,
		logger:    s.logger.With("session_id", sessionID),
	}
}

// Publish stores every departure in r.
func (r *Recorder) Publish(res occupancy.FrameResult) {
	for _, d := range res.Departures {
		r.write(Visit{
			SessionID:    r.sessionID,
			TrackID:      d.TrackID,
			StartTime:    d.StartTime,
			LastSeenTime: d.LastSeenTime,
			Dwell:        d.Duration,
		})
	}
}

// Flush stores occupants still present at the end of a run as open visits.
func (r *Recorder) Flush(occupants []occupancy.OccupantRecord) {
	for _, o := range occupants {
		r.write(Visit{
			SessionID:    r.sessionID,
			TrackID:      o.TrackID,
			StartTime:    o.StartTime,
			LastSeenTime: o.LastSeenTime,
			Dwell:        o.Duration,
			Open:         true,
		})
	}
}

// Stats returns the number of stored visits and failed writes.
func (r *Recorder) Stats() (written, failures int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written, r.failures
}

func (r *Recorder) write(v Visit) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	_, err := r.store.RecordVisit(ctx, v)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failures++
		r.logger.Error("failed to store visit", "track_id", v.TrackID, "error", err)
		return
	}
	r.written++
}
