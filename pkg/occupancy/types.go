// Package occupancy decides which tracked people are sitting at a table
// region and for how long.
//
// A Tracker is fed one frame of tracked person observations at a time. It
// keeps one OccupantRecord per track id that has been seen inside the region,
// lets a record ride out short gaps (the grace window), and evicts it once the
// track has been missing for longer than the eviction threshold.
//
// Per track id the lifecycle is:
//
//	Absent --qualifying obs--> Present --missed frame--> Grace --gap > threshold--> Absent
//	                              ^                         |
//	                              +----qualifying obs-------+  (start time kept)
//
// A Tracker is not safe for concurrent use; one driving loop owns it.
package occupancy

// Observation is one tracked person in the current frame.
type Observation struct {
	TrackID    int     `json:"track_id"`
	Centroid   Point   `json:"centroid"`
	Confidence float64 `json:"confidence"`
}

// TrackState is the lifecycle state of a track id.
type TrackState string

const (
	StateAbsent  TrackState = "absent"  // No record
	StatePresent TrackState = "present" // Observed inside the region this frame
	StateGrace   TrackState = "grace"   // Record kept, not observed this frame
)

// OccupantRecord is the bookkeeping for one track at the table.
type OccupantRecord struct {
	TrackID       int        `json:"track_id"`
	StartTime     float64    `json:"start_time"`      // Timestamp of first qualifying observation
	LastSeenFrame int        `json:"last_seen_frame"` // Frame index of last qualifying observation
	LastSeenTime  float64    `json:"last_seen_time"`  // Timestamp of last qualifying observation
	Duration      float64    `json:"duration"`        // Seconds since StartTime at the latest frame
	State         TrackState `json:"state"`

	// Trail holds the most recent in-region centroids, oldest first.
	Trail []Point `json:"trail,omitempty"`
}

func (r *OccupantRecord) clone() OccupantRecord {
	c := *r
	if r.Trail != nil {
		c.Trail = make([]Point, len(r.Trail))
		copy(c.Trail, r.Trail)
	}
	return c
}

// Departure is emitted when a record is evicted.
type Departure struct {
	TrackID      int     `json:"track_id"`
	StartTime    float64 `json:"start_time"`
	LastSeenTime float64 `json:"last_seen_time"`

	// VisitLength is LastSeenTime - StartTime: time actually observed at the table.
	VisitLength float64 `json:"visit_length"`

	// Duration is the dwell reported on the frame before eviction.
	Duration float64 `json:"duration"`
}

// FrameResult is the outcome of processing one frame.
type FrameResult struct {
	FrameIndex int     `json:"frame_index"`
	Timestamp  float64 `json:"timestamp"`

	// OccupantCount counts distinct qualifying tracks in this frame only.
	OccupantCount int `json:"occupant_count"`

	// Durations covers every non-evicted record, including those in grace.
	Durations map[int]float64 `json:"durations"`

	// Arrivals lists track ids that went Absent -> Present this frame, ascending.
	Arrivals []int `json:"arrivals,omitempty"`

	// Departures lists records evicted this frame, ordered by track id.
	Departures []Departure `json:"departures,omitempty"`
}
