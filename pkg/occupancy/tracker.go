package occupancy

import (
	"log/slog"
	"sort"
)

// Tracker maintains occupant records across frames.
type Tracker struct {
	config    Config
	region    Region
	threshold float64 // eviction threshold in frames
	logger    *slog.Logger

	records map[int]*OccupantRecord

	started   bool
	lastFrame int
	lastTime  float64
}

// New creates a tracker for the given region.
// It fails fast on a nil region or out-of-range settings.
func New(region Region, config Config) (*Tracker, error) {
	if region == nil {
		return nil, &RegionError{Shape: "nil", Reason: "a region is required"}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{
		config:    config,
		region:    region,
		threshold: config.EvictionThreshold(),
		logger:    logger.With("component", "occupancy"),
		records:   make(map[int]*OccupantRecord),
	}, nil
}

// ProcessFrame applies one frame of observations and returns the frame's result.
//
// Observations below MinConfidence or with a centroid outside the region are
// ignored. If a track id appears more than once, the last observation for it
// wins. Records not refreshed this frame are evicted once more than
// EvictionThreshold frames have passed since they were last seen.
func (t *Tracker) ProcessFrame(observations []Observation, frameIndex int, timestamp float64) FrameResult {
	if t.started {
		if frameIndex <= t.lastFrame {
			t.logger.Warn("frame index not increasing", "frame", frameIndex, "previous", t.lastFrame)
		}
		if timestamp < t.lastTime {
			t.logger.Warn("timestamp went backwards", "timestamp", timestamp, "previous", t.lastTime)
		}
	}
	t.started = true
	t.lastFrame = frameIndex
	t.lastTime = timestamp

	result := FrameResult{
		FrameIndex: frameIndex,
		Timestamp:  timestamp,
		Durations:  make(map[int]float64),
	}

	seen := make(map[int]struct{})
	for _, obs := range t.latestPerTrack(observations, frameIndex) {
		// Written as a negated >= so NaN confidences are dropped.
		if !(obs.Confidence >= t.config.MinConfidence) {
			continue
		}
		if !t.region.Contains(obs.Centroid) {
			continue
		}
		seen[obs.TrackID] = struct{}{}

		rec, ok := t.records[obs.TrackID]
		if !ok {
			rec = &OccupantRecord{TrackID: obs.TrackID, StartTime: timestamp}
			t.records[obs.TrackID] = rec
			result.Arrivals = append(result.Arrivals, obs.TrackID)
			t.logger.Info("occupant arrived", "track_id", obs.TrackID, "frame", frameIndex, "start", timestamp)
		}
		rec.LastSeenFrame = frameIndex
		rec.LastSeenTime = timestamp
		rec.State = StatePresent
		t.appendTrail(rec, obs.Centroid)
	}
	result.OccupantCount = len(seen)

	for id, rec := range t.records {
		if _, ok := seen[id]; ok {
			continue
		}
		rec.State = StateGrace
		if float64(frameIndex-rec.LastSeenFrame) <= t.threshold {
			continue
		}
		result.Departures = append(result.Departures, Departure{
			TrackID:      id,
			StartTime:    rec.StartTime,
			LastSeenTime: rec.LastSeenTime,
			VisitLength:  rec.LastSeenTime - rec.StartTime,
			Duration:     rec.Duration,
		})
		delete(t.records, id)
		t.logger.Info("occupant left", "track_id", id, "frame", frameIndex, "duration", rec.Duration)
	}

	for id, rec := range t.records {
		if d := timestamp - rec.StartTime; d > rec.Duration {
			rec.Duration = d
		}
		result.Durations[id] = rec.Duration
	}

	sort.Ints(result.Arrivals)
	sort.Slice(result.Departures, func(i, j int) bool {
		return result.Departures[i].TrackID < result.Departures[j].TrackID
	})

	return result
}

// latestPerTrack collapses duplicate track ids, keeping the last observation
// for each id in first-appearance order.
func (t *Tracker) latestPerTrack(observations []Observation, frameIndex int) []Observation {
	if len(observations) == 0 {
		return nil
	}

	index := make(map[int]int, len(observations))
	out := make([]Observation, 0, len(observations))
	for _, obs := range observations {
		if i, dup := index[obs.TrackID]; dup {
			t.logger.Warn("duplicate track id in frame, keeping the later one",
				"track_id", obs.TrackID, "frame", frameIndex)
			out[i] = obs
			continue
		}
		index[obs.TrackID] = len(out)
		out = append(out, obs)
	}
	return out
}

func (t *Tracker) appendTrail(rec *OccupantRecord, p Point) {
	if t.config.TrailLength == 0 {
		return
	}
	rec.Trail = append(rec.Trail, p)
	if over := len(rec.Trail) - t.config.TrailLength; over > 0 {
		rec.Trail = append(rec.Trail[:0], rec.Trail[over:]...)
	}
}

// Occupants returns copies of all current records, ordered by track id.
// Use it at end of stream for the session summary.
func (t *Tracker) Occupants() []OccupantRecord {
	out := make([]OccupantRecord, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrackID < out[j].TrackID })
	return out
}

// State returns the lifecycle state of a track id as of the last frame.
func (t *Tracker) State(trackID int) TrackState {
	rec, ok := t.records[trackID]
	if !ok {
		return StateAbsent
	}
	return rec.State
}

// Len returns the number of live records (present or in grace).
func (t *Tracker) Len() int {
	return len(t.records)
}

// Region returns the table region.
func (t *Tracker) Region() Region {
	return t.region
}

// Config returns the tracker settings.
func (t *Tracker) Config() Config {
	return t.config
}

// Reset forgets all records and frame history.
func (t *Tracker) Reset() {
	t.records = make(map[int]*OccupantRecord)
	t.started = false
	t.lastFrame = 0
	t.lastTime = 0
}
