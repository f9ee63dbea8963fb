package report

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/tablewatch/pkg/occupancy"
)

func frame(idx, count int, durations map[int]float64, deps ...occupancy.Departure) occupancy.FrameResult {
	return occupancy.FrameResult{
		FrameIndex:    idx,
		Timestamp:     float64(idx),
		OccupantCount: count,
		Durations:     durations,
		Departures:    deps,
	}
}

func TestCollector_Summary(t *testing.T) {
	c := NewCollector("sess-1", 2)

	c.Publish(frame(1, 1, map[int]float64{1: 0}))
	c.Publish(frame(2, 2, map[int]float64{1: 0.5, 2: 0}))
	c.Publish(frame(3, 1, map[int]float64{2: 0.5},
		occupancy.Departure{TrackID: 1, StartTime: 0.5, LastSeenTime: 1, Duration: 4},
	))
	c.Publish(frame(4, 1, map[int]float64{2: 1, 3: 0},
		occupancy.Departure{TrackID: 5, StartTime: 0, LastSeenTime: 1, Duration: 10},
		occupancy.Departure{TrackID: 6, StartTime: 0, LastSeenTime: 1, Duration: 6},
	))

	s := c.Summary()
	assert.Equal(t, "sess-1", s.SessionID)
	assert.Equal(t, 4, s.Frames)
	assert.Equal(t, 2.0, s.VideoSeconds)
	assert.Equal(t, 3, s.Visits)
	assert.Equal(t, 2, s.PeakOccupancy)
	assert.InDelta(t, 20.0/3, s.MeanDwell, 1e-9)
	assert.Equal(t, 6.0, s.MedianDwell)
	assert.Equal(t, 10.0, s.P90Dwell)
	assert.Equal(t, 10.0, s.LongestDwell)
	assert.Greater(t, s.StdDevDwell, 0.0)
	assert.Equal(t, []Occupant{{TrackID: 2, Duration: 1}, {TrackID: 3, Duration: 0}}, s.Occupants)

	visits := c.Visits()
	require.Len(t, visits, 3)
	assert.Equal(t, Visit{TrackID: 1, StartTime: 0.5, EndTime: 1, Dwell: 4}, visits[0])
}

func TestCollector_SingleVisit(t *testing.T) {
	c := NewCollector("", 30)
	c.Publish(frame(1, 0, map[int]float64{}, occupancy.Departure{TrackID: 9, Duration: 3.2}))

	s := c.Summary()
	assert.Equal(t, 3.2, s.MeanDwell)
	assert.Equal(t, 0.0, s.StdDevDwell)
	assert.Equal(t, 3.2, s.MedianDwell)
	assert.Empty(t, s.Occupants)
}

func TestCollector_Empty(t *testing.T) {
	s := NewCollector("", 0).Summary()
	assert.Zero(t, s.Frames)
	assert.Zero(t, s.VideoSeconds)
	assert.Zero(t, s.MeanDwell)
	assert.NotNil(t, s.Occupants)
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector("", 30)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= 200; i++ {
			c.Publish(frame(i, 1, map[int]float64{1: float64(i)}))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = c.Summary()
		}
	}()
	wg.Wait()
	assert.Equal(t, 200, c.Summary().Frames)
}

func TestSummary_Write(t *testing.T) {
	s := Summary{
		Frames:       900,
		VideoSeconds: 30,
		Visits:       1,
		MeanDwell:    12.31,
		MedianDwell:  12.31,
		P90Dwell:     12.31,
		LongestDwell: 12.31,
		Occupants:    []Occupant{{TrackID: 4, Duration: 7.04}},
	}

	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf))
	out := buf.String()

	assert.Contains(t, out, "Total frames processed: 900")
	assert.Contains(t, out, "Video time: 30.0 seconds")
	assert.Contains(t, out, "ID 4: 7.0 seconds")
	assert.Contains(t, out, "median 12.3s")
	assert.NotContains(t, out, "No one at the table")
}

func TestSummary_WriteNobody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Summary{Frames: 10, VideoSeconds: 1}.Write(&buf))
	assert.Contains(t, buf.String(), "No one at the table at end of video.")
	assert.NotContains(t, buf.String(), "Dwell:")
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestSummary_WriteError(t *testing.T) {
	err := Summary{}.Write(failWriter{})
	assert.EqualError(t, err, "disk full")
}
