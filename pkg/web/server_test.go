package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/tablewatch/pkg/monitor"
	"github.com/teslashibe/tablewatch/pkg/occupancy"
	"github.com/teslashibe/tablewatch/pkg/report"
	"github.com/teslashibe/tablewatch/pkg/store"
)

type fakeProvider struct {
	snap    monitor.Snapshot
	summary report.Summary
}

func (f *fakeProvider) Snapshot() monitor.Snapshot { return f.snap }
func (f *fakeProvider) Summary() report.Summary    { return f.summary }

func testServer(t *testing.T, history History) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, history)
}

func getJSON(t *testing.T, s *Server, path string, out any) int {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServer_Status(t *testing.T) {
	s := testServer(t, nil)

	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, s, "/api/status", nil))

	s.Attach(&fakeProvider{snap: monitor.Snapshot{
		Running:    true,
		SessionID:  "abc",
		FrameIndex: 90,
		Timestamp:  3,
		FPS:        30,
		Occupants: []occupancy.OccupantRecord{
			{TrackID: 1, Duration: 2, State: occupancy.StatePresent},
			{TrackID: 2, Duration: 1, State: occupancy.StateGrace},
		},
	}})

	var status StatusResponse
	require.Equal(t, http.StatusOK, getJSON(t, s, "/api/status", &status))
	assert.True(t, status.Running)
	assert.Equal(t, "abc", status.SessionID)
	assert.Equal(t, 90, status.FrameIndex)
	assert.Equal(t, 2, status.Occupants)

	var occupants []occupancy.OccupantRecord
	require.Equal(t, http.StatusOK, getJSON(t, s, "/api/occupants", &occupants))
	require.Len(t, occupants, 2)
	assert.Equal(t, occupancy.StateGrace, occupants[1].State)
}

func TestServer_Summary(t *testing.T) {
	s := testServer(t, nil)
	s.Attach(&fakeProvider{summary: report.Summary{Frames: 10, Visits: 2, LongestDwell: 42}})

	var sum report.Summary
	require.Equal(t, http.StatusOK, getJSON(t, s, "/api/summary", &sum))
	assert.Equal(t, 10, sum.Frames)
	assert.Equal(t, 42.0, sum.LongestDwell)
}

func TestServer_EventsFromPublish(t *testing.T) {
	s := testServer(t, nil)

	s.Publish(occupancy.FrameResult{FrameIndex: 1, Timestamp: 0.1, Arrivals: []int{3}})
	s.Publish(occupancy.FrameResult{FrameIndex: 2, Timestamp: 0.2})
	s.Publish(occupancy.FrameResult{
		FrameIndex: 95,
		Timestamp:  9.5,
		Departures: []occupancy.Departure{{TrackID: 3, Duration: 9.3}},
	})

	var events []Event
	require.Equal(t, http.StatusOK, getJSON(t, s, "/api/events", &events))
	assert.Equal(t, []Event{
		{Type: "arrival", Frame: 1, Timestamp: 0.1, TrackID: 3},
		{Type: "departure", Frame: 95, Timestamp: 9.5, TrackID: 3, Dwell: 9.3},
	}, events)
}

func TestServer_EventLogBounded(t *testing.T) {
	s := testServer(t, nil)
	for i := 1; i <= maxEvents+10; i++ {
		s.Publish(occupancy.FrameResult{FrameIndex: i, Arrivals: []int{i}})
	}

	var events []Event
	getJSON(t, s, "/api/events", &events)
	require.Len(t, events, maxEvents)
	assert.Equal(t, 11, events[0].TrackID)
}

func TestServer_Sessions(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	sess := &store.Session{Source: "cafe.mp4", FPS: 30, GraceSeconds: 3, MinConfidence: 0.5}
	require.NoError(t, db.CreateSession(ctx, sess))
	_, err = db.RecordVisit(ctx, store.Visit{SessionID: sess.ID, TrackID: 5, StartTime: 1, LastSeenTime: 9, Dwell: 11})
	require.NoError(t, err)

	s := testServer(t, db)

	var sessions []store.Session
	require.Equal(t, http.StatusOK, getJSON(t, s, "/api/sessions", &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, sess.ID, sessions[0].ID)

	var got store.Session
	require.Equal(t, http.StatusOK, getJSON(t, s, "/api/sessions/"+sess.ID, &got))
	assert.Equal(t, "cafe.mp4", got.Source)

	var visits []store.Visit
	require.Equal(t, http.StatusOK, getJSON(t, s, "/api/sessions/"+sess.ID+"/visits", &visits))
	require.Len(t, visits, 1)
	assert.Equal(t, 11.0, visits[0].Dwell)

	assert.Equal(t, http.StatusNotFound, getJSON(t, s, "/api/sessions/missing", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, s, "/api/sessions/missing/visits", nil))
}

func TestServer_SessionsDisabled(t *testing.T) {
	s := testServer(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, s, "/api/sessions", nil))
}

func TestServer_WebSocketRequiresUpgrade(t *testing.T) {
	s := testServer(t, nil)
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/ws/occupancy", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestServer_WebSocketStream(t *testing.T) {
	s := testServer(t, nil)
	s.Attach(&fakeProvider{snap: monitor.Snapshot{Running: true, FPS: 30}})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Serve(ctx, ln) }()

	conn, _, err := gorillaws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/occupancy", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first map[string]any
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "snapshot", first["type"])

	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	s.Publish(occupancy.FrameResult{
		FrameIndex:    1,
		Timestamp:     1.0 / 30,
		OccupantCount: 1,
		Durations:     map[int]float64{4: 0},
		Arrivals:      []int{4},
	})

	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, Event{Type: "arrival", Frame: 1, Timestamp: 1.0 / 30, TrackID: 4}, ev)

	var update FrameUpdate
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, "frame", update.Type)
	assert.Equal(t, 1, update.OccupantCount)
	assert.Equal(t, map[int]float64{4: 0}, update.Durations)
}

func TestServer_BroadcastEvery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BroadcastEvery = 10
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer(cfg, nil)

	for i := 1; i <= 25; i++ {
		s.Publish(occupancy.FrameResult{FrameIndex: i})
	}
	// Hub is not running, so queued broadcasts stay buffered.
	assert.Equal(t, 2, s.occupancyHub.Pending())
}

func TestServer_ServeWaitsForShutdown(t *testing.T) {
	s := testServer(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/api/events")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	select {
	case <-s.Hub().Done():
	default:
		t.Fatal("hub still running after Serve returned")
	}
}
