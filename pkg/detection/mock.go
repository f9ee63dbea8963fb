package detection

import (
	"context"
	"sync"
)

// Mock implements PersonTracker for testing.
type Mock struct {
	// TrackFunc is called when Track is invoked. Nil returns no detections.
	TrackFunc func(ctx context.Context, jpeg []byte) ([]Detection, error)

	mu     sync.Mutex
	calls  int
	closed bool
}

// Track calls TrackFunc and counts the call.
func (m *Mock) Track(ctx context.Context, jpeg []byte) ([]Detection, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.TrackFunc != nil {
		return m.TrackFunc(ctx, jpeg)
	}
	return nil, nil
}

// Close records that the tracker was closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Calls returns the number of Track calls.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
