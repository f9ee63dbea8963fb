// Package video provides frame sources for the occupancy monitor.
// Frames are handed out JPEG-encoded, which is what the tracking
// service accepts.
package video

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"sync"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("video: source closed")

// Source yields frames in order.
type Source interface {
	// Next returns the next JPEG frame, or io.EOF at end of stream.
	Next() ([]byte, error)

	// FPS is the nominal frame rate used to derive timestamps.
	FPS() float64

	// Close releases the source.
	Close() error
}

// Synthetic emits a fixed number of blank frames. It pairs with a
// recorded tracker replay when the original footage is not at hand.
type Synthetic struct {
	fps    float64
	frames int

	mu     sync.Mutex
	served int
	closed bool
	frame  []byte
}

// NewSynthetic returns a source of n blank 64x48 frames at fps.
// A negative n produces an endless stream.
func NewSynthetic(n int, fps float64) (*Synthetic, error) {
	img := image.NewGray(image.Rect(0, 0, 64, 48))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 50}); err != nil {
		return nil, err
	}
	return &Synthetic{fps: fps, frames: n, frame: buf.Bytes()}, nil
}

// Next implements Source.
func (s *Synthetic) Next() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.frames >= 0 && s.served >= s.frames {
		return nil, io.EOF
	}
	s.served++
	out := make([]byte, len(s.frame))
	copy(out, s.frame)
	return out, nil
}

// FPS implements Source.
func (s *Synthetic) FPS() float64 { return s.fps }

// Close implements Source.
func (s *Synthetic) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
