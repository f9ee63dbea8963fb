// Package capture decodes video files with OpenCV. It is the only part of
// tablewatch that needs cgo; replay runs use video.Synthetic instead.
package capture

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/tablewatch/internal/log"
	"github.com/teslashibe/tablewatch/pkg/video"
)

var _ video.Source = (*Capture)(nil)

// Config configures a file or device capture.
type Config struct {
	// FallbackFPS is used when the container reports no frame rate.
	FallbackFPS float64

	// JPEGQuality is the encode quality, 1-100.
	JPEGQuality int

	Logger *slog.Logger
}

// DefaultConfig returns capture defaults.
func DefaultConfig() Config {
	return Config{
		FallbackFPS: 30,
		JPEGQuality: 90,
	}
}

// Info describes an opened stream.
type Info struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int // 0 when unknown (live devices)
}

// Capture reads frames from a video file with OpenCV.
type Capture struct {
	cap    *gocv.VideoCapture
	mat    gocv.Mat
	info   Info
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Open opens a video file for reading.
func Open(path string, cfg Config) (*Capture, error) {
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = DefaultConfig().JPEGQuality
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.L()
	}
	logger = logger.With("component", "capture")

	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("video: open %s: %w", path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("video: open %s: not readable", path)
	}

	info := Info{
		Width:      int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(vc.Get(gocv.VideoCaptureFrameHeight)),
		FPS:        vc.Get(gocv.VideoCaptureFPS),
		FrameCount: int(vc.Get(gocv.VideoCaptureFrameCount)),
	}
	if info.FPS <= 0 || math.IsNaN(info.FPS) || math.IsInf(info.FPS, 0) {
		if cfg.FallbackFPS <= 0 {
			vc.Close()
			return nil, fmt.Errorf("video: %s reports no frame rate and no fallback is set", path)
		}
		logger.Warn("container reports no frame rate, using fallback", "fps", cfg.FallbackFPS)
		info.FPS = cfg.FallbackFPS
	}

	logger.Info("video opened",
		"path", path,
		"width", info.Width,
		"height", info.Height,
		"fps", info.FPS,
		"frames", info.FrameCount,
	)

	return &Capture{
		cap:    vc,
		mat:    gocv.NewMat(),
		info:   info,
		config: cfg,
		logger: logger,
	}, nil
}

// Info returns stream metadata.
func (c *Capture) Info() Info { return c.info }

// FPS implements video.Source.
func (c *Capture) FPS() float64 { return c.info.FPS }

// Next reads and JPEG-encodes the next frame.
func (c *Capture) Next() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, video.ErrClosed
	}

	if ok := c.cap.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, io.EOF
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, c.mat, []int{gocv.IMWriteJpegQuality, c.config.JPEGQuality})
	if err != nil {
		return nil, fmt.Errorf("video: encode frame: %w", err)
	}
	defer buf.Close()

	src := buf.GetBytes()
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

// Close releases the capture.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.mat.Close()
	return c.cap.Close()
}
