package occupancy

import (
	"log/slog"
	"math"
	"time"
)

// Config holds the tunable parameters of the occupancy tracker.
type Config struct {
	// MinConfidence discards observations scoring below it (0-1).
	MinConfidence float64

	// FrameRate of the source video in frames per second.
	FrameRate float64

	// GracePeriod is how long a track may go unseen inside the region
	// before its record is evicted. Converted to frames via FrameRate.
	GracePeriod time.Duration

	// TrailLength caps the per-track centroid history (0 disables it).
	TrailLength int

	// Logger receives arrival/departure events. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the recommended settings: 0.5 confidence and a
// 3 second grace window at 30 fps.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 0.5,
		FrameRate:     30,
		GracePeriod:   3 * time.Second,
		TrailLength:   30,
	}
}

// ShortGraceConfig evicts after 2 seconds, for busy tables where a quick
// turnover matters more than riding out occlusions.
func ShortGraceConfig() Config {
	cfg := DefaultConfig()
	cfg.GracePeriod = 2 * time.Second
	return cfg
}

// EvictionThreshold returns the number of unseen frames a record survives.
// A record is evicted once frames-since-last-seen is strictly greater.
func (c Config) EvictionThreshold() float64 {
	return c.FrameRate * c.GracePeriod.Seconds()
}

// Validate checks that all settings are in range.
func (c Config) Validate() error {
	switch {
	case math.IsNaN(c.MinConfidence) || c.MinConfidence < 0 || c.MinConfidence > 1:
		return &ConfigError{Field: "MinConfidence", Reason: "must be within [0, 1]"}
	case math.IsNaN(c.FrameRate) || math.IsInf(c.FrameRate, 0) || c.FrameRate <= 0:
		return &ConfigError{Field: "FrameRate", Reason: "must be positive"}
	case c.GracePeriod < 0:
		return &ConfigError{Field: "GracePeriod", Reason: "must not be negative"}
	case c.TrailLength < 0:
		return &ConfigError{Field: "TrailLength", Reason: "must not be negative"}
	}
	return nil
}
