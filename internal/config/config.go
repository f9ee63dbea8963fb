// Package config loads tablewatch settings from a YAML session file with
// environment overrides. Command-line flags are applied by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/tablewatch/pkg/occupancy"
)

// Environment variables read by ApplyEnv.
const (
	EnvVideo      = "TABLEWATCH_VIDEO"
	EnvTrackerURL = "TABLEWATCH_TRACKER_URL"
	EnvDB         = "TABLEWATCH_DB"
	EnvPort       = "TABLEWATCH_PORT"
	EnvLogLevel   = "LOG_LEVEL"
)

// DefaultRect is the table region used when none is configured.
var DefaultRect = []float64{300, 200, 600, 500}

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// RegionSpec describes the table. Polygon wins when both are set.
type RegionSpec struct {
	Rect    []float64    `yaml:"rect,omitempty"`    // [xmin, ymin, xmax, ymax]
	Polygon [][2]float64 `yaml:"polygon,omitempty"` // [[x, y], ...]
}

// TrackerConfig configures the external person tracker.
type TrackerConfig struct {
	URL     string   `yaml:"url"`
	Timeout Duration `yaml:"timeout"`
	Classes []int    `yaml:"classes"`
}

// StoreConfig configures persistence. An empty path disables it.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// WebConfig configures the dashboard. An empty port disables it.
type WebConfig struct {
	Port           string `yaml:"port"`
	BroadcastEvery int    `yaml:"broadcast_every"`
}

// Config is the full run configuration.
type Config struct {
	Video    string  `yaml:"video"`    // Video file to analyse
	Replay   string  `yaml:"replay"`   // Recorded tracker output (JSON lines)
	FPS      float64 `yaml:"fps"`      // Frame rate when the source has none
	Realtime bool    `yaml:"realtime"` // Pace processing at the video frame rate

	Region        RegionSpec `yaml:"region"`
	MinConfidence float64    `yaml:"min_confidence"`
	GracePeriod   Duration   `yaml:"grace_period"`
	TrailLength   int        `yaml:"trail_length"`

	Tracker TrackerConfig `yaml:"tracker"`
	Store   StoreConfig   `yaml:"store"`
	Web     WebConfig     `yaml:"web"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	occ := occupancy.DefaultConfig()
	return &Config{
		FPS:           occ.FrameRate,
		Region:        RegionSpec{Rect: append([]float64(nil), DefaultRect...)},
		MinConfidence: occ.MinConfidence,
		GracePeriod:   Duration{occ.GracePeriod},
		TrailLength:   occ.TrailLength,
		Tracker: TrackerConfig{
			URL:     "http://localhost:8500",
			Timeout: Duration{5 * time.Second},
			Classes: []int{0},
		},
		Web:      WebConfig{BroadcastEvery: 1},
		LogLevel: "info",
	}
}

// Load reads a YAML session file over the defaults. Unknown keys are
// rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	// A region in the file replaces the default rect entirely.
	var probe struct {
		Region *RegionSpec `yaml:"region"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if probe.Region != nil {
		cfg.Region = RegionSpec{}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables. getenv is
// usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvVideo); v != "" {
		c.Video = v
	}
	if v := getenv(EnvTrackerURL); v != "" {
		c.Tracker.URL = v
	}
	if v := getenv(EnvDB); v != "" {
		c.Store.Path = v
	}
	if v := getenv(EnvPort); v != "" {
		c.Web.Port = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate checks settings that do not depend on the video.
func (c *Config) Validate() error {
	if c.Video == "" && c.Replay == "" {
		return errors.New("config: a video or a tracker replay is required")
	}
	if c.Video == "" && c.FPS <= 0 {
		return errors.New("config: fps is required when running a replay without video")
	}
	if _, err := c.BuildRegion(); err != nil {
		return err
	}
	fps := c.FPS
	if fps <= 0 {
		// The video supplies its own rate.
		fps = occupancy.DefaultConfig().FrameRate
	}
	return c.OccupancyConfig(fps).Validate()
}

// BuildRegion constructs the table region.
func (c *Config) BuildRegion() (occupancy.Region, error) {
	if len(c.Region.Polygon) > 0 {
		pts := make([]occupancy.Point, len(c.Region.Polygon))
		for i, p := range c.Region.Polygon {
			pts[i] = occupancy.Point{X: p[0], Y: p[1]}
		}
		return occupancy.NewPolygon(pts)
	}
	if len(c.Region.Rect) == 0 {
		return occupancy.RegionFromBox(DefaultRect[0], DefaultRect[1], DefaultRect[2], DefaultRect[3])
	}
	if len(c.Region.Rect) != 4 {
		return nil, &occupancy.RegionError{Shape: "rect", Reason: fmt.Sprintf("want 4 values, got %d", len(c.Region.Rect))}
	}
	r := c.Region.Rect
	return occupancy.RegionFromBox(r[0], r[1], r[2], r[3])
}

// OccupancyConfig returns tracker settings for a video at fps.
func (c *Config) OccupancyConfig(fps float64) occupancy.Config {
	occ := occupancy.DefaultConfig()
	occ.MinConfidence = c.MinConfidence
	occ.FrameRate = fps
	occ.GracePeriod = c.GracePeriod.Duration
	occ.TrailLength = c.TrailLength
	return occ
}

// ParseRect parses "xmin,ymin,xmax,ymax".
func ParseRect(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("config: rect %q: want xmin,ymin,xmax,ymax", s)
	}
	out := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("config: rect %q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}
