package config

import (
	"flag"
	"fmt"
	"time"
)

// FromArgs builds the run configuration from command-line args. The
// session file named by -config is applied first, then the environment
// through getenv, then the remaining flags. Only flags given on the
// command line override earlier layers.
func FromArgs(name string, args []string, getenv func(string) string) (*Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML session file")
	videoPath := fs.String("video", "", "Video file to analyse (overrides TABLEWATCH_VIDEO)")
	replayPath := fs.String("replay", "", "Recorded tracker output (JSON lines) instead of the tracking service")
	trackerURL := fs.String("tracker-url", "", "Tracking service URL (overrides TABLEWATCH_TRACKER_URL)")
	dbPath := fs.String("db", "", "SQLite file for sessions and visits (overrides TABLEWATCH_DB)")
	port := fs.String("port", "", "Dashboard port; empty disables it (overrides TABLEWATCH_PORT)")
	grace := fs.Duration("grace", 3*time.Second, "Grace period before an unseen occupant leaves")
	minConf := fs.Float64("min-conf", 0.5, "Minimum detection confidence")
	rect := fs.String("rect", "", "Table region as xmin,ymin,xmax,ymax (default 300,200,600,500)")
	fps := fs.Float64("fps", 0, "Frame rate for replays, or when the video reports none")
	realtime := fs.Bool("realtime", false, "Pace processing at the video frame rate")
	debug := fs.Bool("debug", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg := Default()
	if *configPath != "" {
		loaded, err := Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv(getenv)

	if *videoPath != "" {
		cfg.Video = *videoPath
	}
	if *replayPath != "" {
		cfg.Replay = *replayPath
	}
	if *trackerURL != "" {
		cfg.Tracker.URL = *trackerURL
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if *port != "" {
		cfg.Web.Port = *port
	}
	if set["grace"] {
		if *grace < 0 {
			return nil, fmt.Errorf("config: -grace %v must not be negative", *grace)
		}
		cfg.GracePeriod = Duration{Duration: *grace}
	}
	if set["min-conf"] {
		cfg.MinConfidence = *minConf
	}
	if *rect != "" {
		r, err := ParseRect(*rect)
		if err != nil {
			return nil, err
		}
		cfg.Region = RegionSpec{Rect: r}
	}
	if set["fps"] {
		cfg.FPS = *fps
	}
	if *realtime {
		cfg.Realtime = true
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	if cfg.Tracker.Timeout.Duration == 0 {
		cfg.Tracker.Timeout = Duration{Duration: 5 * time.Second}
	}
	return cfg, nil
}
