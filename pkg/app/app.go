// Package app wires the tablewatch components together for one run.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/teslashibe/tablewatch/internal/config"
	"github.com/teslashibe/tablewatch/internal/log"
	"github.com/teslashibe/tablewatch/pkg/detection"
	"github.com/teslashibe/tablewatch/pkg/monitor"
	"github.com/teslashibe/tablewatch/pkg/occupancy"
	"github.com/teslashibe/tablewatch/pkg/report"
	"github.com/teslashibe/tablewatch/pkg/store"
	"github.com/teslashibe/tablewatch/pkg/video"
	"github.com/teslashibe/tablewatch/pkg/web"
)

// VideoOpener opens a video file as a frame source. fallbackFPS applies
// when the container reports no frame rate.
type VideoOpener func(path string, fallbackFPS float64, logger *slog.Logger) (video.Source, error)

// Option configures an App.
type Option func(*App)

// WithVideoOpener sets the decoder used for cfg.Video. Without one only
// replay runs are possible.
func WithVideoOpener(open VideoOpener) Option {
	return func(a *App) {
		a.openVideo = open
	}
}

// WithLogger sets the base logger handed to every component. Each
// component adds its own component tag.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		a.base = l
	}
}

// App is a single monitoring run.
type App struct {
	config    *config.Config
	out       io.Writer
	openVideo VideoOpener

	// base is untagged and goes to components; logger is tagged for the
	// app's own lines.
	base   *slog.Logger
	logger *slog.Logger

	sessionID string

	source   video.Source
	persons  detection.PersonTracker
	db       *store.Store
	recorder *store.Recorder
	server   *web.Server
	monitor  *monitor.Monitor
}

// New validates cfg and creates an app. The summary is written to out.
func New(cfg *config.Config, out io.Writer, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		config:    cfg,
		out:       out,
		sessionID: store.NewSessionID(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.base == nil {
		a.base = log.L()
	}
	a.logger = a.base.With("component", "app")
	return a, nil
}

// SessionID returns the id of this run.
func (a *App) SessionID() string {
	return a.sessionID
}

// Init opens the video, the person tracker, the store and the dashboard.
// Call this after New() and before Run(). On error everything opened so
// far is closed.
func (a *App) Init(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			a.Shutdown()
		}
	}()

	if err := a.initDetection(); err != nil {
		return fmt.Errorf("person tracker: %w", err)
	}
	if err := a.initSource(); err != nil {
		return fmt.Errorf("video: %w", err)
	}

	region, err := a.config.BuildRegion()
	if err != nil {
		return err
	}
	occCfg := a.config.OccupancyConfig(a.source.FPS())
	occCfg.Logger = a.base
	tracker, err := occupancy.New(region, occCfg)
	if err != nil {
		return err
	}

	var sinks []monitor.Sink
	if a.config.Store.Path != "" {
		if err := a.initStore(ctx, region); err != nil {
			return fmt.Errorf("store: %w", err)
		}
		sinks = append(sinks, a.recorder)
	}
	if a.config.Web.Port != "" {
		a.initWeb()
		sinks = append(sinks, a.server)
	}

	monCfg := monitor.DefaultConfig()
	monCfg.SessionID = a.sessionID
	monCfg.Realtime = a.config.Realtime
	monCfg.Logger = a.base
	a.monitor, err = monitor.New(a.source, a.persons, tracker, monCfg, sinks...)
	if err != nil {
		return err
	}
	if a.server != nil {
		a.server.Attach(a.monitor)
	}

	a.logger.Info("session ready",
		"session_id", a.sessionID,
		"fps", a.source.FPS(),
		"region", region.Vertices(),
		"grace", occCfg.GracePeriod,
		"min_confidence", occCfg.MinConfidence,
	)
	return nil
}

func (a *App) initDetection() error {
	if a.config.Replay != "" {
		r, err := detection.LoadReplay(a.config.Replay)
		if err != nil {
			return err
		}
		a.persons = r
		a.logger.Info("replaying recorded tracks", "path", a.config.Replay, "frames", r.Frames())
		return nil
	}

	rt, err := detection.NewRemoteTracker(
		detection.WithBaseURL(a.config.Tracker.URL),
		detection.WithTimeout(a.config.Tracker.Timeout.Duration),
		detection.WithClasses(a.config.Tracker.Classes...),
		detection.WithLogger(a.base),
	)
	if err != nil {
		return err
	}
	a.persons = rt
	return nil
}

func (a *App) initSource() error {
	if a.config.Video != "" {
		if a.openVideo == nil {
			return errors.New("no video decoder available, use a tracker replay")
		}
		src, err := a.openVideo(a.config.Video, a.config.FPS, a.base)
		if err != nil {
			return err
		}
		a.source = src
		return nil
	}

	// Replay only: blank frames stand in for the footage.
	n := -1
	if r, ok := a.persons.(*detection.Replay); ok {
		n = r.Frames()
	}
	s, err := video.NewSynthetic(n, a.config.FPS)
	if err != nil {
		return err
	}
	a.source = s
	return nil
}

func (a *App) initStore(ctx context.Context, region occupancy.Region) error {
	db, err := store.Open(a.config.Store.Path)
	if err != nil {
		return err
	}
	a.db = db

	source := a.config.Video
	if source == "" {
		source = a.config.Replay
	}
	sess := &store.Session{
		ID:            a.sessionID,
		Source:        source,
		FPS:           a.source.FPS(),
		Region:        region.Vertices(),
		GraceSeconds:  a.config.GracePeriod.Seconds(),
		MinConfidence: a.config.MinConfidence,
	}
	if err := db.CreateSession(ctx, sess); err != nil {
		return err
	}
	a.recorder = store.NewRecorder(db, a.sessionID)
	return nil
}

func (a *App) initWeb() {
	var history web.History
	if a.db != nil {
		history = a.db
	}
	a.server = web.NewServer(web.Config{
		Addr:           ":" + a.config.Web.Port,
		BroadcastEvery: a.config.Web.BroadcastEvery,
		Logger:         a.base,
	}, history)
}

// Run processes the video and prints the summary. An interrupted run
// still stores and prints what it has; it is not reported as an error.
func (a *App) Run(ctx context.Context) (report.Summary, error) {
	if a.monitor == nil {
		return report.Summary{}, errors.New("app: Run called before Init")
	}

	webCtx, stopWeb := context.WithCancel(ctx)
	defer stopWeb()
	var webDone chan struct{}
	if a.server != nil {
		webDone = make(chan struct{})
		go func() {
			defer close(webDone)
			if err := a.server.ListenAndServe(webCtx); err != nil {
				a.logger.Error("dashboard stopped", "error", err)
			}
		}()
	}

	summary, err := a.monitor.Run(ctx)
	if errors.Is(err, context.Canceled) {
		a.logger.Info("interrupted, writing partial summary")
		err = nil
	}

	if a.recorder != nil {
		a.recorder.Flush(a.monitor.Snapshot().Occupants)
		finishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if ferr := a.db.FinishSession(finishCtx, a.sessionID, summary.Frames, time.Now()); ferr != nil {
			a.logger.Error("failed to finish session", "error", ferr)
		}
		cancel()
		written, failures := a.recorder.Stats()
		a.logger.Info("visits stored", "written", written, "failures", failures)
	}

	// In-flight dashboard requests finish before Shutdown closes the store.
	if webDone != nil {
		stopWeb()
		<-webDone
	}

	if werr := summary.Write(a.out); werr != nil && err == nil {
		err = werr
	}
	return summary, err
}

// Shutdown releases every opened component.
func (a *App) Shutdown() {
	if a.source != nil {
		if err := a.source.Close(); err != nil {
			a.logger.Warn("close video", "error", err)
		}
	}
	if a.persons != nil {
		if err := a.persons.Close(); err != nil {
			a.logger.Warn("close person tracker", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close store", "error", err)
		}
	}
}
