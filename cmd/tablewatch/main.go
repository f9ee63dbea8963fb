// tablewatch - table occupancy and dwell time from overhead cafe video.
// Person detection and tracking run in an external service (or a recorded
// replay); tablewatch decides who is seated and for how long.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/tablewatch/internal/config"
	"github.com/teslashibe/tablewatch/internal/log"
	"github.com/teslashibe/tablewatch/pkg/app"
	"github.com/teslashibe/tablewatch/pkg/video"
	"github.com/teslashibe/tablewatch/pkg/video/capture"
)

func main() {
	cfg, err := config.FromArgs("tablewatch", os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "tablewatch: %v\n", err)
		os.Exit(2)
	}

	log.Init(cfg.LogLevel)

	a, err := app.New(cfg, os.Stdout, app.WithVideoOpener(openVideo))
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Init(ctx); err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer a.Shutdown()

	if _, err := a.Run(ctx); err != nil {
		log.Error("run failed", "error", err)
		a.Shutdown()
		os.Exit(1)
	}
}

func openVideo(path string, fallbackFPS float64, logger *slog.Logger) (video.Source, error) {
	cfg := capture.DefaultConfig()
	if fallbackFPS > 0 {
		cfg.FallbackFPS = fallbackFPS
	}
	cfg.Logger = logger
	return capture.Open(path, cfg)
}
