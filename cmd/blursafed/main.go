// blursafed: face redaction service for connected pages
// Accepts WebSocket connections from page agents, schedules detection per
// video, and streams occlusion overlays back.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-blursafe/internal/config"
	"github.com/teslashibe/go-blursafe/internal/log"
	"github.com/teslashibe/go-blursafe/pkg/bridge"
	"github.com/teslashibe/go-blursafe/pkg/debug"
	"github.com/teslashibe/go-blursafe/pkg/overlay"
	"github.com/teslashibe/go-blursafe/pkg/page"
	"github.com/teslashibe/go-blursafe/pkg/scheduler"
	"github.com/teslashibe/go-blursafe/pkg/web"
)

var version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	// Flags override the environment
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	flag.StringVar(&cfg.Backend, "backend", cfg.Backend, "Detection backend: remote or local")
	flag.StringVar(&cfg.Engine, "engine", cfg.Engine, "Page engine: faces or poses")
	flag.Float64Var(&cfg.Cadence, "hz", cfg.Cadence, "Detection cadence per video")
	flag.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "Overlay strategy: cover or outline")
	flag.BoolVar(&cfg.DebugMarkers, "markers", cfg.DebugMarkers, "Draw per-face debug markers")
	flag.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "YuNet model for the local backend")
	trackDebug := flag.Bool("debug-tracking", false, "Trace filter decisions")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	level := cfg.LogLevel
	if cfg.Debug {
		level = "debug"
	}
	log.Init(level)
	debug.SetEnabled(cfg.Debug)
	debug.SetTracking(*trackDebug)
	logger := log.Component("blursafed")

	logger.Info("starting", "version", version, "backend", cfg.Backend, "engine", cfg.Engine,
		"hz", cfg.Cadence, "strategy", cfg.Strategy, "tracking", cfg.TrackingPreset)

	pcfg := pageConfig(cfg)
	if err := pcfg.Validate(); err != nil {
		logger.Error("invalid page configuration", "error", err)
		os.Exit(1)
	}
	manager := page.NewManager(pcfg)
	b := bridge.New(log.Component("bridge"))
	manager.Attach(b)

	wcfg := web.DefaultConfig()
	wcfg.Addr = cfg.Addr()
	wcfg.Version = version
	wcfg.Debug = cfg.Debug
	wcfg.StatusDebounce = cfg.StatusDebounce
	server := web.NewServer(wcfg, manager, b)

	go func() {
		logger.Info("endpoints",
			"pages", fmt.Sprintf("ws://localhost:%d/ws/page", cfg.Port),
			"events", fmt.Sprintf("ws://localhost:%d/ws/events", cfg.Port),
			"status", fmt.Sprintf("http://localhost:%d/api/status", cfg.Port))
		if err := server.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("shutdown error", "error", err)
	}
	if err := manager.Close(); err != nil {
		logger.Warn("close error", "error", err)
	}
	logger.Info("goodbye")
}

// pageConfig maps the daemon configuration onto every page's pipeline.
func pageConfig(cfg config.Config) page.Config {
	pcfg := page.DefaultConfig()
	pcfg.Backend = cfg.Backend
	pcfg.Engine = cfg.Engine
	pcfg.Cadence = cfg.Cadence
	pcfg.Overlay.Strategy = overlay.ParseStrategy(cfg.Strategy)
	pcfg.Overlay.DebugMarkers = cfg.DebugMarkers
	pcfg.Local.Detector.ModelPath = cfg.ModelPath
	pcfg.Local.Detector.ConfidenceThresh = cfg.Confidence
	pcfg.Local.MaxFrameAge = cfg.MaxFrameAge
	pcfg.Logger = log.Component("page")

	pcfg.Scheduler = []scheduler.Option{
		scheduler.WithRetryDelay(cfg.RetryDelay),
		scheduler.WithTimeout(cfg.Timeout),
		scheduler.WithScrollThrottle(cfg.ScrollThrottle),
		scheduler.WithStalePolicy(scheduler.ParseStalePolicy(cfg.StalePolicy)),
		scheduler.WithTracking(cfg.Tracking()),
	}
	return pcfg
}
