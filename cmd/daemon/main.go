// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smart-refresh/daemon/internal/actuator"
	"github.com/smart-refresh/daemon/internal/battery"
	"github.com/smart-refresh/daemon/internal/config"
	"github.com/smart-refresh/daemon/internal/daemon"
	"github.com/smart-refresh/daemon/internal/engine"
	"github.com/smart-refresh/daemon/internal/ipc"
	"github.com/smart-refresh/daemon/internal/lifecycle"
	xglog "github.com/smart-refresh/daemon/internal/log"
	"github.com/smart-refresh/daemon/internal/metrics"
	"github.com/smart-refresh/daemon/internal/profiles"
	"github.com/smart-refresh/daemon/internal/samplesource"
)

var (
	version   = "v2.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (defaults to ~/.config/smart-refresh/config.json)")
	profilesPath := flag.String("profiles", "", "path to profiles file (defaults to ~/.config/smart-refresh/profiles.json)")
	socketPath := flag.String("socket", ipc.DefaultSocketPath, "path to the IPC unix domain socket")
	metricsAddr := flag.String("metrics-addr", "127.0.0.1:9539", "loopback address to serve Prometheus metrics on, empty to disable")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("smart-refresh %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "smart-refresh",
		Version: version,
	})
	logger := xglog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		effectiveConfigPath = config.DefaultPath()
	}
	effectiveProfilesPath := strings.TrimSpace(*profilesPath)
	if effectiveProfilesPath == "" {
		effectiveProfilesPath = profiles.DefaultPath()
	}

	cfgMgr := config.NewManager(effectiveConfigPath)
	cfg, err := cfgMgr.LoadOrDefault()
	if err != nil {
		logger.Fatal().Err(err).Str("path", effectiveConfigPath).Msg("failed to load configuration")
	}

	// Re-configure logging with the requested level and the daily-rotating
	// file under DefaultLogDir, now that the config has loaded.
	xglog.Configure(xglog.Config{
		Level:   *logLevel,
		Service: "smart-refresh",
		Version: version,
		LogDir:  xglog.DefaultLogDir(),
	})
	logger = xglog.WithComponent("main")

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("config_path", effectiveConfigPath).
		Str("socket_path", *socketPath).
		Int("min_hz", cfg.MinHz).
		Int("max_hz", cfg.MaxHz).
		Str("sensitivity", cfg.Sensitivity).
		Msg("smart-refresh daemon starting")

	sensitivity, ok := engine.ParseSensitivity(cfg.Sensitivity)
	if !ok {
		logger.Warn().Str("sensitivity", cfg.Sensitivity).Msg("unknown sensitivity in config, falling back to balanced")
		sensitivity = engine.SensitivityBalanced
	}

	eng := engine.New(sensitivity)
	eng.SetUserRange(cfg.MinHz, cfg.MaxHz)

	act := actuator.New(cfg.MinHz, cfg.MaxHz)
	source := samplesource.NewSource(samplesource.MangoHudSegmentName)
	profilesMgr := profiles.LoadOrDefault(effectiveProfilesPath)
	metricsCollector := metrics.NewCollector(time.Now())
	batteryMonitor := battery.New()
	batteryMonitor.SetMaxHz(cfg.MaxHz)
	monitorDetector := lifecycle.NewMonitorDetector()
	gamesTracker := &lifecycle.ActiveGameTracker{}
	ipcState := ipc.NewState(cfg.Enabled)

	ipcDeps := ipc.Deps{
		State:    ipcState,
		Engine:   eng,
		Actuator: act,
		Config:   cfgMgr,
		Profiles: profilesMgr,
		Metrics:  metricsCollector,
		Battery:  batteryMonitor,
		Games:    gamesTracker,
	}
	ipcServer := ipc.NewServer(*socketPath, ipcDeps)

	mgr, err := daemon.NewManager(daemon.Deps{
		Logger:    logger,
		Engine:    eng,
		Actuator:  act,
		Source:    source,
		Config:    cfgMgr,
		Metrics:   metricsCollector,
		Battery:   batteryMonitor,
		Monitor:   monitorDetector,
		SleepWake: lifecycle.NoopSleepWakeSource{},
		Games:     gamesTracker,
		IPC:       ipcServer,
		IPCState:  ipcState,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct daemon manager")
	}

	if addr := strings.TrimSpace(*metricsAddr); addr != "" {
		metricsServer := &http.Server{
			Addr:              addr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", addr).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
		mgr.RegisterShutdownHook("metrics_server", func(ctx context.Context) error {
			return metricsServer.Shutdown(ctx)
		})
	}

	if err := mgr.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("daemon exited with error")
	}

	logger.Info().Msg("smart-refresh daemon stopped")
}
