// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the control engine, actuator, sample source, IPC
// server, and lifecycle monitors into one supervised process and owns
// graceful shutdown.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/smart-refresh/daemon/internal/actuator"
	"github.com/smart-refresh/daemon/internal/battery"
	"github.com/smart-refresh/daemon/internal/config"
	"github.com/smart-refresh/daemon/internal/engine"
	"github.com/smart-refresh/daemon/internal/ipc"
	"github.com/smart-refresh/daemon/internal/lifecycle"
	"github.com/smart-refresh/daemon/internal/log"
	"github.com/smart-refresh/daemon/internal/metrics"
	"github.com/smart-refresh/daemon/internal/samplesource"
)

// batteryPollInterval matches the original's BATTERY_POLL_INTERVAL_SECS.
const batteryPollInterval = 5 * time.Second

// ipcRestartBackoff is how long the supervisor waits before rebinding the
// IPC server after it exits with an error.
const ipcRestartBackoff = 5 * time.Second

// ShutdownHook is a function run during graceful shutdown.
type ShutdownHook func(ctx context.Context) error

// Manager runs the daemon's supervised tasks until its context is canceled.
type Manager interface {
	// Start runs the control loop and all supervised tasks, blocking until
	// ctx is canceled. It returns at once if the IPC socket cannot be bound.
	Start(ctx context.Context) error

	// Shutdown runs registered shutdown hooks within the configured
	// shutdown timeout, in reverse registration order (LIFO).
	Shutdown(ctx context.Context) error

	// RegisterShutdownHook registers a cleanup function to run on shutdown.
	RegisterShutdownHook(name string, hook ShutdownHook)
}

// Deps are the components a Manager supervises. All of them are already
// individually safe for concurrent use.
type Deps struct {
	Logger zerolog.Logger

	Engine   *engine.Engine
	Actuator *actuator.Actuator
	Source   *samplesource.Source
	Config   *config.Manager
	Metrics  *metrics.Collector
	Battery  *battery.Monitor

	Monitor   *lifecycle.MonitorDetector
	SleepWake lifecycle.SleepWakeSource
	Games     *lifecycle.ActiveGameTracker

	IPC      *ipc.Server
	IPCState *ipc.State

	// ShutdownTimeout bounds how long Shutdown waits for hooks to finish.
	// Defaults to 2 seconds, matching the original's shutdown budget.
	ShutdownTimeout time.Duration
}

// Validate checks that every dependency the Manager needs to run is set.
func (d Deps) Validate() error {
	switch {
	case d.Engine == nil:
		return ErrMissingEngine
	case d.Actuator == nil:
		return ErrMissingActuator
	case d.Source == nil:
		return ErrMissingSource
	case d.IPC == nil:
		return ErrMissingIPCServer
	}
	return nil
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// manager implements Manager.
type manager struct {
	deps Deps

	mu            sync.Mutex
	started       bool
	shutdownHooks []namedHook

	logger zerolog.Logger
}

// NewManager constructs a Manager from deps, defaulting ShutdownTimeout to
// 2 seconds if unset.
func NewManager(deps Deps) (Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if deps.ShutdownTimeout <= 0 {
		deps.ShutdownTimeout = 2 * time.Second
	}
	if deps.Games == nil {
		deps.Games = &lifecycle.ActiveGameTracker{}
	}
	if deps.SleepWake == nil {
		deps.SleepWake = lifecycle.NoopSleepWakeSource{}
	}

	return &manager{
		deps:   deps,
		logger: deps.Logger.With().Str("component", "daemon").Logger(),
	}, nil
}

// Start binds the IPC socket, launches every supervised task, and blocks
// until ctx is canceled. Individual task panics are recovered and the task
// is restarted rather than crashing the process.
func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("manager already started")
	}
	m.started = true
	m.mu.Unlock()

	if err := m.deps.IPC.Listen(); err != nil {
		return fmt.Errorf("daemon: bind IPC socket: %w", err)
	}

	m.logger.Info().Msg("starting supervised tasks")

	errChan := make(chan error, 6)
	var wg sync.WaitGroup

	runSupervised := func(name string, fn func(ctx context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.runWithPanicCatch(ctx, name, fn, errChan)
		}()
	}

	runSupervised("ipc", func(ctx context.Context) error { return m.deps.IPC.Run(ctx) })
	runSupervised("sample_source", func(ctx context.Context) error {
		m.deps.Source.Run(ctx)
		return nil
	})
	runSupervised("control_loop", m.runControlLoop)
	runSupervised("monitor_detection", m.runMonitorDetection)
	runSupervised("sleep_wake", m.runSleepWake)
	if m.deps.Battery != nil {
		runSupervised("battery_monitor", m.runBatteryMonitor)
	}

	select {
	case err := <-errChan:
		m.logger.Error().Err(err).Msg("supervised task failed fatally, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), m.deps.ShutdownTimeout)
		defer cancel()
		if shutdownErr := m.Shutdown(shutdownCtx); shutdownErr != nil {
			return fmt.Errorf("%w (shutdown: %v)", err, shutdownErr)
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), m.deps.ShutdownTimeout)
		defer cancel()
		err := m.Shutdown(shutdownCtx)
		wg.Wait()
		return err
	}
}

// runWithPanicCatch runs fn, converting a panic into an error. A task that
// returns a non-nil error (a recovered panic included) while ctx is still
// live is logged and restarted after ipcRestartBackoff; nothing is sent on
// errChan, so no task failure ends Start.
func (m *manager) runWithPanicCatch(ctx context.Context, name string, fn func(ctx context.Context) error, errChan chan<- error) {
	for {
		if err := m.runOnce(ctx, name, fn); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn().Str("task", name).Err(err).Dur("backoff", ipcRestartBackoff).Msg("task exited, restarting after backoff")
			select {
			case <-ctx.Done():
				return
			case <-time.After(ipcRestartBackoff):
			}
			continue
		}
		return
	}
}

func (m *manager) runOnce(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Str("task", name).Interface("panic", r).Msg("task panicked, recovering")
			err = fmt.Errorf("task %s panicked: %v", name, r)
		}
	}()
	return fn(ctx)
}

// runControlLoop ticks at the sample source's poll cadence, feeding the
// engine the smoothed FPS and applying any resulting Hz change.
func (m *manager) runControlLoop(ctx context.Context) error {
	logger := m.logger.With().Str("task", "control_loop").Logger()
	ticker := time.NewTicker(samplesource.PollInterval)
	defer ticker.Stop()

	lastState := m.deps.Engine.Snapshot(time.Now()).State
	if lastState == engine.StateStable {
		m.deps.Metrics.EnterStable(time.Now())
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if m.deps.IPCState != nil && !m.deps.IPCState.Running() {
				continue
			}

			fps := m.deps.Source.MeanFps()
			if m.deps.IPCState != nil {
				m.deps.IPCState.SetCurrentFps(fps)
				m.deps.IPCState.SetMangohudAvailable(m.deps.Source.Available())
			}
			metrics.SetCurrentFps("control_loop", fps)
			if fps <= 0 {
				continue
			}

			currentHz := m.deps.Actuator.CurrentHz()
			metrics.SetCurrentHz("control_loop", currentHz)
			target, ok := m.deps.Engine.Decide(fps, currentHz, now)

			if newState := m.deps.Engine.Snapshot(now).State; newState != lastState {
				switch {
				case newState == engine.StateStable:
					m.deps.Metrics.EnterStable(now)
				case lastState == engine.StateStable:
					m.deps.Metrics.LeaveStable(now)
				}
				lastState = newState
			}

			if !ok {
				continue
			}

			result, err := m.deps.Actuator.Apply(ctx, target)
			if err != nil {
				logger.Error().Err(err).Int("target_hz", target).Msg("failed to apply refresh rate")
				continue
			}
			if result != actuator.Changed {
				continue
			}

			newHz := m.deps.Actuator.CurrentHz()
			direction := "Increased"
			if newHz < currentHz {
				direction = "Dropped"
			}
			m.deps.Metrics.RecordSwitch(direction, now)
			logger.Info().Int("from_hz", currentHz).Int(log.FieldHz, newHz).Float64(log.FieldFPS, fps).Str(log.FieldState, lastState.String()).Msg("refresh rate changed")
		}
	}
}

// runMonitorDetection watches for external-display hotplug and feeds the
// result into the engine, which emits no rate changes while an external
// display is connected.
func (m *manager) runMonitorDetection(ctx context.Context) error {
	if m.deps.Monitor == nil {
		<-ctx.Done()
		return nil
	}
	m.deps.Monitor.Run(ctx, func(connected bool) {
		m.deps.Engine.SetExternalDisplayDetected(connected)
		m.logger.Info().Bool("external_display", connected).Msg("external display state changed")
	})
	return nil
}

// runSleepWake resets the hysteresis cooldown after a suspend/resume cycle.
func (m *manager) runSleepWake(ctx context.Context) error {
	return m.deps.SleepWake.Run(ctx, func() {
		m.logger.Info().Msg("system entering sleep")
	}, func() {
		m.logger.Info().Msg("system resumed, resetting hysteresis cooldown")
		m.deps.Engine.ResetAfterWake(time.Now())
	})
}

// runBatteryMonitor periodically samples sysfs power draw for the
// GetBatteryStatus savings estimate.
func (m *manager) runBatteryMonitor(ctx context.Context) error {
	ticker := time.NewTicker(batteryPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			uw, ok := m.deps.Battery.ReadPowerNow()
			if !ok {
				continue
			}
			m.deps.Battery.RecordSample(uw, m.deps.Actuator.CurrentHz(), now)
		}
	}
}

// Shutdown runs registered shutdown hooks in reverse order within ctx's
// deadline, closing the IPC listener first so no new connections arrive
// mid-shutdown.
func (m *manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return ErrManagerNotStarted
	}

	m.logger.Info().Msg("shutting down")

	var errs []error
	if err := m.deps.IPC.Close(); err != nil {
		errs = append(errs, fmt.Errorf("ipc close: %w", err))
	}

	for i := len(m.shutdownHooks) - 1; i >= 0; i-- {
		hook := m.shutdownHooks[i]
		start := time.Now()
		if err := hook.hook(ctx); err != nil {
			m.logger.Error().Str("hook", hook.name).Err(err).Dur("duration", time.Since(start)).Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", hook.name, err))
			continue
		}
		m.logger.Debug().Str("hook", hook.name).Dur("duration", time.Since(start)).Msg("shutdown hook completed")
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	m.logger.Info().Msg("daemon stopped cleanly")
	return nil
}

// RegisterShutdownHook registers a cleanup function invoked during Shutdown
// in reverse registration order.
func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHooks = append(m.shutdownHooks, namedHook{name: name, hook: hook})
}
