// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-refresh/daemon/internal/actuator"
	"github.com/smart-refresh/daemon/internal/config"
	"github.com/smart-refresh/daemon/internal/engine"
	"github.com/smart-refresh/daemon/internal/ipc"
	"github.com/smart-refresh/daemon/internal/log"
	"github.com/smart-refresh/daemon/internal/metrics"
	"github.com/smart-refresh/daemon/internal/samplesource"
)

func newTestManagerDeps(t *testing.T) Deps {
	t.Helper()
	dir := t.TempDir()

	eng := engine.New(engine.SensitivityBalanced)
	act := actuator.New(40, 90, actuator.WithRunner(func(ctx context.Context, binary string, hz int) (int, string, error) {
		return 0, "", nil
	}))
	source := samplesource.NewSource(samplesource.MangoHudSegmentName)
	cfgMgr := config.NewManager(filepath.Join(dir, "config.json"))
	metricsCollector := metrics.NewCollector(time.Now())
	ipcState := ipc.NewState(false)

	ipcDeps := ipc.Deps{
		State:    ipcState,
		Engine:   eng,
		Actuator: act,
		Config:   cfgMgr,
		Metrics:  metricsCollector,
	}
	server := ipc.NewServer(filepath.Join(dir, "smart-refresh.sock"), ipcDeps)

	return Deps{
		Logger:          log.Base(),
		Engine:          eng,
		Actuator:        act,
		Source:          source,
		Config:          cfgMgr,
		Metrics:         metricsCollector,
		IPC:             server,
		IPCState:        ipcState,
		ShutdownTimeout: 500 * time.Millisecond,
	}
}

func TestNewManagerValidDeps(t *testing.T) {
	mgr, err := NewManager(newTestManagerDeps(t))
	require.NoError(t, err)
	assert.NotNil(t, mgr)
}

func TestNewManagerMissingEngine(t *testing.T) {
	deps := newTestManagerDeps(t)
	deps.Engine = nil
	_, err := NewManager(deps)
	assert.ErrorIs(t, err, ErrMissingEngine)
}

func TestNewManagerMissingIPCServer(t *testing.T) {
	deps := newTestManagerDeps(t)
	deps.IPC = nil
	_, err := NewManager(deps)
	assert.ErrorIs(t, err, ErrMissingIPCServer)
}

func TestManagerShutdownBeforeStartReturnsError(t *testing.T) {
	mgrIface, err := NewManager(newTestManagerDeps(t))
	require.NoError(t, err)
	mgr := mgrIface.(*manager)

	err = mgr.Shutdown(context.Background())
	assert.ErrorIs(t, err, ErrManagerNotStarted)
}

func TestManagerStartRunsUntilContextCanceled(t *testing.T) {
	mgrIface, err := NewManager(newTestManagerDeps(t))
	require.NoError(t, err)

	var hookCalled bool
	mgrIface.RegisterShutdownHook("test-hook", func(ctx context.Context) error {
		hookCalled = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgrIface.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not shut down in time")
	}
	assert.True(t, hookCalled)
}
