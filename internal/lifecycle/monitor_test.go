// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConnector(t *testing.T, root, name, status string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "status"), []byte(status+"\n"), 0o644))
}

func TestFindExternalConnectorsSkipsBuiltinPanel(t *testing.T) {
	root := t.TempDir()
	writeConnector(t, root, "card0-eDP-1", "connected")
	writeConnector(t, root, "card0-HDMI-A-1", "disconnected")

	paths := findExternalConnectors(root)
	require.Len(t, paths, 1)
	assert.Contains(t, paths[0], "HDMI-A-1")
}

func TestHasExternalDisplayTrueWhenConnected(t *testing.T) {
	root := t.TempDir()
	writeConnector(t, root, "card0-DP-1", "connected")

	d := &MonitorDetector{connectorPaths: findExternalConnectors(root)}
	assert.True(t, d.HasExternalDisplay())
}

func TestHasExternalDisplayFalseWhenDisconnected(t *testing.T) {
	root := t.TempDir()
	writeConnector(t, root, "card0-DP-1", "disconnected")

	d := &MonitorDetector{connectorPaths: findExternalConnectors(root)}
	assert.False(t, d.HasExternalDisplay())
}

func TestNewMonitorDetectorMissingDrmPathDoesNotPanic(t *testing.T) {
	paths := findExternalConnectors(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Empty(t, paths)
}

func TestRunReportsInitialStateImmediately(t *testing.T) {
	root := t.TempDir()
	writeConnector(t, root, "card0-DP-1", "disconnected")
	d := &MonitorDetector{connectorPaths: findExternalConnectors(root)}

	var mu sync.Mutex
	var events []bool
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		d.Run(ctx, func(connected bool) {
			mu.Lock()
			events = append(events, connected)
			mu.Unlock()
		})
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	assert.False(t, events[0])
}

func TestNoopSleepWakeSourceBlocksUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := (NoopSleepWakeSource{}).Run(ctx, func() {}, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestActiveGameTrackerSetGetClear(t *testing.T) {
	var tracker ActiveGameTracker
	_, ok := tracker.Get()
	assert.False(t, ok)

	tracker.Set("570")
	id, ok := tracker.Get()
	assert.True(t, ok)
	assert.Equal(t, "570", id)

	tracker.Set("")
	_, ok = tracker.Get()
	assert.False(t, ok)
}
