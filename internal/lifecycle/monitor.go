// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package lifecycle watches external conditions that should pause or reset
// the refresh-rate engine: an external display being connected, and the
// system suspending and resuming.
package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/smart-refresh/daemon/internal/log"
)

const drmPath = "/sys/class/drm"

// externalConnectorTypes are DRM connector name substrings that indicate an
// external display rather than the panel's built-in connector (eDP).
var externalConnectorTypes = []string{"HDMI", "DP", "DisplayPort", "DVI", "VGA"}

// MonitorDetector reports whether an external display is currently
// connected, by polling DRM connector status files under /sys/class/drm.
type MonitorDetector struct {
	connectorPaths []string
}

// NewMonitorDetector scans /sys/class/drm once for external connector
// status files. A missing DRM path yields a detector that always reports
// no external display, rather than failing daemon startup.
func NewMonitorDetector() *MonitorDetector {
	logger := log.WithComponent("lifecycle")
	paths := findExternalConnectors(drmPath)
	logger.Debug().Int("count", len(paths)).Msg("found external connector paths")
	return &MonitorDetector{connectorPaths: paths}
}

func findExternalConnectors(root string) []string {
	var paths []string

	entries, err := os.ReadDir(root)
	if err != nil {
		return paths
	}

	for _, entry := range entries {
		name := entry.Name()
		for _, connectorType := range externalConnectorTypes {
			if strings.Contains(name, connectorType) {
				statusPath := filepath.Join(root, name, "status")
				if _, err := os.Stat(statusPath); err == nil {
					paths = append(paths, statusPath)
				}
				break
			}
		}
	}

	return paths
}

// HasExternalDisplay reports whether any known connector currently reads
// "connected".
func (d *MonitorDetector) HasExternalDisplay() bool {
	for _, path := range d.connectorPaths {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if strings.ToLower(strings.TrimSpace(string(raw))) == "connected" {
			return true
		}
	}
	return false
}

// MonitorPollInterval is how often Run re-checks connector status.
const MonitorPollInterval = 10 * time.Second

// Run invokes onChange once with the current state, then polls
// HasExternalDisplay every MonitorPollInterval and invokes onChange whenever
// the detected state flips, until ctx is canceled.
func (d *MonitorDetector) Run(ctx context.Context, onChange func(connected bool)) {
	logger := log.WithComponent("lifecycle")
	ticker := time.NewTicker(MonitorPollInterval)
	defer ticker.Stop()

	last := d.HasExternalDisplay()
	onChange(last)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := d.HasExternalDisplay()
			if current != last {
				logger.Info().Bool("connected", current).Msg("external display state changed")
				onChange(current)
				last = current
			}
		}
	}
}

// SleepWakeSource delivers suspend/resume notifications. The only
// implementation in this module is NoopSleepWakeSource: no library in this
// module's dependency set speaks D-Bus, so there is no adapter for the
// systemd-logind PrepareForSleep signal, and the daemon never observes a
// suspend or resume through it.
type SleepWakeSource interface {
	// Run blocks, invoking onSleep when the system is about to suspend and
	// onResume when it wakes, until ctx is canceled or a fatal error occurs.
	Run(ctx context.Context, onSleep func(), onResume func()) error
}

// NoopSleepWakeSource never fires. It is the default on platforms or builds
// where no suspend/resume signal source is wired up.
type NoopSleepWakeSource struct{}

// Run blocks until ctx is canceled.
func (NoopSleepWakeSource) Run(ctx context.Context, _ func(), _ func()) error {
	<-ctx.Done()
	return ctx.Err()
}

// ActiveGameTracker is a thin, synchronized holder for the currently active
// Steam AppID, set by the IPC SetGameId command and read by the IPC
// GetStatus command to report current_app_id.
type ActiveGameTracker struct {
	mu    sync.Mutex
	appID string
	set   bool
}

// Set records the active AppID. An empty id clears it.
func (t *ActiveGameTracker) Set(appID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if appID == "" {
		t.set = false
		t.appID = ""
		return
	}
	t.appID = appID
	t.set = true
}

// Get returns the active AppID, if any.
func (t *ActiveGameTracker) Get() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.appID, t.set
}
