// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package battery estimates power savings from running the panel below its
// maximum refresh rate. The savings figure is a linear approximation, not a
// measurement; callers must treat it as an estimate.
package battery

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	powerNowPath    = "/sys/class/power_supply/BAT1/power_now"
	powerNowPathAlt = "/sys/class/power_supply/BAT0/power_now"

	// sampleCount bounds the rolling window used for the moving average.
	sampleCount = 12

	// assumedBatteryWh is a hard-coded capacity used only to turn a power
	// delta into a minutes-per-hour-of-use estimate. This is deliberately
	// not configurable: it is a rough approximation, not a measured value.
	assumedBatteryWh = 40.0
)

type powerSample struct {
	powerUw uint64
	hz      int
	at      time.Time
}

// Status is the GetBatteryStatus IPC payload. EstimatedSavingsMinutes is an
// estimate from a linear power-frequency model and the assumed 40 Wh
// capacity, not a measured figure.
type Status struct {
	PowerWatts               float64 `json:"power_watts"`
	AvgPowerWatts             float64 `json:"avg_power_watts"`
	EstimatedSavingsMinutes   float64 `json:"estimated_savings_minutes"`
	Available                 bool    `json:"available"`
}

// Monitor tracks recent power-draw samples and estimates savings from
// running below the configured max Hz.
type Monitor struct {
	mu        sync.Mutex
	samples   []powerSample
	maxHz     int
	available bool
}

// New constructs a Monitor, probing for sysfs power_now availability once.
func New() *Monitor {
	return &Monitor{
		maxHz:     90,
		available: pathExists(powerNowPath) || pathExists(powerNowPathAlt),
	}
}

// SetMaxHz sets the max Hz used for the savings estimate.
func (m *Monitor) SetMaxHz(hz int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxHz = hz
}

// ReadPowerNow reads the current power draw in microwatts from sysfs. It
// returns ok=false if neither known path is readable, marking the monitor
// unavailable for subsequent status reports.
func (m *Monitor) ReadPowerNow() (uw uint64, ok bool) {
	path := powerNowPath
	if !pathExists(path) {
		path = powerNowPathAlt
		if !pathExists(path) {
			m.mu.Lock()
			m.available = false
			m.mu.Unlock()
			return 0, false
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// RecordSample records one power-draw sample at the given Hz, evicting the
// oldest sample once the rolling window is full.
func (m *Monitor) RecordSample(powerUw uint64, hz int, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.samples) >= sampleCount {
		m.samples = m.samples[1:]
	}
	m.samples = append(m.samples, powerSample{powerUw: powerUw, hz: hz, at: now})
}

// Status returns the current battery status, using the most recent power
// reading for the instantaneous figure and the rolling window for the
// average and savings estimate.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	available := m.available
	maxHz := m.maxHz
	samples := make([]powerSample, len(m.samples))
	copy(samples, m.samples)
	m.mu.Unlock()

	if !available {
		return Status{}
	}

	currentUw, _ := m.ReadPowerNow()
	currentWatts := float64(currentUw) / 1_000_000.0

	if len(samples) == 0 {
		return Status{PowerWatts: currentWatts, AvgPowerWatts: currentWatts, Available: true}
	}

	var sumUw, sumHz uint64
	for _, s := range samples {
		sumUw += s.powerUw
		sumHz += uint64(s.hz)
	}
	avgWatts := (float64(sumUw) / float64(len(samples))) / 1_000_000.0
	avgHz := float64(sumHz) / float64(len(samples))

	savings := 0.0
	if avgHz > 0 && avgHz < float64(maxHz) {
		theoreticalMaxPower := avgWatts * (float64(maxHz) / avgHz)
		powerSavedWatts := theoreticalMaxPower - avgWatts
		if powerSavedWatts > 0 {
			savings = (powerSavedWatts / assumedBatteryWh) * 60.0
		}
	}

	return Status{
		PowerWatts:              currentWatts,
		AvgPowerWatts:           avgWatts,
		EstimatedSavingsMinutes: savings,
		Available:               true,
	}
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
