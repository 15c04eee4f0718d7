// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"sync"
	"time"
)

const (
	// recentStableDurations bounds how many stable-period durations are
	// kept for the rolling average; old ones are simply dropped.
	recentStableDurations = 100
)

// Collector aggregates cumulative switch and timing counters for the
// GetMetrics IPC response. It is independent of the Prometheus exposition
// above: this is in-process bookkeeping the IPC router reads directly,
// while the Prometheus gauges/counters exist to be scraped.
type Collector struct {
	mu sync.Mutex

	startedAt time.Time

	totalSwitches int64
	dropCount     int64
	increaseCount int64

	switchTimes []time.Time

	stableDurations []time.Duration
	stableEnteredAt time.Time
	hasStableEntry  bool
}

// NewCollector creates a Collector whose uptime is measured from now.
func NewCollector(now time.Time) *Collector {
	return &Collector{
		startedAt:      now,
		stableEnteredAt: now,
		hasStableEntry:  true,
	}
}

// RecordSwitch records one applied refresh-rate change.
func (c *Collector) RecordSwitch(direction string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalSwitches++
	switch direction {
	case "Dropped":
		c.dropCount++
	case "Increased":
		c.increaseCount++
	}
	c.switchTimes = append(c.switchTimes, now)
	c.pruneSwitchTimes(now)
}

// EnterStable marks the engine entering the Stable state and opens a new
// stable period. A period that is already open is restarted, not recorded;
// only LeaveStable adds a duration to the rolling average.
func (c *Collector) EnterStable(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stableEnteredAt = now
	c.hasStableEntry = true
}

// LeaveStable closes the current stable period, if one is open, and records
// its duration for the rolling average.
func (c *Collector) LeaveStable(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasStableEntry {
		return
	}
	d := now.Sub(c.stableEnteredAt)
	c.stableDurations = append(c.stableDurations, d)
	if len(c.stableDurations) > recentStableDurations {
		c.stableDurations = c.stableDurations[len(c.stableDurations)-recentStableDurations:]
	}
	c.hasStableEntry = false
}

func (c *Collector) pruneSwitchTimes(now time.Time) {
	cutoff := now.Add(-time.Hour)
	i := 0
	for ; i < len(c.switchTimes); i++ {
		if c.switchTimes[i].After(cutoff) {
			break
		}
	}
	c.switchTimes = c.switchTimes[i:]
}

// Snapshot is the GetMetrics IPC payload.
type Snapshot struct {
	TotalSwitches      int64   `json:"total_switches"`
	SwitchesPerHour    int64   `json:"switches_per_hour"`
	AvgTimeInStableSec float64 `json:"avg_time_in_stable_sec"`
	UptimeSec          int64   `json:"uptime_sec"`
	DropCount          int64   `json:"drop_count"`
	IncreaseCount      int64   `json:"increase_count"`
}

// Snapshot returns the current metrics payload.
func (c *Collector) Snapshot(now time.Time) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneSwitchTimes(now)

	var avg float64
	if len(c.stableDurations) > 0 {
		var sum time.Duration
		for _, d := range c.stableDurations {
			sum += d
		}
		avg = (sum / time.Duration(len(c.stableDurations))).Seconds()
	}

	return Snapshot{
		TotalSwitches:      c.totalSwitches,
		SwitchesPerHour:    int64(len(c.switchTimes)),
		AvgTimeInStableSec: avg,
		UptimeSec:          int64(now.Sub(c.startedAt).Seconds()),
		DropCount:          c.dropCount,
		IncreaseCount:      c.increaseCount,
	}
}
