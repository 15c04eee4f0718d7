// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package battery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnavailableByDefaultOnTestHost(t *testing.T) {
	// CI/test hosts are not expected to expose BAT0/BAT1; this documents the
	// contract rather than asserting a specific filesystem layout.
	m := &Monitor{maxHz: 90, available: false}
	status := m.Status()
	assert.False(t, status.Available)
	assert.Equal(t, 0.0, status.PowerWatts)
}

func TestSavingsEstimateWhenBelowMaxHz(t *testing.T) {
	m := &Monitor{maxHz: 90, available: true}
	now := time.Now()
	// 10W average at 45Hz, max is 90Hz -> theoretical max power is double.
	for i := 0; i < 5; i++ {
		m.RecordSample(10_000_000, 45, now.Add(time.Duration(i)*time.Second))
	}
	status := m.Status()
	assert.True(t, status.Available)
	assert.InDelta(t, 10.0, status.AvgPowerWatts, 0.01)
	assert.Greater(t, status.EstimatedSavingsMinutes, 0.0)
}

func TestNoSavingsAtMaxHz(t *testing.T) {
	m := &Monitor{maxHz: 90, available: true}
	now := time.Now()
	m.RecordSample(10_000_000, 90, now)
	status := m.Status()
	assert.Equal(t, 0.0, status.EstimatedSavingsMinutes)
}

func TestRollingWindowBound(t *testing.T) {
	m := &Monitor{maxHz: 90, available: true}
	now := time.Now()
	for i := 0; i < sampleCount+5; i++ {
		m.RecordSample(uint64(i)*1_000_000, 60, now.Add(time.Duration(i)*time.Second))
	}
	assert.Len(t, m.samples, sampleCount)
}
