// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	switchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smart_refresh_switches_total",
		Help: "Total refresh-rate changes applied, by direction",
	}, []string{"component", "direction"})

	engineState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smart_refresh_engine_state",
		Help: "Hysteresis engine state (Stable=1, Dropping=1, Increasing=1; others 0)",
	}, []string{"component", "state"})

	currentHz = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smart_refresh_current_hz",
		Help: "Currently applied refresh rate in Hz",
	}, []string{"component"})

	currentFps = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smart_refresh_current_fps",
		Help: "Most recent smoothed FPS reading",
	}, []string{"component"})
)

var engineStates = []string{"Stable", "Dropping", "Increasing"}

// SetEngineState records the active engine state for a component.
func SetEngineState(component, state string) {
	for _, s := range engineStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		engineState.WithLabelValues(component, s).Set(value)
	}
}

// RecordSwitch increments the switches counter for a direction ("Dropped" or "Increased").
func RecordSwitch(component, direction string) {
	switchesTotal.WithLabelValues(component, direction).Inc()
}

// SetCurrentHz publishes the currently applied Hz as a gauge.
func SetCurrentHz(component string, hz int) {
	currentHz.WithLabelValues(component).Set(float64(hz))
}

// SetCurrentFps publishes the most recent smoothed FPS reading as a gauge.
func SetCurrentFps(component string, fps float64) {
	currentFps.WithLabelValues(component).Set(fps)
}
