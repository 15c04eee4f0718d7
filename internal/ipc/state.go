// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ipc

import (
	"math"
	"sync/atomic"
)

// State holds the small slice of daemon state that both the control loop
// and IPC handlers touch: whether the control loop is currently enabled,
// and the most recently observed smoothed FPS. It exists so GetStatus can
// report both without reaching into the control loop directly.
type State struct {
	running   atomic.Bool
	fpsBits   atomic.Uint64
	mangohud  atomic.Bool
}

// NewState constructs a State with the given initial running flag.
func NewState(running bool) *State {
	s := &State{}
	s.running.Store(running)
	return s
}

// Start marks the control loop as enabled.
func (s *State) Start() { s.running.Store(true) }

// Stop marks the control loop as disabled.
func (s *State) Stop() { s.running.Store(false) }

// Running reports whether the control loop is currently enabled.
func (s *State) Running() bool { return s.running.Load() }

// SetCurrentFps records the latest smoothed FPS sample for status reporting.
func (s *State) SetCurrentFps(fps float64) { s.fpsBits.Store(math.Float64bits(fps)) }

// CurrentFps returns the last recorded smoothed FPS.
func (s *State) CurrentFps() float64 { return math.Float64frombits(s.fpsBits.Load()) }

// SetMangohudAvailable records whether the shared-memory sample source is
// currently readable.
func (s *State) SetMangohudAvailable(available bool) { s.mangohud.Store(available) }

// MangohudAvailable reports the sample source's last known availability.
func (s *State) MangohudAvailable() bool { return s.mangohud.Load() }
