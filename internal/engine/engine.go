// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package engine implements the adaptive hysteresis control engine that
// converts smoothed FPS samples into refresh-rate change decisions.
package engine

import (
	"math"
	"sync"
	"time"

	"github.com/smart-refresh/daemon/internal/metrics"
)

// State is the hysteresis state machine's current phase.
type State int

const (
	StateStable State = iota
	StateDropping
	StateIncreasing
)

func (s State) String() string {
	switch s {
	case StateStable:
		return "Stable"
	case StateDropping:
		return "Dropping"
	case StateIncreasing:
		return "Increasing"
	default:
		return "unknown"
	}
}

// Sensitivity selects how long a condition must persist before the engine acts.
type Sensitivity int

const (
	SensitivityConservative Sensitivity = iota
	SensitivityBalanced
	SensitivityAggressive
)

func (s Sensitivity) String() string {
	switch s {
	case SensitivityConservative:
		return "conservative"
	case SensitivityBalanced:
		return "balanced"
	case SensitivityAggressive:
		return "aggressive"
	default:
		return "unknown"
	}
}

// ParseSensitivity parses the lowercase wire representation of a Sensitivity.
func ParseSensitivity(s string) (Sensitivity, bool) {
	switch s {
	case "conservative":
		return SensitivityConservative, true
	case "balanced":
		return SensitivityBalanced, true
	case "aggressive":
		return SensitivityAggressive, true
	default:
		return 0, false
	}
}

func (s Sensitivity) dropWait() time.Duration {
	switch s {
	case SensitivityConservative:
		return 2000 * time.Millisecond
	case SensitivityAggressive:
		return 500 * time.Millisecond
	default:
		return 1000 * time.Millisecond
	}
}

func (s Sensitivity) riseWait() time.Duration {
	switch s {
	case SensitivityConservative:
		return 5000 * time.Millisecond
	case SensitivityAggressive:
		return 1500 * time.Millisecond
	default:
		return 3000 * time.Millisecond
	}
}

// DeviceMode is a policy overlay modeling the panel's tolerance to rate changes.
type DeviceMode int

const (
	DeviceModeOled DeviceMode = iota
	DeviceModeLcd
	DeviceModeCustom
)

func (m DeviceMode) String() string {
	switch m {
	case DeviceModeOled:
		return "oled"
	case DeviceModeLcd:
		return "lcd"
	case DeviceModeCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// ParseDeviceMode parses the lowercase wire representation of a DeviceMode.
func ParseDeviceMode(s string) (DeviceMode, bool) {
	switch s {
	case "oled":
		return DeviceModeOled, true
	case "lcd":
		return DeviceModeLcd, true
	case "custom":
		return DeviceModeCustom, true
	default:
		return 0, false
	}
}

func (m DeviceMode) minChangeInterval() time.Duration {
	if m == DeviceModeLcd {
		return 2000 * time.Millisecond
	}
	return 500 * time.Millisecond
}

const (
	hzStep   = 5
	minHzAbs = 40
	maxHzAbs = 90

	lcdMinHz = 40
	lcdMaxHz = 60

	adaptiveWindowCapacity = 10
	stdDevStable           = 2.0
	stdDevUnstable         = 5.0

	defaultFpsTolerance = 3.0
	minFpsTolerance     = 2.0
	maxFpsTolerance     = 5.0

	defaultResumeCooldown = 5 * time.Second

	transitionLogCapacity = 20
)

// Transition records one applied or observed state change for the status feed.
type Transition struct {
	At        time.Time
	FromHz    int
	ToHz      int
	Fps       float64
	Direction string // "Dropped" | "Increased"
}

// Snapshot is a read-only view of the engine's current configuration and state.
type Snapshot struct {
	State                  State
	UserSensitivity        Sensitivity
	EffectiveSensitivity   Sensitivity
	DeviceMode             DeviceMode
	UserMinHz, UserMaxHz   int
	FpsTolerance           float64
	AdaptiveEnabled        bool
	ExternalDisplay        bool
	ResumeCooldownRemain   time.Duration
	FpsStdDev              float64
	LastAppliedHz          int
	LastAppliedHzValid     bool
	SyncFrameLimiter       bool
	Transitions            []Transition
}

type since struct {
	t     time.Time
	valid bool
}

// Engine is the hysteresis control engine. It is a plain struct plus pure
// methods; all concurrency safety is provided by the single mutex below. No
// field is ever touched outside of a held lock, so decide() always observes
// a coherent snapshot of state and configuration.
type Engine struct {
	mu sync.Mutex

	state      State
	droppingAt since
	increasAt  since

	userSensitivity      Sensitivity
	effectiveSensitivity Sensitivity
	deviceMode           DeviceMode

	userMinHz, userMaxHz int

	fpsTolerance    float64
	adaptiveEnabled bool

	externalDisplay bool

	lastChangeAt    time.Time
	hasLastChange   bool
	lastAppliedHz   int
	hasLastApplied  bool

	resumeCooldownUntil time.Time
	hasResumeCooldown   bool
	resumeCooldownDur   time.Duration

	syncFrameLimiter bool

	adaptiveWindow []float64

	transitions []Transition

	name string
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithName attaches a component name used for metrics labels.
func WithName(name string) Option {
	return func(e *Engine) { e.name = name }
}

// New constructs an Engine with the given initial sensitivity, starting in
// the Stable state with the default 40-90 Hz range.
func New(sensitivity Sensitivity, opts ...Option) *Engine {
	e := &Engine{
		state:                StateStable,
		userSensitivity:      sensitivity,
		effectiveSensitivity: sensitivity,
		deviceMode:           DeviceModeOled,
		userMinHz:            minHzAbs,
		userMaxHz:            maxHzAbs,
		fpsTolerance:         defaultFpsTolerance,
		resumeCooldownDur:    defaultResumeCooldown,
		name:                 "engine",
	}
	for _, opt := range opts {
		opt(e)
	}
	metrics.SetEngineState(e.name, e.state.String())
	return e
}

// Decide ingests one smoothed FPS sample together with the currently-applied
// Hz and the current time, and returns the new target Hz if a change is
// commanded. now must be monotonic and non-decreasing across calls.
func (e *Engine) Decide(fps float64, currentHz int, now time.Time) (hz int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Zero/negative samples mean "no data": no decision, no state disturbance.
	if fps <= 0 {
		return 0, false
	}

	// Pause gates.
	if e.externalDisplay {
		e.setState(StateStable)
		return 0, false
	}
	if e.hasResumeCooldown && now.Before(e.resumeCooldownUntil) {
		e.setState(StateStable)
		return 0, false
	}

	// Variance update.
	e.pushAdaptive(fps)
	e.applyAdaptiveSensitivity()

	emin, emax := e.effectiveRange()

	// Sticky target.
	if abs(fps-float64(currentHz)) < e.fpsTolerance {
		e.setState(StateStable)
		return 0, false
	}

	below := fps < float64(currentHz)-1
	atOrAbove := fps >= float64(currentHz)

	switch e.state {
	case StateStable:
		switch {
		case below && currentHz > emin:
			e.setState(StateDropping)
			e.droppingAt = since{t: now, valid: true}
		case atOrAbove && currentHz < emax:
			e.setState(StateIncreasing)
			e.increasAt = since{t: now, valid: true}
		}
		return 0, false

	case StateDropping:
		sinceT := e.droppingAt.t
		if !below {
			e.setState(StateStable)
			return 0, false
		}
		if now.Sub(sinceT) < e.effectiveSensitivity.dropWait() {
			return 0, false
		}
		if !e.canChange(now) {
			return 0, false
		}
		target := clampAndFloorTo5(fps, emin, emax)
		e.setState(StateStable)
		if absInt(currentHz-target) < hzStep {
			return 0, false
		}
		e.recordChange(now, target, fps, "Dropped", currentHz)
		return target, true

	case StateIncreasing:
		sinceT := e.increasAt.t
		if below {
			e.setState(StateDropping)
			e.droppingAt = since{t: now, valid: true}
			return 0, false
		}
		if !atOrAbove {
			e.setState(StateStable)
			return 0, false
		}
		if now.Sub(sinceT) < e.effectiveSensitivity.riseWait() {
			return 0, false
		}
		if !e.canChange(now) {
			return 0, false
		}
		target := nextStepUp(currentHz, emax)
		e.setState(StateStable)
		if target <= currentHz {
			return 0, false
		}
		e.recordChange(now, target, fps, "Increased", currentHz)
		return target, true
	}

	return 0, false
}

func (e *Engine) setState(s State) {
	if e.state == s {
		return
	}
	e.state = s
	metrics.SetEngineState(e.name, s.String())
}

func (e *Engine) canChange(now time.Time) bool {
	if !e.hasLastChange {
		return true
	}
	return now.Sub(e.lastChangeAt) >= e.deviceMode.minChangeInterval()
}

func (e *Engine) recordChange(now time.Time, target int, fps float64, direction string, fromHz int) {
	e.lastChangeAt = now
	e.hasLastChange = true
	e.lastAppliedHz = target
	e.hasLastApplied = true

	e.transitions = append(e.transitions, Transition{
		At:        now,
		FromHz:    fromHz,
		ToHz:      target,
		Fps:       fps,
		Direction: direction,
	})
	if len(e.transitions) > transitionLogCapacity {
		e.transitions = e.transitions[len(e.transitions)-transitionLogCapacity:]
	}

	metrics.RecordSwitch(e.name, direction)
}

func (e *Engine) effectiveRange() (int, int) {
	if e.deviceMode == DeviceModeLcd {
		min := e.userMinHz
		if min < lcdMinHz {
			min = lcdMinHz
		}
		max := e.userMaxHz
		if max > lcdMaxHz {
			max = lcdMaxHz
		}
		return min, max
	}
	return e.userMinHz, e.userMaxHz
}

func (e *Engine) pushAdaptive(fps float64) {
	e.adaptiveWindow = append(e.adaptiveWindow, fps)
	if len(e.adaptiveWindow) > adaptiveWindowCapacity {
		e.adaptiveWindow = e.adaptiveWindow[len(e.adaptiveWindow)-adaptiveWindowCapacity:]
	}
}

func (e *Engine) applyAdaptiveSensitivity() {
	if !e.adaptiveEnabled || e.deviceMode == DeviceModeLcd {
		return
	}
	if len(e.adaptiveWindow) < adaptiveWindowCapacity {
		return
	}
	sd := stdDev(e.adaptiveWindow)
	switch {
	case sd > stdDevUnstable:
		e.effectiveSensitivity = SensitivityConservative
	case sd < stdDevStable:
		e.effectiveSensitivity = e.userSensitivity
	}
}

// --- mutators ---

// SetUserRange sets the user-configured Hz range. Both values should be
// multiples of 5 within [40,90] with min <= max; out-of-range callers are
// expected to have validated upstream (IPC / config layers own that).
func (e *Engine) SetUserRange(min, max int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.userMinHz, e.userMaxHz = min, max
}

// SetSensitivity sets the user sensitivity preference and resets state to Stable.
func (e *Engine) SetSensitivity(s Sensitivity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.userSensitivity = s
	e.updateEffectiveSensitivity()
	e.setState(StateStable)
}

// SetDeviceMode applies a device-mode overlay and resets state to Stable.
func (e *Engine) SetDeviceMode(m DeviceMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deviceMode = m
	e.updateEffectiveSensitivity()
	e.setState(StateStable)
}

func (e *Engine) updateEffectiveSensitivity() {
	if e.deviceMode == DeviceModeLcd {
		e.effectiveSensitivity = SensitivityConservative
		return
	}
	e.effectiveSensitivity = e.userSensitivity
}

// SetFpsTolerance sets the sticky-target half-width, clamped to [2.0, 5.0].
func (e *Engine) SetFpsTolerance(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v < minFpsTolerance {
		v = minFpsTolerance
	}
	if v > maxFpsTolerance {
		v = maxFpsTolerance
	}
	e.fpsTolerance = v
}

// SetAdaptiveEnabled toggles variance-driven sensitivity adaptation.
func (e *Engine) SetAdaptiveEnabled(b bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.adaptiveEnabled = b
	if !b {
		e.updateEffectiveSensitivity()
	}
}

// SetResumeCooldown sets the silence window applied after reset_after_wake.
func (e *Engine) SetResumeCooldown(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resumeCooldownDur = d
}

// SetExternalDisplayDetected arms or clears the external-display pause gate.
func (e *Engine) SetExternalDisplayDetected(b bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.externalDisplay = b
	if b {
		e.setState(StateStable)
	}
}

// SetSyncFrameLimiter records whether the compositor's frame limiter should
// track the commanded Hz. The engine itself does not act on this; it is
// surfaced through Snapshot for the Control Loop and IPC status feed.
func (e *Engine) SetSyncFrameLimiter(b bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.syncFrameLimiter = b
}

// ResetAfterWake resets state to Stable, clears last_change_at and the
// variance window, and arms a resume cooldown starting now.
func (e *Engine) ResetAfterWake(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setState(StateStable)
	e.hasLastChange = false
	e.adaptiveWindow = nil
	e.resumeCooldownUntil = now.Add(e.resumeCooldownDur)
	e.hasResumeCooldown = true
}

// Snapshot returns a read-only view of the engine's current state.
func (e *Engine) Snapshot(now time.Time) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	var remaining time.Duration
	if e.hasResumeCooldown && now.Before(e.resumeCooldownUntil) {
		remaining = e.resumeCooldownUntil.Sub(now)
	}

	transitions := make([]Transition, len(e.transitions))
	copy(transitions, e.transitions)

	return Snapshot{
		State:                e.state,
		UserSensitivity:      e.userSensitivity,
		EffectiveSensitivity: e.effectiveSensitivity,
		DeviceMode:           e.deviceMode,
		UserMinHz:            e.userMinHz,
		UserMaxHz:            e.userMaxHz,
		FpsTolerance:         e.fpsTolerance,
		AdaptiveEnabled:      e.adaptiveEnabled,
		ExternalDisplay:      e.externalDisplay,
		ResumeCooldownRemain: remaining,
		FpsStdDev:            stdDev(e.adaptiveWindow),
		LastAppliedHz:        e.lastAppliedHz,
		LastAppliedHzValid:   e.hasLastApplied,
		SyncFrameLimiter:     e.syncFrameLimiter,
		Transitions:          transitions,
	}
}

// EffectiveRange returns the currently effective (device-mode-overlaid) Hz range.
func (e *Engine) EffectiveRange() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.effectiveRange()
}

func clampAndFloorTo5(x float64, min, max int) int {
	f := int(x)
	f = (f / hzStep) * hzStep
	if f < min {
		f = min
	}
	if f > max {
		f = max
	}
	return f
}

func nextStepUp(hz, max int) int {
	next := hz + hzStep
	if next > max {
		next = max
	}
	return roundToNearest5(next)
}

func roundToNearest5(hz int) int {
	return ((hz + hzStep/2) / hzStep) * hzStep
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func stdDev(samples []float64) float64 {
	n := len(samples)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean := sum / float64(n)
	var sq float64
	for _, v := range samples {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(n-1))
}
