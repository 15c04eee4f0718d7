// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package actuator applies refresh-rate decisions by invoking an external
// compositor helper and tracks the last-applied rate to suppress no-op calls.
package actuator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/smart-refresh/daemon/internal/resilience"
)

// Result classifies the outcome of an Apply call.
type Result int

const (
	Changed Result = iota
	NoChange
	Failed
)

func (r Result) String() string {
	switch r {
	case Changed:
		return "changed"
	case NoChange:
		return "no_change"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrCommandNotFound is returned when the helper binary is missing.
var ErrCommandNotFound = errors.New("actuator: helper binary not found")

// CommandFailedError is returned when the helper exits nonzero.
type CommandFailedError struct {
	ExitCode int
	Stderr   string
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("actuator: helper exited %d: %s", e.ExitCode, e.Stderr)
}

const (
	minAllowedHz = 40
	maxAllowedHz = 90

	defaultBinary = "gamescope-cmd"
)

// Actuator invokes the compositor's refresh-rate helper and tracks the
// last-applied Hz to suppress redundant invocations.
type Actuator struct {
	mu sync.Mutex

	binary string

	minHz, maxHz int
	currentHz    int
	lastChange   time.Time

	breaker *resilience.CircuitBreaker

	runner func(ctx context.Context, binary string, hz int) (exitCode int, stderr string, err error)
}

// Option configures an Actuator at construction.
type Option func(*Actuator)

// WithBinary overrides the helper binary name, primarily for tests.
func WithBinary(name string) Option {
	return func(a *Actuator) { a.binary = name }
}

// WithRunner overrides subprocess execution, primarily for tests.
func WithRunner(fn func(ctx context.Context, binary string, hz int) (int, string, error)) Option {
	return func(a *Actuator) { a.runner = fn }
}

// New constructs an Actuator with the given Hz range. If min > max they are
// swapped; the Actuator starts at max Hz, matching a freshly-started panel
// running at its highest supported rate.
func New(minHz, maxHz int, opts ...Option) *Actuator {
	if minHz > maxHz {
		minHz, maxHz = maxHz, minHz
	}
	minHz = clamp(minHz, minAllowedHz, maxAllowedHz)
	maxHz = clamp(maxHz, minAllowedHz, maxAllowedHz)

	a := &Actuator{
		binary:    defaultBinary,
		minHz:     minHz,
		maxHz:     maxHz,
		currentHz: maxHz,
		breaker: resilience.NewCircuitBreaker(
			"actuator",
			3, 3,
			30*time.Second,
			10*time.Second,
		),
	}
	a.runner = a.runExternal
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetRange updates the allowed Hz range.
func (a *Actuator) SetRange(minHz, maxHz int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if minHz > maxHz {
		minHz, maxHz = maxHz, minHz
	}
	a.minHz = clamp(minHz, minAllowedHz, maxAllowedHz)
	a.maxHz = clamp(maxHz, minAllowedHz, maxAllowedHz)
}

// CurrentHz returns the last Hz the actuator believes is applied.
func (a *Actuator) CurrentHz() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentHz
}

// ClampHz clamps a target into the currently configured range.
func (a *Actuator) ClampHz(hz int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return clamp(hz, a.minHz, a.maxHz)
}

// Apply clamps target into range and, if it differs from the cached
// current Hz, invokes the helper. A circuit breaker guards against
// hammering a missing or consistently failing helper: once open, Apply
// short-circuits to Failed without spawning a process until the breaker's
// reset timeout elapses.
func (a *Actuator) Apply(ctx context.Context, target int) (Result, error) {
	a.mu.Lock()
	clamped := clamp(target, a.minHz, a.maxHz)
	if clamped == a.currentHz {
		a.mu.Unlock()
		return NoChange, nil
	}
	binary := a.binary
	runner := a.runner
	a.mu.Unlock()

	if !a.breaker.AllowRequest() {
		return Failed, resilience.ErrCircuitOpen
	}
	a.breaker.RecordAttempt()

	exitCode, stderr, err := runner(ctx, binary, clamped)
	if err != nil {
		a.breaker.RecordTechnicalFailure()
		if errors.Is(err, exec.ErrNotFound) {
			return Failed, ErrCommandNotFound
		}
		return Failed, err
	}
	if exitCode != 0 {
		a.breaker.RecordTechnicalFailure()
		return Failed, &CommandFailedError{ExitCode: exitCode, Stderr: stderr}
	}
	a.breaker.RecordSuccess()

	a.mu.Lock()
	a.currentHz = clamped
	a.lastChange = time.Now()
	a.mu.Unlock()

	return Changed, nil
}

// LastChange returns the time of the last successful change.
func (a *Actuator) LastChange() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastChange
}

func (a *Actuator) runExternal(ctx context.Context, binary string, hz int) (int, string, error) {
	cmd := exec.CommandContext(ctx, binary, "-r", strconv.Itoa(hz))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), stderr.String(), nil
		}
		return -1, "", err
	}
	return 0, "", nil
}

func clamp(x, min, max int) int {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
