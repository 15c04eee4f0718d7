// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

var (
	// ErrMissingLogger names a missing logger. Deps.Validate never returns
	// it: a zero-value zerolog.Logger is accepted.
	ErrMissingLogger = errors.New("logger is required")

	// ErrMissingEngine is returned when a Manager is constructed without a control engine.
	ErrMissingEngine = errors.New("engine is required")

	// ErrMissingActuator is returned when a Manager is constructed without an actuator.
	ErrMissingActuator = errors.New("actuator is required")

	// ErrMissingSource is returned when a Manager is constructed without a sample source.
	ErrMissingSource = errors.New("sample source is required")

	// ErrMissingIPCServer is returned when a Manager is constructed without an IPC server.
	ErrMissingIPCServer = errors.New("ipc server is required")

	// ErrManagerNotStarted is returned when trying to shut down a manager that hasn't started.
	ErrManagerNotStarted = errors.New("manager not started")
)
