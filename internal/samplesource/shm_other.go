// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !unix

package samplesource

import "errors"

// ErrUnavailable is returned when the shared-memory segment cannot be
// opened or mapped. Callers should retry; it is never fatal to the daemon.
var ErrUnavailable = errors.New("samplesource: shared memory segment unavailable")

// ShmReader is a no-op stub on non-unix platforms: the MangoHud overlay
// only exists on Linux, so there is nothing to map here.
type ShmReader struct{}

// NewShmReader constructs a stub reader.
func NewShmReader(name string) *ShmReader { return &ShmReader{} }

// Open always fails on non-unix platforms.
func (r *ShmReader) Open() error { return ErrUnavailable }

// Read always fails on non-unix platforms.
func (r *ShmReader) Read() (Sample, error) { return Sample{}, ErrUnavailable }

// Close is a no-op on non-unix platforms.
func (r *ShmReader) Close() error { return nil }
