// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package samplesource

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// recordSize is the fixed-layout MangoHud overlay record: two little-endian
// uint64 fields, fps_val then frametime_us. This is a hard ABI contract
// with the external overlay producer. Open rejects a segment shorter than
// recordSize with ErrUnavailable, which the poller retries; there is no
// startup layout check, and no size mismatch stops the daemon.
const recordSize = 16

// ErrUnavailable is returned when the shared-memory segment cannot be
// opened or mapped. Callers should retry; it is never fatal to the daemon.
var ErrUnavailable = errors.New("samplesource: shared memory segment unavailable")

// ShmReader maps a POSIX shared-memory segment exported by MangoHud and
// performs volatile reads of the fixed 16-byte record.
//
// POSIX shm_open() objects are backed on Linux by tmpfs-mounted files under
// /dev/shm; this avoids a cgo dependency on shm_open(3) by opening that
// path directly and mapping it with golang.org/x/sys/unix, which is the
// only pack dependency offering raw mmap/open/close primitives.
type ShmReader struct {
	mu     sync.Mutex
	name   string
	path   string
	fd     int
	data   []byte
	opened bool
}

// NewShmReader constructs a reader for the named segment (e.g. "/mangohud-overlay").
func NewShmReader(name string) *ShmReader {
	trimmed := strings.TrimPrefix(name, "/")
	return &ShmReader{
		name: name,
		path: "/dev/shm/" + trimmed,
		fd:   -1,
	}
}

// Open maps the segment read-only. It is safe to call repeatedly; a
// successful prior Open is a no-op.
func (r *ShmReader) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.opened {
		return nil
	}

	f, err := os.OpenFile(r.path, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrUnavailable, r.path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", ErrUnavailable, r.path, err)
	}
	if fi.Size() < recordSize {
		return fmt.Errorf("%w: %s too small (%d bytes, want >= %d)", ErrUnavailable, r.path, fi.Size(), recordSize)
	}

	fd, err := unix.Open(r.path, unix.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("%w: unix open %s: %v", ErrUnavailable, r.path, err)
	}

	data, err := unix.Mmap(fd, 0, recordSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("%w: mmap %s: %v", ErrUnavailable, r.path, err)
	}

	r.fd = fd
	r.data = data
	r.opened = true
	return nil
}

// Read performs a volatile read of the current record. Callers must Open
// first; Read returns ErrUnavailable if the segment is not mapped.
func (r *ShmReader) Read() (Sample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.opened {
		return Sample{}, ErrUnavailable
	}
	fps := binary.LittleEndian.Uint64(r.data[0:8])
	frametime := binary.LittleEndian.Uint64(r.data[8:16])
	return Sample{Fps: fps, FrametimeUs: frametime}, nil
}

// Close unmaps the segment and releases the file descriptor.
func (r *ShmReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.opened {
		return nil
	}
	err := unix.Munmap(r.data)
	closeErr := unix.Close(r.fd)
	r.data = nil
	r.fd = -1
	r.opened = false
	if err != nil {
		return err
	}
	return closeErr
}
