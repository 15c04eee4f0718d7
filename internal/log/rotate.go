// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultLogDir returns $HOME/.local/share/smart-refresh, falling back to
// /tmp/smart-refresh if HOME is unset.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join("/tmp", "smart-refresh")
	}
	return filepath.Join(home, ".local", "share", "smart-refresh")
}

// maxRetainedLogFiles bounds how many rotated daemon.log.YYYY-MM-DD files
// are kept; older files are deleted as new ones are created.
const maxRetainedLogFiles = 3

// DailyRotatingWriter is an io.Writer that appends to dir/daemon.log,
// rotating it to daemon.log.YYYY-MM-DD the first time it is written to on a
// new UTC calendar day, and pruning all but the most recent
// maxRetainedLogFiles rotated files. There is no library for this in this
// module's dependency set, so rotation is implemented directly rather than
// left unbounded.
type DailyRotatingWriter struct {
	mu  sync.Mutex
	dir string

	file       *os.File
	currentDay string
}

// NewDailyRotatingWriter creates (or opens) dir/daemon.log, creating dir if
// necessary.
func NewDailyRotatingWriter(dir string) (*DailyRotatingWriter, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("log: mkdir %s: %w", dir, err)
	}
	w := &DailyRotatingWriter{dir: dir}
	if err := w.openForDay(currentUTCDay()); err != nil {
		return nil, err
	}
	return w, nil
}

func currentUTCDay() string {
	return time.Now().UTC().Format("2006-01-02")
}

func (w *DailyRotatingWriter) logPath() string {
	return filepath.Join(w.dir, "daemon.log")
}

func (w *DailyRotatingWriter) openForDay(day string) error {
	f, err := os.OpenFile(w.logPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("log: open %s: %w", w.logPath(), err)
	}
	w.file = f
	w.currentDay = day
	return nil
}

// Write implements io.Writer, rotating the file first if the UTC day has
// advanced since the last write.
func (w *DailyRotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	day := currentUTCDay()
	if day != w.currentDay {
		if err := w.rotate(day); err != nil {
			return 0, err
		}
	}
	return w.file.Write(p)
}

func (w *DailyRotatingWriter) rotate(newDay string) error {
	if w.file != nil {
		_ = w.file.Close()
	}

	rotatedPath := filepath.Join(w.dir, fmt.Sprintf("daemon.log.%s", w.currentDay))
	if _, err := os.Stat(w.logPath()); err == nil {
		if err := os.Rename(w.logPath(), rotatedPath); err != nil {
			return fmt.Errorf("log: rotate to %s: %w", rotatedPath, err)
		}
	}

	if err := w.openForDay(newDay); err != nil {
		return err
	}
	w.pruneOldLogs()
	return nil
}

func (w *DailyRotatingWriter) pruneOldLogs() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}

	var rotated []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) > len("daemon.log.") && name[:len("daemon.log.")] == "daemon.log." {
			rotated = append(rotated, name)
		}
	}
	if len(rotated) <= maxRetainedLogFiles {
		return
	}

	// Rotated filenames carry a YYYY-MM-DD suffix, so lexical order is
	// chronological; delete everything but the newest maxRetainedLogFiles.
	sortStrings(rotated)
	toDelete := rotated[:len(rotated)-maxRetainedLogFiles]
	for _, name := range toDelete {
		_ = os.Remove(filepath.Join(w.dir, name))
	}
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Close closes the underlying file.
func (w *DailyRotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}
