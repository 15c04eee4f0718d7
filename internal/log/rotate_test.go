// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDailyRotatingWriterCreatesFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDailyRotatingWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "daemon.log"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestRotateMovesCurrentLogAndReopens(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDailyRotatingWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("day0\n"))
	require.NoError(t, err)

	w.currentDay = "2025-01-01"
	require.NoError(t, w.rotate("2025-01-02"))

	rotatedPath := filepath.Join(dir, "daemon.log.2025-01-01")
	data, err := os.ReadFile(rotatedPath)
	require.NoError(t, err)
	assert.Equal(t, "day0\n", string(data))

	_, err = w.Write([]byte("day1\n"))
	require.NoError(t, err)
	data, err = os.ReadFile(filepath.Join(dir, "daemon.log"))
	require.NoError(t, err)
	assert.Equal(t, "day1\n", string(data))
}

func TestPruneOldLogsKeepsOnlyNewest(t *testing.T) {
	dir := t.TempDir()
	for _, day := range []string{"2025-01-01", "2025-01-02", "2025-01-03", "2025-01-04"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "daemon.log."+day), []byte("x"), 0o640))
	}

	w, err := NewDailyRotatingWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	w.pruneOldLogs()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var rotated []string
	for _, e := range entries {
		if e.Name() != "daemon.log" {
			rotated = append(rotated, e.Name())
		}
	}
	assert.Len(t, rotated, maxRetainedLogFiles)
	assert.NotContains(t, rotated, "daemon.log.2025-01-01")
}

func TestDefaultLogDirFallsBackWhenHomeUnset(t *testing.T) {
	t.Setenv("HOME", "")
	dir := DefaultLogDir()
	assert.Contains(t, dir, "smart-refresh")
}
