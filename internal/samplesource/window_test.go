// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package samplesource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// P1. Rolling-window bound.
func TestWindowBound(t *testing.T) {
	w := NewWindow()
	for i := 0; i < WindowCapacity+30; i++ {
		w.Push(Sample{Fps: uint64(i)})
	}
	require.Equal(t, WindowCapacity, w.Len())

	snap := w.Snapshot()
	require.Len(t, snap, WindowCapacity)
	// The window must hold exactly the last WindowCapacity pushed values, in order.
	wantFirst := uint64(30)
	assert.Equal(t, wantFirst, snap[0].Fps)
	assert.Equal(t, uint64(WindowCapacity+29), snap[len(snap)-1].Fps)
}

func TestWindowBoundPartial(t *testing.T) {
	w := NewWindow()
	for i := 0; i < 10; i++ {
		w.Push(Sample{Fps: uint64(i)})
	}
	assert.Equal(t, 10, w.Len())
}

func TestMeanFps(t *testing.T) {
	w := NewWindow()
	for _, fps := range []uint64{10, 20, 30} {
		w.Push(Sample{Fps: fps})
	}
	assert.InDelta(t, 20.0, w.MeanFps(), 1e-9)
}

func TestMeanFpsEmpty(t *testing.T) {
	w := NewWindow()
	assert.Equal(t, 0.0, w.MeanFps())
}

func TestFrametimePercentile(t *testing.T) {
	w := NewWindow()
	for _, ft := range []uint64{100, 50, 200, 150} {
		w.Push(Sample{FrametimeUs: ft})
	}
	// sorted: 50,100,150,200 -> p99 index = round(3*0.99) = 3 -> 200
	assert.Equal(t, uint64(200), w.FrametimePercentile(0.99))
	// p0 -> index 0 -> 50
	assert.Equal(t, uint64(50), w.FrametimePercentile(0))
}

func TestClear(t *testing.T) {
	w := NewWindow()
	w.Push(Sample{Fps: 1})
	w.Clear()
	assert.Equal(t, 0, w.Len())
}
