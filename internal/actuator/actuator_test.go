// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package actuator

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStartsAtMaxHz(t *testing.T) {
	a := New(40, 90)
	assert.Equal(t, 90, a.CurrentHz())
}

func TestNewSwapsInvertedRange(t *testing.T) {
	a := New(90, 40)
	assert.Equal(t, 90, a.CurrentHz())
	assert.Equal(t, 40, a.ClampHz(10))
}

func TestApplyNoChangeWhenEqual(t *testing.T) {
	calls := 0
	a := New(40, 90, WithRunner(func(ctx context.Context, binary string, hz int) (int, string, error) {
		calls++
		return 0, "", nil
	}))

	result, err := a.Apply(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, NoChange, result)
	assert.Equal(t, 0, calls)
}

func TestApplyChangedInvokesHelper(t *testing.T) {
	var gotHz int
	a := New(40, 90, WithRunner(func(ctx context.Context, binary string, hz int) (int, string, error) {
		gotHz = hz
		return 0, "", nil
	}))

	result, err := a.Apply(context.Background(), 65)
	require.NoError(t, err)
	assert.Equal(t, Changed, result)
	assert.Equal(t, 65, gotHz)
	assert.Equal(t, 65, a.CurrentHz())
}

func TestApplyClampsTarget(t *testing.T) {
	var gotHz int
	a := New(40, 60, WithRunner(func(ctx context.Context, binary string, hz int) (int, string, error) {
		gotHz = hz
		return 0, "", nil
	}))

	_, err := a.Apply(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, 60, gotHz)
}

func TestApplyNonzeroExitIsFailed(t *testing.T) {
	a := New(40, 90, WithRunner(func(ctx context.Context, binary string, hz int) (int, string, error) {
		return 1, "boom", nil
	}))

	result, err := a.Apply(context.Background(), 65)
	assert.Equal(t, Failed, result)
	var cmdErr *CommandFailedError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.ExitCode)
	assert.Equal(t, "boom", cmdErr.Stderr)
	// A failed actuation does not update the cached Hz.
	assert.Equal(t, 90, a.CurrentHz())
}

func TestApplyMissingBinaryClassifiedNotFound(t *testing.T) {
	a := New(40, 90, WithRunner(func(ctx context.Context, binary string, hz int) (int, string, error) {
		return 0, "", &exec.Error{Name: binary, Err: exec.ErrNotFound}
	}))

	result, err := a.Apply(context.Background(), 65)
	assert.Equal(t, Failed, result)
	require.ErrorIs(t, err, ErrCommandNotFound)
}
