// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package profiles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-refresh/daemon/internal/engine"
)

func TestLoadOrDefaultMissingFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	m := LoadOrDefault(filepath.Join(dir, "profiles.json"))
	assert.Empty(t, m.All())
	assert.Equal(t, defaultGlobalDefault(), m.GlobalDefault())
}

func TestLoadOrDefaultMalformedFileYieldsDefaultsNotError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	m := LoadOrDefault(path)
	assert.Empty(t, m.All())
}

func TestSetGetDeleteProfile(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "profiles.json"))
	p := GameProfile{AppID: "570", Name: "Dota 2", MinHz: 60, MaxHz: 90, Sensitivity: "aggressive"}
	m.Set(p)

	got, ok := m.Get("570")
	require.True(t, ok)
	assert.Equal(t, p, got)

	assert.True(t, m.Delete("570"))
	assert.False(t, m.Delete("570"))
	_, ok = m.Get("570")
	assert.False(t, ok)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.json")

	m := New(path)
	m.Set(GameProfile{AppID: "730", Name: "CS2", MinHz: 60, MaxHz: 90, Sensitivity: "balanced"})
	m.SetGlobalDefault(GlobalDefault{MinHz: 48, MaxHz: 85, Sensitivity: "conservative", AdaptiveSensitivity: true})
	require.NoError(t, m.Save())

	loaded := LoadOrDefault(path)
	got, ok := loaded.Get("730")
	require.True(t, ok)
	assert.Equal(t, "CS2", got.Name)
	assert.Equal(t, GlobalDefault{MinHz: 48, MaxHz: 85, Sensitivity: "conservative", AdaptiveSensitivity: true}, loaded.GlobalDefault())
}

func TestCurrentSettingsFallsBackToGlobalDefault(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "profiles.json"))
	settings := m.CurrentSettings()
	assert.Equal(t, 40, settings.MinHz)
	assert.Equal(t, 90, settings.MaxHz)
	assert.Equal(t, engine.SensitivityBalanced, settings.Sensitivity)
}

func TestCurrentSettingsUsesActiveProfile(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "profiles.json"))
	m.Set(GameProfile{AppID: "570", Name: "Dota 2", MinHz: 60, MaxHz: 72, Sensitivity: "aggressive", AdaptiveSensitivity: true})
	m.SetCurrentGame("570")

	settings := m.CurrentSettings()
	assert.Equal(t, 60, settings.MinHz)
	assert.Equal(t, 72, settings.MaxHz)
	assert.Equal(t, engine.SensitivityAggressive, settings.Sensitivity)
	assert.True(t, settings.AdaptiveSensitivity)
}

func TestCurrentSettingsUnknownActiveGameFallsBack(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "profiles.json"))
	m.SetCurrentGame("999")

	settings := m.CurrentSettings()
	assert.Equal(t, 40, settings.MinHz)
}

func TestListResponseIncludesCurrentAppID(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "profiles.json"))
	m.Set(GameProfile{AppID: "570", Name: "Dota 2", MinHz: 60, MaxHz: 90, Sensitivity: "balanced"})
	m.SetCurrentGame("570")

	resp := m.ListResponse()
	require.Len(t, resp.Profiles, 1)
	require.NotNil(t, resp.CurrentAppID)
	assert.Equal(t, "570", *resp.CurrentAppID)
}

func TestListResponseNoCurrentGame(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "profiles.json"))
	resp := m.ListResponse()
	assert.Nil(t, resp.CurrentAppID)
}
