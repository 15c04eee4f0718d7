// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package profiles manages per-game refresh-rate settings keyed by Steam
// AppID. Unlike config, a malformed profiles file is never a hard error:
// it is logged and replaced with an empty profile set, since profiles are
// convenience state rather than required configuration.
package profiles

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/smart-refresh/daemon/internal/engine"
	"github.com/smart-refresh/daemon/internal/log"
)

// GameProfile holds the refresh-rate settings for one Steam AppID.
type GameProfile struct {
	AppID               string `json:"app_id"`
	Name                string `json:"name"`
	MinHz               int    `json:"min_hz"`
	MaxHz               int    `json:"max_hz"`
	Sensitivity         string `json:"sensitivity"`
	AdaptiveSensitivity bool   `json:"adaptive_sensitivity"`
}

// sensitivity resolves the profile's sensitivity string, defaulting to
// balanced on an unrecognized value, matching the lenient parse original
// implementations of this daemon have always used for per-game settings.
func (p GameProfile) sensitivity() engine.Sensitivity {
	if s, ok := engine.ParseSensitivity(p.Sensitivity); ok {
		return s
	}
	return engine.SensitivityBalanced
}

// GlobalDefault is applied when no profile matches the active game.
type GlobalDefault struct {
	MinHz               int    `json:"min_hz"`
	MaxHz               int    `json:"max_hz"`
	Sensitivity         string `json:"sensitivity"`
	AdaptiveSensitivity bool   `json:"adaptive_sensitivity"`
}

func defaultGlobalDefault() GlobalDefault {
	return GlobalDefault{MinHz: 40, MaxHz: 90, Sensitivity: "balanced", AdaptiveSensitivity: false}
}

// persisted is the on-disk shape of a Manager. current_app_id is
// intentionally excluded: the active game is runtime state set fresh by
// the IPC SetGameId command on every daemon start.
type persisted struct {
	Profiles      map[string]GameProfile `json:"profiles"`
	GlobalDefault GlobalDefault          `json:"global_default"`
}

// Manager owns the set of per-game profiles and the currently active game.
type Manager struct {
	mu            sync.Mutex
	path          string
	profiles      map[string]GameProfile
	currentAppID  string
	hasCurrent    bool
	globalDefault GlobalDefault
}

// New constructs an empty Manager rooted at path.
func New(path string) *Manager {
	return &Manager{
		path:          path,
		profiles:      make(map[string]GameProfile),
		globalDefault: defaultGlobalDefault(),
	}
}

// DefaultPath returns $HOME/.config/smart-refresh/profiles.json, falling
// back to /tmp/smart-refresh/profiles.json if HOME is unset.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join("/tmp", "smart-refresh", "profiles.json")
	}
	return filepath.Join(home, ".config", "smart-refresh", "profiles.json")
}

// LoadOrDefault loads the profiles file at path if present. A missing file,
// or one that fails to parse, yields an empty Manager with defaults and no
// error — a corrupt profiles.json must never block daemon startup.
func LoadOrDefault(path string) *Manager {
	logger := log.WithComponent("profiles")

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Info().Str("path", path).Msg("no profiles file found, using defaults")
		return New(path)
	}
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to read profiles file, using defaults")
		return New(path)
	}

	var p persisted
	if err := json.Unmarshal(raw, &p); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to parse profiles file, using defaults")
		return New(path)
	}

	m := New(path)
	if p.Profiles != nil {
		m.profiles = p.Profiles
	}
	if p.GlobalDefault != (GlobalDefault{}) {
		m.globalDefault = p.GlobalDefault
	}
	logger.Info().Int("count", len(m.profiles)).Str("path", path).Msg("loaded game profiles")
	return m
}

// Save atomically persists the profile set.
func (m *Manager) Save() error {
	m.mu.Lock()
	snapshot := persisted{
		Profiles:      make(map[string]GameProfile, len(m.profiles)),
		GlobalDefault: m.globalDefault,
	}
	for id, p := range m.profiles {
		snapshot.Profiles[id] = p
	}
	path := m.path
	m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return err
	}
	defer pending.Cleanup() //nolint:errcheck

	if _, err := pending.Write(data); err != nil {
		return err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return err
	}

	log.WithComponent("profiles").Info().Int("count", len(snapshot.Profiles)).Str("path", path).Msg("saved game profiles")
	return nil
}

// Get returns the profile for appID, if any.
func (m *Manager) Get(appID string) (GameProfile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[appID]
	return p, ok
}

// Set inserts or replaces a profile.
func (m *Manager) Set(p GameProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.AppID] = p
}

// Delete removes a profile, reporting whether one existed.
func (m *Manager) Delete(appID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[appID]; !ok {
		return false
	}
	delete(m.profiles, appID)
	return true
}

// All returns a snapshot of every stored profile.
func (m *Manager) All() []GameProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]GameProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	return out
}

// SetCurrentGame marks appID as the active game. An empty string clears it.
func (m *Manager) SetCurrentGame(appID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if appID == "" {
		m.hasCurrent = false
		m.currentAppID = ""
		return
	}
	m.currentAppID = appID
	m.hasCurrent = true
}

// CurrentGame returns the active game's AppID, if any.
func (m *Manager) CurrentGame() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentAppID, m.hasCurrent
}

// Settings is the resolved min/max Hz, sensitivity and adaptive flag for
// whichever game is currently active, falling back to the global default.
type Settings struct {
	MinHz               int
	MaxHz               int
	Sensitivity         engine.Sensitivity
	AdaptiveSensitivity bool
}

// CurrentSettings resolves the effective settings: the active game's
// profile if one is set and known, otherwise the global default.
func (m *Manager) CurrentSettings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hasCurrent {
		if p, ok := m.profiles[m.currentAppID]; ok {
			return Settings{
				MinHz:               p.MinHz,
				MaxHz:               p.MaxHz,
				Sensitivity:         p.sensitivity(),
				AdaptiveSensitivity: p.AdaptiveSensitivity,
			}
		}
	}

	sensitivity, ok := engine.ParseSensitivity(m.globalDefault.Sensitivity)
	if !ok {
		sensitivity = engine.SensitivityBalanced
	}
	return Settings{
		MinHz:               m.globalDefault.MinHz,
		MaxHz:               m.globalDefault.MaxHz,
		Sensitivity:         sensitivity,
		AdaptiveSensitivity: m.globalDefault.AdaptiveSensitivity,
	}
}

// SetGlobalDefault replaces the global default settings.
func (m *Manager) SetGlobalDefault(d GlobalDefault) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globalDefault = d
}

// GlobalDefault returns the current global default settings.
func (m *Manager) GlobalDefault() GlobalDefault {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.globalDefault
}

// ListResponse is the GetProfiles IPC payload.
type ListResponse struct {
	Profiles      []GameProfile `json:"profiles"`
	CurrentAppID  *string       `json:"current_app_id"`
	GlobalDefault GlobalDefault `json:"global_default"`
}

// ListResponse builds the GetProfiles IPC payload from the current state.
func (m *Manager) ListResponse() ListResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	profiles := make([]GameProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		profiles = append(profiles, p)
	}

	var current *string
	if m.hasCurrent {
		id := m.currentAppID
		current = &id
	}

	return ListResponse{
		Profiles:      profiles,
		CurrentAppID:  current,
		GlobalDefault: m.globalDefault,
	}
}
