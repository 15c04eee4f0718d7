// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config manages the persisted daemon configuration. Unlike
// profiles, a malformed existing config file is a hard error: it is never
// silently replaced with defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the persisted daemon configuration.
type Config struct {
	MinHz       int    `json:"min_hz"`
	MaxHz       int    `json:"max_hz"`
	Sensitivity string `json:"sensitivity"`
	Enabled     bool   `json:"enabled"`
}

// Default returns the out-of-the-box configuration.
func Default() Config {
	return Config{MinHz: 40, MaxHz: 90, Sensitivity: "balanced", Enabled: true}
}

// Validate checks the range and sensitivity invariants.
func (c Config) Validate() error {
	if c.MinHz > c.MaxHz {
		return fmt.Errorf("%w: min_hz (%d) cannot be greater than max_hz (%d)", ErrInvalid, c.MinHz, c.MaxHz)
	}
	if c.MinHz < 40 {
		return fmt.Errorf("%w: min_hz must be at least 40Hz", ErrInvalid)
	}
	if c.MaxHz > 90 {
		return fmt.Errorf("%w: max_hz must not exceed 90Hz", ErrInvalid)
	}
	switch c.Sensitivity {
	case "conservative", "balanced", "aggressive":
	default:
		return fmt.Errorf("%w: unknown sensitivity %q", ErrInvalid, c.Sensitivity)
	}
	return nil
}

// Manager owns the on-disk config file. It keeps no in-memory copy: every
// LoadOrDefault reads the file again.
type Manager struct {
	path string
}

// NewManager constructs a Manager for the given file path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// DefaultPath returns $HOME/.config/smart-refresh/config.json, falling back
// to /tmp/smart-refresh/config.json if HOME is unset.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join("/tmp", "smart-refresh", "config.json")
	}
	return filepath.Join(home, ".config", "smart-refresh", "config.json")
}

// LoadOrDefault loads the config file if present. A missing file yields
// Default() with no error. An existing-but-malformed or invalid file is a
// hard error: it is never silently replaced.
func (m *Manager) LoadOrDefault() (Config, error) {
	raw, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", m.path, err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: malformed config file %s: %v", ErrInvalid, m.path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", m.path, err)
	}
	return cfg, nil
}

// Save validates and atomically persists the configuration: renameio
// handles temp-file creation, fsync, and atomic rename, matching the
// durability idiom used elsewhere in this codebase for output files.
func (m *Manager) Save(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o750); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	pending, err := renameio.NewPendingFile(m.path)
	if err != nil {
		return fmt.Errorf("config: create pending file: %w", err)
	}
	defer pending.Cleanup() //nolint:errcheck

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("config: write pending file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("config: atomically replace %s: %w", m.path, err)
	}
	return nil
}
