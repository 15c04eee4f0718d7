// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ipc

import (
	"fmt"
	"time"

	"github.com/smart-refresh/daemon/internal/actuator"
	"github.com/smart-refresh/daemon/internal/battery"
	cfgpkg "github.com/smart-refresh/daemon/internal/config"
	"github.com/smart-refresh/daemon/internal/engine"
	"github.com/smart-refresh/daemon/internal/lifecycle"
	"github.com/smart-refresh/daemon/internal/log"
	"github.com/smart-refresh/daemon/internal/metrics"
	"github.com/smart-refresh/daemon/internal/profiles"
)

// Deps are the components an IPC handler mutates or reads. All fields are
// independently safe for concurrent use; Deps itself holds no lock.
type Deps struct {
	State    *State
	Engine   *engine.Engine
	Actuator *actuator.Actuator
	Config   *cfgpkg.Manager
	Profiles *profiles.Manager
	Metrics  *metrics.Collector
	Battery  *battery.Monitor
	Games    *lifecycle.ActiveGameTracker
}

// Handle dispatches one decoded request and returns the JSON-serializable
// response. Unknown commands produce {"error": "..."}; a known command with
// missing or invalid fields produces {"success": false, "error": "..."}.
func (d Deps) Handle(req request) any {
	logger := log.WithComponent("ipc")

	switch req.Command {
	case "Start":
		d.State.Start()
		logger.Info().Msg("daemon started via IPC")
		return okMsg("Daemon started")

	case "Stop":
		d.State.Stop()
		logger.Info().Msg("daemon stopped via IPC")
		return okMsg("Daemon stopped")

	case "SetConfig":
		return d.handleSetConfig(req)

	case "SetAdvancedConfig":
		return d.handleSetAdvancedConfig(req)

	case "SetDeviceMode":
		return d.handleSetDeviceMode(req)

	case "GetStatus":
		return d.getStatus()

	case "GetMetrics":
		return d.Metrics.Snapshot(time.Now())

	case "SetGameId":
		return d.handleSetGameID(req)

	case "SaveProfile":
		return d.handleSaveProfile(req)

	case "DeleteProfile":
		return d.handleDeleteProfile(req)

	case "GetProfiles":
		return d.Profiles.ListResponse()

	case "GetBatteryStatus":
		return d.Battery.Status()

	default:
		return map[string]string{"error": fmt.Sprintf("unknown command %q", req.Command)}
	}
}

func okMsg(msg string) map[string]any {
	return map[string]any{"success": true, "message": msg}
}

func failMsg(err error) map[string]any {
	return map[string]any{"success": false, "error": err.Error()}
}

func (d Deps) handleSetConfig(req request) any {
	if req.MinHz == nil || req.MaxHz == nil || req.Sensitivity == nil {
		return failMsg(fmt.Errorf("SetConfig requires min_hz, max_hz, sensitivity"))
	}
	sensitivity, ok := engine.ParseSensitivity(*req.Sensitivity)
	if !ok {
		return failMsg(fmt.Errorf("invalid sensitivity %q, expected one of: conservative, balanced, aggressive", *req.Sensitivity))
	}

	cfg := cfgpkg.Config{
		MinHz:       *req.MinHz,
		MaxHz:       *req.MaxHz,
		Sensitivity: sensitivity.String(),
		Enabled:     d.State.Running(),
	}
	if err := d.Config.Save(cfg); err != nil {
		log.WithComponent("ipc").Warn().Err(err).Msg("failed to persist config via IPC")
		return failMsg(err)
	}

	d.Engine.SetUserRange(*req.MinHz, *req.MaxHz)
	d.Engine.SetSensitivity(sensitivity)
	if req.Adaptive != nil {
		d.Engine.SetAdaptiveEnabled(*req.Adaptive)
	}
	if req.FpsTolerance != nil {
		d.Engine.SetFpsTolerance(*req.FpsTolerance)
	}
	if req.SyncFrameLimiter != nil {
		d.Engine.SetSyncFrameLimiter(*req.SyncFrameLimiter)
	}
	d.Actuator.SetRange(*req.MinHz, *req.MaxHz)

	log.WithComponent("ipc").Info().
		Int("min_hz", *req.MinHz).Int("max_hz", *req.MaxHz).Str("sensitivity", sensitivity.String()).
		Msg("config updated via IPC")
	return okMsg("Configuration updated")
}

func (d Deps) handleSetAdvancedConfig(req request) any {
	if req.FpsTolerance != nil {
		d.Engine.SetFpsTolerance(*req.FpsTolerance)
	}
	if req.ResumeCooldownSecs != nil {
		d.Engine.SetResumeCooldown(time.Duration(*req.ResumeCooldownSecs) * time.Second)
	}
	if req.SyncFrameLimiter != nil {
		d.Engine.SetSyncFrameLimiter(*req.SyncFrameLimiter)
	}

	snap := d.Engine.Snapshot(time.Now())
	return map[string]any{
		"success":            true,
		"message":            "Advanced configuration updated",
		"fps_tolerance":      snap.FpsTolerance,
		"sync_frame_limiter": snap.SyncFrameLimiter,
	}
}

func (d Deps) handleSetDeviceMode(req request) any {
	if req.Mode == nil {
		return failMsg(fmt.Errorf("SetDeviceMode requires mode"))
	}
	mode, ok := engine.ParseDeviceMode(*req.Mode)
	if !ok {
		return failMsg(fmt.Errorf("invalid device mode %q, expected one of: oled, lcd, custom", *req.Mode))
	}

	d.Engine.SetDeviceMode(mode)
	snap := d.Engine.Snapshot(time.Now())

	minIntervalMs := 500
	if mode == engine.DeviceModeLcd {
		minIntervalMs = 2000
	}

	log.WithComponent("ipc").Info().
		Str(log.FieldDeviceMode, mode.String()).Int("min_change_interval_ms", minIntervalMs).
		Msg("device mode set via IPC")

	return map[string]any{
		"success":                true,
		"message":                fmt.Sprintf("Device mode set to %s", mode.String()),
		"mode":                   mode.String(),
		"effective_sensitivity":  snap.EffectiveSensitivity.String(),
		"min_change_interval_ms": minIntervalMs,
	}
}

func (d Deps) getStatus() StatusResponse {
	snap := d.Engine.Snapshot(time.Now())
	cfg := cfgpkg.Config{
		MinHz:       snap.UserMinHz,
		MaxHz:       snap.UserMaxHz,
		Sensitivity: snap.UserSensitivity.String(),
		Enabled:     d.State.Running(),
	}

	var appID *string
	if id, ok := d.Games.Get(); ok {
		appID = &id
	}

	transitions := make([]TransitionRecord, 0, len(snap.Transitions))
	for _, t := range snap.Transitions {
		transitions = append(transitions, TransitionRecord{
			Timestamp: t.At.Format("15:04:05"),
			FromHz:    t.FromHz,
			ToHz:      t.ToHz,
			Fps:       t.Fps,
			Direction: t.Direction,
		})
	}

	return StatusResponse{
		Running:                 d.State.Running(),
		CurrentFps:              d.State.CurrentFps(),
		CurrentHz:               d.Actuator.CurrentHz(),
		State:                   snap.State.String(),
		DeviceMode:              snap.DeviceMode.String(),
		Config: ConfigResponse{
			MinHz:               cfg.MinHz,
			MaxHz:               cfg.MaxHz,
			Sensitivity:         cfg.Sensitivity,
			Enabled:             cfg.Enabled,
			AdaptiveSensitivity: snap.AdaptiveEnabled,
		},
		MangohudAvailable:       d.State.MangohudAvailable(),
		ExternalDisplayDetected: snap.ExternalDisplay,
		FpsStdDev:               snap.FpsStdDev,
		CurrentAppID:            appID,
		Transitions:             transitions,
		FpsTolerance:            snap.FpsTolerance,
		ResumeCooldownRemaining: snap.ResumeCooldownRemain.Seconds(),
		SyncFrameLimiter:        snap.SyncFrameLimiter,
	}
}

func (d Deps) handleSetGameID(req request) any {
	if req.AppID == nil {
		return failMsg(fmt.Errorf("SetGameId requires app_id"))
	}
	appID := *req.AppID
	if appID == "0" {
		appID = ""
	}
	d.Games.Set(appID)
	d.Profiles.SetCurrentGame(appID)

	if appID != "" {
		if profile, ok := d.Profiles.Get(appID); ok {
			d.Engine.SetUserRange(profile.MinHz, profile.MaxHz)
			sensitivity, ok := engine.ParseSensitivity(profile.Sensitivity)
			if !ok {
				sensitivity = engine.SensitivityBalanced
			}
			d.Engine.SetSensitivity(sensitivity)
			d.Engine.SetAdaptiveEnabled(profile.AdaptiveSensitivity)
			d.Actuator.SetRange(profile.MinHz, profile.MaxHz)

			log.WithComponent("ipc").Info().Str(log.FieldAppID, appID).Str("name", profile.Name).Msg("applied profile via SetGameId")
			return map[string]any{
				"success":         true,
				"message":         fmt.Sprintf("Loaded profile for %s", profile.Name),
				"profile_applied": true,
				"profile_name":    profile.Name,
			}
		}
	}

	settings := d.Profiles.CurrentSettings()
	d.Engine.SetUserRange(settings.MinHz, settings.MaxHz)
	d.Engine.SetSensitivity(settings.Sensitivity)
	d.Engine.SetAdaptiveEnabled(settings.AdaptiveSensitivity)
	d.Actuator.SetRange(settings.MinHz, settings.MaxHz)

	return map[string]any{
		"success":         true,
		"message":         "Game ID updated, using global defaults",
		"profile_applied": false,
	}
}

func (d Deps) handleSaveProfile(req request) any {
	if req.AppID == nil || req.Name == nil || req.MinHz == nil || req.MaxHz == nil || req.Sensitivity == nil {
		return failMsg(fmt.Errorf("SaveProfile requires app_id, name, min_hz, max_hz, sensitivity"))
	}
	adaptive := false
	if req.Adaptive != nil {
		adaptive = *req.Adaptive
	}

	d.Profiles.Set(profiles.GameProfile{
		AppID:               *req.AppID,
		Name:                *req.Name,
		MinHz:               *req.MinHz,
		MaxHz:               *req.MaxHz,
		Sensitivity:         *req.Sensitivity,
		AdaptiveSensitivity: adaptive,
	})

	if err := d.Profiles.Save(); err != nil {
		log.WithComponent("ipc").Warn().Err(err).Msg("failed to save profiles")
		return failMsg(fmt.Errorf("failed to save profile: %w", err))
	}

	log.WithComponent("ipc").Info().Str(log.FieldAppID, *req.AppID).Str("name", *req.Name).Msg("saved profile via IPC")
	return okMsg(fmt.Sprintf("Profile saved for %s", *req.Name))
}

func (d Deps) handleDeleteProfile(req request) any {
	if req.AppID == nil {
		return failMsg(fmt.Errorf("DeleteProfile requires app_id"))
	}
	if !d.Profiles.Delete(*req.AppID) {
		return map[string]any{"success": false, "error": "Profile not found"}
	}
	if err := d.Profiles.Save(); err != nil {
		log.WithComponent("ipc").Warn().Err(err).Msg("failed to save profiles after delete")
	}
	return okMsg("Profile deleted")
}
