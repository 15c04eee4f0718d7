// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	FieldComponent = "component"
	FieldConnID    = "conn_id"

	// Domain fields
	FieldAppID      = "app_id"
	FieldState      = "state"
	FieldDeviceMode = "device_mode"
	FieldHz         = "hz"
	FieldFPS        = "fps"
)
