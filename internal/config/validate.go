package config

import (
	_ "embed"
	"errors"

	"github.com/metalagman/tclink/internal/schema"
)

// ErrInvalidConfig is returned when config settings do not match the config schema.
var ErrInvalidConfig = errors.New("invalid config")

//go:embed schema.json
var schemaJSON string

var settingsSchema = schema.New("config", schemaJSON, ErrInvalidConfig)

// ValidateSettings checks raw settings, as read from the config file, before
// defaults and environment overrides are merged in.
func ValidateSettings(settings map[string]any) error {
	return settingsSchema.ValidateValue(settings)
}
