package occupancy

import (
	"errors"
	"fmt"
)

// Sentinel errors for configuration problems detected at construction time.
var (
	// ErrInvalidRegion is returned when a region boundary is malformed.
	ErrInvalidRegion = errors.New("occupancy: invalid region")

	// ErrInvalidConfig is returned when tracker settings are out of range.
	ErrInvalidConfig = errors.New("occupancy: invalid config")
)

// RegionError describes why a region was rejected.
type RegionError struct {
	// Shape is "rect" or "polygon".
	Shape string

	// Reason is a human-readable explanation.
	Reason string
}

// Error implements the error interface.
func (e *RegionError) Error() string {
	return fmt.Sprintf("occupancy: invalid %s region: %s", e.Shape, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidRegion.
func (e *RegionError) Unwrap() error {
	return ErrInvalidRegion
}

// ConfigError describes an out-of-range tracker setting.
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("occupancy: invalid config %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
