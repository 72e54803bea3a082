package desk

import "errors"

var (
	// ErrTooManyPresets is returned when an edit would exceed types.MaxPresets.
	ErrTooManyPresets = errors.New("too many presets")

	// ErrPresetIndexOutOfRange is returned for an index outside the preset list.
	ErrPresetIndexOutOfRange = errors.New("preset index out of range")

	// ErrHeightOutOfLimits is returned when a height is outside the travel limits.
	ErrHeightOutOfLimits = errors.New("height outside configured limits")

	// ErrInvalidLimits is returned when min is not below max.
	ErrInvalidLimits = errors.New("invalid limits")

	// ErrControllerStopped is returned when the controller no longer runs.
	ErrControllerStopped = errors.New("controller stopped")
)
