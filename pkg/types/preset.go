package types

import (
	"github.com/google/uuid"
)

// MaxPresets is the hard cap on the number of presets kept anywhere.
const MaxPresets = 9

// Preset is a named desk height.
type Preset struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Height int    `json:"height"`
}

// NewPreset creates a preset with a fresh identifier.
func NewPreset(name string, height int) Preset {
	return Preset{
		ID:     uuid.NewString(),
		Name:   name,
		Height: height,
	}
}

// ClonePresets copies at most MaxPresets presets, assigning identifiers to
// the ones that have none (e.g. decoded from an older file).
func ClonePresets(in []Preset) []Preset {
	n := len(in)
	if n > MaxPresets {
		n = MaxPresets
	}
	out := make([]Preset, n)
	copy(out, in[:n])
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
	}
	return out
}
