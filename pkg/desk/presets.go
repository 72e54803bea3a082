package desk

import (
	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/deskctl/pkg/types"
)

// PresetList is an ordered list of presets that never holds more than
// types.MaxPresets entries. Every mutation checks the cap.
type PresetList struct {
	items []types.Preset
}

// NewPresetList copies in, dropping anything past the cap.
func NewPresetList(in []types.Preset) *PresetList {
	return &PresetList{items: types.ClonePresets(in)}
}

func (l *PresetList) Len() int {
	return len(l.items)
}

// All returns a copy of the presets.
func (l *PresetList) All() []types.Preset {
	return types.ClonePresets(l.items)
}

func (l *PresetList) Get(index int) (types.Preset, error) {
	if index < 0 || index >= len(l.items) {
		return types.Preset{}, pkgerrors.Wrapf(ErrPresetIndexOutOfRange, "index %d, have %d presets", index, len(l.items))
	}
	return l.items[index], nil
}

func (l *PresetList) Add(p types.Preset) error {
	if len(l.items) >= types.MaxPresets {
		return pkgerrors.Wrapf(ErrTooManyPresets, "at most %d presets are allowed", types.MaxPresets)
	}
	if p.ID == "" {
		p = types.NewPreset(p.Name, p.Height)
	}
	l.items = append(l.items, p)
	return nil
}

// Update replaces the name and height at index, keeping the identifier.
func (l *PresetList) Update(index int, p types.Preset) error {
	old, err := l.Get(index)
	if err != nil {
		return err
	}
	old.Name = p.Name
	old.Height = p.Height
	l.items[index] = old
	return nil
}

func (l *PresetList) Remove(index int) error {
	if _, err := l.Get(index); err != nil {
		return err
	}
	l.items = append(l.items[:index], l.items[index+1:]...)
	return nil
}

// Replace swaps the whole list. A list over the cap is rejected as a whole
// and leaves the current one untouched.
func (l *PresetList) Replace(in []types.Preset) error {
	if len(in) > types.MaxPresets {
		return pkgerrors.Wrapf(ErrTooManyPresets, "got %d presets, at most %d are allowed", len(in), types.MaxPresets)
	}
	l.items = types.ClonePresets(in)
	return nil
}
