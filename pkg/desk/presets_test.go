package desk

import (
	"errors"
	"fmt"
	"testing"

	"github.com/charlie0129/deskctl/pkg/types"
)

func fullPresetList() *PresetList {
	l := NewPresetList(nil)
	for i := 0; i < types.MaxPresets; i++ {
		_ = l.Add(types.NewPreset(fmt.Sprintf("p%d", i), 700+i))
	}
	return l
}

func TestPresetListCap(t *testing.T) {
	l := fullPresetList()
	if l.Len() != types.MaxPresets {
		t.Fatalf("Len() = %d, want %d", l.Len(), types.MaxPresets)
	}

	err := l.Add(types.NewPreset("tenth", 800))
	if !errors.Is(err, ErrTooManyPresets) {
		t.Fatalf("Add() error = %v, want ErrTooManyPresets", err)
	}
	if l.Len() != types.MaxPresets {
		t.Errorf("Len() = %d after rejected add", l.Len())
	}
}

func TestPresetListFromOversizedInput(t *testing.T) {
	in := make([]types.Preset, 12)
	for i := range in {
		in[i] = types.Preset{Name: fmt.Sprintf("p%d", i), Height: 700}
	}

	l := NewPresetList(in)
	if l.Len() != types.MaxPresets {
		t.Errorf("Len() = %d, want %d", l.Len(), types.MaxPresets)
	}
	for _, p := range l.All() {
		if p.ID == "" {
			t.Errorf("preset %q has no ID", p.Name)
		}
	}
}

func TestPresetListReplace(t *testing.T) {
	l := fullPresetList()
	before := l.All()

	err := l.Replace(make([]types.Preset, types.MaxPresets+1))
	if !errors.Is(err, ErrTooManyPresets) {
		t.Fatalf("Replace() error = %v", err)
	}
	if got := l.All(); len(got) != len(before) || got[0] != before[0] {
		t.Errorf("rejected Replace changed the list")
	}

	if err := l.Replace([]types.Preset{{Name: "only", Height: 900}}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
}

func TestPresetListEdit(t *testing.T) {
	l := NewPresetList([]types.Preset{
		types.NewPreset("Sit", 700),
		types.NewPreset("Stand", 1100),
		types.NewPreset("Focus", 850),
	})
	id := l.items[1].ID

	if err := l.Update(1, types.Preset{Name: "Tall", Height: 1150}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	p, _ := l.Get(1)
	if p.ID != id || p.Name != "Tall" || p.Height != 1150 {
		t.Errorf("Get(1) = %+v", p)
	}

	if err := l.Remove(0); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if p, _ := l.Get(0); p.Name != "Tall" {
		t.Errorf("Get(0) = %+v after remove", p)
	}

	for _, i := range []int{-1, 2, 10} {
		if _, err := l.Get(i); !errors.Is(err, ErrPresetIndexOutOfRange) {
			t.Errorf("Get(%d) error = %v", i, err)
		}
		if err := l.Remove(i); !errors.Is(err, ErrPresetIndexOutOfRange) {
			t.Errorf("Remove(%d) error = %v", i, err)
		}
	}
}

func TestPresetListAllIsACopy(t *testing.T) {
	l := NewPresetList([]types.Preset{types.NewPreset("Sit", 700)})
	out := l.All()
	out[0].Height = 1
	if p, _ := l.Get(0); p.Height != 700 {
		t.Errorf("All() aliases the list")
	}
}
