// Package keyboardtest provides in-memory Keymap and State fakes that
// mimic the observable libxkbcommon behavior the group protocol
// depends on: a shift-style depressed modifier, a caps-style locked
// modifier, silent absorption of unknown keycodes, and clamping of a
// locked layout group beyond the layout count back to 0.
package keyboardtest

import "codeberg.org/miketth/kbgroupd/pkg/keyboard"

// X keycode numbering (evdev + 8).
const (
	KeycodeA     = 38
	KeycodeShift = 50
	KeycodeCaps  = 66
)

const (
	MaskShift = 1 << 0
	MaskLock  = 1 << 1
)

// Keymap is a fake compiled keymap with a fixed layout count.
type Keymap struct {
	Layouts int

	// StateErr, when set, makes NewState fail once StatesBeforeErr
	// more states have been handed out. Used to exercise the
	// all-or-nothing distribution path.
	StateErr        error
	StatesBeforeErr int
}

func NewKeymap(layouts int) *Keymap {
	return &Keymap{Layouts: layouts}
}

func (k *Keymap) NumLayouts() int { return k.Layouts }

func (k *Keymap) NewState() (keyboard.State, error) {
	if k.StateErr != nil {
		if k.StatesBeforeErr == 0 {
			return nil, k.StateErr
		}
		k.StatesBeforeErr--
	}
	return &State{keymap: k}, nil
}

// State models the parts of xkb_state the group protocol observes.
type State struct {
	keymap *Keymap
	mods   keyboard.ModifierState
}

func (s *State) UpdateKey(keycode uint32, pressed bool) {
	switch keycode {
	case KeycodeShift:
		if pressed {
			s.mods.Depressed |= MaskShift
		} else {
			s.mods.Depressed &^= MaskShift
		}
	case KeycodeCaps:
		if pressed {
			s.mods.Locked ^= MaskLock
		}
	default:
		// keycodes outside the keymap change nothing
	}
}

func (s *State) UpdateMask(depressed, latched, locked uint32, group int) {
	// libxkbcommon brings a locked layout beyond the keymap's range
	// back to 0. The fake reproduces it because it is exactly the
	// failure mode the keymap-distribution invariant exists to
	// prevent.
	if group < 0 || group >= s.keymap.Layouts {
		group = 0
	}
	s.mods = keyboard.ModifierState{
		Depressed: depressed,
		Latched:   latched,
		Locked:    locked,
		Group:     group,
	}
}

func (s *State) Serialize() keyboard.ModifierState { return s.mods }

var (
	_ keyboard.Keymap = (*Keymap)(nil)
	_ keyboard.State  = (*State)(nil)
)
