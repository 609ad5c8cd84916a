package keyboard

// ModifierState is the serialized XKB state of one device: the
// depressed, latched and locked modifier masks plus the effective
// layout group index.
type ModifierState struct {
	Depressed uint32
	Latched   uint32
	Locked    uint32
	Group     int
}

// Keymap is a compiled, immutable multi-layout keymap. One keymap
// instance may be shared by any number of devices; it is replaced by
// reference swap, never mutated.
type Keymap interface {
	// NumLayouts reports how many layout groups the keymap was
	// compiled with.
	NumLayouts() int

	// NewState creates a state machine for this keymap, starting from
	// neutral modifiers and layout group 0.
	NewState() (State, error)
}

// State is the per-device XKB state machine. Keycodes the keymap does
// not know are absorbed without effect, and a locked layout group
// beyond the keymap's range is brought back to 0; both behaviors come
// from the underlying XKB semantics and are not re-validated here.
type State interface {
	UpdateKey(keycode uint32, pressed bool)
	UpdateMask(depressed, latched, locked uint32, group int)
	Serialize() ModifierState
}
