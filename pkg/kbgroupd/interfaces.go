package kbgroupd

import "codeberg.org/miketth/kbgroupd/pkg/keyboard"

// Compiler turns an RMLVO config into a compiled keymap. Compilation
// is a pure function of the config: no device is touched, and a
// rejected config leaves no trace.
type Compiler interface {
	Compile(cfg Config) (keyboard.Keymap, error)
}

// ActiveLayoutStore persists the active layout index between runs.
// Entries are keyed by the config fingerprint so an index saved for
// one layout list is never replayed against a different one.
type ActiveLayoutStore interface {
	ActiveLayout(fingerprint string) (idx int, ok bool, err error)
	SetActiveLayout(fingerprint string, idx int) error
}
