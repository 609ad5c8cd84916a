// Package xkb binds the parts of libxkbcommon the keyboard group
// needs: RMLVO keymap compilation and the per-device state machine.
package xkb

/*
#cgo LDFLAGS: -lxkbcommon

#include <stdlib.h>
#include <xkbcommon/xkbcommon.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"unsafe"

	"codeberg.org/miketth/kbgroupd/pkg/kbgroupd"
	"codeberg.org/miketth/kbgroupd/pkg/keyboard"
	"codeberg.org/miketth/kbgroupd/pkg/xkblayouts"
)

// Compiler compiles RMLVO configs into keymaps through one shared
// xkb_context. registry may be nil, in which case name validation is
// left entirely to libxkbcommon, which reports no field information.
type Compiler struct {
	ctx      *C.struct_xkb_context
	registry *xkblayouts.XkbConfigRegistry
}

func NewCompiler(registry *xkblayouts.XkbConfigRegistry) (*Compiler, error) {
	ctx := C.xkb_context_new(C.XKB_CONTEXT_NO_FLAGS)
	if ctx == nil {
		return nil, errors.New("xkb_context_new failed")
	}
	c := &Compiler{ctx: ctx, registry: registry}
	runtime.SetFinalizer(c, (*Compiler).destroy)
	return c, nil
}

func (c *Compiler) destroy() {
	if c.ctx != nil {
		C.xkb_context_unref(c.ctx)
		c.ctx = nil
	}
}

// Compile builds an immutable keymap from cfg. Layout, variant and
// option names are checked against the XKB registry first so a bad
// entry is reported by field and index instead of as an opaque compile
// failure, or, for options, not at all.
func (c *Compiler) Compile(cfg kbgroupd.Config) (keyboard.Keymap, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateNames(c.registry, cfg); err != nil {
		return nil, err
	}

	layout := C.CString(strings.Join(cfg.Layouts, ","))
	defer C.free(unsafe.Pointer(layout))
	variant := C.CString(strings.Join(cfg.Variants, ","))
	defer C.free(unsafe.Pointer(variant))
	options := C.CString(strings.Join(cfg.Options, ","))
	defer C.free(unsafe.Pointer(options))

	names := C.struct_xkb_rule_names{
		layout:  layout,
		variant: variant,
		options: options,
	}
	km := C.xkb_keymap_new_from_names(c.ctx, &names, C.XKB_KEYMAP_COMPILE_NO_FLAGS)
	if km == nil {
		return nil, fmt.Errorf("%w: libxkbcommon rejected %q", kbgroupd.ErrInvalidConfig, cfg.Fingerprint())
	}
	k := &Keymap{km: km, layouts: int(C.xkb_keymap_num_layouts(km))}
	runtime.SetFinalizer(k, (*Keymap).unref)
	return k, nil
}

// Keymap is a refcounted, immutable libxkbcommon keymap, shared by any
// number of device states.
type Keymap struct {
	km      *C.struct_xkb_keymap
	layouts int
}

func (k *Keymap) NumLayouts() int { return k.layouts }

func (k *Keymap) NewState() (keyboard.State, error) {
	st := C.xkb_state_new(k.km)
	if st == nil {
		return nil, errors.New("xkb_state_new failed")
	}
	s := &State{state: st, keymap: k}
	runtime.SetFinalizer(s, (*State).unref)
	return s, nil
}

func (k *Keymap) unref() {
	if k.km != nil {
		C.xkb_keymap_unref(k.km)
		k.km = nil
	}
}

// State wraps one xkb_state. The keymap field keeps the Go keymap
// wrapper alive for as long as any state derived from it exists.
type State struct {
	state  *C.struct_xkb_state
	keymap *Keymap
}

func (s *State) UpdateKey(keycode uint32, pressed bool) {
	dir := C.enum_xkb_key_direction(C.XKB_KEY_UP)
	if pressed {
		dir = C.XKB_KEY_DOWN
	}
	C.xkb_state_update_key(s.state, C.xkb_keycode_t(keycode), dir)
}

func (s *State) UpdateMask(depressed, latched, locked uint32, group int) {
	C.xkb_state_update_mask(s.state,
		C.xkb_mod_mask_t(depressed),
		C.xkb_mod_mask_t(latched),
		C.xkb_mod_mask_t(locked),
		0, 0,
		C.xkb_layout_index_t(group),
	)
}

func (s *State) Serialize() keyboard.ModifierState {
	return keyboard.ModifierState{
		Depressed: uint32(C.xkb_state_serialize_mods(s.state, C.XKB_STATE_MODS_DEPRESSED)),
		Latched:   uint32(C.xkb_state_serialize_mods(s.state, C.XKB_STATE_MODS_LATCHED)),
		Locked:    uint32(C.xkb_state_serialize_mods(s.state, C.XKB_STATE_MODS_LOCKED)),
		Group:     int(C.xkb_state_serialize_layout(s.state, C.XKB_STATE_LAYOUT_EFFECTIVE)),
	}
}

func (s *State) unref() {
	if s.state != nil {
		C.xkb_state_unref(s.state)
		s.state = nil
	}
}

var (
	_ kbgroupd.Compiler = (*Compiler)(nil)
	_ keyboard.Keymap   = (*Keymap)(nil)
	_ keyboard.State    = (*State)(nil)
)
