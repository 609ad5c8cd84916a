package keyboard

import (
	"fmt"
	"time"
)

// ModifiersChangedFunc observes one device's serialized state change.
type ModifiersChangedFunc func(dev *Device, old, new ModifierState)

type listener struct {
	id int
	fn ModifiersChangedFunc
}

// Device is one keyboard: a keymap reference, its own state machine
// and the last serialized state. The synthetic group device uses the
// same type as physical members.
type Device struct {
	name   string
	keymap Keymap
	state  State
	mods   ModifierState

	nextID    int
	listeners []listener
}

// NewDevice creates a device on km with a fresh neutral state.
func NewDevice(name string, km Keymap) (*Device, error) {
	st, err := km.NewState()
	if err != nil {
		return nil, fmt.Errorf("new state for %q: %w", name, err)
	}
	return &Device{name: name, keymap: km, state: st}, nil
}

func (d *Device) Name() string { return d.name }

func (d *Device) Keymap() Keymap { return d.keymap }

// Modifiers returns the last serialized state.
func (d *Device) Modifiers() ModifierState { return d.mods }

// NotifyKey feeds one physical key event through the device's state
// machine, emitting ModifiersChanged if the serialized state moved.
func (d *Device) NotifyKey(keycode uint32, pressed bool, _ time.Time) {
	d.state.UpdateKey(keycode, pressed)
	d.emitIfChanged()
}

// NotifyModifiers force-sets the serialized state. The group
// synchronization protocol enters here on purpose: it is the same
// path hardware events take, so the same change detection and the
// same ModifiersChanged listeners run.
func (d *Device) NotifyModifiers(depressed, latched, locked uint32, group int) {
	d.state.UpdateMask(depressed, latched, locked, group)
	d.emitIfChanged()
}

// SetKeymap swaps the keymap reference and resets the device to the
// neutral state. A modifier state computed against the previous keymap
// means nothing against a different layout count, so nothing carries
// over.
func (d *Device) SetKeymap(km Keymap) error {
	st, err := km.NewState()
	if err != nil {
		return fmt.Errorf("new state for %q: %w", d.name, err)
	}
	d.adopt(km, st)
	return nil
}

// adopt installs a prepared keymap/state pair without emitting events.
// Keymap distribution is atomic with respect to the event queue, so it
// must not trigger listeners mid-swap.
func (d *Device) adopt(km Keymap, st State) {
	d.keymap = km
	d.state = st
	d.mods = ModifierState{}
}

// OnModifiersChanged registers fn to run, in registration order,
// whenever the device's serialized state changes. The returned cancel
// removes the registration.
func (d *Device) OnModifiersChanged(fn ModifiersChangedFunc) (cancel func()) {
	id := d.nextID
	d.nextID++
	d.listeners = append(d.listeners, listener{id: id, fn: fn})
	return func() {
		for i, l := range d.listeners {
			if l.id == id {
				d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
				return
			}
		}
	}
}

func (d *Device) emitIfChanged() {
	next := d.state.Serialize()
	if next == d.mods {
		return
	}
	prev := d.mods
	d.mods = next
	for _, l := range d.listeners {
		l.fn(d, prev, next)
	}
}
