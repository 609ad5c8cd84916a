package keyboard

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrIndexOutOfRange reports a layout group index beyond the
	// keymap's layout count.
	ErrIndexOutOfRange = errors.New("layout index out of range")

	// ErrKeymapDistribution reports a keymap that could not be
	// installed on every device of a group.
	ErrKeymapDistribution = errors.New("keymap distribution failed")
)

// Group merges physical keyboards into one logical keyboard. The
// synthetic group device carries the aggregate state the compositor
// dispatches on. Members feed it exclusively through the group's own
// subscription (syncFromMember); nothing else writes to the group
// device, which is what keeps a programmatic layout switch and an
// organic key press indistinguishable downstream.
type Group struct {
	device  *Device
	members []*Device
	cancels map[*Device]func()
	log     *zap.SugaredLogger
}

// NewGroup creates a group whose synthetic device starts on km.
func NewGroup(km Keymap, log *zap.SugaredLogger) (*Group, error) {
	dev, err := NewDevice("group", km)
	if err != nil {
		return nil, fmt.Errorf("create group device: %w", err)
	}
	return &Group{
		device:  dev,
		cancels: make(map[*Device]func()),
		log:     log,
	}, nil
}

// Device returns the synthetic aggregate device.
func (g *Group) Device() *Device { return g.device }

// Members returns the member devices in membership order.
func (g *Group) Members() []*Device { return g.members }

// ActiveLayout returns the group device's current layout group index.
func (g *Group) ActiveLayout() int { return g.device.Modifiers().Group }

// AddMember joins d to the group. A member whose keymap has a
// different layout count would clamp locked groups beyond its range to
// 0, so d is moved onto the group keymap first and then synced to the
// active layout through the same NotifyModifiers path everything else
// uses.
func (g *Group) AddMember(d *Device) error {
	if g.cancels[d] != nil {
		return nil
	}
	if d.Keymap() != g.device.Keymap() {
		if err := d.SetKeymap(g.device.Keymap()); err != nil {
			return fmt.Errorf("push group keymap to %q: %w", d.Name(), err)
		}
	}
	g.members = append(g.members, d)
	g.cancels[d] = d.OnModifiersChanged(g.syncFromMember)
	if target := g.ActiveLayout(); d.Modifiers().Group != target {
		m := d.Modifiers()
		d.NotifyModifiers(m.Depressed, m.Latched, m.Locked, target)
	}
	return nil
}

// RemoveMember drops d from the group. The input subsystem owns the
// device's lifetime; the group only gives up its subscription.
func (g *Group) RemoveMember(d *Device) {
	cancel, ok := g.cancels[d]
	if !ok {
		return
	}
	cancel()
	delete(g.cancels, d)
	for i, m := range g.members {
		if m == d {
			g.members = append(g.members[:i], g.members[i+1:]...)
			break
		}
	}
}

// ApplyKeymap installs km on the group device and every member,
// all-or-nothing. States are prepared for all devices before anything
// is swapped: a failure leaves the previous keymap everywhere, and a
// partial distribution with mismatched layout counts between group and
// members cannot happen. Every device lands on the neutral state; no
// events fire during the swap.
func (g *Group) ApplyKeymap(km Keymap) error {
	devices := append([]*Device{g.device}, g.members...)
	states := make([]State, len(devices))
	for i, d := range devices {
		st, err := km.NewState()
		if err != nil {
			return fmt.Errorf("%w: prepare state for %q: %v", ErrKeymapDistribution, d.Name(), err)
		}
		states[i] = st
	}
	for i, d := range devices {
		d.adopt(km, states[i])
	}
	return nil
}

// SetLayout locks layout group k on every member, in membership order,
// by re-entering each member's NotifyModifiers with its current
// modifier masks and the target group. Each member's ModifiersChanged
// fires syncFromMember, so the group device reports k by the time the
// loop ends; the update is a closed algebraic step with no retry. A
// group with no members notifies its own device directly, there being
// no member to relay through.
func (g *Group) SetLayout(k int) error {
	if n := g.device.Keymap().NumLayouts(); k < 0 || k >= n {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, k, n)
	}
	if len(g.members) == 0 {
		m := g.device.Modifiers()
		g.device.NotifyModifiers(m.Depressed, m.Latched, m.Locked, k)
		return nil
	}
	for _, d := range g.members {
		m := d.Modifiers()
		d.NotifyModifiers(m.Depressed, m.Latched, m.Locked, k)
	}
	return nil
}

// syncFromMember is the group sync reducer and the single writer of
// the group device's state. It runs for every member change, whether
// caused by a physical key or by SetLayout, and mirrors the member
// into the group device when they differ.
func (g *Group) syncFromMember(d *Device, _, next ModifierState) {
	if next == g.device.Modifiers() {
		return
	}
	g.device.NotifyModifiers(next.Depressed, next.Latched, next.Locked, next.Group)
	if g.log != nil {
		g.log.Debugf("group state synced from %q: layout %d", d.Name(), next.Group)
	}
}
