package keyboard_test

import (
	"testing"
	"time"

	"codeberg.org/miketth/kbgroupd/pkg/keyboard"
	"codeberg.org/miketth/kbgroupd/pkg/keyboard/keyboardtest"
	"github.com/stretchr/testify/require"
)

func newDevice(t *testing.T, layouts int) *keyboard.Device {
	t.Helper()
	dev, err := keyboard.NewDevice("test", keyboardtest.NewKeymap(layouts))
	require.NoError(t, err)
	return dev
}

func TestDeviceNotifyKey(t *testing.T) {
	dev := newDevice(t, 2)

	var events []keyboard.ModifierState
	dev.OnModifiersChanged(func(_ *keyboard.Device, _, next keyboard.ModifierState) {
		events = append(events, next)
	})

	dev.NotifyKey(keyboardtest.KeycodeShift, true, time.Now())
	require.Len(t, events, 1)
	require.Equal(t, uint32(keyboardtest.MaskShift), events[0].Depressed)

	dev.NotifyKey(keyboardtest.KeycodeShift, false, time.Now())
	require.Len(t, events, 2)
	require.Zero(t, events[1].Depressed)
}

func TestDeviceNotifyKeyUnknownKeycodeIsSilent(t *testing.T) {
	dev := newDevice(t, 2)

	fired := 0
	dev.OnModifiersChanged(func(_ *keyboard.Device, _, _ keyboard.ModifierState) {
		fired++
	})

	dev.NotifyKey(9999, true, time.Now())
	dev.NotifyKey(keyboardtest.KeycodeA, true, time.Now())
	require.Zero(t, fired)
}

func TestDeviceNotifyModifiers(t *testing.T) {
	dev := newDevice(t, 2)

	fired := 0
	dev.OnModifiersChanged(func(_ *keyboard.Device, _, _ keyboard.ModifierState) {
		fired++
	})

	dev.NotifyModifiers(0, 0, 0, 1)
	require.Equal(t, 1, fired)
	require.Equal(t, 1, dev.Modifiers().Group)

	// same state again changes nothing
	dev.NotifyModifiers(0, 0, 0, 1)
	require.Equal(t, 1, fired)
}

func TestDeviceSetKeymapResetsState(t *testing.T) {
	dev := newDevice(t, 2)
	dev.NotifyModifiers(keyboardtest.MaskShift, 0, keyboardtest.MaskLock, 1)
	require.Equal(t, 1, dev.Modifiers().Group)

	km := keyboardtest.NewKeymap(3)
	require.NoError(t, dev.SetKeymap(km))
	require.Same(t, km, dev.Keymap())
	require.Equal(t, keyboard.ModifierState{}, dev.Modifiers())
}

func TestDeviceListenerCancel(t *testing.T) {
	dev := newDevice(t, 2)

	fired := 0
	cancel := dev.OnModifiersChanged(func(_ *keyboard.Device, _, _ keyboard.ModifierState) {
		fired++
	})

	dev.NotifyModifiers(0, 0, 0, 1)
	cancel()
	dev.NotifyModifiers(0, 0, 0, 0)
	require.Equal(t, 1, fired)
}
