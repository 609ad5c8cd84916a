package kbgroupd_test

import (
	"errors"
	"testing"
	"time"

	"codeberg.org/miketth/kbgroupd/pkg/kbgroupd"
	"codeberg.org/miketth/kbgroupd/pkg/keyboard"
	"codeberg.org/miketth/kbgroupd/pkg/keyboard/keyboardtest"
	"codeberg.org/miketth/kbgroupd/pkg/layoutstore/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCompiler struct {
	err      error
	compiled []kbgroupd.Config
}

func (f *fakeCompiler) Compile(cfg kbgroupd.Config) (keyboard.Keymap, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.compiled = append(f.compiled, cfg)
	return keyboardtest.NewKeymap(len(cfg.Layouts)), nil
}

type fixture struct {
	ctrl     *kbgroupd.Controller
	group    *keyboard.Group
	compiler *fakeCompiler
	store    *memory.LayoutStore
}

func newFixture(t *testing.T, cfg kbgroupd.Config, members int) *fixture {
	t.Helper()

	compiler := &fakeCompiler{}
	km, err := compiler.Compile(cfg)
	require.NoError(t, err)

	group, err := keyboard.NewGroup(km, nil)
	require.NoError(t, err)

	store := memory.NewLayoutStore()
	ctrl := kbgroupd.NewController(cfg, compiler, group, store, zap.NewNop().Sugar())

	for i := 0; i < members; i++ {
		_, err := ctrl.AttachDevice("kbd")
		require.NoError(t, err)
	}

	return &fixture{ctrl: ctrl, group: group, compiler: compiler, store: store}
}

func usCz() kbgroupd.Config {
	return kbgroupd.Config{
		Layouts:  []string{"us", "cz"},
		Variants: []string{"", "qwerty"},
	}
}

func TestControllerSetLayoutGroup(t *testing.T) {
	f := newFixture(t, usCz(), 1)

	require.NoError(t, f.ctrl.SetLayoutGroup(1))
	require.Equal(t, 1, f.ctrl.ActiveLayout())
	for _, dev := range f.group.Members() {
		require.Equal(t, 1, dev.Modifiers().Group)
	}
}

func TestControllerSetLayoutGroupOutOfRange(t *testing.T) {
	f := newFixture(t, usCz(), 1)
	require.NoError(t, f.ctrl.SetLayoutGroup(1))

	// boundary: index == layout count
	err := f.ctrl.SetLayoutGroup(2)
	require.ErrorIs(t, err, kbgroupd.ErrIndexOutOfRange)
	require.Equal(t, 1, f.ctrl.ActiveLayout())
}

func TestControllerCycleLayoutWraps(t *testing.T) {
	f := newFixture(t, kbgroupd.Config{Layouts: []string{"us", "cz", "de"}}, 1)

	require.NoError(t, f.ctrl.SetLayoutGroup(2))
	require.NoError(t, f.ctrl.CycleLayout(1))
	require.Equal(t, 0, f.ctrl.ActiveLayout())

	require.NoError(t, f.ctrl.CycleLayout(-1))
	require.Equal(t, 2, f.ctrl.ActiveLayout())

	// any magnitude normalizes to one step
	require.NoError(t, f.ctrl.CycleLayout(7))
	require.Equal(t, 0, f.ctrl.ActiveLayout())
}

func TestControllerGroupNames(t *testing.T) {
	f := newFixture(t, usCz(), 1)
	require.Equal(t, []string{"us", "cz(qwerty)"}, f.ctrl.GroupNames())
}

func TestControllerReconfigure(t *testing.T) {
	f := newFixture(t, usCz(), 2)
	require.NoError(t, f.ctrl.SetLayoutGroup(1))

	next := kbgroupd.Config{Layouts: []string{"de", "fr", "es"}}
	require.NoError(t, f.ctrl.Reconfigure(next))

	require.Equal(t, []string{"de", "fr", "es"}, f.ctrl.GroupNames())
	require.Equal(t, 0, f.ctrl.ActiveLayout())
	require.Equal(t, 3, f.group.Device().Keymap().NumLayouts())
	for _, dev := range f.group.Members() {
		require.Equal(t, 3, dev.Keymap().NumLayouts())
	}
}

func TestControllerReconfigureFailureKeepsPrevious(t *testing.T) {
	f := newFixture(t, usCz(), 1)
	require.NoError(t, f.ctrl.SetLayoutGroup(1))

	f.compiler.err = errors.New("no such layout")
	err := f.ctrl.Reconfigure(kbgroupd.Config{Layouts: []string{"xx"}})
	require.Error(t, err)

	require.Equal(t, []string{"us", "cz(qwerty)"}, f.ctrl.GroupNames())
	require.Equal(t, 1, f.ctrl.ActiveLayout())
	require.Equal(t, 2, f.group.Device().Keymap().NumLayouts())
}

func TestControllerReconfigureInvalidConfig(t *testing.T) {
	f := newFixture(t, usCz(), 1)

	err := f.ctrl.Reconfigure(kbgroupd.Config{})
	require.ErrorIs(t, err, kbgroupd.ErrInvalidConfig)
	require.Equal(t, []string{"us", "cz(qwerty)"}, f.ctrl.GroupNames())
}

func TestControllerLayoutChangedEvents(t *testing.T) {
	f := newFixture(t, usCz(), 1)

	type event struct {
		idx  int
		code string
	}
	var events []event
	f.ctrl.OnLayoutChanged(func(idx int, code string) {
		events = append(events, event{idx, code})
	})

	require.NoError(t, f.ctrl.SetLayoutGroup(1))
	require.Equal(t, []event{{1, "cz(qwerty)"}}, events)

	// idempotent switch emits nothing
	require.NoError(t, f.ctrl.SetLayoutGroup(1))
	require.Len(t, events, 1)

	require.NoError(t, f.ctrl.SetLayoutGroup(0))
	require.Equal(t, event{0, "us"}, events[1])
}

// The reported regression: switching programmatically, then typing,
// must not revert the group layout.
func TestControllerKeyAfterSwitchDoesNotRevert(t *testing.T) {
	f := newFixture(t, usCz(), 0)

	dev, err := f.ctrl.AttachDevice("kbd0")
	require.NoError(t, err)

	require.NoError(t, f.ctrl.SetLayoutGroup(1))
	require.Equal(t, 1, f.ctrl.ActiveLayout())

	f.ctrl.HandleKey(dev, 30+8, true, time.Now())
	f.ctrl.HandleKey(dev, 30+8, false, time.Now())
	require.Equal(t, 1, f.ctrl.ActiveLayout())
}

func TestControllerPersistAndRestore(t *testing.T) {
	cfg := usCz()
	f := newFixture(t, cfg, 1)

	require.NoError(t, f.ctrl.SetLayoutGroup(1))

	idx, ok, err := f.store.ActiveLayout(cfg.Fingerprint())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, idx)

	// a fresh controller over the same store comes back on layout 1
	compiler := &fakeCompiler{}
	km, err := compiler.Compile(cfg)
	require.NoError(t, err)
	group, err := keyboard.NewGroup(km, nil)
	require.NoError(t, err)
	ctrl := kbgroupd.NewController(cfg, compiler, group, f.store, zap.NewNop().Sugar())

	require.NoError(t, ctrl.RestoreLayout())
	require.Equal(t, 1, ctrl.ActiveLayout())
}

func TestControllerRestoreIgnoresDifferentConfig(t *testing.T) {
	f := newFixture(t, usCz(), 1)
	require.NoError(t, f.ctrl.SetLayoutGroup(1))

	other := kbgroupd.Config{Layouts: []string{"us", "de"}}
	compiler := &fakeCompiler{}
	km, err := compiler.Compile(other)
	require.NoError(t, err)
	group, err := keyboard.NewGroup(km, nil)
	require.NoError(t, err)
	ctrl := kbgroupd.NewController(other, compiler, group, f.store, zap.NewNop().Sugar())

	require.NoError(t, ctrl.RestoreLayout())
	require.Equal(t, 0, ctrl.ActiveLayout())
}

func TestControllerDetachDevice(t *testing.T) {
	f := newFixture(t, usCz(), 0)

	dev, err := f.ctrl.AttachDevice("kbd0")
	require.NoError(t, err)
	require.Len(t, f.group.Members(), 1)

	f.ctrl.DetachDevice(dev)
	require.Empty(t, f.group.Members())
}
