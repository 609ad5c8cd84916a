package kbgroupd

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"codeberg.org/miketth/kbgroupd/pkg/keyboard"
	"go.uber.org/zap"
)

// Re-exported so callers of the controller match errors without
// importing the keyboard package.
var (
	ErrIndexOutOfRange    = keyboard.ErrIndexOutOfRange
	ErrKeymapDistribution = keyboard.ErrKeymapDistribution
)

// LayoutChangedFunc observes a completed layout switch. Callbacks run
// while the controller lock is held and must not call back into the
// controller.
type LayoutChangedFunc func(idx int, code string)

// Controller is the operation surface the IPC layer and the input
// adapters drive. It owns the current config snapshot and serializes
// every operation, including key processing, behind one lock: the
// moral equivalent of the compositor's single event-loop thread. A
// layout switch therefore runs to completion before the next key event
// is looked at.
type Controller struct {
	mu       sync.Mutex
	cfg      Config
	compiler Compiler
	group    *keyboard.Group
	store    ActiveLayoutStore
	log      *zap.SugaredLogger

	lastGroup int
	onChange  []LayoutChangedFunc
}

// NewController wires a controller over an already-created group whose
// keymap was compiled from cfg. store may be nil to disable
// persistence.
func NewController(cfg Config, compiler Compiler, group *keyboard.Group, store ActiveLayoutStore, log *zap.SugaredLogger) *Controller {
	c := &Controller{
		cfg:      cfg.Clone(),
		compiler: compiler,
		group:    group,
		store:    store,
		log:      log,
	}
	c.lastGroup = group.ActiveLayout()
	group.Device().OnModifiersChanged(c.observeGroup)
	return c
}

// observeGroup watches the group device for layout changes. It is the
// only emitter of layout-changed notifications, so an organic switch
// driven by a key press reports exactly like a requested one.
func (c *Controller) observeGroup(_ *keyboard.Device, _, next keyboard.ModifierState) {
	if next.Group == c.lastGroup {
		return
	}
	c.lastGroup = next.Group
	c.emitLayoutChanged(next.Group)
}

func (c *Controller) emitLayoutChanged(idx int) {
	code := ""
	if codes := c.cfg.ShortCodes(); idx < len(codes) {
		code = codes[idx]
	}
	c.log.Infof("active layout is now %d (%s)", idx, code)
	if c.store != nil {
		if err := c.store.SetActiveLayout(c.cfg.Fingerprint(), idx); err != nil {
			c.log.Warnf("persist active layout: %v", err)
		}
	}
	for _, fn := range c.onChange {
		fn(idx, code)
	}
}

// OnLayoutChanged registers fn to run after every completed layout
// switch, requested or organic, and after every reconfigure.
func (c *Controller) OnLayoutChanged(fn LayoutChangedFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// Reconfigure compiles cfg and distributes the keymap to the whole
// group. On any failure the previous config and keymaps stay in place
// untouched. A successful reconfigure always lands on layout 0: the
// previous index points into a layout list that no longer exists.
func (c *Controller) Reconfigure(cfg Config) error {
	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return err
	}
	km, err := c.compiler.Compile(cfg)
	if err != nil {
		return fmt.Errorf("compile keymap: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.group.ApplyKeymap(km); err != nil {
		return fmt.Errorf("distribute keymap: %w", err)
	}
	c.cfg = cfg
	c.lastGroup = 0
	c.log.Infof("reconfigured: layouts %s", strings.Join(cfg.ShortCodes(), ", "))
	// distribution itself is silent, so report the landing spot
	c.emitLayoutChanged(0)
	return nil
}

// SetLayoutGroup locks layout group idx on every keyboard in the
// group. The index is validated against the current config before any
// device is touched.
func (c *Controller) SetLayoutGroup(idx int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx < 0 || idx >= len(c.cfg.Layouts) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, idx, len(c.cfg.Layouts))
	}
	return c.group.SetLayout(idx)
}

// CycleLayout moves the active layout one step in either direction,
// wrapping at the ends. Any positive direction means forward, any
// negative one backward.
func (c *Controller) CycleLayout(direction int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.cfg.Layouts)
	if n == 0 {
		return fmt.Errorf("%w: no layouts configured", ErrInvalidConfig)
	}
	step := 1
	if direction < 0 {
		step = -1
	}
	next := (c.group.ActiveLayout() + step + n) % n
	return c.group.SetLayout(next)
}

// GroupNames returns the configured layouts as short XKB symbol codes,
// in configuration order.
func (c *Controller) GroupNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.ShortCodes()
}

// ActiveLayout reports the group device's current layout group index.
func (c *Controller) ActiveLayout() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.group.ActiveLayout()
}

// Config returns a copy of the current config snapshot.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Clone()
}

// RestoreLayout applies the layout index persisted for the current
// configuration, if any. Meant to run once at startup, after the
// initial keymap is in place.
func (c *Controller) RestoreLayout() error {
	c.mu.Lock()
	store := c.store
	fp := c.cfg.Fingerprint()
	c.mu.Unlock()
	if store == nil {
		return nil
	}
	idx, ok, err := store.ActiveLayout(fp)
	if err != nil {
		return fmt.Errorf("load active layout: %w", err)
	}
	if !ok {
		return nil
	}
	return c.SetLayoutGroup(idx)
}

// HandleKey feeds one physical key event from an input adapter into
// the member device it arrived on. Key processing shares the
// controller lock with layout switches, so a switch never interleaves
// with a half-processed key event.
func (c *Controller) HandleKey(dev *keyboard.Device, keycode uint32, pressed bool, t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dev.NotifyKey(keycode, pressed, t)
}

// AttachDevice creates a member device for a newly discovered physical
// keyboard and joins it to the group.
func (c *Controller) AttachDevice(name string) (*keyboard.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dev, err := keyboard.NewDevice(name, c.group.Device().Keymap())
	if err != nil {
		return nil, fmt.Errorf("create device %q: %w", name, err)
	}
	if err := c.group.AddMember(dev); err != nil {
		return nil, fmt.Errorf("join group: %w", err)
	}
	c.log.Infof("keyboard %q joined the group", name)
	return dev, nil
}

// DetachDevice removes a member when its physical device goes away.
func (c *Controller) DetachDevice(dev *keyboard.Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.group.RemoveMember(dev)
	c.log.Infof("keyboard %q left the group", dev.Name())
}
