// Package evdev feeds physical keyboards into the group through
// /dev/input, standing in for a compositor's input subsystem: it
// discovers keyboards, attaches them as group members and streams
// their key events into the controller.
package evdev

import (
	"context"
	"time"

	"codeberg.org/miketth/kbgroupd/pkg/kbgroupd"
	"codeberg.org/miketth/kbgroupd/pkg/keyboard"
	"github.com/MarinX/keylogger"
	"go.uber.org/zap"
)

// evdev keycodes are offset by 8 in XKB keycode space.
const keycodeOffset = 8

type Source struct {
	ctrl     *kbgroupd.Controller
	log      *zap.SugaredLogger
	interval time.Duration

	// touched only by the Run goroutine
	attached map[string]*keyboard.Device
}

func NewSource(ctrl *kbgroupd.Controller, rescan time.Duration, log *zap.SugaredLogger) *Source {
	if rescan <= 0 {
		rescan = 5 * time.Second
	}
	return &Source{
		ctrl:     ctrl,
		log:      log,
		interval: rescan,
		attached: make(map[string]*keyboard.Device),
	}
}

// Run scans for keyboards periodically, attaching newly plugged
// devices to the group and detaching ones whose event stream ended.
func (s *Source) Run(ctx context.Context) error {
	gone := make(chan string)

	s.scan(ctx, gone)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case path := <-gone:
			if dev, ok := s.attached[path]; ok {
				delete(s.attached, path)
				s.ctrl.DetachDevice(dev)
			}

		case <-ticker.C:
			s.scan(ctx, gone)
		}
	}
}

func (s *Source) scan(ctx context.Context, gone chan<- string) {
	for _, path := range keylogger.FindAllKeyboardDevices() {
		if _, ok := s.attached[path]; ok {
			continue
		}

		kbd, err := keylogger.New(path)
		if err != nil {
			s.log.Warnf("open %s: %v", path, err)
			continue
		}

		dev, err := s.ctrl.AttachDevice(path)
		if err != nil {
			s.log.Warnf("attach %s: %v", path, err)
			kbd.Close()
			continue
		}

		s.attached[path] = dev
		go s.read(ctx, path, kbd, dev, gone)
	}
}

func (s *Source) read(ctx context.Context, path string, kbd *keylogger.KeyLogger, dev *keyboard.Device, gone chan<- string) {
	defer kbd.Close()

	events := kbd.Read()
	for {
		select {
		case <-ctx.Done():
			return

		case e, ok := <-events:
			if !ok {
				select {
				case gone <- path:
				case <-ctx.Done():
				}
				return
			}
			if e.Type != keylogger.EvKey {
				continue
			}
			switch {
			case e.KeyPress():
				s.ctrl.HandleKey(dev, uint32(e.Code)+keycodeOffset, true, time.Now())
			case e.KeyRelease():
				s.ctrl.HandleKey(dev, uint32(e.Code)+keycodeOffset, false, time.Now())
			}
		}
	}
}
