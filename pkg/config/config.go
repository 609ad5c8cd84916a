// Package config loads and watches the daemon's layout configuration
// file.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"codeberg.org/miketth/kbgroupd/pkg/kbgroupd"
	"github.com/adrg/xdg"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// File is the on-disk schema:
//
//	layouts: [us, cz]
//	variants: ["", qwerty]
//	options: [grp:caps_toggle]
//
// Options are passed to libxkbcommon verbatim. XKB-level group toggle
// options (grp:alt_shift_toggle and friends) switch layouts inside the
// keymap, behind the daemon's back; combining them with daemon-driven
// switching double-toggles, so pick one.
type File struct {
	Layouts  []string `yaml:"layouts"`
	Variants []string `yaml:"variants"`
	Options  []string `yaml:"options"`
}

// DefaultPath resolves the config file under the XDG config home,
// creating parent directories as needed.
func DefaultPath() (string, error) {
	path, err := xdg.ConfigFile("kbgroupd/config.yaml")
	if err != nil {
		return "", fmt.Errorf("resolve config file: %w", err)
	}
	return path, nil
}

func Load(path string) (kbgroupd.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return kbgroupd.Config{}, fmt.Errorf("read config: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return kbgroupd.Config{}, fmt.Errorf("decode yaml: %w", err)
	}

	cfg := kbgroupd.Config{Layouts: f.Layouts, Variants: f.Variants, Options: f.Options}
	if err := cfg.Validate(); err != nil {
		return kbgroupd.Config{}, err
	}

	return cfg, nil
}

// Watch re-loads path whenever it changes and hands the result to
// apply. Broken edits are logged and skipped; the previous
// configuration stays active.
func Watch(ctx context.Context, path string, apply func(kbgroupd.Config) error, log *zap.SugaredLogger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// watch the directory: editors replace the file on save, which
	// silently drops a watch registered on the file itself
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != path || !(ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create)) {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				log.Warnf("config not reloaded: %v", err)
				continue
			}
			if err := apply(cfg); err != nil {
				log.Warnf("config not applied: %v", err)
				continue
			}
			log.Infof("config reloaded from %s", path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("config watcher: %v", err)
		}
	}
}
