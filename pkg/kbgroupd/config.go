package kbgroupd

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig reports an RMLVO config rejected by validation or
// by the keymap compiler.
var ErrInvalidConfig = errors.New("invalid layout configuration")

// Config is an immutable snapshot of the configured RMLVO vector. A
// configuration change produces a new value; nothing mutates one in
// place.
type Config struct {
	Layouts  []string
	Variants []string
	Options  []string
}

// Validate checks the shape of the config: at least one layout, no
// blank layout names, and a variant list that is either empty or one
// entry per layout (empty string meaning no variant).
func (c Config) Validate() error {
	if len(c.Layouts) == 0 {
		return fmt.Errorf("%w: no layouts configured", ErrInvalidConfig)
	}
	if len(c.Variants) != 0 && len(c.Variants) != len(c.Layouts) {
		return fmt.Errorf("%w: %d variants for %d layouts", ErrInvalidConfig, len(c.Variants), len(c.Layouts))
	}
	for i, l := range c.Layouts {
		if strings.TrimSpace(l) == "" {
			return fmt.Errorf("%w: empty layout at index %d", ErrInvalidConfig, i)
		}
	}
	return nil
}

// Variant returns the variant for layout i, tolerating an absent
// variant list.
func (c Config) Variant(i int) string {
	if i < len(c.Variants) {
		return c.Variants[i]
	}
	return ""
}

// ShortCodes renders each layout as its short XKB symbol code, e.g.
// "us" or "cz(qwerty)", in configuration order. Consumers match these
// against short-code tables; handing out display names like
// "Czech (QWERTY)" would break them.
func (c Config) ShortCodes() []string {
	out := make([]string, 0, len(c.Layouts))
	for i, l := range c.Layouts {
		if v := c.Variant(i); v != "" {
			out = append(out, fmt.Sprintf("%s(%s)", l, v))
			continue
		}
		out = append(out, l)
	}
	return out
}

// SplitShortCode splits a short code like "cz(qwerty)" back into its
// layout and variant parts. A code without a variant comes back
// unchanged with an empty variant.
func SplitShortCode(code string) (layout, variant string) {
	i := strings.IndexByte(code, '(')
	if i >= 0 && strings.HasSuffix(code, ")") {
		return code[:i], code[i+1 : len(code)-1]
	}
	return code, ""
}

// Fingerprint is a stable identity for the configured layout list,
// used as the persistence key for the active layout index.
func (c Config) Fingerprint() string {
	return strings.Join([]string{
		strings.Join(c.Layouts, ","),
		strings.Join(c.Variants, ","),
		strings.Join(c.Options, ","),
	}, ";")
}

// Clone deep-copies the config so callers cannot reach into a snapshot
// the controller holds.
func (c Config) Clone() Config {
	return Config{
		Layouts:  append([]string(nil), c.Layouts...),
		Variants: append([]string(nil), c.Variants...),
		Options:  append([]string(nil), c.Options...),
	}
}
