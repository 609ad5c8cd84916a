package xkb

import (
	"fmt"

	"codeberg.org/miketth/kbgroupd/pkg/kbgroupd"
	"codeberg.org/miketth/kbgroupd/pkg/xkblayouts"
)

// validateNames checks every configured layout, variant and option
// name against the XKB registry so a bad entry is reported by field
// and index instead of as an opaque compile failure. Options need the
// check the most: libxkbcommon drops unrecognized options silently
// during rule resolution, so a typo would compile fine and do nothing.
func validateNames(registry *xkblayouts.XkbConfigRegistry, cfg kbgroupd.Config) error {
	if registry == nil {
		return nil
	}
	for i, l := range cfg.Layouts {
		if !registry.HasLayout(l) {
			return fmt.Errorf("%w: unknown layout %q at index %d", kbgroupd.ErrInvalidConfig, l, i)
		}
		if v := cfg.Variant(i); v != "" && !registry.HasVariant(l, v) {
			return fmt.Errorf("%w: unknown variant %q for layout %q at index %d", kbgroupd.ErrInvalidConfig, v, l, i)
		}
	}
	for i, o := range cfg.Options {
		if !registry.HasOption(o) {
			return fmt.Errorf("%w: unknown option %q at index %d", kbgroupd.ErrInvalidConfig, o, i)
		}
	}
	return nil
}
