// Package xkblayouts reads the XKB config registry (evdev.xml) to
// validate configured layout, variant and option names and to resolve
// their human-readable descriptions.
package xkblayouts

import (
	"encoding/xml"
	"fmt"
	"os"
)

// DefaultRulesPath is where xkeyboard-config installs the registry on
// most distributions.
const DefaultRulesPath = "/usr/share/X11/xkb/rules/evdev.xml"

type XkbConfigRegistry struct {
	XMLName    xml.Name   `xml:"xkbConfigRegistry"`
	LayoutList LayoutList `xml:"layoutList"`
	OptionList OptionList `xml:"optionList"`
}

type LayoutList struct {
	Layout []Layout `xml:"layout"`
}

type Layout struct {
	ConfigItem  ConfigItem  `xml:"configItem"`
	VariantList VariantList `xml:"variantList"`
}

type VariantList struct {
	Variant []Variant `xml:"variant"`
}

type Variant struct {
	ConfigItem ConfigItem `xml:"configItem"`
}

type OptionList struct {
	Group []OptionGroup `xml:"group"`
}

type OptionGroup struct {
	ConfigItem ConfigItem `xml:"configItem"`
	Option     []Option   `xml:"option"`
}

type Option struct {
	ConfigItem ConfigItem `xml:"configItem"`
}

type ConfigItem struct {
	Name        string `xml:"name"`
	Description string `xml:"description"`
}

func ParseLayouts(path string) (*XkbConfigRegistry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	registry := &XkbConfigRegistry{}
	err = xml.NewDecoder(file).Decode(registry)
	if err != nil {
		return nil, fmt.Errorf("decode xml: %w", err)
	}

	return registry, nil
}

// HasLayout reports whether the registry knows a layout by its short
// name, e.g. "cz".
func (r *XkbConfigRegistry) HasLayout(layout string) bool {
	return r.findLayout(layout) != nil
}

// HasVariant reports whether variant exists for layout, e.g.
// "qwerty" for "cz".
func (r *XkbConfigRegistry) HasVariant(layout, variant string) bool {
	l := r.findLayout(layout)
	if l == nil {
		return false
	}
	for _, v := range l.VariantList.Variant {
		if v.ConfigItem.Name == variant {
			return true
		}
	}
	return false
}

// HasOption reports whether the registry knows an option by its full
// name, e.g. "grp:alt_shift_toggle".
func (r *XkbConfigRegistry) HasOption(option string) bool {
	for _, g := range r.OptionList.Group {
		for _, o := range g.Option {
			if o.ConfigItem.Name == option {
				return true
			}
		}
	}
	return false
}

// GetLayoutPrettyName resolves the display description of a
// layout/variant pair, e.g. "cz"/"qwerty" to "Czech (QWERTY)". It
// returns "" for unknown names.
func (r *XkbConfigRegistry) GetLayoutPrettyName(layout, variant string) string {
	l := r.findLayout(layout)
	if l == nil {
		return ""
	}
	if variant == "" {
		return l.ConfigItem.Description
	}
	for _, v := range l.VariantList.Variant {
		if v.ConfigItem.Name == variant {
			return v.ConfigItem.Description
		}
	}
	return ""
}

func (r *XkbConfigRegistry) findLayout(layout string) *Layout {
	for i := range r.LayoutList.Layout {
		if r.LayoutList.Layout[i].ConfigItem.Name == layout {
			return &r.LayoutList.Layout[i]
		}
	}
	return nil
}
