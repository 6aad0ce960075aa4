package aflib

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ProfileSpecFileName is the standard filename of the JSON profile
// description in a firmware package.
const ProfileSpecFileName = "profile.json"

// ProfileSpec is the human-editable JSON description of a hub profile.
// Tooling compiles it to the binary form the hub loads at boot.
//
// Keep it forward-compatible: prefer adding fields over changing existing
// meanings, and use SchemaVersion for evolution.
type ProfileSpec struct {
	SchemaVersion int             `json:"schema_version"`
	DeviceType    string          `json:"device_type,omitempty"`
	Attributes    []AttributeSpec `json:"attributes"`
}

// AttributeSpec describes one attribute in a profile spec.
type AttributeSpec struct {
	ID        uint16   `json:"id"`
	Name      string   `json:"name,omitempty"`
	Type      string   `json:"type"`                 // boolean, sint8, ..., utf8s, bytes
	Flags     []string `json:"flags,omitempty"`      // read, write, read_notify, ...
	MaxLength uint16   `json:"max_length,omitempty"` // required for utf8s/bytes
}

var specTypeNames = map[string]AttributeType{
	"boolean":     AttributeTypeBoolean,
	"sint8":       AttributeTypeSInt8,
	"sint16":      AttributeTypeSInt16,
	"sint32":      AttributeTypeSInt32,
	"sint64":      AttributeTypeSInt64,
	"fixed_16_16": AttributeTypeFixed1616,
	"fixed_32_32": AttributeTypeFixed3232,
	"utf8s":       AttributeTypeUTF8S,
	"bytes":       AttributeTypeBytes,
}

var specFlagNames = map[string]AttributeFlag{
	"read":           FlagRead,
	"read_notify":    FlagReadNotify,
	"write":          FlagWrite,
	"write_notify":   FlagWriteNotify,
	"has_default":    FlagHasDefault,
	"latch":          FlagLatch,
	"mcu_hide":       FlagMCUHide,
	"pass_through":   FlagPassThrough,
	"store_in_flash": FlagStoreInFlash,
}

// LoadProfileSpec parses a JSON profile description (e.g. from profile.json).
func LoadProfileSpec(data []byte) (*ProfileSpec, error) {
	var spec ProfileSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse profile spec: %w", err)
	}
	return &spec, nil
}

// Compile turns the spec into a Profile, resolving type and flag names and
// filling in max_length for fixed-width types.
func (s *ProfileSpec) Compile() (*Profile, error) {
	attrs := make([]Attribute, 0, len(s.Attributes))
	for _, as := range s.Attributes {
		typ, ok := specTypeNames[strings.ToLower(strings.TrimSpace(as.Type))]
		if !ok {
			return nil, fmt.Errorf("attribute %d: unknown type %q", as.ID, as.Type)
		}

		var flags AttributeFlag
		for _, name := range as.Flags {
			f, ok := specFlagNames[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				return nil, fmt.Errorf("attribute %d: unknown flag %q", as.ID, name)
			}
			flags |= f
		}

		maxLen := as.MaxLength
		if size, fixed := typ.FixedSize(); fixed {
			if maxLen == 0 {
				maxLen = uint16(size)
			} else if int(maxLen) != size {
				return nil, fmt.Errorf("attribute %d: %s max_length must be %d, got %d",
					as.ID, typ, size, maxLen)
			}
		} else if maxLen == 0 {
			return nil, fmt.Errorf("attribute %d: %s requires max_length", as.ID, typ)
		}

		attrs = append(attrs, Attribute{
			ID:        as.ID,
			Type:      typ,
			Flags:     flags,
			MaxLength: maxLen,
		})
	}
	return NewProfile(attrs)
}

// SpecFromProfile reconstructs a JSON-facing spec from a compiled profile,
// for inspection tooling. Attribute names are not stored in the binary form
// and come back empty.
func SpecFromProfile(p *Profile) *ProfileSpec {
	spec := &ProfileSpec{SchemaVersion: 1}
	for _, a := range p.Attributes() {
		names := make([]string, 0, 4)
		for name, f := range specFlagNames {
			if a.Flags.Has(f) {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		spec.Attributes = append(spec.Attributes, AttributeSpec{
			ID:        a.ID,
			Type:      a.Type.String(),
			Flags:     names,
			MaxLength: a.MaxLength,
		})
	}
	return spec
}
