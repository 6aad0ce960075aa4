package aflib

import (
	"encoding/binary"
	"fmt"
	"os"
)

// DefaultProfilePath is the standard location of the hub's binary profile.
const DefaultProfilePath = "/afero_nv/hub.profile"

// Binary profile layout (all little-endian):
//
//	offset 0  magic "AFPR" (4 bytes)
//	offset 4  format version (u8)
//	offset 5  reserved (u8, zero)
//	offset 6  attribute count (u16)
//	offset 8  count * 8-byte records: id u16, type u16, flags u16, max_length u16
const (
	// ProfileFormatVersion is the newest profile format this library reads.
	ProfileFormatVersion = 1

	// MaxProfileAttributes caps the attribute count of a profile.
	MaxProfileAttributes = 1023

	profileMagic       = "AFPR"
	profileHeaderSize  = 8
	profileRecordSize  = 8
	maxProfileFileSize = 64 << 10
)

// Attribute describes one attribute from a profile. UserData is free for
// the application's use and survives for the lifetime of the Profile; it
// is nil by default and never serialized.
type Attribute struct {
	ID        uint16
	Type      AttributeType
	Flags     AttributeFlag
	MaxLength uint16
	UserData  any
}

// Profile is the schema describing all attributes a hub exposes.
type Profile struct {
	attrs []Attribute
	byID  map[uint16]int
}

// NewProfile builds a profile from attribute descriptions, validating each
// record the same way the binary loader does.
func NewProfile(attrs []Attribute) (*Profile, error) {
	if len(attrs) > MaxProfileAttributes {
		return nil, fmt.Errorf("%d attributes: %w", len(attrs), StatusProfileTooBig)
	}
	p := &Profile{
		attrs: make([]Attribute, len(attrs)),
		byID:  make(map[uint16]int, len(attrs)),
	}
	copy(p.attrs, attrs)
	for i := range p.attrs {
		a := &p.attrs[i]
		if !a.Type.Valid() {
			return nil, fmt.Errorf("attribute %d: unknown type %d: %w", a.ID, a.Type, StatusProfileCorrupted)
		}
		if a.MaxLength > MaxAttributeSize {
			return nil, fmt.Errorf("attribute %d: max_length %d exceeds %d: %w",
				a.ID, a.MaxLength, MaxAttributeSize, StatusProfileCorrupted)
		}
		if _, dup := p.byID[a.ID]; dup {
			return nil, fmt.Errorf("duplicate attribute id %d: %w", a.ID, StatusProfileCorrupted)
		}
		p.byID[a.ID] = i
	}
	return p, nil
}

// LoadProfile reads the hub's profile description from path. An empty path
// means the standard profile file location.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		path = DefaultProfilePath
	}
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("profile %s: %w", path, StatusFileNotFound)
		}
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	if fi.Size() > maxProfileFileSize {
		return nil, fmt.Errorf("profile %s: %d bytes: %w", path, fi.Size(), StatusProfileTooBig)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	p, err := ParseProfile(data)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// ParseProfile decodes a binary profile image.
func ParseProfile(data []byte) (*Profile, error) {
	if len(data) > maxProfileFileSize {
		return nil, fmt.Errorf("%d bytes: %w", len(data), StatusProfileTooBig)
	}
	if len(data) < profileHeaderSize {
		return nil, fmt.Errorf("truncated header: %w", StatusProfileCorrupted)
	}
	if string(data[0:4]) != profileMagic {
		return nil, fmt.Errorf("bad magic: %w", StatusProfileCorrupted)
	}
	version := data[4]
	if version > ProfileFormatVersion {
		return nil, fmt.Errorf("format version %d: %w", version, StatusProfileTooNew)
	}
	count := int(binary.LittleEndian.Uint16(data[6:8]))
	if count > MaxProfileAttributes {
		return nil, fmt.Errorf("%d attributes: %w", count, StatusProfileTooBig)
	}
	if len(data) != profileHeaderSize+count*profileRecordSize {
		return nil, fmt.Errorf("size %d does not match %d records: %w",
			len(data), count, StatusProfileCorrupted)
	}

	attrs := make([]Attribute, count)
	for i := 0; i < count; i++ {
		rec := data[profileHeaderSize+i*profileRecordSize:]
		attrs[i] = Attribute{
			ID:        binary.LittleEndian.Uint16(rec[0:2]),
			Type:      AttributeType(binary.LittleEndian.Uint16(rec[2:4])),
			Flags:     AttributeFlag(binary.LittleEndian.Uint16(rec[4:6])),
			MaxLength: binary.LittleEndian.Uint16(rec[6:8]),
		}
	}
	return NewProfile(attrs)
}

// FindAttribute returns the attribute description for the given id, or nil
// if no attribute has that id. The returned pointer is stable for the
// lifetime of the profile, so UserData written through it is retained.
func (p *Profile) FindAttribute(id uint16) *Attribute {
	if p == nil {
		return nil
	}
	i, ok := p.byID[id]
	if !ok {
		return nil
	}
	return &p.attrs[i]
}

// Len returns the number of attributes in the profile.
func (p *Profile) Len() int {
	if p == nil {
		return 0
	}
	return len(p.attrs)
}

// Attributes returns a copy of the attribute descriptions in profile order.
// Use FindAttribute to mutate UserData on the stored records.
func (p *Profile) Attributes() []Attribute {
	if p == nil {
		return nil
	}
	out := make([]Attribute, len(p.attrs))
	copy(out, p.attrs)
	return out
}

// MarshalBinary encodes the profile in the on-disk binary format.
func (p *Profile) MarshalBinary() ([]byte, error) {
	if len(p.attrs) > MaxProfileAttributes {
		return nil, fmt.Errorf("%d attributes: %w", len(p.attrs), StatusProfileTooBig)
	}
	out := make([]byte, profileHeaderSize+len(p.attrs)*profileRecordSize)
	copy(out[0:4], profileMagic)
	out[4] = ProfileFormatVersion
	binary.LittleEndian.PutUint16(out[6:8], uint16(len(p.attrs)))
	for i, a := range p.attrs {
		rec := out[profileHeaderSize+i*profileRecordSize:]
		binary.LittleEndian.PutUint16(rec[0:2], a.ID)
		binary.LittleEndian.PutUint16(rec[2:4], uint16(a.Type))
		binary.LittleEndian.PutUint16(rec[4:6], uint16(a.Flags))
		binary.LittleEndian.PutUint16(rec[6:8], a.MaxLength)
	}
	return out, nil
}

// WriteFile writes the profile to path in the on-disk binary format.
func (p *Profile) WriteFile(path string) error {
	data, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
