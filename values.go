package aflib

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// Attribute values travel in the little-endian form the hub hardware uses.
// These helpers produce and consume that form for each attribute type.

// EncodeBool encodes a boolean attribute value.
func EncodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

// EncodeI8 encodes a signed 8-bit attribute value.
func EncodeI8(v int8) []byte { return []byte{byte(v)} }

// EncodeI16 encodes a signed 16-bit attribute value.
func EncodeI16(v int16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(v))
	return b
}

// EncodeI32 encodes a signed 32-bit attribute value.
func EncodeI32(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

// EncodeI64 encodes a signed 64-bit attribute value.
func EncodeI64(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

// EncodeFixed1616 encodes a Q15.16 fixed-point attribute value.
// Values outside the representable range saturate.
func EncodeFixed1616(v float64) []byte {
	scaled := math.Round(v * 65536)
	switch {
	case scaled >= math.MaxInt32:
		return EncodeI32(math.MaxInt32)
	case scaled <= math.MinInt32:
		return EncodeI32(math.MinInt32)
	}
	return EncodeI32(int32(scaled))
}

// EncodeFixed3232 encodes a Q31.32 fixed-point attribute value.
// Values outside the representable range saturate.
func EncodeFixed3232(v float64) []byte {
	scaled := math.Round(v * 4294967296)
	switch {
	case scaled >= math.MaxInt64:
		return EncodeI64(math.MaxInt64)
	case scaled <= math.MinInt64:
		return EncodeI64(math.MinInt64)
	}
	return EncodeI64(int64(scaled))
}

// EncodeString encodes a UTF-8 string attribute value.
func EncodeString(s string) []byte { return []byte(s) }

// DecodeBool decodes a boolean attribute value.
func DecodeBool(b []byte) (bool, error) {
	if len(b) != 1 {
		return false, fmt.Errorf("boolean value must be 1 byte, got %d: %w", len(b), StatusInvalidParam)
	}
	return b[0] != 0, nil
}

// DecodeI8 decodes a signed 8-bit attribute value.
func DecodeI8(b []byte) (int8, error) {
	if len(b) != 1 {
		return 0, fmt.Errorf("sint8 value must be 1 byte, got %d: %w", len(b), StatusInvalidParam)
	}
	return int8(b[0]), nil
}

// DecodeI16 decodes a signed 16-bit attribute value.
func DecodeI16(b []byte) (int16, error) {
	if len(b) != 2 {
		return 0, fmt.Errorf("sint16 value must be 2 bytes, got %d: %w", len(b), StatusInvalidParam)
	}
	return int16(binary.LittleEndian.Uint16(b)), nil
}

// DecodeI32 decodes a signed 32-bit attribute value.
func DecodeI32(b []byte) (int32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("sint32 value must be 4 bytes, got %d: %w", len(b), StatusInvalidParam)
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

// DecodeI64 decodes a signed 64-bit attribute value.
func DecodeI64(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("sint64 value must be 8 bytes, got %d: %w", len(b), StatusInvalidParam)
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

// DecodeFixed1616 decodes a Q15.16 fixed-point attribute value.
func DecodeFixed1616(b []byte) (float64, error) {
	raw, err := DecodeI32(b)
	if err != nil {
		return 0, err
	}
	return float64(raw) / 65536, nil
}

// DecodeFixed3232 decodes a Q31.32 fixed-point attribute value.
func DecodeFixed3232(b []byte) (float64, error) {
	raw, err := DecodeI64(b)
	if err != nil {
		return 0, err
	}
	return float64(raw) / 4294967296, nil
}

// DecodeString decodes a UTF-8 string attribute value.
func DecodeString(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", fmt.Errorf("value is not valid UTF-8: %w", StatusInvalidParam)
	}
	return string(b), nil
}

// ValidateValue checks a raw value against an attribute description:
// overall size cap, per-attribute max_length, and exact width for
// fixed-width types.
func ValidateValue(attr *Attribute, value []byte) error {
	if len(value) > MaxAttributeSize {
		return fmt.Errorf("value length %d exceeds %d: %w", len(value), MaxAttributeSize, StatusInvalidParam)
	}
	if attr == nil {
		return nil
	}
	if attr.MaxLength > 0 && len(value) > int(attr.MaxLength) {
		return fmt.Errorf("attribute %d: value length %d exceeds max_length %d: %w",
			attr.ID, len(value), attr.MaxLength, StatusInvalidParam)
	}
	if size, ok := attr.Type.FixedSize(); ok && len(value) != size {
		return fmt.Errorf("attribute %d: %s value must be %d bytes, got %d: %w",
			attr.ID, attr.Type, size, len(value), StatusInvalidParam)
	}
	return nil
}
