package aflib

// MaxAttributeSize is the largest attribute value the API accepts, in bytes.
const MaxAttributeSize = 255

// AttributeType identifies the value encoding of an attribute.
type AttributeType uint16

const (
	AttributeTypeBoolean   AttributeType = 1
	AttributeTypeSInt8     AttributeType = 2
	AttributeTypeSInt16    AttributeType = 3
	AttributeTypeSInt32    AttributeType = 4
	AttributeTypeSInt64    AttributeType = 5
	AttributeTypeFixed1616 AttributeType = 6 // Q15.16 signed fixed point
	AttributeTypeFixed3232 AttributeType = 7 // Q31.32 signed fixed point
	AttributeTypeUTF8S     AttributeType = 20
	AttributeTypeBytes     AttributeType = 21
)

// Valid reports whether t is a known attribute type.
func (t AttributeType) Valid() bool {
	switch t {
	case AttributeTypeBoolean, AttributeTypeSInt8, AttributeTypeSInt16,
		AttributeTypeSInt32, AttributeTypeSInt64,
		AttributeTypeFixed1616, AttributeTypeFixed3232,
		AttributeTypeUTF8S, AttributeTypeBytes:
		return true
	}
	return false
}

// FixedSize returns the wire size of fixed-width types. Variable-width
// types (UTF8S, BYTES) report ok=false.
func (t AttributeType) FixedSize() (size int, ok bool) {
	switch t {
	case AttributeTypeBoolean, AttributeTypeSInt8:
		return 1, true
	case AttributeTypeSInt16:
		return 2, true
	case AttributeTypeSInt32, AttributeTypeFixed1616:
		return 4, true
	case AttributeTypeSInt64, AttributeTypeFixed3232:
		return 8, true
	}
	return 0, false
}

func (t AttributeType) String() string {
	switch t {
	case AttributeTypeBoolean:
		return "boolean"
	case AttributeTypeSInt8:
		return "sint8"
	case AttributeTypeSInt16:
		return "sint16"
	case AttributeTypeSInt32:
		return "sint32"
	case AttributeTypeSInt64:
		return "sint64"
	case AttributeTypeFixed1616:
		return "fixed_16_16"
	case AttributeTypeFixed3232:
		return "fixed_32_32"
	case AttributeTypeUTF8S:
		return "utf8s"
	case AttributeTypeBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// AttributeFlag is a bitmask of attribute capabilities from the profile.
type AttributeFlag uint16

const (
	FlagRead         AttributeFlag = 0x0001
	FlagReadNotify   AttributeFlag = 0x0002
	FlagWrite        AttributeFlag = 0x0004
	FlagWriteNotify  AttributeFlag = 0x0008
	FlagHasDefault   AttributeFlag = 0x0010
	FlagLatch        AttributeFlag = 0x0020
	FlagMCUHide      AttributeFlag = 0x0040
	FlagPassThrough  AttributeFlag = 0x0080
	FlagStoreInFlash AttributeFlag = 0x0100
)

// Has reports whether all bits of mask are set.
func (f AttributeFlag) Has(mask AttributeFlag) bool { return f&mask == mask }

// SetHandler is called when a remote client requests that an attribute be
// changed. Return true to accept the change, false to reject it. To process
// changes asynchronously, enable HandleSetAsync on the client and confirm
// with ConfirmAttr instead.
type SetHandler func(attrID uint16, value []byte) bool

// NotifyHandler is called with an attribute's current value, either because
// it changed on the service side or because GetAttribute asked for it.
type NotifyHandler func(attrID uint16, value []byte)

// ConnectHandler is called when the hub's connection to the Afero service
// goes up or down.
type ConnectHandler func(connected bool)

// IPCDisconnectedHandler is called when the IPC connection to hubby breaks,
// typically because hubby exited.
type IPCDisconnectedHandler func()
