// Package instruction owns the client-to-peer command catalog and its wire
// layout.
//
// Ownership boundary:
// - the closed set of instruction types
// - the 32-byte instruction header
// - per-type payload encode (and decode, for peers and tests)
package instruction

import (
	"errors"
	"fmt"
)

const (
	HeaderSize = 32

	// SyncFlag marks an instruction whose reply is correlated by id.
	SyncFlag uint32 = 1 << 31
	typeMask uint32 = SyncFlag - 1
)

var (
	ErrNotEncodable = errors.New("instruction: not encodable")
	ErrUnknownType  = errors.New("instruction: unknown type")
	ErrShortHeader  = errors.New("instruction: short header")
	ErrTruncated    = errors.New("instruction: truncated payload")
)

type Type uint32

const (
	TypeConnect      Type = 1
	TypeScreen       Type = 2
	TypeWindows      Type = 3
	TypeMouse        Type = 4
	TypeKeyboard     Type = 5
	TypeCursorImage  Type = 6
	TypeImage        Type = 7
	TypeShape        Type = 8
	TypeQuality      Type = 9
	TypePong         Type = 10
	TypeDataAck      Type = 11
	TypeClipboard    Type = 12
	TypeScreenResize Type = 13
)

var typeNames = map[Type]string{
	TypeConnect:      "connect",
	TypeScreen:       "screen",
	TypeWindows:      "windows",
	TypeMouse:        "mouse",
	TypeKeyboard:     "keyboard",
	TypeCursorImage:  "cursor_image",
	TypeImage:        "image",
	TypeShape:        "shape",
	TypeQuality:      "quality",
	TypePong:         "pong",
	TypeDataAck:      "data_ack",
	TypeClipboard:    "clipboard",
	TypeScreenResize: "screen_resize",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

// Known reports whether t is part of the catalog.
func (t Type) Known() bool {
	_, ok := typeNames[t]
	return ok
}

// Header is the envelope stamped on every instruction.
type Header struct {
	SessionID [16]byte
	ClientID  uint32
	Type      Type
	ID        uint32
	Sync      bool
}

// Instruction is one client-to-peer command body. The set is closed.
type Instruction interface {
	Type() Type
	instruction()
}

type body struct{}

func (body) instruction() {}

type Connect struct{ body }

func (Connect) Type() Type { return TypeConnect }

type Screen struct{ body }

func (Screen) Type() Type { return TypeScreen }

type Windows struct{ body }

func (Windows) Type() Type { return TypeWindows }

type Mouse struct {
	body
	X          int32
	Y          int32
	ButtonMask uint32
}

func (Mouse) Type() Type { return TypeMouse }

type Keyboard struct {
	body
	Key     uint32
	Pressed bool
}

func (Keyboard) Type() Type { return TypeKeyboard }

type CursorImage struct {
	body
	ID uint32
}

func (CursorImage) Type() Type { return TypeCursorImage }

// Image asks for the current contents of window ID.
type Image struct {
	body
	ID uint32
}

func (Image) Type() Type { return TypeImage }

// Shape asks for the stencil of window ID.
type Shape struct {
	body
	ID uint32
}

func (Shape) Type() Type { return TypeShape }

type Quality struct {
	body
	Index uint32
}

func (Quality) Type() Type { return TypeQuality }

// Pong answers a Ping by echoing its timestamp.
type Pong struct {
	body
	Timestamp [8]byte
}

func (Pong) Type() Type { return TypePong }

// DataAck acknowledges a large message so the peer can measure throughput.
type DataAck struct {
	body
	Timestamp [8]byte
	Length    uint32
}

func (DataAck) Type() Type { return TypeDataAck }

type Clipboard struct {
	body
	Text string
}

func (Clipboard) Type() Type { return TypeClipboard }

type ScreenResize struct {
	body
	Width  uint32
	Height uint32
}

func (ScreenResize) Type() Type { return TypeScreenResize }
