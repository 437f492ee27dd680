// Package message owns the peer-to-client event catalog: the 48-byte header,
// the closed set of message types, and the decoder that turns a wire buffer
// into a Message.
package message

import (
	"errors"
	"fmt"

	"github.com/danmuck/deskwire/internal/protocol/payload"
)

const HeaderSize = 48

var (
	ErrShortHeader = errors.New("message: short header")
	ErrUnknownType = errors.New("message: unknown type")
	ErrTruncated   = errors.New("message: truncated payload")
	ErrPayload     = errors.New("message: payload conversion failed")
)

type Type uint32

const (
	TypeScreen      Type = 1
	TypeWindows     Type = 2
	TypeImage       Type = 3
	TypeSubImages   Type = 4
	TypeMouse       Type = 5
	TypeCursorImage Type = 6
	TypePing        Type = 7
	TypeQuality     Type = 8
	TypeShape       Type = 9
	TypeClipboard   Type = 10
)

var typeNames = map[Type]string{
	TypeScreen:      "screen",
	TypeWindows:     "windows",
	TypeImage:       "image",
	TypeSubImages:   "sub_images",
	TypeMouse:       "mouse",
	TypeCursorImage: "cursor_image",
	TypePing:        "ping",
	TypeQuality:     "quality",
	TypeShape:       "shape",
	TypeClipboard:   "clipboard",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

func (t Type) Known() bool {
	_, ok := typeNames[t]
	return ok
}

// CarriesPayload reports whether decoding t waits on the Payload Factory.
func CarriesPayload(t Type) bool {
	switch t {
	case TypeImage, TypeSubImages, TypeCursorImage, TypeShape:
		return true
	default:
		return false
	}
}

// Header is the fixed prefix of every message.
type Header struct {
	SessionID  [16]byte
	ClientMask [8]byte
	// Timestamp is opaque to the client and echoed back in Pong and DataAck.
	Timestamp [8]byte
	Type      Type
	CommandID uint32
	// Length is the total buffer length, header included.
	Length uint32
	// Backlog is the peer's queue length, the QoS signal.
	Backlog uint32
}

// Head returns the header; embedding Header gives every message this method.
func (h Header) Head() Header { return h }

func (Header) message() {}

// Message is one decoded peer event or reply. The set is closed.
type Message interface {
	Type() Type
	Head() Header
	message()
}

type Screen struct {
	Header
	Width  int32
	Height int32
}

func (Screen) Type() Type { return TypeScreen }

type Window struct {
	ID     uint32
	X      int32
	Y      int32
	Width  int32
	Height int32
}

type Windows struct {
	Header
	Windows []Window
}

func (Windows) Type() Type { return TypeWindows }

// Image is a whole-window image. Alpha is nil when the record has no alpha data.
type Image struct {
	Header
	WindowID uint32
	Depth    uint32
	Codec    payload.CodecTag
	Color    payload.Texture
	Alpha    payload.Texture
}

func (Image) Type() Type { return TypeImage }

// SubImage is one damaged rectangle of a window.
type SubImage struct {
	X      int32
	Y      int32
	Width  int32
	Height int32
	Depth  uint32
	Codec  payload.CodecTag
	Color  payload.Texture
	Alpha  payload.Texture
}

type SubImages struct {
	Header
	WindowID uint32
	Images   []SubImage
}

func (SubImages) Type() Type { return TypeSubImages }

type Mouse struct {
	Header
	X        int32
	Y        int32
	CursorID uint32
}

func (Mouse) Type() Type { return TypeMouse }

type CursorImage struct {
	Header
	X        int32
	Y        int32
	XHot     int32
	YHot     int32
	CursorID uint32
	Image    payload.Texture
}

func (CursorImage) Type() Type { return TypeCursorImage }

type Ping struct {
	Header
}

func (Ping) Type() Type { return TypePing }

type Quality struct {
	Header
	Index        uint32
	FPS          float32
	RGBQuality   float32
	AlphaQuality float32
	MaxMbps      float32
}

func (Quality) Type() Type { return TypeQuality }

// Shape is a window stencil image.
type Shape struct {
	Header
	WindowID uint32
	Codec    payload.CodecTag
	Image    payload.Texture
}

func (Shape) Type() Type { return TypeShape }

// Clipboard carries the peer's clipboard text.
type Clipboard struct {
	Header
	Text string
}

func (Clipboard) Type() Type { return TypeClipboard }
