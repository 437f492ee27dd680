package instruction

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxClipboardBytes bounds clipboard text read from a stream.
const MaxClipboardBytes = 16 << 20

// fixedPayload is the payload size of every type without a length prefix.
var fixedPayload = map[Type]int{
	TypeConnect:      0,
	TypeScreen:       0,
	TypeWindows:      0,
	TypeMouse:        12,
	TypeKeyboard:     8,
	TypeCursorImage:  4,
	TypeImage:        4,
	TypeShape:        4,
	TypeQuality:      4,
	TypePong:         8,
	TypeDataAck:      12,
	TypeScreenResize: 8,
}

// ReadFrame reads one whole instruction from a byte stream. Instructions
// carry no length field, so the size comes from the type; an unknown type
// leaves the stream unusable and returns ErrUnknownType.
func ReadFrame(r io.Reader) ([]byte, error) {
	head := make([]byte, HeaderSize, HeaderSize+16)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	h, err := ParseHeader(head)
	if err != nil {
		return nil, err
	}

	if n, ok := fixedPayload[h.Type]; ok {
		return readMore(r, head, n)
	}
	if h.Type != TypeClipboard {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint32(h.Type))
	}
	buf, err := readMore(r, head, 4)
	if err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(buf[HeaderSize:])
	if n > MaxClipboardBytes {
		return nil, fmt.Errorf("%w: clipboard length %d", ErrTruncated, n)
	}
	return readMore(r, buf, int(n))
}

func readMore(r io.Reader, buf []byte, n int) ([]byte, error) {
	if n == 0 {
		return buf, nil
	}
	start := len(buf)
	buf = append(buf, make([]byte, n)...)
	if _, err := io.ReadFull(r, buf[start:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return buf, nil
}
