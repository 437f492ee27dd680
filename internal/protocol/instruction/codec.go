package instruction

import (
	"fmt"

	"github.com/danmuck/deskwire/internal/protocol/buffer"
)

// Encode serializes h and in into one wire buffer. The header type field is
// taken from in; h.Type is ignored. An instruction outside the catalog yields
// ErrNotEncodable and no bytes.
func Encode(h Header, in Instruction) ([]byte, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: nil instruction", ErrNotEncodable)
	}
	w := buffer.NewWriter(HeaderSize + 16)
	writeHeader(w, h, in.Type())

	switch v := in.(type) {
	case Connect, Screen, Windows:
	case Mouse:
		w.PutInt32(v.X)
		w.PutInt32(v.Y)
		w.PutUint32(v.ButtonMask)
	case Keyboard:
		w.PutUint32(v.Key)
		w.PutBool(v.Pressed)
	case CursorImage:
		w.PutUint32(v.ID)
	case Image:
		w.PutUint32(v.ID)
	case Shape:
		w.PutUint32(v.ID)
	case Quality:
		w.PutUint32(v.Index)
	case Pong:
		w.PutBytes(v.Timestamp[:])
	case DataAck:
		w.PutBytes(v.Timestamp[:])
		w.PutUint32(v.Length)
	case Clipboard:
		w.PutUint32(uint32(len(v.Text)))
		w.PutString(v.Text)
	case ScreenResize:
		w.PutUint32(v.Width)
		w.PutUint32(v.Height)
	default:
		return nil, fmt.Errorf("%w: %T", ErrNotEncodable, in)
	}
	return w.Bytes(), nil
}

func writeHeader(w *buffer.Writer, h Header, t Type) {
	w.PutBytes(h.SessionID[:])
	w.PutUint32(h.ClientID)
	typ := uint32(t) & typeMask
	if h.Sync {
		typ |= SyncFlag
	}
	w.PutUint32(typ)
	w.PutUint32(h.ID)
	w.PutUint32(0)
}

// ParseHeader reads the 32-byte header only.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	r := buffer.NewReader(buf)
	var h Header
	copy(h.SessionID[:], r.Bytes(16))
	h.ClientID = r.Uint32()
	typ := r.Uint32()
	h.Sync = typ&SyncFlag != 0
	h.Type = Type(typ & typeMask)
	h.ID = r.Uint32()
	return h, r.Err()
}

// Decode parses a full instruction buffer. Peers and tests use it; the client
// side only encodes.
func Decode(buf []byte) (Header, Instruction, error) {
	h, err := ParseHeader(buf)
	if err != nil {
		return Header{}, nil, err
	}
	r := buffer.NewReaderAt(buf, HeaderSize)

	var in Instruction
	switch h.Type {
	case TypeConnect:
		in = Connect{}
	case TypeScreen:
		in = Screen{}
	case TypeWindows:
		in = Windows{}
	case TypeMouse:
		in = Mouse{X: r.Int32(), Y: r.Int32(), ButtonMask: r.Uint32()}
	case TypeKeyboard:
		in = Keyboard{Key: r.Uint32(), Pressed: r.Bool()}
	case TypeCursorImage:
		in = CursorImage{ID: r.Uint32()}
	case TypeImage:
		in = Image{ID: r.Uint32()}
	case TypeShape:
		in = Shape{ID: r.Uint32()}
	case TypeQuality:
		in = Quality{Index: r.Uint32()}
	case TypePong:
		in = Pong{Timestamp: r.Array8()}
	case TypeDataAck:
		ts := r.Array8()
		in = DataAck{Timestamp: ts, Length: r.Uint32()}
	case TypeClipboard:
		n := r.Uint32()
		if int64(n) > int64(r.Remaining()) {
			return h, nil, fmt.Errorf("%w: clipboard length %d", ErrTruncated, n)
		}
		in = Clipboard{Text: r.String(int(n))}
	case TypeScreenResize:
		in = ScreenResize{Width: r.Uint32(), Height: r.Uint32()}
	default:
		return h, nil, fmt.Errorf("%w: %d", ErrUnknownType, uint32(h.Type))
	}
	if err := r.Err(); err != nil {
		return h, nil, fmt.Errorf("%w: %s: %v", ErrTruncated, h.Type, err)
	}
	return h, in, nil
}
