package message

import (
	"github.com/danmuck/deskwire/internal/protocol/buffer"
)

const lengthOffset = 40

// ParseHeader reads only the fixed header. It is the cheap first step the
// tunnel runs on every inbound buffer before any decode work.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	r := buffer.NewReader(buf)
	return readHeader(r)
}

func readHeader(r *buffer.Reader) (Header, error) {
	var h Header
	copy(h.SessionID[:], r.Bytes(16))
	h.ClientMask = r.Array8()
	h.Timestamp = r.Array8()
	h.Type = Type(r.Uint32())
	h.CommandID = r.Uint32()
	h.Length = r.Uint32()
	h.Backlog = r.Uint32()
	return h, r.Err()
}

// Reader is a buffer reader that parsed the header on construction and sits
// at the first payload byte.
type Reader struct {
	*buffer.Reader
	Header Header
}

func NewReader(buf []byte) (*Reader, error) {
	if len(buf) < HeaderSize {
		return nil, ErrShortHeader
	}
	r := buffer.NewReader(buf)
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	return &Reader{Reader: r, Header: h}, nil
}

// BeginFrame starts a peer-side message buffer with h written. The Length
// field is filled in by EndFrame.
func BeginFrame(h Header) *buffer.Writer {
	w := buffer.NewWriter(HeaderSize + 64)
	w.PutBytes(h.SessionID[:])
	w.PutBytes(h.ClientMask[:])
	w.PutBytes(h.Timestamp[:])
	w.PutUint32(uint32(h.Type))
	w.PutUint32(h.CommandID)
	w.PutUint32(h.Length)
	w.PutUint32(h.Backlog)
	return w
}

// EndFrame patches the total length into the header and returns the buffer.
func EndFrame(w *buffer.Writer) []byte {
	_ = w.PutUint32At(lengthOffset, uint32(w.Len()))
	return w.Bytes()
}
