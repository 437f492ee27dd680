// Package buffer owns the aligned binary primitives shared by the
// instruction encoder and the message decoder.
//
// Every primitive is placed at an offset that is a multiple of its own size,
// measured from the start of the buffer. The resulting layout matches what a
// native struct reader on the peer expects, with no compiler-dependent padding.
// All multi-byte values are little-endian.
package buffer

import (
	"encoding/binary"
	"errors"
	"math"
)

const (
	BoolTrue  uint32 = 0xFF
	BoolFalse uint32 = 0x00
)

var (
	ErrShortBuffer    = errors.New("buffer: short buffer")
	ErrNegativeLength = errors.New("buffer: negative length")
)

// Align returns offset rounded up to the next multiple of size.
func Align(offset, size int) int {
	if size <= 1 {
		return offset
	}
	return (offset + size - 1) / size * size
}

// Writer appends aligned primitives to a growing byte slice.
type Writer struct {
	buf []byte
}

func NewWriter(capacity int) *Writer {
	if capacity < 0 {
		capacity = 0
	}
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Len is the cursor position, which is also the encoded length.
func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

// reserve aligns the cursor for an operand of size bytes and returns the
// slice the operand is written into.
func (w *Writer) reserve(size int) []byte {
	start := Align(len(w.buf), size)
	end := start + size
	if end > cap(w.buf) {
		grown := make([]byte, len(w.buf), 2*cap(w.buf)+end)
		copy(grown, w.buf)
		w.buf = grown
	}
	// zero the alignment gap and the operand; the backing array may be reused
	clear(w.buf[len(w.buf):end])
	w.buf = w.buf[:end]
	return w.buf[start:end]
}

func (w *Writer) PutUint8(v uint8) {
	w.reserve(1)[0] = v
}

func (w *Writer) PutUint32(v uint32) {
	binary.LittleEndian.PutUint32(w.reserve(4), v)
}

func (w *Writer) PutInt32(v int32) {
	w.PutUint32(uint32(v))
}

func (w *Writer) PutFloat32(v float32) {
	w.PutUint32(math.Float32bits(v))
}

// PutBool writes a 32-bit sentinel: 0xFF for true, 0x00 for false.
func (w *Writer) PutBool(v bool) {
	if v {
		w.PutUint32(BoolTrue)
		return
	}
	w.PutUint32(BoolFalse)
}

// PutBytes writes a fixed-length byte array. Arrays have byte alignment.
func (w *Writer) PutBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	copy(w.reserve(len(b)), b)
}

// PutString writes one byte per character; the string's bytes go out verbatim.
func (w *Writer) PutString(s string) {
	if len(s) == 0 {
		return
	}
	copy(w.reserve(len(s)), s)
}

// PutUint32At patches a previously written 32-bit field.
func (w *Writer) PutUint32At(offset int, v uint32) error {
	if offset < 0 || offset+4 > len(w.buf) {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint32(w.buf[offset:offset+4], v)
	return nil
}

// Reader consumes aligned primitives. The first failure is sticky: every
// later read returns a zero value and Err reports the original error.
type Reader struct {
	buf []byte
	pos int
	err error
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// NewReaderAt starts reading at offset. Alignment stays relative to buf[0].
func NewReaderAt(buf []byte, offset int) *Reader {
	r := &Reader{buf: buf, pos: offset}
	if offset < 0 || offset > len(buf) {
		r.err = ErrShortBuffer
		r.pos = len(buf)
	}
	return r
}

func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) Offset() int {
	return r.pos
}

func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) take(size, align int) []byte {
	if r.err != nil {
		return nil
	}
	start := Align(r.pos, align)
	end := start + size
	if end > len(r.buf) {
		r.err = ErrShortBuffer
		r.pos = len(r.buf)
		return nil
	}
	r.pos = end
	return r.buf[start:end]
}

func (r *Reader) Uint8() uint8 {
	b := r.take(1, 1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Uint32() uint32 {
	b := r.take(4, 4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) Int32() int32 {
	return int32(r.Uint32())
}

func (r *Reader) Float32() float32 {
	return math.Float32frombits(r.Uint32())
}

// Bool reads a 32-bit sentinel. Any non-zero value is true.
func (r *Reader) Bool() bool {
	return r.Uint32() != BoolFalse
}

// Bytes returns the next n bytes without copying.
func (r *Reader) Bytes(n int) []byte {
	if n < 0 {
		if r.err == nil {
			r.err = ErrNegativeLength
		}
		return nil
	}
	if n == 0 {
		if r.err != nil {
			return nil
		}
		return []byte{}
	}
	return r.take(n, 1)
}

// Array8 reads an 8-byte opaque array, such as a timestamp.
func (r *Reader) Array8() [8]byte {
	var out [8]byte
	copy(out[:], r.take(8, 1))
	return out
}

// Array4 reads a 4-byte opaque array, such as a codec tag.
func (r *Reader) Array4() [4]byte {
	var out [4]byte
	copy(out[:], r.take(4, 1))
	return out
}

func (r *Reader) String(n int) string {
	return string(r.Bytes(n))
}
