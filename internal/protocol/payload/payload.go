// Package payload defines the Payload Factory contract the message decoder uses
// to turn embedded image bytes into display-ready textures, plus stock
// factories.
//
// A Factory call is the await point: it may convert inline, hand work to a
// pool, or call out to another process. The decoder only relies on the call
// returning once the texture is ready or has failed.
package payload

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedCodec = errors.New("payload: unsupported codec")
	ErrEmptyPayload     = errors.New("payload: empty payload")
)

// CodecTag is the 4-byte identifier of an embedded payload's encoding.
type CodecTag [4]byte

var (
	CodecPNG  = CodecTag{'p', 'n', 'g', ' '}
	CodecJPEG = CodecTag{'j', 'p', 'e', 'g'}
	CodecWebP = CodecTag{'w', 'e', 'b', 'p'}
	CodecRaw  = CodecTag{'r', 'a', 'w', ' '}
)

func (c CodecTag) String() string {
	return strings.TrimRight(string(c[:]), " \x00")
}

// ParseCodecTag pads or truncates s to four bytes.
func ParseCodecTag(s string) CodecTag {
	tag := CodecTag{' ', ' ', ' ', ' '}
	copy(tag[:], s)
	return tag
}

// Texture is a converted payload. Ownership passes with the Message that
// carries it.
type Texture interface {
	Codec() CodecTag
	// Len is the size of the source bytes the texture was built from.
	Len() int
}

type Factory interface {
	CreateFromBytes(ctx context.Context, data []byte, codec CodecTag) (Texture, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, data []byte, codec CodecTag) (Texture, error)

func (f FactoryFunc) CreateFromBytes(ctx context.Context, data []byte, codec CodecTag) (Texture, error) {
	return f(ctx, data, codec)
}

// Raw is an undecoded texture holding a private copy of the source bytes.
type Raw struct {
	Tag  CodecTag
	Data []byte
}

func (r *Raw) Codec() CodecTag { return r.Tag }
func (r *Raw) Len() int        { return len(r.Data) }

// RawFactory copies bytes without decoding. Inbound buffers may be reused by
// the transport, so the copy is required.
type RawFactory struct{}

func (RawFactory) CreateFromBytes(ctx context.Context, data []byte, codec CodecTag) (Texture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Raw{Tag: codec, Data: buf}, nil
}

func unsupported(codec CodecTag) error {
	return fmt.Errorf("%w: %q", ErrUnsupportedCodec, codec.String())
}
