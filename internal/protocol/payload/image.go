package payload

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/webp"
)

// Image is a decoded texture.
type Image struct {
	Tag    CodecTag
	Image  image.Image
	source int
}

func (i *Image) Codec() CodecTag { return i.Tag }
func (i *Image) Len() int        { return i.source }

// ImageFactory decodes png, jpeg and webp payloads. Raw payloads are copied
// through as *Raw.
type ImageFactory struct{}

func (ImageFactory) CreateFromBytes(ctx context.Context, data []byte, codec CodecTag) (Texture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if codec == CodecRaw {
		return RawFactory{}.CreateFromBytes(ctx, data, codec)
	}
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}

	var (
		img image.Image
		err error
	)
	r := bytes.NewReader(data)
	switch codec {
	case CodecPNG:
		img, err = png.Decode(r)
	case CodecJPEG:
		img, err = jpeg.Decode(r)
	case CodecWebP:
		img, err = webp.Decode(r)
	default:
		return nil, unsupported(codec)
	}
	if err != nil {
		return nil, fmt.Errorf("payload: decode %s: %w", codec, err)
	}
	return &Image{Tag: codec, Image: img, source: len(data)}, nil
}
