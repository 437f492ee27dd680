package message

import (
	"context"
	"fmt"

	"github.com/danmuck/deskwire/internal/protocol/payload"
	"golang.org/x/sync/errgroup"
)

const (
	windowRecordSize   = 20
	subImageRecordSize = 32
)

// Decoder turns wire buffers into Messages. Embedded images are converted
// through the Factory; all conversions of one message run concurrently and the
// message is returned only once every one has finished.
type Decoder struct {
	factory payload.Factory
}

// NewDecoder uses factory for image payloads; nil keeps raw bytes.
func NewDecoder(factory payload.Factory) *Decoder {
	if factory == nil {
		factory = payload.RawFactory{}
	}
	return &Decoder{factory: factory}
}

// conversion is one pending payload, written into dst when it completes.
type conversion struct {
	data  []byte
	codec payload.CodecTag
	dst   *payload.Texture
}

type conversions []conversion

func (c *conversions) add(data []byte, codec payload.CodecTag, dst *payload.Texture) {
	if len(data) == 0 {
		return
	}
	*c = append(*c, conversion{data: data, codec: codec, dst: dst})
}

func (d *Decoder) convert(ctx context.Context, jobs conversions) error {
	switch len(jobs) {
	case 0:
		return nil
	case 1:
		tex, err := d.factory.CreateFromBytes(ctx, jobs[0].data, jobs[0].codec)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPayload, err)
		}
		*jobs[0].dst = tex
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		g.Go(func() error {
			tex, err := d.factory.CreateFromBytes(gctx, job.data, job.codec)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrPayload, job.codec, err)
			}
			*job.dst = tex
			return nil
		})
	}
	return g.Wait()
}

// Decode parses buf completely. Unknown types return ErrUnknownType; the
// caller logs and moves on.
func (d *Decoder) Decode(ctx context.Context, buf []byte) (Message, error) {
	r, err := NewReader(buf)
	if err != nil {
		return nil, err
	}
	h := r.Header
	if int64(h.Length) > int64(len(buf)) {
		return nil, fmt.Errorf("%w: header length %d exceeds buffer %d", ErrTruncated, h.Length, len(buf))
	}
	if h.Length >= HeaderSize && int(h.Length) < len(buf) {
		// decode only the declared message, ignoring trailing bytes
		r, _ = NewReader(buf[:h.Length])
	}

	var (
		msg  Message
		jobs conversions
	)
	switch h.Type {
	case TypeScreen:
		msg = Screen{Header: h, Width: r.Int32(), Height: r.Int32()}
	case TypeWindows:
		m, err := decodeWindows(r)
		if err != nil {
			return nil, err
		}
		msg = m
	case TypeImage:
		m := &Image{Header: h}
		m.WindowID = r.Uint32()
		m.Depth = r.Uint32()
		m.Codec = r.Array4()
		color, alpha, err := readColorAlpha(r)
		if err != nil {
			return nil, err
		}
		jobs.add(color, m.Codec, &m.Color)
		jobs.add(alpha, m.Codec, &m.Alpha)
		if err := d.finish(ctx, r, jobs); err != nil {
			return nil, err
		}
		return *m, nil
	case TypeSubImages:
		m, err := d.decodeSubImages(ctx, r)
		if err != nil {
			return nil, err
		}
		return m, nil
	case TypeMouse:
		msg = Mouse{Header: h, X: r.Int32(), Y: r.Int32(), CursorID: r.Uint32()}
	case TypeCursorImage:
		m := &CursorImage{Header: h}
		m.X = r.Int32()
		m.Y = r.Int32()
		m.XHot = r.Int32()
		m.YHot = r.Int32()
		m.CursorID = r.Uint32()
		img, err := readSized(r)
		if err != nil {
			return nil, err
		}
		// cursor images carry no codec tag and are always png
		jobs.add(img, payload.CodecPNG, &m.Image)
		if err := d.finish(ctx, r, jobs); err != nil {
			return nil, err
		}
		return *m, nil
	case TypePing:
		msg = Ping{Header: h}
	case TypeQuality:
		msg = Quality{
			Header:       h,
			Index:        r.Uint32(),
			FPS:          r.Float32(),
			RGBQuality:   r.Float32(),
			AlphaQuality: r.Float32(),
			MaxMbps:      r.Float32(),
		}
	case TypeShape:
		m := &Shape{Header: h}
		m.WindowID = r.Uint32()
		m.Codec = r.Array4()
		img, err := readSized(r)
		if err != nil {
			return nil, err
		}
		jobs.add(img, m.Codec, &m.Image)
		if err := d.finish(ctx, r, jobs); err != nil {
			return nil, err
		}
		return *m, nil
	case TypeClipboard:
		text, err := readSized(r)
		if err != nil {
			return nil, err
		}
		msg = Clipboard{Header: h, Text: string(text)}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint32(h.Type))
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTruncated, h.Type, err)
	}
	return msg, nil
}

// finish checks the reader, then waits on every payload conversion.
func (d *Decoder) finish(ctx context.Context, r *Reader, jobs conversions) error {
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTruncated, r.Header.Type, err)
	}
	return d.convert(ctx, jobs)
}

func decodeWindows(r *Reader) (Windows, error) {
	count := r.Uint32()
	if err := checkRecords(r, count, windowRecordSize); err != nil {
		return Windows{}, err
	}
	out := Windows{Header: r.Header, Windows: make([]Window, count)}
	for i := range out.Windows {
		out.Windows[i] = Window{
			ID:     r.Uint32(),
			X:      r.Int32(),
			Y:      r.Int32(),
			Width:  r.Int32(),
			Height: r.Int32(),
		}
	}
	return out, nil
}

func (d *Decoder) decodeSubImages(ctx context.Context, r *Reader) (SubImages, error) {
	out := SubImages{Header: r.Header}
	out.WindowID = r.Uint32()
	count := r.Uint32()
	if err := checkRecords(r, count, subImageRecordSize); err != nil {
		return SubImages{}, err
	}
	// fixed length before taking field addresses for the conversions
	out.Images = make([]SubImage, count)
	var jobs conversions
	for i := range out.Images {
		sub := &out.Images[i]
		sub.X = r.Int32()
		sub.Y = r.Int32()
		sub.Width = r.Int32()
		sub.Height = r.Int32()
		sub.Depth = r.Uint32()
		sub.Codec = r.Array4()
		color, alpha, err := readColorAlpha(r)
		if err != nil {
			return SubImages{}, fmt.Errorf("%w: record %d", err, i)
		}
		jobs.add(color, sub.Codec, &sub.Color)
		jobs.add(alpha, sub.Codec, &sub.Alpha)
	}
	if err := d.finish(ctx, r, jobs); err != nil {
		return SubImages{}, err
	}
	return out, nil
}

func checkRecords(r *Reader, count uint32, size int) error {
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTruncated, r.Header.Type, err)
	}
	if int64(count)*int64(size) > int64(r.Remaining()) {
		return fmt.Errorf("%w: %s: %d records do not fit", ErrTruncated, r.Header.Type, count)
	}
	return nil
}

// readColorAlpha reads colorLen, alphaLen and then both byte runs.
func readColorAlpha(r *Reader) ([]byte, []byte, error) {
	colorLen := r.Uint32()
	alphaLen := r.Uint32()
	if err := fits(r, int64(colorLen)+int64(alphaLen)); err != nil {
		return nil, nil, err
	}
	color := r.Bytes(int(colorLen))
	alpha := r.Bytes(int(alphaLen))
	return color, alpha, nil
}

// readSized reads a u32 length followed by that many bytes.
func readSized(r *Reader) ([]byte, error) {
	n := r.Uint32()
	if err := fits(r, int64(n)); err != nil {
		return nil, err
	}
	return r.Bytes(int(n)), nil
}

func fits(r *Reader, n int64) error {
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTruncated, r.Header.Type, err)
	}
	if n > int64(r.Remaining()) {
		return fmt.Errorf("%w: %s: %d bytes declared, %d left", ErrTruncated, r.Header.Type, n, r.Remaining())
	}
	return nil
}
