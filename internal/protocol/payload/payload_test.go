package payload

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/deskwire/internal/testutil/testlog"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestCodecTag(t *testing.T) {
	testlog.Start(t)
	if CodecPNG.String() != "png" {
		t.Fatalf("png tag got=%q", CodecPNG.String())
	}
	if ParseCodecTag("png") != CodecPNG {
		t.Fatalf("parse should pad to four bytes")
	}
	if ParseCodecTag("jpegXL") != CodecJPEG {
		t.Fatalf("parse should truncate to four bytes")
	}
}

func TestRawFactoryCopies(t *testing.T) {
	testlog.Start(t)
	src := []byte{1, 2, 3}
	tex, err := RawFactory{}.CreateFromBytes(context.Background(), src, CodecRaw)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	src[0] = 9
	raw := tex.(*Raw)
	if raw.Data[0] != 1 || tex.Len() != 3 || tex.Codec() != CodecRaw {
		t.Fatalf("raw texture not an independent copy: %+v", raw)
	}
}

func TestImageFactoryDecodesPNG(t *testing.T) {
	testlog.Start(t)
	data := encodePNG(t, 4, 3)
	tex, err := ImageFactory{}.CreateFromBytes(context.Background(), data, CodecPNG)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	img, ok := tex.(*Image)
	if !ok {
		t.Fatalf("unexpected texture type %T", tex)
	}
	if b := img.Image.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Fatalf("bounds got=%v", b)
	}
	if tex.Len() != len(data) {
		t.Fatalf("len got=%d want=%d", tex.Len(), len(data))
	}
}

func TestImageFactoryFailures(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	if _, err := (ImageFactory{}).CreateFromBytes(ctx, []byte("x"), ParseCodecTag("bmp")); !errors.Is(err, ErrUnsupportedCodec) {
		t.Fatalf("expected ErrUnsupportedCodec, got %v", err)
	}
	if _, err := (ImageFactory{}).CreateFromBytes(ctx, nil, CodecPNG); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
	if _, err := (ImageFactory{}).CreateFromBytes(ctx, []byte("not a png"), CodecPNG); err == nil {
		t.Fatalf("expected decode error")
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := (ImageFactory{}).CreateFromBytes(cancelled, encodePNG(t, 1, 1), CodecPNG); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	testlog.Start(t)
	var (
		active  atomic.Int32
		maxSeen atomic.Int32
	)
	slow := FactoryFunc(func(ctx context.Context, data []byte, codec CodecTag) (Texture, error) {
		n := active.Add(1)
		for {
			m := maxSeen.Load()
			if n <= m || maxSeen.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		return &Raw{Tag: codec, Data: data}, nil
	})
	pool := NewPool(slow, 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pool.CreateFromBytes(context.Background(), []byte{1}, CodecRaw); err != nil {
				t.Errorf("pool create: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := maxSeen.Load(); got > 2 {
		t.Fatalf("pool ran %d conversions at once, limit 2", got)
	}
}

func TestPoolHonorsContext(t *testing.T) {
	testlog.Start(t)
	block := make(chan struct{})
	defer close(block)
	stuck := FactoryFunc(func(ctx context.Context, data []byte, codec CodecTag) (Texture, error) {
		<-block
		return nil, nil
	})
	pool := NewPool(stuck, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pool.CreateFromBytes(ctx, nil, CodecRaw); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
