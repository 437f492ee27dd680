package peer

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"time"

	"github.com/danmuck/deskwire/internal/protocol/buffer"
	"github.com/danmuck/deskwire/internal/protocol/message"
	"github.com/danmuck/deskwire/internal/protocol/payload"
)

// envelope is the header shared by every frame a peer sends on one link.
type envelope struct {
	session [16]byte
	backlog uint32
}

func (e envelope) begin(typ message.Type, commandID uint32) *buffer.Writer {
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(time.Now().UnixNano()))
	return message.BeginFrame(message.Header{
		SessionID: e.session,
		Timestamp: ts,
		Type:      typ,
		CommandID: commandID,
		Backlog:   e.backlog,
	})
}

func (e envelope) screen(commandID uint32, width, height uint32) []byte {
	w := e.begin(message.TypeScreen, commandID)
	w.PutInt32(int32(width))
	w.PutInt32(int32(height))
	return message.EndFrame(w)
}

func (e envelope) windows(commandID uint32, wins []message.Window) []byte {
	w := e.begin(message.TypeWindows, commandID)
	w.PutUint32(uint32(len(wins)))
	for _, win := range wins {
		w.PutUint32(win.ID)
		w.PutInt32(win.X)
		w.PutInt32(win.Y)
		w.PutInt32(win.Width)
		w.PutInt32(win.Height)
	}
	return message.EndFrame(w)
}

func (e envelope) image(commandID, windowID uint32, codec payload.CodecTag, colorData, alphaData []byte) []byte {
	w := e.begin(message.TypeImage, commandID)
	w.PutUint32(windowID)
	w.PutUint32(24)
	w.PutBytes(codec[:])
	w.PutUint32(uint32(len(colorData)))
	w.PutUint32(uint32(len(alphaData)))
	w.PutBytes(colorData)
	w.PutBytes(alphaData)
	return message.EndFrame(w)
}

// tile is one dirty rectangle of a sub-image batch.
type tile struct {
	x, y, width, height int32
	data                []byte
}

func (e envelope) subImages(commandID, windowID uint32, codec payload.CodecTag, tiles []tile) []byte {
	w := e.begin(message.TypeSubImages, commandID)
	w.PutUint32(windowID)
	w.PutUint32(uint32(len(tiles)))
	for _, t := range tiles {
		w.PutInt32(t.x)
		w.PutInt32(t.y)
		w.PutInt32(t.width)
		w.PutInt32(t.height)
		w.PutUint32(24)
		w.PutBytes(codec[:])
		w.PutUint32(uint32(len(t.data)))
		w.PutUint32(0)
		w.PutBytes(t.data)
	}
	return message.EndFrame(w)
}

func (e envelope) mouse(commandID uint32, x, y int32, cursorID uint32) []byte {
	w := e.begin(message.TypeMouse, commandID)
	w.PutInt32(x)
	w.PutInt32(y)
	w.PutUint32(cursorID)
	return message.EndFrame(w)
}

func (e envelope) cursorImage(commandID, cursorID uint32, pngData []byte) []byte {
	w := e.begin(message.TypeCursorImage, commandID)
	w.PutInt32(0)
	w.PutInt32(0)
	w.PutInt32(1)
	w.PutInt32(1)
	w.PutUint32(cursorID)
	w.PutUint32(uint32(len(pngData)))
	w.PutBytes(pngData)
	return message.EndFrame(w)
}

func (e envelope) shape(commandID, windowID uint32, codec payload.CodecTag, data []byte) []byte {
	w := e.begin(message.TypeShape, commandID)
	w.PutUint32(windowID)
	w.PutBytes(codec[:])
	w.PutUint32(uint32(len(data)))
	w.PutBytes(data)
	return message.EndFrame(w)
}

func (e envelope) ping() []byte {
	return message.EndFrame(e.begin(message.TypePing, 0))
}

func (e envelope) quality(commandID, index uint32) []byte {
	w := e.begin(message.TypeQuality, commandID)
	fps := float32(30) / float32(index+1)
	w.PutUint32(index)
	w.PutFloat32(fps)
	w.PutFloat32(1 - 0.1*float32(index))
	w.PutFloat32(1 - 0.1*float32(index))
	w.PutFloat32(50 / float32(index+1))
	return message.EndFrame(w)
}

func (e envelope) clipboard(commandID uint32, text string) []byte {
	w := e.begin(message.TypeClipboard, commandID)
	w.PutUint32(uint32(len(text)))
	w.PutString(text)
	return message.EndFrame(w)
}

// solid renders a width x height image in one color.
func solid(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// encodeImage renders img with codec. Raw is the RGBA pixel buffer.
func encodeImage(img *image.RGBA, codec payload.CodecTag) ([]byte, error) {
	var out bytes.Buffer
	switch codec {
	case payload.CodecJPEG:
		if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: 80}); err != nil {
			return nil, err
		}
	case payload.CodecRaw:
		return append([]byte(nil), img.Pix...), nil
	default:
		if err := png.Encode(&out, img); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}
