// Package peer is a scripted desktop peer. It answers instructions with
// synthetic messages so the client transport can be exercised end to end
// without a real remote desktop.
package peer

import (
	"fmt"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/deskwire/internal/protocol/instruction"
	"github.com/danmuck/deskwire/internal/protocol/message"
	"github.com/danmuck/deskwire/internal/protocol/payload"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Width  uint32
	Height uint32
	// Windows is how many synthetic windows the peer reports.
	Windows int
	// Codec selects the image payload encoding (png, jpeg, raw).
	Codec payload.CodecTag
	// Backlog is stamped into every message header.
	Backlog uint32
	// PingInterval enables keepalive pings when positive.
	PingInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Width:        1280,
		Height:       720,
		Windows:      1,
		Codec:        payload.CodecPNG,
		PingInterval: 5 * time.Second,
	}
}

func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Width == 0 || c.Height == 0 {
		c.Width, c.Height = d.Width, d.Height
	}
	if c.Windows <= 0 {
		c.Windows = d.Windows
	}
	if c.Codec == (payload.CodecTag{}) {
		c.Codec = d.Codec
	}
	return c
}

type Stats struct {
	Links        int64  `json:"links"`
	Instructions uint64 `json:"instructions"`
	Pongs        uint64 `json:"pongs"`
	DataAcks     uint64 `json:"data_acks"`
	AckedBytes   uint64 `json:"acked_bytes"`
	Rejected     uint64 `json:"rejected"`
	Quality      uint32 `json:"quality"`
}

type Peer struct {
	cfg Config

	links        atomic.Int64
	instructions atomic.Uint64
	pongs        atomic.Uint64
	dataAcks     atomic.Uint64
	ackedBytes   atomic.Uint64
	rejected     atomic.Uint64
	quality      atomic.Uint32
}

func New(cfg Config) *Peer {
	return &Peer{cfg: cfg.WithDefaults()}
}

func (p *Peer) Config() Config { return p.cfg }

func (p *Peer) Stats() Stats {
	return Stats{
		Links:        p.links.Load(),
		Instructions: p.instructions.Load(),
		Pongs:        p.pongs.Load(),
		DataAcks:     p.dataAcks.Load(),
		AckedBytes:   p.ackedBytes.Load(),
		Rejected:     p.rejected.Load(),
		Quality:      p.quality.Load(),
	}
}

// link is one connected client as seen by the peer.
type link struct {
	peer *Peer

	mu        sync.Mutex
	env       envelope
	clientID  uint32
	width     uint32
	height    uint32
	cursorX   int32
	cursorY   int32
	clipboard string
}

func (p *Peer) newLink() *link {
	p.links.Add(1)
	return &link{peer: p, width: p.cfg.Width, height: p.cfg.Height, env: envelope{backlog: p.cfg.Backlog}}
}

func (p *Peer) dropLink() {
	p.links.Add(-1)
}

func (l *link) setSession(session [16]byte, clientID uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.env.session = session
	l.clientID = clientID
}

func (l *link) resize(width, height uint32) {
	if width == 0 || height == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.width, l.height = width, height
}

func (l *link) ping() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.env.ping()
}

// handle answers one encoded instruction with zero or more message frames.
// Replies to sync instructions carry the instruction id as commandId.
func (l *link) handle(buf []byte) ([][]byte, error) {
	h, in, err := instruction.Decode(buf)
	if err != nil {
		l.peer.rejected.Add(1)
		return nil, err
	}
	l.peer.instructions.Add(1)

	var command uint32
	if h.Sync {
		command = h.ID
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if h.Type == instruction.TypeConnect {
		l.env.session = h.SessionID
		l.clientID = h.ClientID
	}
	env := l.env

	switch v := in.(type) {
	case instruction.Connect:
		log.Debug().Uint32("client", h.ClientID).Msg("peer link connected")
		return [][]byte{env.screen(command, l.width, l.height)}, nil
	case instruction.Screen:
		return [][]byte{env.screen(command, l.width, l.height)}, nil
	case instruction.ScreenResize:
		if v.Width > 0 && v.Height > 0 {
			l.width, l.height = v.Width, v.Height
		}
		return [][]byte{env.screen(command, l.width, l.height)}, nil
	case instruction.Windows:
		return [][]byte{env.windows(command, l.windows())}, nil
	case instruction.Mouse:
		l.cursorX, l.cursorY = v.X, v.Y
		return [][]byte{env.mouse(command, v.X, v.Y, 1)}, nil
	case instruction.Keyboard:
		if h.Sync {
			return [][]byte{env.mouse(command, l.cursorX, l.cursorY, 1)}, nil
		}
		return nil, nil
	case instruction.Image:
		if v.ID == 0 {
			frame, err := l.tilesFrame(env, command)
			if err != nil {
				return nil, err
			}
			return [][]byte{frame}, nil
		}
		frame, err := l.imageFrame(env, command, v.ID)
		if err != nil {
			return nil, err
		}
		return [][]byte{frame}, nil
	case instruction.CursorImage:
		data, err := encodeImage(solid(16, 16, color.Black), payload.CodecPNG)
		if err != nil {
			return nil, err
		}
		return [][]byte{env.cursorImage(command, v.ID, data)}, nil
	case instruction.Shape:
		data, err := encodeImage(solid(8, 8, color.White), payload.CodecPNG)
		if err != nil {
			return nil, err
		}
		return [][]byte{env.shape(command, v.ID, payload.CodecPNG, data)}, nil
	case instruction.Quality:
		l.peer.quality.Store(v.Index)
		return [][]byte{env.quality(command, v.Index)}, nil
	case instruction.Clipboard:
		l.clipboard = v.Text
		return [][]byte{env.clipboard(command, v.Text)}, nil
	case instruction.Pong:
		l.peer.pongs.Add(1)
		return nil, nil
	case instruction.DataAck:
		l.peer.dataAcks.Add(1)
		l.peer.ackedBytes.Add(uint64(v.Length))
		return nil, nil
	default:
		l.peer.rejected.Add(1)
		return nil, fmt.Errorf("peer: unhandled instruction %T", in)
	}
}

func (l *link) windows() []message.Window {
	n := l.peer.cfg.Windows
	out := make([]message.Window, 0, n)
	w := int32(l.width) / int32(n)
	for i := 0; i < n; i++ {
		out = append(out, message.Window{
			ID:     uint32(i + 1),
			X:      int32(i) * w,
			Y:      0,
			Width:  w,
			Height: int32(l.height),
		})
	}
	return out
}

func (l *link) imageFrame(env envelope, command, windowID uint32) ([]byte, error) {
	wins := l.windows()
	width, height := int(l.width), int(l.height)
	for _, win := range wins {
		if win.ID == windowID {
			width, height = int(win.Width), int(win.Height)
		}
	}
	shade := uint8(windowID * 40)
	img := solid(width, height, color.RGBA{R: shade, G: 0x80, B: 0xFF - shade, A: 0xFF})
	data, err := encodeImage(img, l.peer.cfg.Codec)
	if err != nil {
		return nil, err
	}
	return env.image(command, windowID, l.peer.cfg.Codec, data, nil), nil
}

// tilesFrame sends the first window as two dirty halves.
func (l *link) tilesFrame(env envelope, command uint32) ([]byte, error) {
	win := l.windows()[0]
	half := win.Height / 2
	tiles := make([]tile, 0, 2)
	for i, shade := range []uint8{0x20, 0xC0} {
		img := solid(int(win.Width), int(half), color.RGBA{R: shade, G: shade, B: shade, A: 0xFF})
		data, err := encodeImage(img, l.peer.cfg.Codec)
		if err != nil {
			return nil, err
		}
		tiles = append(tiles, tile{x: 0, y: int32(i) * half, width: win.Width, height: half, data: data})
	}
	return env.subImages(command, win.ID, l.peer.cfg.Codec, tiles), nil
}
