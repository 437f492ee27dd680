package peer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/danmuck/deskwire/internal/protocol/instruction"
	"github.com/danmuck/deskwire/internal/protocol/message"
	"github.com/danmuck/deskwire/internal/protocol/payload"
	"github.com/danmuck/deskwire/internal/testutil/testlog"
	"github.com/danmuck/deskwire/internal/transport"
	"github.com/danmuck/deskwire/internal/tunnel"
)

func decode(t *testing.T, buf []byte) message.Message {
	t.Helper()
	msg, err := message.NewDecoder(payload.ImageFactory{}).Decode(context.Background(), buf)
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	return msg
}

func encode(t *testing.T, h instruction.Header, in instruction.Instruction) []byte {
	t.Helper()
	buf, err := instruction.Encode(h, in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf
}

func TestLinkAnswersSyncInstructionsWithCommandID(t *testing.T) {
	testlog.Start(t)
	p := New(Config{Width: 64, Height: 32, Windows: 2})
	l := p.newLink()

	replies, err := l.handle(encode(t, instruction.Header{ID: 5, Sync: true}, instruction.Windows{}))
	if err != nil || len(replies) != 1 {
		t.Fatalf("windows replies=%d err=%v", len(replies), err)
	}
	wins, ok := decode(t, replies[0]).(message.Windows)
	if !ok || wins.CommandID != 5 || len(wins.Windows) != 2 || wins.Windows[1].X != 32 {
		t.Fatalf("windows got=%#v", wins)
	}

	replies, _ = l.handle(encode(t, instruction.Header{ID: 6}, instruction.Mouse{X: 3, Y: 4}))
	mouse := decode(t, replies[0]).(message.Mouse)
	if mouse.CommandID != 0 || mouse.X != 3 || mouse.Y != 4 {
		t.Fatalf("async mouse got=%#v", mouse)
	}

	replies, _ = l.handle(encode(t, instruction.Header{ID: 7, Sync: true}, instruction.Image{ID: 2}))
	img := decode(t, replies[0]).(message.Image)
	decoded, ok := img.Color.(*payload.Image)
	if !ok || decoded.Image.Bounds().Dx() != 32 || decoded.Image.Bounds().Dy() != 32 {
		t.Fatalf("image payload got=%#v", img.Color)
	}

	replies, _ = l.handle(encode(t, instruction.Header{ID: 8, Sync: true}, instruction.Image{}))
	tiles := decode(t, replies[0]).(message.SubImages)
	if len(tiles.Images) != 2 || tiles.Images[1].Y != 16 || tiles.Images[0].Color == nil {
		t.Fatalf("sub images got=%#v", tiles)
	}

	if replies, _ = l.handle(encode(t, instruction.Header{}, instruction.Pong{})); len(replies) != 0 {
		t.Fatalf("pong must not be answered")
	}
	_, _ = l.handle(encode(t, instruction.Header{}, instruction.DataAck{Length: 40000}))
	_, _ = l.handle(encode(t, instruction.Header{}, instruction.Quality{Index: 3}))
	if _, err := l.handle([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected short instruction error")
	}

	stats := p.Stats()
	if stats.Pongs != 1 || stats.DataAcks != 1 || stats.AckedBytes != 40000 || stats.Quality != 3 || stats.Rejected != 1 {
		t.Fatalf("stats got=%+v", stats)
	}
}

func startPeer(t *testing.T, cfg Config) (*Peer, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := New(cfg)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return p, ln.Addr().String()
}

func connectTunnel(t *testing.T, address string, opts tunnel.Options) *tunnel.Tunnel {
	t.Helper()
	if opts.Decoder == nil {
		opts.Decoder = message.NewDecoder(payload.NewPool(payload.ImageFactory{}, 2))
	}
	tn := tunnel.New(transport.NewStream(transport.TCPDialer{Timeout: time.Second}, 0), opts)
	params := transport.ConnectParams{Address: address, SessionID: [16]byte{7}, ClientID: 2, Width: 200, Height: 100}
	if err := tn.Connect(context.Background(), params); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = tn.Disconnect() })
	return tn
}

func TestTunnelAgainstStreamPeer(t *testing.T) {
	testlog.Start(t)
	_, address := startPeer(t, Config{Width: 320, Height: 200})
	unsolicited := make(chan message.Message, 16)
	tn := connectTunnel(t, address, tunnel.Options{Hooks: tunnel.Hooks{
		OnMessage: func(m message.Message) { unsolicited <- m },
	}})

	// connect and resize are each answered with an unsolicited screen
	for i := 0; i < 2; i++ {
		select {
		case m := <-unsolicited:
			if _, ok := m.(message.Screen); !ok {
				t.Fatalf("handshake reply got=%T", m)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for handshake replies")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := tn.Request(ctx, instruction.Screen{}, 0)
	if err != nil {
		t.Fatalf("screen request: %v", err)
	}
	if s := reply.(message.Screen); s.Width != 200 || s.Height != 100 {
		t.Fatalf("screen should follow resize, got=%+v", s)
	}

	reply, err = tn.Request(ctx, instruction.Image{ID: 1}, 0)
	if err != nil {
		t.Fatalf("image request: %v", err)
	}
	if img := reply.(message.Image); img.Color.Codec() != payload.CodecPNG || img.Alpha != nil {
		t.Fatalf("image got=%#v", img)
	}

	reply, err = tn.Request(ctx, instruction.CursorImage{ID: 9}, 0)
	if err != nil {
		t.Fatalf("cursor request: %v", err)
	}
	if c := reply.(message.CursorImage); c.CursorID != 9 || c.Image == nil {
		t.Fatalf("cursor got=%#v", c)
	}

	reply, err = tn.Request(ctx, instruction.Clipboard{Text: "copy ✓"}, 0)
	if err != nil {
		t.Fatalf("clipboard request: %v", err)
	}
	if c := reply.(message.Clipboard); c.Text != "copy ✓" {
		t.Fatalf("clipboard got=%q", c.Text)
	}

	reply, err = tn.Request(ctx, instruction.Shape{ID: 1}, 0)
	if err != nil {
		t.Fatalf("shape request: %v", err)
	}
	if s := reply.(message.Shape); s.Image == nil {
		t.Fatalf("shape got=%#v", s)
	}
}

func TestStreamPeerPingsAndAcks(t *testing.T) {
	testlog.Start(t)
	p, address := startPeer(t, Config{Width: 200, Height: 100, Codec: payload.CodecRaw, PingInterval: 20 * time.Millisecond})
	tn := connectTunnel(t, address, tunnel.Options{Decoder: message.NewDecoder(nil)})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// 200x100 RGBA is 80000 bytes, above the ack threshold
	if _, err := tn.Request(ctx, instruction.Image{ID: 1}, 0); err != nil {
		t.Fatalf("image request: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		stats := p.Stats()
		if stats.Pongs > 0 && stats.DataAcks > 0 {
			if stats.AckedBytes <= 80000 {
				t.Fatalf("acked bytes should include header, got=%d", stats.AckedBytes)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("peer stats got=%+v", stats)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
