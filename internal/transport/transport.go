// Package transport binds the tunnel to a concrete ordered, reliable byte
// carrier.
//
// Ownership boundary:
// - connect/handshake parameter encoding
// - stream framing of inbound messages (TCP, TLS, SSH forwards)
// - websocket binary-frame carriage
// - in-memory pipes for tests
package transport

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/deskwire/internal/protocol/instruction"
)

const DefaultMaxMessageBytes = 64 << 20

var (
	ErrClosed          = errors.New("transport: closed")
	ErrNotOpen         = errors.New("transport: not open")
	ErrMessageTooLarge = errors.New("transport: message too large")
	ErrBadLength       = errors.New("transport: bad message length")
	ErrInvalidSession  = errors.New("transport: invalid session id")
)

// Transport carries whole buffers. Send and Receive may run concurrently with
// each other; each must preserve order.
type Transport interface {
	// Open connects and performs the handshake, returning once the transport
	// is ready to carry instructions.
	Open(ctx context.Context, params ConnectParams) error
	Send(buf []byte) error
	// Receive blocks for the next complete inbound message.
	Receive() ([]byte, error)
	Close() error
}

// ConnectParams are handed to the transport at connect time. Session and
// client ids are assigned during bootstrap, outside this module.
type ConnectParams struct {
	Address   string
	SessionID [16]byte
	ClientID  uint32
	Width     uint32
	Height    uint32
	Quality   uint32
}

// InstructionHeader is the envelope every outgoing instruction carries.
func (p ConnectParams) InstructionHeader() instruction.Header {
	return instruction.Header{SessionID: p.SessionID, ClientID: p.ClientID}
}

func (p ConnectParams) SessionHex() string {
	return hex.EncodeToString(p.SessionID[:])
}

// ParseSessionID decodes a 32-character hex session id. Empty input yields
// the zero id.
func ParseSessionID(raw string) ([16]byte, error) {
	var id [16]byte
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return id, nil
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("%w: want 16 bytes, got %d", ErrInvalidSession, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// handshake is what stream transports send right after dialing.
func handshake(p ConnectParams) ([][]byte, error) {
	h := p.InstructionHeader()
	out := make([][]byte, 0, 3)
	connect, err := instruction.Encode(h, instruction.Connect{})
	if err != nil {
		return nil, err
	}
	out = append(out, connect)
	if p.Width > 0 && p.Height > 0 {
		resize, err := instruction.Encode(h, instruction.ScreenResize{Width: p.Width, Height: p.Height})
		if err != nil {
			return nil, err
		}
		out = append(out, resize)
	}
	if p.Quality > 0 {
		quality, err := instruction.Encode(h, instruction.Quality{Index: p.Quality})
		if err != nil {
			return nil, err
		}
		out = append(out, quality)
	}
	return out, nil
}
