package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/danmuck/deskwire/internal/protocol/message"
)

// Dialer yields a connected byte stream.
type Dialer interface {
	Dial(ctx context.Context, address string) (net.Conn, error)
}

// Stream runs the protocol over a raw byte stream. Instructions go out
// verbatim; inbound messages are framed by the length in their header.
type Stream struct {
	dialer     Dialer
	maxMessage int

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	closed bool

	writeMu sync.Mutex
}

func NewStream(dialer Dialer, maxMessage int) *Stream {
	if maxMessage <= 0 {
		maxMessage = DefaultMaxMessageBytes
	}
	return &Stream{dialer: dialer, maxMessage: maxMessage}
}

// NewStreamConn wraps an already connected conn; Open only runs the handshake.
func NewStreamConn(conn net.Conn, maxMessage int) *Stream {
	s := NewStream(nil, maxMessage)
	s.conn = conn
	s.reader = bufio.NewReaderSize(conn, 64*1024)
	return s
}

func (s *Stream) Open(ctx context.Context, params ConnectParams) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		if s.dialer == nil {
			return ErrNotOpen
		}
		dialed, err := s.dialer.Dial(ctx, params.Address)
		if err != nil {
			return err
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = dialed.Close()
			return ErrClosed
		}
		s.conn = dialed
		s.reader = bufio.NewReaderSize(dialed, 64*1024)
		s.mu.Unlock()
	}

	frames, err := handshake(params)
	if err != nil {
		return err
	}
	for _, buf := range frames {
		if err := s.Send(buf); err != nil {
			return fmt.Errorf("transport: handshake: %w", err)
		}
	}
	return nil
}

func (s *Stream) current() (net.Conn, *bufio.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrClosed
	}
	if s.conn == nil {
		return nil, nil, ErrNotOpen
	}
	return s.conn, s.reader, nil
}

func (s *Stream) Send(buf []byte) error {
	conn, _, err := s.current()
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = conn.Write(buf)
	return err
}

func (s *Stream) Receive() ([]byte, error) {
	_, reader, err := s.current()
	if err != nil {
		return nil, err
	}
	return ReadMessage(reader, s.maxMessage)
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// ReadMessage reads one length-framed message from r.
func ReadMessage(r io.Reader, maxMessage int) ([]byte, error) {
	var head [message.HeaderSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: partial header", io.ErrUnexpectedEOF)
		}
		return nil, err
	}
	h, err := message.ParseHeader(head[:])
	if err != nil {
		return nil, err
	}
	if h.Length < message.HeaderSize {
		return nil, fmt.Errorf("%w: %d", ErrBadLength, h.Length)
	}
	if maxMessage > 0 && int64(h.Length) > int64(maxMessage) {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, h.Length, maxMessage)
	}
	buf := make([]byte, h.Length)
	copy(buf, head[:])
	if _, err := io.ReadFull(r, buf[message.HeaderSize:]); err != nil {
		return nil, err
	}
	return buf, nil
}
