package transport

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket carries one protocol buffer per binary frame. Connect parameters
// travel as query fields on the upgrade request.
type WebSocket struct {
	Dialer     *websocket.Dialer
	Header     http.Header
	MaxMessage int

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	writeMu sync.Mutex
}

func NewWebSocket(dialer *websocket.Dialer, maxMessage int) *WebSocket {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if maxMessage <= 0 {
		maxMessage = DefaultMaxMessageBytes
	}
	return &WebSocket{Dialer: dialer, MaxMessage: maxMessage}
}

// ConnectURL appends the connect parameters to address.
func ConnectURL(address string, p ConnectParams) (string, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("session", p.SessionHex())
	q.Set("client", strconv.FormatUint(uint64(p.ClientID), 10))
	if p.Width > 0 && p.Height > 0 {
		q.Set("width", strconv.FormatUint(uint64(p.Width), 10))
		q.Set("height", strconv.FormatUint(uint64(p.Height), 10))
	}
	q.Set("quality", strconv.FormatUint(uint64(p.Quality), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (w *WebSocket) Open(ctx context.Context, params ConnectParams) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.mu.Unlock()

	target, err := ConnectURL(params.Address, params)
	if err != nil {
		return err
	}
	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, target, w.Header)
	if err != nil {
		return err
	}
	if w.MaxMessage > 0 {
		conn.SetReadLimit(int64(w.MaxMessage))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		_ = conn.Close()
		return ErrClosed
	}
	w.conn = conn
	return nil
}

func (w *WebSocket) current() (*websocket.Conn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	if w.conn == nil {
		return nil, ErrNotOpen
	}
	return w.conn, nil
}

func (w *WebSocket) Send(buf []byte) error {
	conn, err := w.current()
	if err != nil {
		return err
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return conn.WriteMessage(websocket.BinaryMessage, buf)
}

func (w *WebSocket) Receive() ([]byte, error) {
	conn, err := w.current()
	if err != nil {
		return nil, err
	}
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrClosed
			}
			return nil, err
		}
		if kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return nil
	}

	w.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	w.writeMu.Unlock()
	return conn.Close()
}
