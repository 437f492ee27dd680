package transport

import (
	"context"
	"sync"
)

// Pipe is one end of an in-memory transport pair. Buffers sent on one end are
// received on the other in order. Closing either end closes both.
type Pipe struct {
	// OpenErr, when set, is returned by Open.
	OpenErr error

	inbox  chan []byte
	peer   *Pipe
	shared *pipeState

	mu     sync.Mutex
	params ConnectParams
	opened bool
}

type pipeState struct {
	done chan struct{}
	once sync.Once
}

func NewPipe() (*Pipe, *Pipe) {
	shared := &pipeState{done: make(chan struct{})}
	a := &Pipe{inbox: make(chan []byte, 256), shared: shared}
	b := &Pipe{inbox: make(chan []byte, 256), shared: shared}
	a.peer = b
	b.peer = a
	return a, b
}

func (p *Pipe) Open(ctx context.Context, params ConnectParams) error {
	if p.OpenErr != nil {
		return p.OpenErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-p.shared.done:
		return ErrClosed
	default:
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.params = params
	p.opened = true
	return nil
}

// Params returns what Open was called with.
func (p *Pipe) Params() (ConnectParams, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params, p.opened
}

func (p *Pipe) Send(buf []byte) error {
	out := make([]byte, len(buf))
	copy(out, buf)
	select {
	case <-p.shared.done:
		return ErrClosed
	default:
	}
	select {
	case p.peer.inbox <- out:
		return nil
	case <-p.shared.done:
		return ErrClosed
	}
}

func (p *Pipe) Receive() ([]byte, error) {
	select {
	case buf := <-p.inbox:
		return buf, nil
	case <-p.shared.done:
		return nil, ErrClosed
	}
}

func (p *Pipe) Close() error {
	p.shared.once.Do(func() { close(p.shared.done) })
	return nil
}

// Done is closed once either end has been closed.
func (p *Pipe) Done() <-chan struct{} { return p.shared.done }
