package tunnel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/deskwire/internal/protocol/instruction"
	"github.com/danmuck/deskwire/internal/protocol/message"
)

type CallState int32

const (
	CallPending CallState = iota
	CallResolved
	CallRejected
)

func (s CallState) String() string {
	switch s {
	case CallPending:
		return "pending"
	case CallResolved:
		return "resolved"
	case CallRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Call is an in-flight request. It leaves CallPending exactly once, either
// with the reply message or with an error.
type Call struct {
	ID          uint32
	Instruction instruction.Instruction
	Started     time.Time

	state atomic.Int32
	done  chan struct{}
	reply message.Message
	err   error

	mu    sync.Mutex
	timer *time.Timer
}

func newCall(id uint32, in instruction.Instruction) *Call {
	return &Call{
		ID:          id,
		Instruction: in,
		Started:     time.Now(),
		done:        make(chan struct{}),
	}
}

// Done is closed once the call has settled.
func (c *Call) Done() <-chan struct{} { return c.done }

func (c *Call) State() CallState { return CallState(c.state.Load()) }

// Wait blocks until the call settles or ctx ends. A ctx ending does not
// cancel the call; it still settles by reply, timeout, or close.
func (c *Call) Wait(ctx context.Context) (message.Message, error) {
	select {
	case <-c.done:
		return c.reply, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result reports the outcome without blocking. ok is false while pending.
func (c *Call) Result() (reply message.Message, err error, ok bool) {
	select {
	case <-c.done:
		return c.reply, c.err, true
	default:
		return nil, nil, false
	}
}

func (c *Call) setTimer(timer *time.Timer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() != CallPending {
		timer.Stop()
		return
	}
	c.timer = timer
}

// settle performs the single terminal transition. Later attempts are no-ops.
func (c *Call) settle(reply message.Message, err error) bool {
	target := CallResolved
	if err != nil {
		target = CallRejected
	}
	if !c.state.CompareAndSwap(int32(CallPending), int32(target)) {
		return false
	}
	c.reply = reply
	c.err = err
	close(c.done)

	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
	return true
}
