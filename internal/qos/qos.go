// Package qos holds the quality-of-service hook the tunnel calls once per
// inbound message with the peer's backlog length.
//
// The tunnel calls Handle synchronously on its receive path, after the header
// is parsed and before the payload is decoded. Implementations must return
// quickly and never block on the network.
package qos

import (
	"sync"

	"github.com/danmuck/deskwire/internal/protocol/instruction"
)

type Strategy interface {
	Handle(backlog int)
}

// Sender is the outbound side a strategy may use to emit instructions.
type Sender interface {
	SendInstruction(in instruction.Instruction) error
}

// Nop ignores every signal.
type Nop struct{}

func (Nop) Handle(int) {}

// Func adapts a function to Strategy.
type Func func(backlog int)

func (f Func) Handle(backlog int) { f(backlog) }

// Recorder keeps every backlog value it sees.
type Recorder struct {
	mu    sync.Mutex
	calls []int
}

func (r *Recorder) Handle(backlog int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, backlog)
}

func (r *Recorder) Calls() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.calls))
	copy(out, r.calls)
	return out
}
