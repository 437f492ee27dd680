package tunnel

import (
	"sync"

	"github.com/danmuck/deskwire/internal/observability"
)

// pendingTable tracks calls awaiting a reply by instruction id. Once drained
// it refuses new entries. Each table moves the shared pending gauge by its
// own deltas so several tunnels in one process add up.
type pendingTable struct {
	mu     sync.Mutex
	calls  map[uint32]*Call
	closed bool
}

func newPendingTable() *pendingTable {
	return &pendingTable{calls: make(map[uint32]*Call)}
}

func (p *pendingTable) add(c *Call) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrTunnelClosed
	}
	if _, dup := p.calls[c.ID]; !dup {
		observability.AddPendingRequests(1)
	}
	p.calls[c.ID] = c
	return nil
}

// take removes and returns the call for id, or nil.
func (p *pendingTable) take(id uint32) *Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.calls[id]
	if !ok {
		return nil
	}
	delete(p.calls, id)
	observability.AddPendingRequests(-1)
	return c
}

func (p *pendingTable) drain() []*Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	out := make([]*Call, 0, len(p.calls))
	for id, c := range p.calls {
		out = append(out, c)
		delete(p.calls, id)
	}
	observability.AddPendingRequests(-len(out))
	return out
}

func (p *pendingTable) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
