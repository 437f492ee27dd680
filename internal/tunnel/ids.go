package tunnel

import "sync/atomic"

// IDGenerator hands out instruction ids. Ids increase monotonically and are
// never reused within a generator's lifetime; 0 is reserved for unsolicited
// messages and is skipped.
type IDGenerator struct {
	last atomic.Uint32
}

// NewIDGenerator returns a generator whose first id is after+1.
func NewIDGenerator(after uint32) *IDGenerator {
	g := &IDGenerator{}
	g.last.Store(after)
	return g
}

func (g *IDGenerator) Next() uint32 {
	for {
		if id := g.last.Add(1); id != 0 {
			return id
		}
	}
}
