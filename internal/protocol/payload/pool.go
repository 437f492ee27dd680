package payload

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool runs conversions of an inner Factory on worker goroutines, at most
// size at a time. Callers block until their own conversion finishes or ctx
// is done.
type Pool struct {
	inner Factory
	sem   *semaphore.Weighted
}

func NewPool(inner Factory, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{inner: inner, sem: semaphore.NewWeighted(int64(size))}
}

type conversion struct {
	tex Texture
	err error
}

func (p *Pool) CreateFromBytes(ctx context.Context, data []byte, codec CodecTag) (Texture, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	done := make(chan conversion, 1)
	go func() {
		defer p.sem.Release(1)
		tex, err := p.inner.CreateFromBytes(ctx, data, codec)
		done <- conversion{tex: tex, err: err}
	}()
	select {
	case out := <-done:
		return out.tex, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
