package generic

import "sync"

// Pool is a typed sync.Pool. Values may be dropped by the runtime at any GC,
// so Pool only suits caches that are cheap to rebuild.
type Pool[T any] struct {
	pool sync.Pool
}

func NewPool[T any](generate func() T) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				return generate()
			},
		},
	}
}

// Get returns a pooled value, or a fresh one from the generator.
func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(value T) {
	p.pool.Put(value)
}

// With runs fn with a pooled value and returns the value to the pool afterwards.
func With[T, R any](p *Pool[T], fn func(T) R) R {
	v := p.Get()
	defer p.Put(v)
	return fn(v)
}
