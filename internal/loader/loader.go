// Package loader collapses many single-key lookups made while serving one
// request into batched fetches.
//
// Keys requested within Wait of each other (or until MaxBatch keys are
// queued) are handed to one BatchFunc call. Every result, including errors, is
// cached for the lifetime of the Loader, so a Loader should be created per
// request.
package loader

import (
	"context"
	"sync"
	"time"
)

// BatchFunc fetches values for keys. Keys missing from the returned map
// resolve to the zero value.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

const (
	DefaultWait     = 2 * time.Millisecond
	DefaultMaxBatch = 100
)

type Loader[K comparable, V any] struct {
	ctx      context.Context
	fetch    BatchFunc[K, V]
	wait     time.Duration
	maxBatch int

	mu    sync.Mutex
	cache map[K]*result[V]
	batch *batch[K, V]
}

type result[V any] struct {
	done chan struct{}
	val  V
	err  error
}

type batch[K comparable, V any] struct {
	keys    []K
	results []*result[V]
	once    sync.Once
}

type Option func(*options)

type options struct {
	wait     time.Duration
	maxBatch int
}

func WithWait(d time.Duration) Option {
	return func(o *options) { o.wait = d }
}

func WithMaxBatch(n int) Option {
	return func(o *options) { o.maxBatch = n }
}

// New returns a Loader whose batches run with ctx.
func New[K comparable, V any](ctx context.Context, fetch BatchFunc[K, V], opts ...Option) *Loader[K, V] {
	o := options{wait: DefaultWait, maxBatch: DefaultMaxBatch}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxBatch < 1 {
		o.maxBatch = 1
	}
	return &Loader[K, V]{
		ctx:      ctx,
		fetch:    fetch,
		wait:     o.wait,
		maxBatch: o.maxBatch,
		cache:    make(map[K]*result[V]),
	}
}

// Load returns the value for key, joining the pending batch.
func (l *Loader[K, V]) Load(ctx context.Context, key K) (V, error) {
	l.mu.Lock()
	r, ok := l.cache[key]
	if !ok {
		r = &result[V]{done: make(chan struct{})}
		l.cache[key] = r
		l.enqueue(key, r)
	}
	l.mu.Unlock()

	select {
	case <-r.done:
		return r.val, r.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Prime stores val for key unless key is already cached.
func (l *Loader[K, V]) Prime(key K, val V) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.cache[key]; ok {
		return
	}
	r := &result[V]{done: make(chan struct{}), val: val}
	close(r.done)
	l.cache[key] = r
}

// enqueue must be called with l.mu held.
func (l *Loader[K, V]) enqueue(key K, r *result[V]) {
	b := l.batch
	if b == nil {
		b = &batch[K, V]{}
		l.batch = b
		time.AfterFunc(l.wait, func() { l.dispatch(b) })
	}
	b.keys = append(b.keys, key)
	b.results = append(b.results, r)
	if len(b.keys) >= l.maxBatch {
		l.batch = nil
		go l.dispatch(b)
	}
}

func (l *Loader[K, V]) dispatch(b *batch[K, V]) {
	b.once.Do(func() {
		l.mu.Lock()
		if l.batch == b {
			l.batch = nil
		}
		l.mu.Unlock()

		vals, err := l.fetch(l.ctx, b.keys)
		for i, key := range b.keys {
			r := b.results[i]
			if err != nil {
				r.err = err
			} else {
				r.val = vals[key]
			}
			close(r.done)
		}
	})
}
