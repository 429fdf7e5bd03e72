/*
Package lazy holds a client that is dialed on first use and then reused.
*/
package lazy

import (
	"context"
	"sync"
)

// Handle dials a client on first Get and caches it. A failed dial is not
// cached, so the next Get tries again. Safe for concurrent use.
type Handle[T any] struct {
	mu     sync.Mutex
	dial   func(ctx context.Context) (T, error)
	close  func(T) error
	client T
	ready  bool
}

// New returns a handle that uses dial to connect and closeFn to release the client.
// closeFn may be nil.
func New[T any](dial func(ctx context.Context) (T, error), closeFn func(T) error) *Handle[T] {
	return &Handle[T]{dial: dial, close: closeFn}
}

// Get returns the cached client or dials one. Concurrent callers wait for a single dial.
func (h *Handle[T]) Get(ctx context.Context) (T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ready {
		return h.client, nil
	}

	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	c, err := h.dial(ctx)
	if err != nil {
		return zero, err
	}

	h.client = c
	h.ready = true

	return c, nil
}

// Connected reports whether a client has been dialed.
func (h *Handle[T]) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.ready
}

// Reset drops the cached client so the next Get redials. Used when a
// transport reports its connection as dead.
func (h *Handle[T]) Reset() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.release()
}

// Close releases the client if one was dialed.
func (h *Handle[T]) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.release()
}

func (h *Handle[T]) release() error {
	if !h.ready {
		return nil
	}

	c := h.client

	var zero T
	h.client = zero
	h.ready = false

	if h.close == nil {
		return nil
	}

	return h.close(c)
}
