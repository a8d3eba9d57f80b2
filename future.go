package federation

import (
	"context"
	"sync"
)

// future is the runtime's rendering of an in-flight asynchronous result.
// Coalescing maps store one future per key so concurrent callers converge
// on a single execution: the first caller installs and completes the
// future, later callers only wait on it.
type future[T any] struct {
	done chan struct{}
	once sync.Once

	value T
	err   error
}

func newFuture[T any]() *future[T] {
	return &future[T]{done: make(chan struct{})}
}

// complete resolves the future exactly once. Later calls are ignored.
func (f *future[T]) complete(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// wait blocks until the future resolves or the context is done. An
// abandoned context stops the caller from waiting; the underlying work
// still completes for future callers.
func (f *future[T]) wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// resolved reports whether the future has completed, without blocking.
func (f *future[T]) resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// resolvedOK reports whether the future completed without error.
func (f *future[T]) resolvedOK() bool {
	return f.resolved() && f.err == nil
}
