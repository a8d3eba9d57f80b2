// Package federation provides a dynamic module-federation runtime for Go.
// It lets a host application load independently built and deployed code
// units (remotes) at execution time, negotiate shared dependencies between
// them, and pre-fetch remote data before the consuming layer renders.
//
// Everything the runtime does is wrapped by ordered, typed hook pipelines
// so plugins can observe or rewrite behavior at every step.
package federation

import (
	"context"
	"sort"
	"sync"
)

// hookEntry pairs a handler with its ordering information. Handlers with
// equal order values run in registration sequence.
type hookEntry[H any] struct {
	handler H
	order   int
	seq     int
}

// hookList is the shared storage behind every hook kind. Registration is
// monotonic; there is no removal API.
type hookList[H any] struct {
	mu      sync.RWMutex
	entries []hookEntry[H]
	nextSeq int
}

func (l *hookList[H]) add(handler H, order int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, hookEntry[H]{handler: handler, order: order, seq: l.nextSeq})
	l.nextSeq++
	sort.SliceStable(l.entries, func(i, j int) bool {
		if l.entries[i].order != l.entries[j].order {
			return l.entries[i].order < l.entries[j].order
		}
		return l.entries[i].seq < l.entries[j].seq
	})
}

// snapshot returns the handlers in execution order. Pipelines iterate over
// the snapshot so a handler registering further handlers cannot perturb an
// in-flight invocation.
func (l *hookList[H]) snapshot() []H {
	l.mu.RLock()
	defer l.mu.RUnlock()

	handlers := make([]H, len(l.entries))
	for i, e := range l.entries {
		handlers[i] = e.handler
	}
	return handlers
}

func (l *hookList[H]) len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// SyncHook invokes every handler in registration order and discards their
// results. It is used for pure observation points.
type SyncHook[T any] struct {
	list hookList[func(T)]
}

// Register appends a handler at the default order.
func (h *SyncHook[T]) Register(handler func(T)) {
	h.list.add(handler, 0)
}

// RegisterOrdered appends a handler with an explicit order value.
// Lower orders run first.
func (h *SyncHook[T]) RegisterOrdered(handler func(T), order int) {
	h.list.add(handler, order)
}

// Emit invokes every registered handler with the payload.
func (h *SyncHook[T]) Emit(payload T) {
	for _, handler := range h.list.snapshot() {
		handler(payload)
	}
}

// WaterfallHook threads a payload through every handler in order; each
// handler receives the previous handler's return value. A handler that
// wants to leave the payload untouched returns its input unchanged.
type WaterfallHook[T any] struct {
	list hookList[func(T) T]
}

// Register appends a handler at the default order.
func (h *WaterfallHook[T]) Register(handler func(T) T) {
	h.list.add(handler, 0)
}

// RegisterOrdered appends a handler with an explicit order value.
func (h *WaterfallHook[T]) RegisterOrdered(handler func(T) T, order int) {
	h.list.add(handler, order)
}

// Run threads the payload through the chain and returns the final value.
func (h *WaterfallHook[T]) Run(payload T) T {
	for _, handler := range h.list.snapshot() {
		payload = handler(payload)
	}
	return payload
}

// AsyncHook invokes handlers sequentially, each one awaited, for
// observation points that may perform I/O. A handler error aborts the
// remaining chain and propagates to the caller untouched.
type AsyncHook[T any] struct {
	list hookList[func(context.Context, T) error]
}

// Register appends a handler at the default order.
func (h *AsyncHook[T]) Register(handler func(context.Context, T) error) {
	h.list.add(handler, 0)
}

// RegisterOrdered appends a handler with an explicit order value.
func (h *AsyncHook[T]) RegisterOrdered(handler func(context.Context, T) error, order int) {
	h.list.add(handler, order)
}

// Run invokes every handler in order, stopping at the first error.
func (h *AsyncHook[T]) Run(ctx context.Context, payload T) error {
	for _, handler := range h.list.snapshot() {
		if err := handler(ctx, payload); err != nil {
			return err
		}
	}
	return nil
}

// AsyncWaterfallHook is the awaited form of WaterfallHook: handlers run
// sequentially and may perform I/O, each receiving the previous handler's
// result. A handler error aborts the chain.
type AsyncWaterfallHook[T any] struct {
	list hookList[func(context.Context, T) (T, error)]
}

// Register appends a handler at the default order.
func (h *AsyncWaterfallHook[T]) Register(handler func(context.Context, T) (T, error)) {
	h.list.add(handler, 0)
}

// RegisterOrdered appends a handler with an explicit order value.
func (h *AsyncWaterfallHook[T]) RegisterOrdered(handler func(context.Context, T) (T, error), order int) {
	h.list.add(handler, order)
}

// Run threads the payload through the chain, awaiting each step.
func (h *AsyncWaterfallHook[T]) Run(ctx context.Context, payload T) (T, error) {
	var err error
	for _, handler := range h.list.snapshot() {
		payload, err = handler(ctx, payload)
		if err != nil {
			return payload, err
		}
	}
	return payload, nil
}

// AsyncBailHook invokes handlers sequentially until one reports that it
// handled the payload; that handler's result short-circuits the remaining
// chain. Handlers signal handling through the second return value so a
// legitimately zero result still bails.
type AsyncBailHook[T any, R any] struct {
	list hookList[func(context.Context, T) (R, bool, error)]
}

// Register appends a handler at the default order.
func (h *AsyncBailHook[T, R]) Register(handler func(context.Context, T) (R, bool, error)) {
	h.list.add(handler, 0)
}

// RegisterOrdered appends a handler with an explicit order value.
func (h *AsyncBailHook[T, R]) RegisterOrdered(handler func(context.Context, T) (R, bool, error), order int) {
	h.list.add(handler, order)
}

// Run invokes handlers in order. The first handler returning handled=true
// wins; its result and a true flag are returned. If no handler bails, the
// zero result and false are returned. A handler error aborts the chain.
func (h *AsyncBailHook[T, R]) Run(ctx context.Context, payload T) (R, bool, error) {
	var zero R
	for _, handler := range h.list.snapshot() {
		result, handled, err := handler(ctx, payload)
		if err != nil {
			return zero, false, err
		}
		if handled {
			return result, true, nil
		}
	}
	return zero, false, nil
}
