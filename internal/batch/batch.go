// Package batch provides the bounded write primitives of the sync engine.
// An Accumulator decouples "how many records changed" from "how large one
// committed unit of work is": it buffers items up to a fixed capacity and
// hands full buffers to an asynchronous sink.
package batch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// FlushFunc commits one bounded batch of items to a sink.
type FlushFunc[T any] func(ctx context.Context, items []T) error

// Accumulator buffers items and auto-flushes through its sink whenever
// the buffer reaches capacity. Sink calls run on an errgroup so the pass
// can keep scanning while earlier batches commit; the buffer is empty and
// reusable the moment Add returns, regardless of sink completion.
//
// An Accumulator is owned by a single synchronization pass and is not
// safe for concurrent use.
type Accumulator[T any] struct {
	capacity int
	flush    FlushFunc[T]

	grp *errgroup.Group
	ctx context.Context

	buf []T
}

// NewAccumulator creates an accumulator with the given capacity.
// Capacity must be >= 1. The maximum number of in-flight sink calls is
// bounded by inflight; values < 1 allow unlimited concurrency.
func NewAccumulator[T any](ctx context.Context, capacity, inflight int, flush FlushFunc[T]) (*Accumulator[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("batch capacity must be >= 1, got %d", capacity)
	}
	grp, gctx := errgroup.WithContext(ctx)
	if inflight >= 1 {
		grp.SetLimit(inflight)
	}
	return &Accumulator[T]{
		capacity: capacity,
		flush:    flush,
		grp:      grp,
		ctx:      gctx,
		buf:      make([]T, 0, capacity),
	}, nil
}

// Add appends an item to the buffer. Reaching capacity triggers a flush
// before Add returns: the full buffer is submitted to the sink and a
// fresh buffer is ready for the next item.
func (a *Accumulator[T]) Add(item T) {
	a.buf = append(a.buf, item)
	if len(a.buf) >= a.capacity {
		a.submit()
	}
}

// Len returns the number of buffered, not yet submitted items.
func (a *Accumulator[T]) Len() int {
	return len(a.buf)
}

// Flush submits any buffered tail below capacity. A no-op on an empty
// buffer.
func (a *Accumulator[T]) Flush() {
	if len(a.buf) > 0 {
		a.submit()
	}
}

// Wait blocks until every submitted batch has been committed and returns
// the first sink error, if any. A pass must not advance watermarks past
// work whose Wait has not returned nil.
func (a *Accumulator[T]) Wait() error {
	return a.grp.Wait()
}

func (a *Accumulator[T]) submit() {
	items := a.buf
	a.buf = make([]T, 0, a.capacity)
	a.grp.Go(func() error {
		return a.flush(a.ctx, items)
	})
}

// Apply runs fn over ids in sub-batches of at most size elements,
// synchronously and in order. It is the bulk-remove counterpart of the
// Accumulator: deletions are cheap enough to commit inline but still
// need bounded units of work.
func Apply(ctx context.Context, ids []string, size int, fn func(context.Context, []string) error) error {
	if size < 1 {
		return fmt.Errorf("batch size must be >= 1, got %d", size)
	}
	for start := 0; start < len(ids); start += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+size, len(ids))
		if err := fn(ctx, ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}
