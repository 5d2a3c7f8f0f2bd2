package batch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectingSink records every flushed batch, safe for concurrent calls.
type collectingSink struct {
	mu      sync.Mutex
	batches [][]string
}

func (s *collectingSink) flush(_ context.Context, items []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, items)
	return nil
}

func (s *collectingSink) all() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}

func TestAccumulator_FlushesExactlyAtCapacity(t *testing.T) {
	sink := &collectingSink{}
	acc, err := NewAccumulator(context.Background(), 3, 0, sink.flush)
	require.NoError(t, err)

	acc.Add("a")
	acc.Add("b")
	require.NoError(t, acc.Wait())
	assert.Empty(t, sink.all(), "no flush below capacity")
	assert.Equal(t, 2, acc.Len())

	acc.Add("c")
	require.NoError(t, acc.Wait())
	require.Len(t, sink.all(), 1)
	assert.Equal(t, []string{"a", "b", "c"}, sink.all()[0])
	assert.Equal(t, 0, acc.Len(), "buffer empty immediately after capacity flush")
}

func TestAccumulator_FlushDrainsTail(t *testing.T) {
	sink := &collectingSink{}
	acc, err := NewAccumulator(context.Background(), 5, 0, sink.flush)
	require.NoError(t, err)

	acc.Add("a")
	acc.Add("b")
	acc.Flush()
	require.NoError(t, acc.Wait())

	require.Len(t, sink.all(), 1)
	assert.Equal(t, []string{"a", "b"}, sink.all()[0])
}

func TestAccumulator_FlushOnEmptyIsNoop(t *testing.T) {
	sink := &collectingSink{}
	acc, err := NewAccumulator(context.Background(), 2, 0, sink.flush)
	require.NoError(t, err)

	acc.Flush()
	require.NoError(t, acc.Wait())
	assert.Empty(t, sink.all())
}

func TestAccumulator_CapacityOneFlushesEveryAdd(t *testing.T) {
	sink := &collectingSink{}
	acc, err := NewAccumulator(context.Background(), 1, 1, sink.flush)
	require.NoError(t, err)

	acc.Add("a")
	acc.Add("b")
	acc.Add("c")
	require.NoError(t, acc.Wait())
	assert.Len(t, sink.all(), 3)
}

func TestAccumulator_ManyItemsAllDelivered(t *testing.T) {
	sink := &collectingSink{}
	acc, err := NewAccumulator(context.Background(), 7, 2, sink.flush)
	require.NoError(t, err)

	want := 0
	for i := 0; i < 100; i++ {
		acc.Add("item")
		want++
	}
	acc.Flush()
	require.NoError(t, acc.Wait())

	got := 0
	for _, b := range sink.all() {
		assert.LessOrEqual(t, len(b), 7)
		got += len(b)
	}
	assert.Equal(t, want, got)
}

func TestAccumulator_WaitSurfacesSinkError(t *testing.T) {
	sinkErr := errors.New("index unavailable")
	acc, err := NewAccumulator(context.Background(), 2, 0, func(context.Context, []string) error {
		return sinkErr
	})
	require.NoError(t, err)

	acc.Add("a")
	acc.Add("b")
	assert.ErrorIs(t, acc.Wait(), sinkErr)
}

func TestAccumulator_RejectsZeroCapacity(t *testing.T) {
	_, err := NewAccumulator[string](context.Background(), 0, 0, nil)
	assert.Error(t, err)
}

func TestApply_SplitsIntoSubBatches(t *testing.T) {
	var batches [][]string
	ids := []string{"1", "2", "3", "4", "5", "6", "7"}

	err := Apply(context.Background(), ids, 3, func(_ context.Context, b []string) error {
		batches = append(batches, b)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, batches, 3)
	assert.Equal(t, []string{"1", "2", "3"}, batches[0])
	assert.Equal(t, []string{"4", "5", "6"}, batches[1])
	assert.Equal(t, []string{"7"}, batches[2])
}

func TestApply_StopsOnError(t *testing.T) {
	removeErr := errors.New("remove failed")
	calls := 0

	err := Apply(context.Background(), []string{"1", "2", "3", "4"}, 2, func(context.Context, []string) error {
		calls++
		return removeErr
	})
	assert.ErrorIs(t, err, removeErr)
	assert.Equal(t, 1, calls)
}

func TestApply_EmptyInput(t *testing.T) {
	err := Apply(context.Background(), nil, 10, func(context.Context, []string) error {
		t.Fatal("must not be called")
		return nil
	})
	assert.NoError(t, err)
}

func TestApply_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Apply(ctx, []string{"1", "2", "3", "4"}, 1, func(context.Context, []string) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
