package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/indexmirror/internal/provider"
)

// fakeSource serves canned change lists filtered by the since argument,
// mimicking a provider's strict > comparison.
type fakeSource struct {
	changed []provider.Change
	deleted []provider.Change
	err     error
}

func filterAfter(changes []provider.Change, since time.Time) []provider.Change {
	var out []provider.Change
	for _, c := range changes {
		if c.At.After(since) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeSource) ChangedSince(_ context.Context, since time.Time) ([]provider.Change, error) {
	if f.err != nil {
		return nil, f.err
	}
	return filterAfter(f.changed, since), nil
}

func (f *fakeSource) DeletedSince(_ context.Context, since time.Time) ([]provider.Change, error) {
	if f.err != nil {
		return nil, f.err
	}
	return filterAfter(f.deleted, since), nil
}

func (f *fakeSource) Fetch(context.Context, string) (*provider.Record, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSource) AllLive(context.Context) ([]provider.Change, error) {
	return f.changed, nil
}

func TestScanUpdated_HighWaterIsMaxObserved(t *testing.T) {
	src := &fakeSource{changed: []provider.Change{
		{ID: "a", At: time.UnixMilli(300)},
		{ID: "b", At: time.UnixMilli(100)},
		{ID: "c", At: time.UnixMilli(200)},
	}}
	s := New(src)

	cs, err := s.ScanUpdated(context.Background(), time.UnixMilli(50))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a", "b", "c"}, cs.IDs())
	assert.Equal(t, time.UnixMilli(300), cs.HighWater)
}

func TestScanUpdated_EmptySetKeepsSince(t *testing.T) {
	s := New(&fakeSource{})
	since := time.UnixMilli(1234)

	cs, err := s.ScanUpdated(context.Background(), since)
	require.NoError(t, err)

	assert.Empty(t, cs.Changes)
	assert.Equal(t, since, cs.HighWater, "empty scan must not move the watermark")
}

func TestScanUpdated_StrictBoundary(t *testing.T) {
	src := &fakeSource{changed: []provider.Change{
		{ID: "at-boundary", At: time.UnixMilli(100)},
		{ID: "after", At: time.UnixMilli(101)},
	}}
	s := New(src)

	cs, err := s.ScanUpdated(context.Background(), time.UnixMilli(100))
	require.NoError(t, err)

	assert.Equal(t, []string{"after"}, cs.IDs())
	assert.Equal(t, time.UnixMilli(101), cs.HighWater)
}

func TestScanDeleted_IndependentAxis(t *testing.T) {
	src := &fakeSource{
		changed: []provider.Change{{ID: "live", At: time.UnixMilli(500)}},
		deleted: []provider.Change{{ID: "gone", At: time.UnixMilli(200)}},
	}
	s := New(src)

	cs, err := s.ScanDeleted(context.Background(), time.UnixMilli(100))
	require.NoError(t, err)

	assert.Equal(t, []string{"gone"}, cs.IDs())
	assert.Equal(t, time.UnixMilli(200), cs.HighWater)
}

func TestScan_PropagatesError(t *testing.T) {
	srcErr := errors.New("source unreachable")
	s := New(&fakeSource{err: srcErr})

	_, err := s.ScanUpdated(context.Background(), time.Time{})
	assert.ErrorIs(t, err, srcErr)

	_, err = s.ScanDeleted(context.Background(), time.Time{})
	assert.ErrorIs(t, err, srcErr)
}
