package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSink(t *testing.T) *Bleve {
	t.Helper()
	sink, err := OpenBleve("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	return sink
}

func doc(id, title string) Document {
	return Document{ID: id, Fields: map[string]any{"title": title}}
}

func TestBleve_AddAndCount(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	err := sink.AddDocuments(ctx, []Document{doc("1", "first"), doc("2", "second")})
	require.NoError(t, err)

	count, err := sink.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestBleve_AddIsUpsert(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	require.NoError(t, sink.AddDocuments(ctx, []Document{doc("1", "first")}))
	require.NoError(t, sink.AddDocuments(ctx, []Document{doc("1", "first revised")}))

	count, err := sink.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestBleve_RemoveByIDs(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	require.NoError(t, sink.AddDocuments(ctx, []Document{doc("1", "a"), doc("2", "b"), doc("3", "c")}))
	require.NoError(t, sink.RemoveByIDs(ctx, []string{"1", "3"}))

	count, err := sink.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestBleve_RemoveUnknownIDIsNotAnError(t *testing.T) {
	sink := newTestSink(t)

	err := sink.RemoveByIDs(context.Background(), []string{"never-indexed"})
	assert.NoError(t, err)
}

func TestBleve_EmptyBatchesAreNoops(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	assert.NoError(t, sink.AddDocuments(ctx, nil))
	assert.NoError(t, sink.RemoveByIDs(ctx, nil))
}

func TestBleve_OnDiskReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.bleve")
	ctx := context.Background()

	sink, err := OpenBleve(path)
	require.NoError(t, err)
	require.NoError(t, sink.AddDocuments(ctx, []Document{doc("1", "persisted")}))
	require.NoError(t, sink.Close())

	reopened, err := OpenBleve(path)
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestBleve_ClosedSinkRejectsWrites(t *testing.T) {
	sink, err := OpenBleve("")
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	assert.Error(t, sink.AddDocuments(context.Background(), []Document{doc("1", "x")}))
	assert.Error(t, sink.RemoveByIDs(context.Background(), []string{"1"}))
}
