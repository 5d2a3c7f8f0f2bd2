package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// Bleve is a Sink over a Bleve full-text index. Each AddDocuments and
// RemoveByIDs call commits as a single bleve batch, so the unit of work
// written to disk is exactly the bounded batch handed in by the engine.
type Bleve struct {
	mu     sync.Mutex
	index  bleve.Index
	path   string
	closed bool
}

// OpenBleve opens the index at path, creating it with a default mapping
// if it does not exist. An empty path opens an in-memory index, used by
// tests.
func OpenBleve(path string) (*Bleve, error) {
	var idx bleve.Index
	var err error

	if path == "" {
		idx, err = bleve.NewMemOnly(bleve.NewIndexMapping())
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create index directory: %w", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, bleve.NewIndexMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &Bleve{index: idx, path: path}, nil
}

// AddDocuments implements Sink.
func (b *Bleve) AddDocuments(_ context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, doc.Fields); err != nil {
			return fmt.Errorf("index document %s: %w", doc.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("commit add batch: %w", err)
	}
	return nil
}

// RemoveByIDs implements Sink.
func (b *Bleve) RemoveByIDs(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("commit remove batch: %w", err)
	}
	return nil
}

// DocCount returns the number of documents in the index.
func (b *Bleve) DocCount() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, fmt.Errorf("index is closed")
	}
	return b.index.DocCount()
}

// Close releases the underlying index.
func (b *Bleve) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
