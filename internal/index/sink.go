// Package index provides the push interface to the search index and its
// Bleve-backed implementation. The sync engine only issues bounded batch
// writes; querying the index is the consuming application's concern.
package index

import "context"

// Document is one unit of indexable content. Fields are indexed as-is by
// the sink's mapping.
type Document struct {
	ID     string
	Fields map[string]any
}

// Sink commits bounded batches of index writes. Batch sizes are chosen
// by the caller; a sink must treat each call as one committed unit of
// work.
type Sink interface {
	// AddDocuments indexes (or re-indexes) the given documents.
	AddDocuments(ctx context.Context, docs []Document) error

	// RemoveByIDs removes the given identifiers. Removing an unknown
	// identifier is not an error.
	RemoveByIDs(ctx context.Context, ids []string) error
}
