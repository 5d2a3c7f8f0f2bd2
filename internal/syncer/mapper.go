package syncer

import (
	"fmt"
	"time"

	"github.com/meridianhq/indexmirror/internal/index"
	"github.com/meridianhq/indexmirror/internal/provider"
)

// Mapper converts one source record into an index document. Mappers are
// pure: no I/O, no retained references. A mapping error marks the record
// malformed; the pass skips it and logs instead of aborting.
type Mapper func(rec *provider.Record) (index.Document, error)

// MapRecord is the default mapper: title, body and owner become indexed
// fields, the modification time is stored for debugging.
func MapRecord(rec *provider.Record) (index.Document, error) {
	if rec == nil {
		return index.Document{}, fmt.Errorf("nil record")
	}
	if rec.ID == "" {
		return index.Document{}, fmt.Errorf("record has no id")
	}

	return index.Document{
		ID: rec.ID,
		Fields: map[string]any{
			"owner":      rec.Owner,
			"title":      rec.Title,
			"body":       rec.Body,
			"updated_at": rec.UpdatedAt.UTC().Format(time.RFC3339),
		},
	}, nil
}
