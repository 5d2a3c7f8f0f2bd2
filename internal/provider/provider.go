// Package provider defines the interface to the external data source the
// index mirrors. The source is independently mutable and cannot be
// locked; the engine only ever pulls from it. A provider instance is
// bound to a single owner's stream of records.
package provider

import (
	"context"
	"time"
)

// Record is one source item in full, as needed for index mapping.
type Record struct {
	ID        string
	Owner     string
	Title     string
	Body      string
	UpdatedAt time.Time
	DeletedAt time.Time // zero unless tombstoned
}

// Change is one (identifier, timestamp) pair from a changed-since or
// deleted-since query.
type Change struct {
	ID string
	At time.Time
}

// Provider is the pull interface to the external source.
//
// ChangedSince and DeletedSince use strict > comparison against two
// independent timestamp axes: the modification time of live records and
// the tombstone time of deleted records. Fetch returns the current full
// record for an identifier. AllLive enumerates every non-tombstoned
// record for a full resynchronization.
type Provider interface {
	ChangedSince(ctx context.Context, since time.Time) ([]Change, error)
	DeletedSince(ctx context.Context, since time.Time) ([]Change, error)
	Fetch(ctx context.Context, id string) (*Record, error)
	AllLive(ctx context.Context) ([]Change, error)
}
