// Package syncer implements the synchronization passes that keep the
// search index converged with the source, and the per-owner orchestrator
// that schedules them. A pass never persists progress itself; it returns
// candidate watermarks and the orchestrator persists them only after the
// pass completes without error.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/meridianhq/indexmirror/internal/batch"
	mirrorerrors "github.com/meridianhq/indexmirror/internal/errors"
	"github.com/meridianhq/indexmirror/internal/index"
	"github.com/meridianhq/indexmirror/internal/provider"
	"github.com/meridianhq/indexmirror/internal/scanner"
	"github.com/meridianhq/indexmirror/internal/watermark"
)

// failureCacheSize bounds the malformed-record bookkeeping. Old entries
// aging out simply means a chronically failing record gets another round
// of attempts, which is harmless.
const failureCacheSize = 1024

// Config tunes one owner's synchronization passes.
type Config struct {
	// AddBatchSize bounds the number of documents per index commit.
	AddBatchSize int

	// RemoveBatchSize bounds the number of ids per index removal.
	// Deletions are cheaper than adds and default to a larger batch.
	RemoveBatchSize int

	// Inflight bounds concurrent in-flight add commits. < 1 means
	// unlimited.
	Inflight int

	// MaxMappingAttempts is how many passes a record that fails
	// mapping is retried before it is skipped for good.
	MaxMappingAttempts int
}

// DefaultConfig returns the default pass tuning.
func DefaultConfig() Config {
	return Config{
		AddBatchSize:       64,
		RemoveBatchSize:    256,
		Inflight:           4,
		MaxMappingAttempts: 3,
	}
}

// Result is the outcome of one completed pass.
type Result struct {
	// Watermarks are the candidate watermarks to persist.
	Watermarks watermark.Watermarks

	// Indexed is the number of documents committed to the index.
	Indexed int

	// Removed is the number of ids removed from the index.
	Removed int

	// Skipped is the number of records dispositioned without indexing
	// (malformed, or vanished between scan and fetch).
	Skipped int
}

// Syncer runs full and delta passes for one owner. It owns no durable
// state; watermarks come in per call and candidates go back out.
type Syncer struct {
	owner   string
	scanner *scanner.Scanner
	source  provider.Provider
	sink    index.Sink
	mapper  Mapper
	cfg     Config

	// failures tracks consecutive mapping failures per record id so a
	// permanently malformed record is eventually skipped instead of
	// holding the update watermark back forever.
	failures *lru.Cache[string, int]

	scanRetry mirrorerrors.RetryConfig

	now func() time.Time
}

// New creates a syncer for one owner's stream.
func New(owner string, source provider.Provider, sink index.Sink, mapper Mapper, cfg Config) (*Syncer, error) {
	if cfg.AddBatchSize < 1 {
		return nil, fmt.Errorf("add batch size must be >= 1, got %d", cfg.AddBatchSize)
	}
	if cfg.RemoveBatchSize < 1 {
		return nil, fmt.Errorf("remove batch size must be >= 1, got %d", cfg.RemoveBatchSize)
	}
	if cfg.MaxMappingAttempts < 1 {
		return nil, fmt.Errorf("max mapping attempts must be >= 1, got %d", cfg.MaxMappingAttempts)
	}
	if mapper == nil {
		mapper = MapRecord
	}

	failures, err := lru.New[string, int](failureCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create failure cache: %w", err)
	}

	return &Syncer{
		owner:     owner,
		scanner:   scanner.New(source),
		source:    source,
		sink:      sink,
		mapper:    mapper,
		cfg:       cfg,
		failures:  failures,
		scanRetry: mirrorerrors.DefaultRetryConfig(),
		now:       time.Now,
	}, nil
}

// RunDelta executes one incremental pass from the given watermarks.
//
// Updates are fully flushed before deletions are applied, so a record
// updated and then deleted within the same window never survives the
// pass in its updated form. On error the returned Result is zero and
// nothing may be persisted.
func (s *Syncer) RunDelta(ctx context.Context, wm watermark.Watermarks) (Result, error) {
	updated, err := s.scanUpdatedWithRetry(ctx, wm.LastDeltaUpdate)
	if err != nil {
		return Result{}, err
	}

	indexed, skipped, newUpdate, err := s.indexChanges(ctx, updated)
	if err != nil {
		return Result{}, err
	}
	if newUpdate.Before(wm.LastDeltaUpdate) {
		newUpdate = wm.LastDeltaUpdate
	}

	removed, newDelete, err := s.applyDeletions(ctx, wm.LastDeltaDelete)
	if err != nil {
		return Result{}, err
	}

	slog.Debug("delta pass complete",
		slog.String("owner", s.owner),
		slog.Int("indexed", indexed),
		slog.Int("removed", removed),
		slog.Int("skipped", skipped))

	return Result{
		Watermarks: watermark.Watermarks{
			LastFullSync:    wm.LastFullSync,
			LastDeltaUpdate: newUpdate,
			LastDeltaDelete: newDelete,
		},
		Indexed: indexed,
		Removed: removed,
		Skipped: skipped,
	}, nil
}

// RunFull executes a full resynchronization: every live source record is
// re-indexed and the watermarks are re-baselined. It shares the mapping
// and batching machinery with the delta path.
func (s *Syncer) RunFull(ctx context.Context, wm watermark.Watermarks) (Result, error) {
	var all []provider.Change
	err := mirrorerrors.Retry(ctx, s.scanRetry, func() error {
		var scanErr error
		all, scanErr = s.source.AllLive(ctx)
		return scanErr
	})
	if err != nil {
		return Result{}, mirrorerrors.New(mirrorerrors.ErrCodeSourceUnavailable, "enumerate source records", err)
	}

	cs := scanner.ChangeSet{Changes: all}
	for _, c := range all {
		if c.At.After(cs.HighWater) {
			cs.HighWater = c.At
		}
	}

	indexed, skipped, newUpdate, err := s.indexChanges(ctx, cs)
	if err != nil {
		return Result{}, err
	}
	if newUpdate.Before(wm.LastDeltaUpdate) {
		newUpdate = wm.LastDeltaUpdate
	}

	removed, newDelete, err := s.applyDeletions(ctx, wm.LastDeltaDelete)
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	slog.Info("full pass complete",
		slog.String("owner", s.owner),
		slog.Int("indexed", indexed),
		slog.Int("removed", removed),
		slog.Int("skipped", skipped))

	return Result{
		Watermarks: watermark.Watermarks{
			LastFullSync:    now,
			LastDeltaUpdate: newUpdate,
			LastDeltaDelete: newDelete,
		},
		Indexed: indexed,
		Removed: removed,
		Skipped: skipped,
	}, nil
}

// indexChanges fetches, maps and indexes every change through a bounded
// accumulator. It returns the candidate update watermark: normally the
// set's high-water mark, held back to just before the earliest record
// whose mapping failed but is still worth retrying on a later pass.
func (s *Syncer) indexChanges(ctx context.Context, cs scanner.ChangeSet) (indexed, skipped int, newUpdate time.Time, err error) {
	acc, err := batch.NewAccumulator(ctx, s.cfg.AddBatchSize, s.cfg.Inflight, func(fctx context.Context, docs []index.Document) error {
		if addErr := s.sink.AddDocuments(fctx, docs); addErr != nil {
			return mirrorerrors.IndexError("commit add batch", addErr)
		}
		return nil
	})
	if err != nil {
		return 0, 0, time.Time{}, err
	}

	var holdback time.Time

	for _, change := range cs.Changes {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, 0, time.Time{}, ctxErr
		}

		rec, fetchErr := s.source.Fetch(ctx, change.ID)
		if errors.Is(fetchErr, provider.ErrNotFound) {
			// Vanished between scan and fetch; the tombstone scan
			// will remove it.
			slog.Debug("record gone before fetch",
				slog.String("owner", s.owner),
				slog.String("id", change.ID))
			skipped++
			continue
		}
		if fetchErr != nil {
			return 0, 0, time.Time{}, mirrorerrors.New(mirrorerrors.ErrCodeSourceUnavailable,
				fmt.Sprintf("fetch record %s", change.ID), fetchErr)
		}

		doc, mapErr := s.mapper(rec)
		if mapErr != nil {
			skipped++
			if s.recordMappingFailure(change) {
				if holdback.IsZero() || change.At.Before(holdback) {
					holdback = change.At
				}
			}
			continue
		}

		acc.Add(doc)
		indexed++
	}

	acc.Flush()
	if waitErr := acc.Wait(); waitErr != nil {
		return 0, 0, time.Time{}, waitErr
	}

	newUpdate = cs.HighWater
	if !holdback.IsZero() {
		// Reopen the next scan window just before the failed record
		// so the strict > comparison picks it up again.
		newUpdate = holdback.Add(-time.Millisecond)
	}
	return indexed, skipped, newUpdate, nil
}

// recordMappingFailure bumps the failure count for a record and reports
// whether the record should still hold the watermark back for a retry.
func (s *Syncer) recordMappingFailure(change provider.Change) (retry bool) {
	attempts, _ := s.failures.Get(change.ID)
	attempts++
	s.failures.Add(change.ID, attempts)

	if attempts >= s.cfg.MaxMappingAttempts {
		slog.Error("record failed mapping, giving up",
			slog.String("owner", s.owner),
			slog.String("id", change.ID),
			slog.Int("attempts", attempts))
		return false
	}

	slog.Warn("record failed mapping, will retry",
		slog.String("owner", s.owner),
		slog.String("id", change.ID),
		slog.Int("attempts", attempts))
	return true
}

// applyDeletions scans the tombstone axis and removes ids in bounded
// sub-batches.
func (s *Syncer) applyDeletions(ctx context.Context, since time.Time) (removed int, newDelete time.Time, err error) {
	var deleted scanner.ChangeSet
	err = mirrorerrors.Retry(ctx, s.scanRetry, func() error {
		var scanErr error
		deleted, scanErr = s.scanner.ScanDeleted(ctx, since)
		return scanErr
	})
	if err != nil {
		return 0, time.Time{}, mirrorerrors.New(mirrorerrors.ErrCodeSourceUnavailable, "scan deleted", err)
	}

	err = batch.Apply(ctx, deleted.IDs(), s.cfg.RemoveBatchSize, func(bctx context.Context, ids []string) error {
		if rmErr := s.sink.RemoveByIDs(bctx, ids); rmErr != nil {
			return mirrorerrors.IndexError("commit remove batch", rmErr)
		}
		removed += len(ids)
		return nil
	})
	if err != nil {
		return 0, time.Time{}, err
	}

	return removed, deleted.HighWater, nil
}

func (s *Syncer) scanUpdatedWithRetry(ctx context.Context, since time.Time) (scanner.ChangeSet, error) {
	var cs scanner.ChangeSet
	err := mirrorerrors.Retry(ctx, s.scanRetry, func() error {
		var scanErr error
		cs, scanErr = s.scanner.ScanUpdated(ctx, since)
		return scanErr
	})
	if err != nil {
		return scanner.ChangeSet{}, mirrorerrors.New(mirrorerrors.ErrCodeSourceUnavailable, "scan updated", err)
	}
	return cs, nil
}
