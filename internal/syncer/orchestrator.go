package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	mirrorerrors "github.com/meridianhq/indexmirror/internal/errors"
	"github.com/meridianhq/indexmirror/internal/watermark"
)

// State is the orchestrator's pass state.
type State int

const (
	StateIdle State = iota
	StateRunningFull
	StateRunningDelta
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateRunningFull:
		return "running_full"
	case StateRunningDelta:
		return "running_delta"
	default:
		return "idle"
	}
}

// ErrPassInFlight signals that a trigger was coalesced because a pass is
// already running for the owner. The running pass starts from the
// persisted watermark, so it naturally covers whatever the dropped
// trigger would have.
var ErrPassInFlight = errors.New("synchronization pass already in flight")

// OrchestratorConfig configures one owner's orchestrator.
type OrchestratorConfig struct {
	// Owner is the principal whose stream this orchestrator drives.
	Owner string

	// DataDir is the root of per-owner state (watermark files, lock
	// files).
	DataDir string

	// FullResyncInterval is the staleness threshold: a full pass runs
	// when the last one is older than this, or never happened.
	FullResyncInterval time.Duration
}

// Status is a point-in-time report of one owner's synchronization.
type Status struct {
	Owner      string
	State      State
	Watermarks watermark.Watermarks

	// Last completed pass, zero until one finishes.
	LastPassAt time.Time
	LastError  string
	Indexed    int
	Removed    int
	Skipped    int
}

// Orchestrator serializes synchronization passes for one owner, decides
// full versus delta, and persists watermarks after success. At most one
// pass per owner runs at a time; concurrent triggers are coalesced. A
// file lock in the owner's data directory extends the single-writer
// guarantee across processes.
type Orchestrator struct {
	cfg    OrchestratorConfig
	syncer *Syncer
	store  watermark.Store

	lock   *flock.Flock
	locked bool

	mu         sync.Mutex
	state      State
	lastResult Result
	lastErr    error
	lastPassAt time.Time

	now func() time.Time
}

// NewOrchestrator creates an orchestrator for one owner.
func NewOrchestrator(cfg OrchestratorConfig, s *Syncer, store watermark.Store) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		syncer: s,
		store:  store,
		lock:   flock.New(filepath.Join(cfg.DataDir, cfg.Owner, "owner.lock")),
		now:    time.Now,
	}
}

// Trigger runs one synchronization pass: full if no full pass ever
// succeeded or the last one is stale, delta otherwise. A trigger while a
// pass is in flight returns ErrPassInFlight and does no work.
func (o *Orchestrator) Trigger(ctx context.Context) (Result, error) {
	return o.run(ctx, false)
}

// TriggerFull runs a full resynchronization regardless of staleness.
func (o *Orchestrator) TriggerFull(ctx context.Context) (Result, error) {
	return o.run(ctx, true)
}

func (o *Orchestrator) run(ctx context.Context, forceFull bool) (Result, error) {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		slog.Debug("trigger coalesced",
			slog.String("owner", o.cfg.Owner),
			slog.String("state", o.state.String()))
		return Result{}, ErrPassInFlight
	}

	if err := o.acquireProcessLock(); err != nil {
		o.mu.Unlock()
		return Result{}, err
	}

	// Watermarks are reloaded on every trigger, so the first pass
	// after a restart resumes from the last durably-saved state.
	wm, err := o.store.Load(ctx, o.cfg.Owner)
	if err != nil {
		o.mu.Unlock()
		return Result{}, mirrorerrors.StateError("load watermarks", err)
	}

	full := forceFull || o.needsFull(wm)
	if full {
		o.state = StateRunningFull
	} else {
		o.state = StateRunningDelta
	}
	o.mu.Unlock()

	result, err := o.executePass(ctx, wm, full)

	o.mu.Lock()
	o.state = StateIdle
	o.lastErr = err
	if err == nil {
		o.lastResult = result
		o.lastPassAt = o.now()
	}
	o.mu.Unlock()

	return result, err
}

func (o *Orchestrator) executePass(ctx context.Context, wm watermark.Watermarks, full bool) (Result, error) {
	kind := "delta"
	runPass := o.syncer.RunDelta
	if full {
		kind = "full"
		runPass = o.syncer.RunFull
	}
	slog.Info("starting sync pass",
		slog.String("owner", o.cfg.Owner),
		slog.String("kind", kind))

	result, err := runPass(ctx, wm)
	if err != nil {
		slog.Warn("sync pass failed, watermarks not advanced",
			slog.String("owner", o.cfg.Owner),
			slog.String("kind", kind),
			slog.String("error", err.Error()))
		return Result{}, mirrorerrors.New(mirrorerrors.ErrCodePassFailed,
			fmt.Sprintf("%s pass for %s", kind, o.cfg.Owner), err)
	}

	if !result.Watermarks.AtLeast(wm) {
		return Result{}, mirrorerrors.New(mirrorerrors.ErrCodePassFailed,
			fmt.Sprintf("%s pass for %s produced regressing watermarks", kind, o.cfg.Owner), nil)
	}

	if err := o.store.Save(ctx, o.cfg.Owner, result.Watermarks); err != nil {
		return Result{}, mirrorerrors.StateError("persist watermarks", err)
	}

	return result, nil
}

// needsFull reports whether the watermarks call for a full pass.
func (o *Orchestrator) needsFull(wm watermark.Watermarks) bool {
	if wm.LastFullSync.IsZero() {
		return true
	}
	if o.cfg.FullResyncInterval <= 0 {
		return false
	}
	return o.now().Sub(wm.LastFullSync) >= o.cfg.FullResyncInterval
}

// acquireProcessLock takes the owner's file lock on first use. Callers
// hold o.mu.
func (o *Orchestrator) acquireProcessLock() error {
	if o.locked {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(o.lock.Path()), 0o755); err != nil {
		return mirrorerrors.StateError("create owner data dir", err)
	}
	ok, err := o.lock.TryLock()
	if err != nil {
		return mirrorerrors.StateError("acquire owner lock", err)
	}
	if !ok {
		return mirrorerrors.New(mirrorerrors.ErrCodeOwnerBusy,
			fmt.Sprintf("owner %s is locked by another process", o.cfg.Owner), nil)
	}
	o.locked = true
	return nil
}

// Status reports the current pass state and persisted watermarks.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	wm, err := o.store.Load(ctx, o.cfg.Owner)
	if err != nil {
		return Status{}, mirrorerrors.StateError("load watermarks", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{
		Owner:      o.cfg.Owner,
		State:      o.state,
		Watermarks: wm,
		LastPassAt: o.lastPassAt,
		Indexed:    o.lastResult.Indexed,
		Removed:    o.lastResult.Removed,
		Skipped:    o.lastResult.Skipped,
	}
	if o.lastErr != nil {
		st.LastError = o.lastErr.Error()
	}
	return st, nil
}

// Close releases the owner's process lock.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.locked {
		return nil
	}
	o.locked = false
	return o.lock.Unlock()
}
