package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/meridianhq/indexmirror/internal/config"
	"github.com/meridianhq/indexmirror/internal/index"
	"github.com/meridianhq/indexmirror/internal/provider"
	"github.com/meridianhq/indexmirror/internal/syncer"
	"github.com/meridianhq/indexmirror/internal/watermark"
)

// ownerRuntime bundles everything one owner's synchronization needs:
// source, index, syncer and orchestrator, plus their teardown.
type ownerRuntime struct {
	owner        string
	orchestrator *syncer.Orchestrator

	source *provider.SQLite
	sink   *index.Bleve
}

// buildOwnerRuntime wires one owner's pipeline from the configuration.
func buildOwnerRuntime(cfg *config.Config, owner string) (*ownerRuntime, error) {
	if err := config.ValidateOwner(owner); err != nil {
		return nil, err
	}

	source, err := provider.OpenSQLite(cfg.Source.Path, owner)
	if err != nil {
		return nil, fmt.Errorf("open source for %s: %w", owner, err)
	}

	sink, err := index.OpenBleve(filepath.Join(cfg.Index.Dir, owner))
	if err != nil {
		source.Close()
		return nil, fmt.Errorf("open index for %s: %w", owner, err)
	}

	s, err := syncer.New(owner, source, sink, nil, syncer.Config{
		AddBatchSize:       cfg.Sync.AddBatchSize,
		RemoveBatchSize:    cfg.Sync.RemoveBatchSize,
		Inflight:           cfg.Sync.Inflight,
		MaxMappingAttempts: cfg.Sync.MaxMappingAttempts,
	})
	if err != nil {
		sink.Close()
		source.Close()
		return nil, err
	}

	orch := syncer.NewOrchestrator(syncer.OrchestratorConfig{
		Owner:              owner,
		DataDir:            cfg.Data.Dir,
		FullResyncInterval: cfg.Sync.FullResyncEvery(),
	}, s, watermark.NewFileStore(cfg.Data.Dir))

	return &ownerRuntime{
		owner:        owner,
		orchestrator: orch,
		source:       source,
		sink:         sink,
	}, nil
}

// Close releases the owner lock, the index and the source connection.
func (r *ownerRuntime) Close() {
	_ = r.orchestrator.Close()
	_ = r.sink.Close()
	_ = r.source.Close()
}

// resolveOwners picks the owners a command operates on: the --owner
// flag when given, otherwise every configured owner.
func resolveOwners(cfg *config.Config, flagOwner string, all bool) ([]string, error) {
	if flagOwner != "" && all {
		return nil, fmt.Errorf("--owner and --all are mutually exclusive")
	}
	if flagOwner != "" {
		if err := config.ValidateOwner(flagOwner); err != nil {
			return nil, err
		}
		return []string{flagOwner}, nil
	}
	if len(cfg.Owners) == 0 {
		return nil, fmt.Errorf("no owners configured; set owners in the config file or pass --owner")
	}
	return cfg.Owners, nil
}
