package watermark

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

// fileName is the watermark file inside each owner's data directory.
const fileName = "watermarks"

// Store persists watermarks keyed by owner.
type Store interface {
	// Load reads the persisted watermarks for an owner. A missing or
	// corrupt file yields zero watermarks, never an error: redundant
	// re-indexing beats refusing to start.
	Load(ctx context.Context, owner string) (Watermarks, error)

	// Save durably replaces the persisted watermarks for an owner.
	// Errors propagate; the caller must not consider progress recorded.
	Save(ctx context.Context, owner string, w Watermarks) error
}

// FileStore keeps one watermark file per owner under a root directory.
type FileStore struct {
	root string
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

// Path returns the watermark file path for an owner.
func (s *FileStore) Path(owner string) string {
	return filepath.Join(s.root, owner, fileName)
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, owner string) (Watermarks, error) {
	path := s.Path(owner)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Watermarks{}, nil
	}
	if err != nil {
		slog.Warn("watermark file unreadable, starting from zero",
			slog.String("owner", owner),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return Watermarks{}, nil
	}

	w, err := Decode(data)
	if err != nil {
		slog.Warn("watermark file corrupt, starting from zero",
			slog.String("owner", owner),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return Watermarks{}, nil
	}
	return w, nil
}

// Save implements Store. The file is written to a temporary location and
// renamed into place so a crash mid-write leaves the previous state intact.
func (s *FileStore) Save(_ context.Context, owner string, w Watermarks) error {
	path := s.Path(owner)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create owner data dir: %w", err)
	}
	if err := renameio.WriteFile(path, w.Encode(), 0o644); err != nil {
		return fmt.Errorf("save watermarks for %s: %w", owner, err)
	}
	return nil
}
