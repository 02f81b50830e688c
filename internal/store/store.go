// Package store persists user context snapshots as one JSON file per user.
// Writes are atomic from a reader's perspective: a snapshot is written to a
// temporary file and renamed into place, so a concurrent reader sees either
// the previous entry or the new one, never a partial write.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/avelar/uplift/internal/snapshot"
)

// ErrInvalidUserID is returned for empty IDs or IDs that would escape the
// data directory.
var ErrInvalidUserID = errors.New("invalid user id")

const entryExt = ".json"

// Store is a flat-file snapshot store rooted at a single directory.
type Store struct {
	dir string
}

// Open creates the data directory if needed and returns a Store over it.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory entries are stored in.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(userID string) (string, error) {
	if userID == "" || userID != filepath.Base(userID) || strings.HasPrefix(userID, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	return filepath.Join(s.dir, userID+entryExt), nil
}

// Get returns the persisted snapshot for userID. The boolean is false when
// no entry exists. Get does not interpret freshness.
func (s *Store) Get(userID string) (snapshot.Snapshot, bool, error) {
	path, err := s.path(userID)
	if err != nil {
		return snapshot.Snapshot{}, false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return snapshot.Snapshot{}, false, nil
		}
		return snapshot.Snapshot{}, false, fmt.Errorf("reading entry for %s: %w", userID, err)
	}

	var snap snapshot.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return snapshot.Snapshot{}, false, fmt.Errorf("decoding entry for %s: %w", userID, err)
	}
	return snap, true, nil
}

// Put atomically creates or overwrites the entry for userID. Concurrent
// writers to the same key race; the last completed rename wins.
func (s *Store) Put(userID string, snap snapshot.Snapshot) error {
	path, err := s.path(userID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding entry for %s: %w", userID, err)
	}

	// Write to a temp file in the same directory so the rename stays on one
	// filesystem and is atomic.
	tmp, err := os.CreateTemp(s.dir, userID+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp entry for %s: %w", userID, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing entry for %s: %w", userID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing entry for %s: %w", userID, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("committing entry for %s: %w", userID, err)
	}
	return nil
}

// Delete removes the entry for userID. Deleting a missing entry is a no-op.
func (s *Store) Delete(userID string) error {
	path, err := s.path(userID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting entry for %s: %w", userID, err)
	}
	return nil
}

// ListIDs enumerates the user IDs of all persisted entries.
func (s *Store) ListIDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, entryExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, entryExt))
	}
	return ids, nil
}
