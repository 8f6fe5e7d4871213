package orchestrator

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v3"

	"github.com/codetally/codetally/checkpoint"
	"github.com/codetally/codetally/logging"
)

// CheckpointStore persists per-source checkpoints as opaque JSON keyed
// by source name. The core never touches storage itself; it only
// receives and returns checkpoint values through this store.
type CheckpointStore struct {
	db *badger.DB
}

// OpenCheckpointStore opens (creating if needed) the checkpoint
// database under dir.
func OpenCheckpointStore(dir string) (*CheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithValueLogFileSize(16 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	return &CheckpointStore{db: db}, nil
}

// Load returns the stored checkpoint for a source, or nil when none is
// stored. A corrupt stored value also reads as nil: it forces a full
// scan on the next parse, which is always safe, instead of failing the
// whole run.
func (s *CheckpointStore) Load(source string) *checkpoint.Checkpoint {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(source))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			logging.LogWarnf("Unreadable checkpoint for %s, forcing full scan: %v", source, err)
		}
		return nil
	}

	cp, err := checkpoint.Decode(data)
	if err != nil {
		logging.LogWarnf("Corrupt checkpoint for %s, forcing full scan: %v", source, err)
		return nil
	}
	return cp
}

// Save replaces the stored checkpoint for a source.
func (s *CheckpointStore) Save(source string, cp *checkpoint.Checkpoint) error {
	data, err := cp.Encode()
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(source), data)
	})
	if err != nil {
		return fmt.Errorf("failed to persist checkpoint for %s: %w", source, err)
	}
	return nil
}

// Close releases the underlying database.
func (s *CheckpointStore) Close() error {
	return s.db.Close()
}
