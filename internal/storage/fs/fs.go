// Package fs implements storage.BlockStorage on the local filesystem: one
// JSON state file per network, guarded by a per-network lock so readers
// never block on each other while writes stay serialized (spec §4.7).
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chainwatch/monitor/infrastructure/errors"
	"github.com/chainwatch/monitor/internal/model"
)

// Storage is a filesystem-backed BlockStorage implementation.
type Storage struct {
	baseDir string

	mu    sync.Mutex // guards the per-network lock map itself
	locks map[string]*sync.RWMutex
}

// New creates a filesystem storage rooted at baseDir, creating it if
// necessary.
func New(baseDir string) (*Storage, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, errors.Wrap(errors.KindRepository, "storage.fs", "create base dir", err)
	}
	return &Storage{baseDir: baseDir, locks: make(map[string]*sync.RWMutex)}, nil
}

func (s *Storage) lockFor(network string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[network]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[network] = l
	}
	return l
}

type networkState struct {
	LastProcessed *uint64                  `json:"last_processed,omitempty"`
	MissedBlocks  []model.MissedBlockEntry `json:"missed_blocks,omitempty"`
}

func (s *Storage) statePath(network string) string {
	return filepath.Join(s.baseDir, network+".state.json")
}

func (s *Storage) blocksPath(network string) string {
	return filepath.Join(s.baseDir, network+".blocks.json")
}

func (s *Storage) readState(network string) (networkState, error) {
	raw, err := os.ReadFile(s.statePath(network))
	if os.IsNotExist(err) {
		return networkState{}, nil
	}
	if err != nil {
		return networkState{}, errors.Wrap(errors.KindRepository, "storage.fs", "read state", err).
			WithMetadata("network", network)
	}
	var st networkState
	if err := json.Unmarshal(raw, &st); err != nil {
		return networkState{}, errors.Wrap(errors.KindRepository, "storage.fs", "decode state", err).
			WithMetadata("network", network)
	}
	return st, nil
}

func (s *Storage) writeState(network string, st networkState) error {
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.Wrap(errors.KindRepository, "storage.fs", "encode state", err)
	}
	tmp := s.statePath(network) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errors.Wrap(errors.KindRepository, "storage.fs", "write state", err).
			WithMetadata("network", network)
	}
	return os.Rename(tmp, s.statePath(network))
}

// GetLastProcessed returns the saved cursor for network, or nil if none.
func (s *Storage) GetLastProcessed(ctx context.Context, network string) (*uint64, error) {
	lock := s.lockFor(network)
	lock.RLock()
	defer lock.RUnlock()

	st, err := s.readState(network)
	if err != nil {
		return nil, err
	}
	return st.LastProcessed, nil
}

// SaveLastProcessed persists the cursor for network.
func (s *Storage) SaveLastProcessed(ctx context.Context, network string, n uint64) error {
	lock := s.lockFor(network)
	lock.Lock()
	defer lock.Unlock()

	st, err := s.readState(network)
	if err != nil {
		return err
	}
	st.LastProcessed = &n
	return s.writeState(network, st)
}

// SaveBlocks persists an opaque JSON dump of blocks for network,
// overwriting any prior dump.
func (s *Storage) SaveBlocks(ctx context.Context, network string, blocks []json.RawMessage) error {
	lock := s.lockFor(network)
	lock.Lock()
	defer lock.Unlock()

	raw, err := json.Marshal(blocks)
	if err != nil {
		return errors.Wrap(errors.KindRepository, "storage.fs", "encode blocks", err)
	}
	if err := os.WriteFile(s.blocksPath(network), raw, 0o644); err != nil {
		return errors.Wrap(errors.KindRepository, "storage.fs", "write blocks", err).
			WithMetadata("network", network)
	}
	return nil
}

// DeleteBlocks removes the stored block dump for network, if any.
func (s *Storage) DeleteBlocks(ctx context.Context, network string) error {
	lock := s.lockFor(network)
	lock.Lock()
	defer lock.Unlock()

	err := os.Remove(s.blocksPath(network))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.KindRepository, "storage.fs", "delete blocks", err).
			WithMetadata("network", network)
	}
	return nil
}

// SaveMissedBlock appends a pending missed-block entry for network.
func (s *Storage) SaveMissedBlock(ctx context.Context, network string, n uint64) error {
	lock := s.lockFor(network)
	lock.Lock()
	defer lock.Unlock()

	st, err := s.readState(network)
	if err != nil {
		return err
	}
	for _, e := range st.MissedBlocks {
		if e.BlockNumber == n {
			return nil
		}
	}
	st.MissedBlocks = append(st.MissedBlocks, model.MissedBlockEntry{
		BlockNumber: n,
		FirstSeenAt: time.Now().UTC(),
		Status:      model.MissedPending,
	})
	return s.writeState(network, st)
}

// GetMissedBlocks returns pending/recovering entries not yet older than
// maxAge relative to currentConfirmed.
func (s *Storage) GetMissedBlocks(ctx context.Context, network string, maxAge, currentConfirmed uint64) ([]model.MissedBlockEntry, error) {
	lock := s.lockFor(network)
	lock.RLock()
	defer lock.RUnlock()

	st, err := s.readState(network)
	if err != nil {
		return nil, err
	}
	var out []model.MissedBlockEntry
	for _, e := range st.MissedBlocks {
		if e.Status != model.MissedPending && e.Status != model.MissedRecovering {
			continue
		}
		if blockAge(e.BlockNumber, currentConfirmed) > maxAge {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// UpdateMissedBlockStatus updates the status/last_error of a missed-block
// entry in place.
func (s *Storage) UpdateMissedBlockStatus(ctx context.Context, network string, n uint64, status model.MissedBlockStatus, lastErr string) error {
	lock := s.lockFor(network)
	lock.Lock()
	defer lock.Unlock()

	st, err := s.readState(network)
	if err != nil {
		return err
	}
	found := false
	for i := range st.MissedBlocks {
		if st.MissedBlocks[i].BlockNumber != n {
			continue
		}
		found = true
		st.MissedBlocks[i].Status = status
		st.MissedBlocks[i].LastError = lastErr
		// Only the failure-recording transition (spec §4.8 step 4d, Pending
		// or terminal Failed) bumps retry_count; marking a block Recovering
		// before the attempt is not itself a retry.
		if status == model.MissedPending || status == model.MissedFailed {
			st.MissedBlocks[i].RetryCount++
		}
	}
	if !found {
		return fmt.Errorf("storage.fs: missed block %d not found for network %s", n, network)
	}
	return s.writeState(network, st)
}

// RemoveRecoveredBlocks deletes the given block numbers' missed-block
// entries in one write.
func (s *Storage) RemoveRecoveredBlocks(ctx context.Context, network string, ns []uint64) error {
	lock := s.lockFor(network)
	lock.Lock()
	defer lock.Unlock()

	st, err := s.readState(network)
	if err != nil {
		return err
	}
	remove := make(map[uint64]bool, len(ns))
	for _, n := range ns {
		remove[n] = true
	}
	kept := st.MissedBlocks[:0]
	for _, e := range st.MissedBlocks {
		if !remove[e.BlockNumber] {
			kept = append(kept, e)
		}
	}
	st.MissedBlocks = kept
	return s.writeState(network, st)
}

// PruneOldMissedBlocks drops entries whose age exceeds maxAge, returning
// the count pruned.
func (s *Storage) PruneOldMissedBlocks(ctx context.Context, network string, maxAge, currentConfirmed uint64) (int, error) {
	lock := s.lockFor(network)
	lock.Lock()
	defer lock.Unlock()

	st, err := s.readState(network)
	if err != nil {
		return 0, err
	}
	var kept []model.MissedBlockEntry
	pruned := 0
	for _, e := range st.MissedBlocks {
		if blockAge(e.BlockNumber, currentConfirmed) > maxAge {
			pruned++
			continue
		}
		kept = append(kept, e)
	}
	st.MissedBlocks = kept
	if pruned > 0 {
		if err := s.writeState(network, st); err != nil {
			return 0, err
		}
	}
	return pruned, nil
}

func blockAge(n, currentConfirmed uint64) uint64 {
	if currentConfirmed < n {
		return 0
	}
	return currentConfirmed - n
}
