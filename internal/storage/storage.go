// Package storage defines the block-storage persistence contract (spec
// §4.7): per-network last-processed cursor, optional opaque block dumps,
// and the missed-block recovery queue. internal/storage/fs and
// internal/storage/postgres provide concrete backends.
package storage

import (
	"context"
	"encoding/json"

	"github.com/chainwatch/monitor/internal/model"
)

// BlockStorage is the durable persistence surface the watcher and
// recovery job depend on. Implementations must tolerate concurrent
// readers with writes serialized per network.
type BlockStorage interface {
	GetLastProcessed(ctx context.Context, network string) (*uint64, error)
	SaveLastProcessed(ctx context.Context, network string, n uint64) error

	SaveBlocks(ctx context.Context, network string, blocks []json.RawMessage) error
	DeleteBlocks(ctx context.Context, network string) error

	SaveMissedBlock(ctx context.Context, network string, n uint64) error
	GetMissedBlocks(ctx context.Context, network string, maxAge, currentConfirmed uint64) ([]model.MissedBlockEntry, error)
	UpdateMissedBlockStatus(ctx context.Context, network string, n uint64, status model.MissedBlockStatus, lastErr string) error
	RemoveRecoveredBlocks(ctx context.Context, network string, ns []uint64) error
	PruneOldMissedBlocks(ctx context.Context, network string, maxAge, currentConfirmed uint64) (int, error)
}
