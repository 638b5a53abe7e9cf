package fs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainwatch/monitor/internal/model"
)

func TestLastProcessedRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	got, err := s.GetLastProcessed(ctx, "ethereum_mainnet")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.SaveLastProcessed(ctx, "ethereum_mainnet", 100))
	got, err = s.GetLastProcessed(ctx, "ethereum_mainnet")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(100), *got)
}

func TestSaveAndDeleteBlocks(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	blocks := []json.RawMessage{json.RawMessage(`{"n":1}`), json.RawMessage(`{"n":2}`)}
	require.NoError(t, s.SaveBlocks(ctx, "stellar_mainnet", blocks))
	require.NoError(t, s.DeleteBlocks(ctx, "stellar_mainnet"))
	// deleting an already-absent dump is not an error
	require.NoError(t, s.DeleteBlocks(ctx, "stellar_mainnet"))
}

func TestMissedBlockLifecycle(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.SaveMissedBlock(ctx, "ethereum_mainnet", 50))
	require.NoError(t, s.SaveMissedBlock(ctx, "ethereum_mainnet", 60))
	// duplicate save is a no-op
	require.NoError(t, s.SaveMissedBlock(ctx, "ethereum_mainnet", 50))

	entries, err := s.GetMissedBlocks(ctx, "ethereum_mainnet", 1000, 1000)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.MissedPending, entries[0].Status)

	require.NoError(t, s.UpdateMissedBlockStatus(ctx, "ethereum_mainnet", 50, model.MissedRecovered, ""))
	require.NoError(t, s.RemoveRecoveredBlocks(ctx, "ethereum_mainnet", []uint64{50}))

	entries, err = s.GetMissedBlocks(ctx, "ethereum_mainnet", 1000, 1000)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(60), entries[0].BlockNumber)
}

func TestPruneOldMissedBlocks(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.SaveMissedBlock(ctx, "ethereum_mainnet", 10))
	require.NoError(t, s.SaveMissedBlock(ctx, "ethereum_mainnet", 990))

	pruned, err := s.PruneOldMissedBlocks(ctx, "ethereum_mainnet", 100, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	entries, err := s.GetMissedBlocks(ctx, "ethereum_mainnet", 1000, 1000)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(990), entries[0].BlockNumber)
}

func TestUpdateMissedBlockStatusUnknownBlockErrors(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	err = s.UpdateMissedBlockStatus(ctx, "ethereum_mainnet", 999, model.MissedFailed, "boom")
	assert.Error(t, err)
}
