package chain

import (
	"context"
	"encoding/json"

	"github.com/chainwatch/monitor/internal/model"
	"github.com/chainwatch/monitor/internal/transport"
)

// SolanaClient implements BlockChainClient over Solana's native JSON-RPC.
// Solana is a planned extension sharing EVM's contract surface (spec §9);
// no filter-engine conditions reference it yet, so only the base contract
// is implemented.
type SolanaClient struct {
	transport *transport.Client
}

// NewSolanaClient wraps a transport client for a Solana-family network.
func NewSolanaClient(t *transport.Client) *SolanaClient {
	return &SolanaClient{transport: t}
}

func (c *SolanaClient) Chain() model.ChainFamily { return model.ChainSolana }

// LatestBlockNumber calls getSlot.
func (c *SolanaClient) LatestBlockNumber(ctx context.Context) (uint64, error) {
	raw, err := c.transport.SendRaw(ctx, "getSlot", []any{})
	if err != nil {
		return 0, err
	}
	var slot uint64
	if err := json.Unmarshal(raw, &slot); err != nil {
		return 0, &ErrMalformedResponse{Detail: err.Error()}
	}
	return slot, nil
}

// Blocks fetches slots [from, to] via getBlock. Skipped slots (no block
// produced) are omitted rather than treated as an error.
func (c *SolanaClient) Blocks(ctx context.Context, from uint64, to *uint64) ([]model.Block, error) {
	end := from
	if to != nil {
		end = *to
	}

	blocks := make([]model.Block, 0, end-from+1)
	for slot := from; slot <= end; slot++ {
		params := []any{slot, map[string]any{"maxSupportedTransactionVersion": 0, "transactionDetails": "none"}}
		raw, err := c.transport.SendRaw(ctx, "getBlock", params)
		if err != nil {
			return nil, err
		}
		if string(raw) == "null" {
			continue
		}
		blocks = append(blocks, &model.SolanaBlock{Slot: slot})
	}
	return blocks, nil
}
