package chain

import (
	"context"
	"encoding/json"

	"github.com/chainwatch/monitor/internal/model"
	"github.com/chainwatch/monitor/internal/transport"
)

// MidnightClient implements BlockChainClient over Midnight's JSON-RPC.
// Transaction decoding is left abstract (spec §9: the reference
// implementation hardcodes transaction hashes to "0x0" and never decodes
// Midnight's ledger format); BlockNumber is fetched live, but per-block
// contents require a Midnight ledger codec this module does not vendor.
type MidnightClient struct {
	transport *transport.Client
}

// NewMidnightClient wraps a transport client for a Midnight-family network.
func NewMidnightClient(t *transport.Client) *MidnightClient {
	return &MidnightClient{transport: t}
}

func (c *MidnightClient) Chain() model.ChainFamily { return model.ChainMidnight }

// LatestBlockNumber calls the node's block-height query.
func (c *MidnightClient) LatestBlockNumber(ctx context.Context) (uint64, error) {
	raw, err := c.transport.SendRaw(ctx, "chain_getBlockHeight", []any{})
	if err != nil {
		return 0, err
	}
	var height uint64
	if err := json.Unmarshal(raw, &height); err != nil {
		return 0, &ErrMalformedResponse{Detail: err.Error()}
	}
	return height, nil
}

// Blocks fetches each block in the range [from, to] and returns it as a
// MidnightBlock carrying only its number; transaction contents are not
// decoded, so no monitor condition matches on Midnight networks.
func (c *MidnightClient) Blocks(ctx context.Context, from uint64, to *uint64) ([]model.Block, error) {
	end := from
	if to != nil {
		end = *to
	}

	blocks := make([]model.Block, 0, end-from+1)
	for n := from; n <= end; n++ {
		if _, err := c.transport.SendRaw(ctx, "chain_getBlockByNumber", []any{n}); err != nil {
			return nil, err
		}
		blocks = append(blocks, &model.MidnightBlock{BlockNumber: n})
	}
	return blocks, nil
}
