package chain

import (
	"context"
	"fmt"

	"github.com/stellar/go/clients/horizonclient"

	"github.com/chainwatch/monitor/internal/model"
)

// stellarPageLimit bounds each Horizon page request; StellarClient
// transparently pages through a single ledger's transactions until
// exhausted (spec §4.3: "paginated with an internal page limit (e.g., 200),
// yielding all items with ledger <= target").
const stellarPageLimit = 200

// StellarClient implements BlockChainClient + StellarPagedFetcher against a
// Horizon instance.
type StellarClient struct {
	horizon *horizonclient.Client
}

// NewStellarClient builds a client against the given Horizon base URL.
func NewStellarClient(horizonURL string) *StellarClient {
	return &StellarClient{
		horizon: &horizonclient.Client{HorizonURL: horizonURL},
	}
}

func (c *StellarClient) Chain() model.ChainFamily { return model.ChainStellar }

// LatestBlockNumber returns the most recent ledger sequence.
func (c *StellarClient) LatestBlockNumber(ctx context.Context) (uint64, error) {
	root, err := c.horizon.Root()
	if err != nil {
		return 0, &ErrMalformedResponse{Detail: err.Error()}
	}
	if root.HorizonSequence < 0 {
		return 0, &ErrMalformedResponse{Detail: "negative ledger sequence"}
	}
	return uint64(root.HorizonSequence), nil
}

// Blocks fetches ledgers [from, to], each with every transaction that
// closed in it.
func (c *StellarClient) Blocks(ctx context.Context, from uint64, to *uint64) ([]model.Block, error) {
	end := from
	if to != nil {
		end = *to
	}

	blocks := make([]model.Block, 0, end-from+1)
	for seq := from; seq <= end; seq++ {
		txs, err := c.ledgerTransactions(seq)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, &model.StellarBlock{
			LedgerSeq:    seq,
			Transactions: txs,
		})
	}
	return blocks, nil
}

// ledgerTransactions pages through every transaction in a single ledger.
func (c *StellarClient) ledgerTransactions(ledgerSeq uint64) ([]model.StellarTransaction, error) {
	var out []model.StellarTransaction
	cursor := ""

	for {
		req := horizonclient.TransactionRequest{
			ForLedger: ledgerSeq,
			Cursor:    cursor,
			Limit:     stellarPageLimit,
			Order:     horizonclient.OrderAsc,
		}
		page, err := c.horizon.Transactions(req)
		if err != nil {
			return nil, &ErrMalformedResponse{Detail: err.Error()}
		}
		if len(page.Embedded.Records) == 0 {
			break
		}

		for _, rec := range page.Embedded.Records {
			status := model.TxStatusFailure
			if rec.Successful {
				status = model.TxStatusSuccess
			}
			out = append(out, model.StellarTransaction{Hash: rec.Hash, Status: status})
		}

		if len(page.Embedded.Records) < stellarPageLimit {
			break
		}
		cursor = page.Embedded.Records[len(page.Embedded.Records)-1].PagingToken()
	}

	return out, nil
}

// TransactionsInRange pages through every ledger in [fromSeq, toSeq] and
// concatenates their transactions.
func (c *StellarClient) TransactionsInRange(ctx context.Context, fromSeq, toSeq uint64) ([]model.StellarTransaction, error) {
	var out []model.StellarTransaction
	for seq := fromSeq; seq <= toSeq; seq++ {
		txs, err := c.ledgerTransactions(seq)
		if err != nil {
			return nil, err
		}
		out = append(out, txs...)
	}
	return out, nil
}

// EventsInRange returns an error for every range and never yields events:
// this client has no Soroban-RPC endpoint for getEvents, and it does not
// read Horizon effects either.
func (c *StellarClient) EventsInRange(ctx context.Context, fromSeq, toSeq uint64) ([]StellarEvent, error) {
	return nil, fmt.Errorf("chain: stellar contract events require a Soroban RPC endpoint, not configured")
}
