// Package chain implements the per-chain-family BlockChainClient (spec
// §4.3): a uniform latest-block/range-fetch contract with additional
// per-chain operations used by the filter engine, plus a lazy client pool
// keyed by network slug.
package chain

import (
	"context"

	"github.com/chainwatch/monitor/internal/model"
)

// BlockChainClient is the uniform per-chain-family contract (spec §4.3).
type BlockChainClient interface {
	// LatestBlockNumber returns the chain's current head height.
	LatestBlockNumber(ctx context.Context) (uint64, error)
	// Blocks returns the inclusive range [from, to]. If to is nil, only
	// `from` is returned.
	Blocks(ctx context.Context, from uint64, to *uint64) ([]model.Block, error)
	// Chain identifies the family this client serves.
	Chain() model.ChainFamily
}

// Receipt is the EVM-specific transaction receipt used by the filter engine.
type Receipt struct {
	TxHash      string
	Status      model.TxStatus
	GasUsed     uint64
	Logs        []Log
	BlockNumber uint64
}

// Log is a single EVM event log entry.
type Log struct {
	Address string
	Topics  []string
	Data    string
	TxHash  string
	LogIdx  uint
}

// EVMReceiptFetcher is implemented by EVM clients for the filter engine's
// event/receipt-based conditions.
type EVMReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, hash string) (*Receipt, error)
	Logs(ctx context.Context, from, to uint64) ([]Log, error)
}

// StellarEvent is a single Stellar contract/operation event.
type StellarEvent struct {
	LedgerSeq uint64
	TxHash    string
	Topic     []string
	Value     string
}

// StellarPagedFetcher is implemented by the Stellar client for the filter
// engine's transaction/event conditions; both are paginated internally
// (spec §4.3).
type StellarPagedFetcher interface {
	TransactionsInRange(ctx context.Context, fromSeq, toSeq uint64) ([]model.StellarTransaction, error)
	EventsInRange(ctx context.Context, fromSeq, toSeq uint64) ([]StellarEvent, error)
}

// ErrBlockNotFound is returned when a requested block/ledger does not exist.
type ErrBlockNotFound struct {
	Number uint64
}

func (e *ErrBlockNotFound) Error() string {
	return "chain: block not found"
}

// ErrInvalidHash is an internal validation error raised before any RPC call
// when a hash argument is not in the expected format.
type ErrInvalidHash struct {
	Hash string
}

func (e *ErrInvalidHash) Error() string {
	return "chain: invalid hash format: " + e.Hash
}

// ErrMalformedResponse is returned when a chain node's response cannot be
// decoded into the expected shape.
type ErrMalformedResponse struct {
	Detail string
}

func (e *ErrMalformedResponse) Error() string {
	return "chain: malformed response: " + e.Detail
}
