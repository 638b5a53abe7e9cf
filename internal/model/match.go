package model

import "time"

// MatchedSignature records which signature fired and its decoded arguments.
type MatchedSignature struct {
	Signature string         `json:"signature"`
	Kind      string         `json:"kind"` // "function", "event", or "transaction"
	Args      map[string]any `json:"args,omitempty"`
}

// MatchRecord is the filter engine's output: one per (monitor, transaction)
// pair with at least one satisfied condition.
type MatchRecord struct {
	Network    string             `json:"network"`
	Monitor    string             `json:"monitor"`
	Chain      ChainFamily        `json:"chain"`
	BlockNum   uint64             `json:"block_number"`
	TxHash     string             `json:"tx_hash"`
	Signatures []MatchedSignature `json:"signatures"`
	TriggerIDs []string           `json:"trigger_ids"`
}

// ProcessedBlock is stage 1's pipeline output, consumed by stage 2.
type ProcessedBlock struct {
	NetworkSlug string
	BlockNumber uint64
	Matches     []MatchRecord
}

// MissedBlockStatus tracks a MissedBlockEntry through the recovery job.
type MissedBlockStatus string

const (
	MissedPending    MissedBlockStatus = "pending"
	MissedRecovering MissedBlockStatus = "recovering"
	MissedRecovered  MissedBlockStatus = "recovered"
	MissedFailed     MissedBlockStatus = "failed"
)

// MissedBlockEntry is a block that was fetched but whose processing failed,
// queued for retry by the recovery job.
type MissedBlockEntry struct {
	BlockNumber uint64            `json:"block_number"`
	FirstSeenAt time.Time         `json:"first_seen_at"`
	RetryCount  int               `json:"retry_count"`
	Status      MissedBlockStatus `json:"status"`
	LastError   string            `json:"last_error,omitempty"`
}
