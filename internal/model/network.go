// Package model holds the core data types shared across the monitor
// pipeline: networks, monitors, triggers, blocks, and match records. These
// are loaded once at startup and shared read-only by the pipeline.
package model

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/chainwatch/monitor/infrastructure/secrets"
)

// ChainFamily identifies the blockchain protocol family a Network belongs to.
type ChainFamily string

const (
	ChainEVM      ChainFamily = "evm"
	ChainStellar  ChainFamily = "stellar"
	ChainMidnight ChainFamily = "midnight"
	ChainSolana   ChainFamily = "solana"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// RpcURL is a single weighted RPC endpoint.
type RpcURL struct {
	Kind   string        `json:"kind"`
	URL    secrets.Secret `json:"url"`
	Weight int           `json:"weight"`
}

// RecoveryConfig configures the periodic missed-block recovery job.
type RecoveryConfig struct {
	CronSchedule     string `json:"cron_schedule"`
	MaxBlockAge      uint64 `json:"max_block_age"`
	MaxRetries       int    `json:"max_retries"`
	MaxBlocksPerRun  int    `json:"max_blocks_per_run"`
	RetryDelayMs     int    `json:"retry_delay_ms"`
}

// Network describes one monitored blockchain network.
type Network struct {
	Slug               string          `json:"slug"`
	Chain              ChainFamily     `json:"chain"`
	ChainID            *uint64         `json:"chain_id,omitempty"`
	RpcURLs            []RpcURL        `json:"rpc_urls"`
	BlockTimeMs        uint64          `json:"block_time_ms"`
	ConfirmationBlocks uint64          `json:"confirmation_blocks"`
	CronSchedule       string          `json:"cron_schedule"`
	MaxPastBlocks      *uint64         `json:"max_past_blocks,omitempty"`
	StoreBlocks        bool            `json:"store_blocks,omitempty"`
	Recovery           *RecoveryConfig `json:"recovery,omitempty"`
}

// Validate enforces the invariants from spec §3: slug shape, at least one RPC
// URL, every weight in [0,100], block time and confirmation depth sane.
func (n *Network) Validate() error {
	if !slugPattern.MatchString(n.Slug) {
		return fmt.Errorf("network slug %q must match [a-z0-9_]+", n.Slug)
	}
	switch n.Chain {
	case ChainEVM, ChainStellar, ChainMidnight, ChainSolana:
	default:
		return fmt.Errorf("network %s: unknown chain family %q", n.Slug, n.Chain)
	}
	if len(n.RpcURLs) == 0 {
		return fmt.Errorf("network %s: at least one rpc_url is required", n.Slug)
	}
	for i, u := range n.RpcURLs {
		if u.Weight < 0 || u.Weight > 100 {
			return fmt.Errorf("network %s: rpc_urls[%d] weight %d out of range 0..100", n.Slug, i, u.Weight)
		}
	}
	if n.BlockTimeMs < 100 {
		return fmt.Errorf("network %s: block_time_ms must be >= 100", n.Slug)
	}
	if n.ConfirmationBlocks < 1 {
		return fmt.Errorf("network %s: confirmation_blocks must be >= 1", n.Slug)
	}
	if strings.TrimSpace(n.CronSchedule) == "" {
		return fmt.Errorf("network %s: cron_schedule is required", n.Slug)
	}
	return nil
}

// RecommendedMaxPastBlocks computes the default from spec §4.4 step 4.
func (n *Network) RecommendedMaxPastBlocks(cronIntervalMs uint64) uint64 {
	if n.BlockTimeMs == 0 {
		return n.ConfirmationBlocks + 1
	}
	return cronIntervalMs/n.BlockTimeMs + n.ConfirmationBlocks + 1
}

// EffectiveMaxPastBlocks returns MaxPastBlocks if configured, else the
// recommended default.
func (n *Network) EffectiveMaxPastBlocks(cronIntervalMs uint64) uint64 {
	if n.MaxPastBlocks != nil {
		return *n.MaxPastBlocks
	}
	return n.RecommendedMaxPastBlocks(cronIntervalMs)
}
