// Package filter implements the monitor match engine (spec §4.5): given a
// decoded block and the monitors configured for its network, it evaluates
// each monitor's transaction/function/event conditions and emits one
// MatchRecord per (monitor, transaction) pair with at least one hit.
package filter

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/chainwatch/monitor/infrastructure/logging"
	"github.com/chainwatch/monitor/internal/chain"
	"github.com/chainwatch/monitor/internal/filter/expr"
	"github.com/chainwatch/monitor/internal/model"
)

// BlockTypeMismatchError is returned when a block's chain family does not
// match the network it was fetched for.
type BlockTypeMismatchError struct {
	Network string
	Want    model.ChainFamily
	Got     model.ChainFamily
}

func (e *BlockTypeMismatchError) Error() string {
	return fmt.Sprintf("filter: network %s expects chain %q, block is %q", e.Network, e.Want, e.Got)
}

var signatureNamePattern = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// FilterBlock evaluates every monitor that applies to network against
// block, returning one MatchRecord per matching (monitor, transaction). A
// per-condition expression or decode error is logged and treated as a
// non-match (spec §4.5.1, §7 Filter.InternalError/Expression errors) — it
// never aborts the block, so one monitor's bad condition can't drop every
// other monitor's valid matches.
func FilterBlock(ctx context.Context, client chain.BlockChainClient, network *model.Network, block model.Block, monitors []model.Monitor, logger *logging.Logger) ([]model.MatchRecord, error) {
	if block.Chain() != network.Chain {
		return nil, &BlockTypeMismatchError{Network: network.Slug, Want: network.Chain, Got: block.Chain()}
	}

	relevant := monitorsForNetwork(monitors, network.Slug)
	if len(relevant) == 0 {
		return nil, nil
	}

	switch b := block.(type) {
	case *model.EVMBlock:
		return filterEVMBlock(ctx, client, network, b, relevant, logger)
	case *model.StellarBlock:
		return filterStellarBlock(ctx, client, network, b, relevant, logger)
	case *model.MidnightBlock:
		// Transaction decoding is left abstract for Midnight (spec §9); no
		// monitor condition can be evaluated against it yet.
		return nil, nil
	case *model.SolanaBlock:
		// Solana is a planned extension with no filter wired yet (spec §9).
		return nil, nil
	default:
		return nil, fmt.Errorf("filter: unsupported block type %T", block)
	}
}

func monitorsForNetwork(monitors []model.Monitor, slug string) []model.Monitor {
	var out []model.Monitor
	for _, m := range monitors {
		if m.Paused {
			continue
		}
		if m.AppliesToNetwork(slug) {
			out = append(out, m)
		}
	}
	return out
}

func signatureName(sig string) string {
	m := signatureNamePattern.FindStringSubmatch(sig)
	if len(m) < 2 {
		return ""
	}
	return strings.ToLower(m[1])
}

// logConditionError records a per-condition expression/decode failure
// without aborting the block it was found in — the condition simply
// evaluates to false and its monitor continues (spec §7).
func logConditionError(ctx context.Context, logger *logging.Logger, monitor, signature string, err error) {
	if logger == nil {
		return
	}
	logger.WithContext(ctx).WithError(err).
		WithField("monitor", monitor).
		WithField("signature", signature).
		Warn("condition evaluation failed, treating as no match")
}

func evaluateOptionalExpression(expression string, params expr.Params) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return true, nil
	}
	tree, err := expr.Parse(expression)
	if err != nil {
		return false, fmt.Errorf("filter: parse expression %q: %w", expression, err)
	}
	return expr.Evaluate(tree, params)
}

func addressSetMatches(m *model.Monitor, candidates ...string) bool {
	if !m.HasAddressFilter() {
		return true
	}
	for _, want := range m.Addresses {
		wantNorm := NormalizeAddress(want.Address)
		for _, got := range candidates {
			if got == "" {
				continue
			}
			if NormalizeAddress(got) == wantNorm {
				return true
			}
		}
	}
	return false
}

// addressABI returns the ABI blob configured for the first monitored
// address matching one of candidates, or "" if none declare one.
func addressABI(m *model.Monitor, candidates ...string) string {
	for _, want := range m.Addresses {
		wantNorm := NormalizeAddress(want.Address)
		for _, got := range candidates {
			if got != "" && NormalizeAddress(got) == wantNorm && want.ABI != "" {
				return want.ABI
			}
		}
	}
	return ""
}
