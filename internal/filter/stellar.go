package filter

import (
	"context"
	"strconv"

	"github.com/chainwatch/monitor/infrastructure/logging"
	"github.com/chainwatch/monitor/internal/chain"
	"github.com/chainwatch/monitor/internal/filter/expr"
	"github.com/chainwatch/monitor/internal/model"
)

// filterStellarBlock evaluates TransactionConditions against a ledger's
// transactions directly, and EventConditions against the ledger's events
// fetched via StellarPagedFetcher. model.StellarTransaction carries only
// {Hash, Status} (no invocation payload), so function-signature matching —
// meaningful for Soroban contract invocations — is not attempted here; only
// transaction-status and event-topic conditions apply to Stellar monitors.
func filterStellarBlock(ctx context.Context, client chain.BlockChainClient, network *model.Network, block *model.StellarBlock, monitors []model.Monitor, logger *logging.Logger) ([]model.MatchRecord, error) {
	pagedFetcher, _ := client.(chain.StellarPagedFetcher)

	var events []chain.StellarEvent
	needsEvents := false
	for _, m := range monitors {
		if len(m.Conditions.Events) > 0 {
			needsEvents = true
			break
		}
	}
	if needsEvents && pagedFetcher != nil {
		fetched, err := pagedFetcher.EventsInRange(ctx, block.LedgerSeq, block.LedgerSeq)
		if err == nil {
			events = fetched
		}
	}

	var records []model.MatchRecord
	for _, tx := range block.Transactions {
		for i := range monitors {
			m := &monitors[i]
			if m.HasAddressFilter() {
				// Stellar transactions carry no participant address in the
				// minimal data model; an address-scoped monitor can only
				// match via its event conditions below.
				if len(m.Conditions.Transactions) > 0 && len(m.Conditions.Events) == 0 {
					continue
				}
			}

			var sigs []model.MatchedSignature

			for _, cond := range m.Conditions.Transactions {
				matched, err := matchStellarTransactionCondition(cond, tx)
				if err != nil {
					logConditionError(ctx, logger, m.Name, cond.Signature, err)
					continue
				}
				if matched {
					sigs = append(sigs, model.MatchedSignature{Signature: cond.Signature, Kind: "transaction"})
				}
			}

			for _, cond := range m.Conditions.Events {
				for _, ev := range events {
					if ev.TxHash != tx.Hash {
						continue
					}
					matched, args, err := matchStellarEventCondition(cond, m, ev)
					if err != nil {
						logConditionError(ctx, logger, m.Name, cond.Signature, err)
						continue
					}
					if matched {
						sigs = append(sigs, model.MatchedSignature{Signature: cond.Signature, Kind: "event", Args: args})
					}
				}
			}

			if len(sigs) > 0 {
				records = append(records, model.MatchRecord{
					Network:    network.Slug,
					Monitor:    m.Name,
					Chain:      model.ChainStellar,
					BlockNum:   block.LedgerSeq,
					TxHash:     tx.Hash,
					Signatures: sigs,
					TriggerIDs: m.TriggerIDs,
				})
			}
		}
	}
	return records, nil
}

func matchStellarTransactionCondition(cond model.SignatureCondition, tx model.StellarTransaction) (bool, error) {
	name := signatureName(cond.Signature)
	wanted := model.TxStatus(name)
	if wanted == "" {
		wanted = model.TxStatusAny
	}
	if wanted != model.TxStatusAny && tx.Status != wanted {
		return false, nil
	}
	params := expr.Params{
		"hash":   {Value: tx.Hash, Kind: "string"},
		"status": {Value: string(tx.Status), Kind: "string"},
	}
	return evaluateOptionalExpression(cond.Expression, params)
}

func matchStellarEventCondition(cond model.SignatureCondition, m *model.Monitor, ev chain.StellarEvent) (bool, map[string]any, error) {
	if len(ev.Topic) == 0 {
		return false, nil, nil
	}
	wantSig := NormalizeSignature(cond.Signature)
	if NormalizeSignature(ev.Topic[0]) != wantSig {
		return false, nil, nil
	}
	params := stellarEventParams(ev)
	ok, err := evaluateOptionalExpression(cond.Expression, params)
	if err != nil || !ok {
		return false, nil, err
	}
	return true, paramsToArgs(params), nil
}

// stellarEventParams exposes the event's topics and decoded value to the
// expression evaluator. Topic elements beyond the signature name are
// surfaced positionally as topic1, topic2, ...; value is handed through
// as a "map" kind so the evaluator's Stellar map-shorthand normalization
// applies when it is not already valid JSON (spec §4.5.1).
func stellarEventParams(ev chain.StellarEvent) expr.Params {
	params := expr.Params{
		"value": {Value: ev.Value, Kind: "map"},
	}
	for i, t := range ev.Topic {
		if i == 0 {
			continue
		}
		params[topicParamName(i)] = expr.Param{Value: t, Kind: "string"}
	}
	return params
}

func topicParamName(i int) string {
	return "topic" + strconv.Itoa(i)
}
