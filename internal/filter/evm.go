package filter

import (
	"bytes"
	"context"

	"github.com/chainwatch/monitor/infrastructure/logging"
	"github.com/chainwatch/monitor/internal/chain"
	"github.com/chainwatch/monitor/internal/filter/expr"
	"github.com/chainwatch/monitor/internal/model"
)

func filterEVMBlock(ctx context.Context, client chain.BlockChainClient, network *model.Network, block *model.EVMBlock, monitors []model.Monitor, logger *logging.Logger) ([]model.MatchRecord, error) {
	receiptFetcher, _ := client.(chain.EVMReceiptFetcher)

	var records []model.MatchRecord
	for _, tx := range block.Transactions {
		for i := range monitors {
			m := &monitors[i]

			// Transaction/function conditions are gated on the transaction's
			// own participants; event conditions are gated per-log below
			// since a monitored contract can be reached through an
			// intermediary (tx.To a router, not the monitored address).
			txAddressMatches := addressSetMatches(m, tx.From, tx.To)

			var receipt *chain.Receipt
			receiptLoaded := false
			loadReceipt := func() *chain.Receipt {
				if receiptLoaded {
					return receipt
				}
				receiptLoaded = true
				if receiptFetcher == nil {
					return nil
				}
				r, err := receiptFetcher.TransactionReceipt(ctx, tx.Hash)
				if err != nil {
					return nil
				}
				receipt = r
				return receipt
			}

			var sigs []model.MatchedSignature

			if txAddressMatches {
				for _, cond := range m.Conditions.Transactions {
					matched, err := matchEVMTransactionCondition(cond, tx, loadReceipt)
					if err != nil {
						logConditionError(ctx, logger, m.Name, cond.Signature, err)
						continue
					}
					if matched {
						sigs = append(sigs, model.MatchedSignature{Signature: cond.Signature, Kind: "transaction"})
					}
				}

				for _, cond := range m.Conditions.Functions {
					matched, args, err := matchEVMFunctionCondition(cond, m, tx)
					if err != nil {
						logConditionError(ctx, logger, m.Name, cond.Signature, err)
						continue
					}
					if matched {
						sigs = append(sigs, model.MatchedSignature{Signature: cond.Signature, Kind: "function", Args: args})
					}
				}
			}

			if len(m.Conditions.Events) > 0 {
				if r := loadReceipt(); r != nil {
					for _, cond := range m.Conditions.Events {
						for _, lg := range r.Logs {
							if !addressSetMatches(m, lg.Address) {
								continue
							}
							matched, args, err := matchEVMEventCondition(cond, m, lg)
							if err != nil {
								logConditionError(ctx, logger, m.Name, cond.Signature, err)
								continue
							}
							if matched {
								sigs = append(sigs, model.MatchedSignature{Signature: cond.Signature, Kind: "event", Args: args})
							}
						}
					}
				}
			}

			if len(sigs) > 0 {
				records = append(records, model.MatchRecord{
					Network:    network.Slug,
					Monitor:    m.Name,
					Chain:      model.ChainEVM,
					BlockNum:   block.BlockNumber,
					TxHash:     tx.Hash,
					Signatures: sigs,
					TriggerIDs: m.TriggerIDs,
				})
			}
		}
	}
	return records, nil
}

func matchEVMTransactionCondition(cond model.SignatureCondition, tx model.EVMTransaction, loadReceipt func() *chain.Receipt) (bool, error) {
	status := tx.Status
	name := signatureName(cond.Signature)
	wanted := model.TxStatus(name)
	if wanted == "" {
		wanted = model.TxStatusAny
	}
	if wanted != model.TxStatusAny {
		if r := loadReceipt(); r != nil {
			status = r.Status
		}
		if status != wanted {
			return false, nil
		}
	}

	params := expr.Params{
		"value":     {Value: tx.Value, Kind: "u256"},
		"from":      {Value: tx.From, Kind: "address"},
		"to":        {Value: tx.To, Kind: "address"},
		"hash":      {Value: tx.Hash, Kind: "string"},
		"gas_price": {Value: tx.GasPrice, Kind: "u256"},
		"status":    {Value: string(status), Kind: "string"},
	}
	return evaluateOptionalExpression(cond.Expression, params)
}

func matchEVMFunctionCondition(cond model.SignatureCondition, m *model.Monitor, tx model.EVMTransaction) (bool, map[string]any, error) {
	wantSig := NormalizeSignature(cond.Signature)
	abiJSON := addressABI(m, tx.From, tx.To)

	decoded, err := decodeFunctionCall(abiJSON, tx.Input)
	if err != nil {
		return false, nil, err
	}
	if decoded != nil {
		if NormalizeSignature(decoded.signature) != wantSig {
			return false, nil, nil
		}
		ok, err := evaluateOptionalExpression(cond.Expression, decoded.params)
		if err != nil || !ok {
			return false, nil, err
		}
		return true, paramsToArgs(decoded.params), nil
	}

	// No ABI available for this address: fall back to selector-only
	// matching computed from the declared signature, with no expression
	// support (there is nothing to evaluate it against).
	if cond.Expression != "" {
		return false, nil, nil
	}
	selector, err := computeSelector(cond.Signature)
	if err != nil {
		return false, nil, nil
	}
	data, err := hexToBytes(tx.Input)
	if err != nil || len(data) < 4 {
		return false, nil, nil
	}
	if !bytes.Equal(data[:4], selector) {
		return false, nil, nil
	}
	return true, nil, nil
}

func matchEVMEventCondition(cond model.SignatureCondition, m *model.Monitor, lg chain.Log) (bool, map[string]any, error) {
	wantSig := NormalizeSignature(cond.Signature)
	abiJSON := addressABI(m, lg.Address)

	decoded, err := decodeEventLog(abiJSON, lg.Topics, lg.Data)
	if err != nil {
		return false, nil, err
	}
	if decoded == nil {
		return false, nil, nil
	}
	if NormalizeSignature(decoded.signature) != wantSig {
		return false, nil, nil
	}
	ok, err := evaluateOptionalExpression(cond.Expression, decoded.params)
	if err != nil || !ok {
		return false, nil, err
	}
	return true, paramsToArgs(decoded.params), nil
}

func paramsToArgs(params expr.Params) map[string]any {
	args := make(map[string]any, len(params))
	for k, v := range params {
		args[k] = v.Value
	}
	return args
}
