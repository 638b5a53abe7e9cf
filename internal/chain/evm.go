package chain

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/chainwatch/monitor/internal/model"
	"github.com/chainwatch/monitor/internal/transport"
)

var evmHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// EVMClient implements BlockChainClient + EVMReceiptFetcher over a JSON-RPC
// transport client (spec §4.3).
type EVMClient struct {
	transport *transport.Client
}

// NewEVMClient wraps a transport client for an EVM-family network.
func NewEVMClient(t *transport.Client) *EVMClient {
	return &EVMClient{transport: t}
}

func (c *EVMClient) Chain() model.ChainFamily { return model.ChainEVM }

// LatestBlockNumber calls eth_blockNumber.
func (c *EVMClient) LatestBlockNumber(ctx context.Context) (uint64, error) {
	raw, err := c.transport.SendRaw(ctx, "eth_blockNumber", []any{})
	if err != nil {
		return 0, err
	}
	var hexNum string
	if err := json.Unmarshal(raw, &hexNum); err != nil {
		return 0, &ErrMalformedResponse{Detail: err.Error()}
	}
	n, err := hexutil.DecodeUint64(hexNum)
	if err != nil {
		return 0, &ErrMalformedResponse{Detail: err.Error()}
	}
	return n, nil
}

// Blocks fetches the inclusive range [from, to] via eth_getBlockByNumber
// with full transaction objects.
func (c *EVMClient) Blocks(ctx context.Context, from uint64, to *uint64) ([]model.Block, error) {
	end := from
	if to != nil {
		end = *to
	}
	blocks := make([]model.Block, 0, end-from+1)
	for n := from; n <= end; n++ {
		block, err := c.blockByNumber(ctx, n)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

type rpcEVMBlock struct {
	Number       string        `json:"number"`
	Hash         string        `json:"hash"`
	Transactions []rpcEVMTxRaw `json:"transactions"`
}

type rpcEVMTxRaw struct {
	Hash     string `json:"hash"`
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value"`
	GasPrice string `json:"gasPrice"`
	Input    string `json:"input"`
}

func (c *EVMClient) blockByNumber(ctx context.Context, number uint64) (model.Block, error) {
	raw, err := c.transport.SendRaw(ctx, "eth_getBlockByNumber", []any{hexutil.EncodeUint64(number), true})
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, &ErrBlockNotFound{Number: number}
	}

	var rb rpcEVMBlock
	if err := json.Unmarshal(raw, &rb); err != nil {
		return nil, &ErrMalformedResponse{Detail: err.Error()}
	}

	txs := make([]model.EVMTransaction, 0, len(rb.Transactions))
	for _, rt := range rb.Transactions {
		txs = append(txs, model.EVMTransaction{
			Hash:     rt.Hash,
			From:     common.HexToAddress(rt.From).Hex(),
			To:       normalizeOptionalAddress(rt.To),
			Value:    rt.Value,
			GasPrice: rt.GasPrice,
			Input:    rt.Input,
			Status:   model.TxStatusAny,
		})
	}

	return &model.EVMBlock{
		BlockNumber:  number,
		Hash:         rb.Hash,
		Transactions: txs,
	}, nil
}

func normalizeOptionalAddress(addr string) string {
	if addr == "" {
		return ""
	}
	return common.HexToAddress(addr).Hex()
}

// TransactionReceipt calls eth_getTransactionReceipt.
func (c *EVMClient) TransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	if !evmHashPattern.MatchString(hash) {
		return nil, &ErrInvalidHash{Hash: hash}
	}

	raw, err := c.transport.SendRaw(ctx, "eth_getTransactionReceipt", []any{hash})
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, &ErrBlockNotFound{}
	}

	var rr struct {
		Status      string `json:"status"`
		GasUsed     string `json:"gasUsed"`
		BlockNumber string `json:"blockNumber"`
		Logs        []struct {
			Address string   `json:"address"`
			Topics  []string `json:"topics"`
			Data    string   `json:"data"`
			TxHash  string   `json:"transactionHash"`
			LogIdx  string   `json:"logIndex"`
		} `json:"logs"`
	}
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, &ErrMalformedResponse{Detail: err.Error()}
	}

	status := model.TxStatusFailure
	if rr.Status == "0x1" {
		status = model.TxStatusSuccess
	}

	gasUsed, _ := hexutil.DecodeUint64(rr.GasUsed)
	blockNum, _ := hexutil.DecodeUint64(rr.BlockNumber)

	logs := make([]Log, 0, len(rr.Logs))
	for _, l := range rr.Logs {
		idx, _ := hexutil.DecodeUint64(l.LogIdx)
		logs = append(logs, Log{
			Address: l.Address,
			Topics:  l.Topics,
			Data:    l.Data,
			TxHash:  l.TxHash,
			LogIdx:  uint(idx),
		})
	}

	return &Receipt{
		TxHash:      hash,
		Status:      status,
		GasUsed:     gasUsed,
		Logs:        logs,
		BlockNumber: blockNum,
	}, nil
}

// Logs calls eth_getLogs over the inclusive block range [from, to].
func (c *EVMClient) Logs(ctx context.Context, from, to uint64) ([]Log, error) {
	params := map[string]any{
		"fromBlock": hexutil.EncodeUint64(from),
		"toBlock":   hexutil.EncodeUint64(to),
	}
	raw, err := c.transport.SendRaw(ctx, "eth_getLogs", []any{params})
	if err != nil {
		return nil, err
	}

	var rawLogs []struct {
		Address string   `json:"address"`
		Topics  []string `json:"topics"`
		Data    string   `json:"data"`
		TxHash  string   `json:"transactionHash"`
		LogIdx  string   `json:"logIndex"`
	}
	if err := json.Unmarshal(raw, &rawLogs); err != nil {
		return nil, &ErrMalformedResponse{Detail: err.Error()}
	}

	logs := make([]Log, 0, len(rawLogs))
	for _, l := range rawLogs {
		idx, _ := hexutil.DecodeUint64(l.LogIdx)
		logs = append(logs, Log{
			Address: l.Address,
			Topics:  l.Topics,
			Data:    l.Data,
			TxHash:  l.TxHash,
			LogIdx:  uint(idx),
		})
	}
	return logs, nil
}
