package chain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainwatch/monitor/internal/model"
	"github.com/chainwatch/monitor/internal/transport"
)

func newTestEVMClient(t *testing.T, handler http.HandlerFunc) (*EVMClient, *httptest.Server) {
	srv := httptest.NewServer(handler)
	em, err := transport.NewEndpointManager("ethereum", []string{srv.URL}, []int{100})
	require.NoError(t, err)
	tc := transport.NewClient("ethereum", em, srv.Client(), nil, nil)
	return NewEVMClient(tc), srv
}

func TestLatestBlockNumberDecodesHex(t *testing.T) {
	client, srv := newTestEVMClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x2a"}`))
	})
	defer srv.Close()

	n, err := client.LatestBlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)
}

func TestBlocksFetchesInclusiveRange(t *testing.T) {
	var requests []string
	client, srv := newTestEVMClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Method)
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"number":"0x1","hash":"0xabc","transactions":[]}}`))
	})
	defer srv.Close()

	to := uint64(12)
	blocks, err := client.Blocks(context.Background(), 10, &to)
	require.NoError(t, err)
	assert.Len(t, blocks, 3)
	assert.Equal(t, model.ChainEVM, blocks[0].Chain())
}

func TestBlocksReturnsNotFoundForNullBlock(t *testing.T) {
	client, srv := newTestEVMClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
	})
	defer srv.Close()

	_, err := client.Blocks(context.Background(), 5, nil)
	var notFound *ErrBlockNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestTransactionReceiptRejectsInvalidHash(t *testing.T) {
	client, srv := newTestEVMClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not issue RPC call for invalid hash")
	})
	defer srv.Close()

	_, err := client.TransactionReceipt(context.Background(), "not-a-hash")
	var invalid *ErrInvalidHash
	assert.ErrorAs(t, err, &invalid)
}

func TestTransactionReceiptParsesStatus(t *testing.T) {
	hash := "0x" + repeatHexChar('a', 64)
	client, srv := newTestEVMClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"status":"0x1","gasUsed":"0x5208","blockNumber":"0x64","logs":[]}}`))
	})
	defer srv.Close()

	receipt, err := client.TransactionReceipt(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, model.TxStatusSuccess, receipt.Status)
	assert.Equal(t, uint64(0x5208), receipt.GasUsed)
	assert.Equal(t, uint64(0x64), receipt.BlockNumber)
}

func repeatHexChar(c byte, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = c
	}
	return string(b)
}
