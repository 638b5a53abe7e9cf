package adminapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainwatch/monitor/infrastructure/config"
	"github.com/chainwatch/monitor/infrastructure/logging"
	"github.com/chainwatch/monitor/infrastructure/secrets"
	"github.com/chainwatch/monitor/internal/model"
)

func testBundle() *config.Bundle {
	return &config.Bundle{
		Networks: map[string]*model.Network{
			"ethereum_mainnet": {
				Slug:  "ethereum_mainnet",
				Chain: model.ChainEVM,
				RpcURLs: []model.RpcURL{
					{Kind: "http", URL: secrets.Plain("https://rpc.example.com"), Weight: 100},
				},
				BlockTimeMs:        12000,
				ConfirmationBlocks: 2,
				CronSchedule:       "*/15 * * * * *",
			},
		},
		Monitors: []*model.Monitor{
			{Name: "usdc-transfers", Networks: []string{"ethereum_mainnet"}},
		},
		Triggers: map[string]*model.Trigger{},
	}
}

func newTestServer() (*Server, *httptest.Server) {
	s := NewServer(testBundle(), logging.New("adminapi-test", "error", "text"))
	return s, httptest.NewServer(s.Handler())
}

func TestListNetworksRedactsSecret(t *testing.T) {
	_, srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/networks")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := decodeBody(t, resp)
	assert.NotContains(t, body, "rpc.example.com")
}

func TestGetNetworkNotFound(t *testing.T) {
	_, srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/networks/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPauseThenResumeMonitor(t *testing.T) {
	s, srv := newTestServer()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/monitors/usdc-transfers/pause", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, s.bundle.MonitorsForNetwork("ethereum_mainnet"))

	resp, err = http.Post(srv.URL+"/monitors/usdc-transfers/resume", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, s.bundle.MonitorsForNetwork("ethereum_mainnet"), 1)
}

func TestPauseUnknownMonitorReturnsNotFound(t *testing.T) {
	_, srv := newTestServer()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/monitors/does-not-exist/pause", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func decodeBody(t *testing.T, resp *http.Response) (string, map[string]any) {
	t.Helper()
	var raw map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	encoded, err := json.Marshal(raw)
	require.NoError(t, err)
	return string(encoded), raw
}
