package trigger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainwatch/monitor/infrastructure/logging"
	"github.com/chainwatch/monitor/infrastructure/metrics"
	"github.com/chainwatch/monitor/infrastructure/secrets"
	"github.com/chainwatch/monitor/internal/model"
)

type fakeTriggerSource struct {
	triggers map[string]*model.Trigger
}

func (f *fakeTriggerSource) Lookup(id string) (*model.Trigger, bool) {
	t, ok := f.triggers[id]
	return t, ok
}

func newTestDispatcher(triggers map[string]*model.Trigger) *Dispatcher {
	logger := logging.New("trigger-test", "error", "text")
	m := metrics.NewWithRegistry("trigger-test", prometheus.NewRegistry())
	return NewDispatcher(&fakeTriggerSource{triggers: triggers}, nil, logger, m)
}

func TestHandleDispatchesWebhookTrigger(t *testing.T) {
	var hit bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	trig := &model.Trigger{
		Name: "on-transfer",
		Kind: model.TriggerWebhook,
		Webhook: &model.WebhookConfig{
			URL:      secrets.Plain(srv.URL),
			Template: model.Template{Title: "Match on ${network.slug}", Body: "tx ${transaction.hash}"},
		},
	}
	d := newTestDispatcher(map[string]*model.Trigger{"t1": trig})

	block := model.ProcessedBlock{Matches: []model.MatchRecord{{
		Network: "ethereum_mainnet", Monitor: "m1", TxHash: "0xabc", TriggerIDs: []string{"t1"},
	}}}

	d.Handle(context.Background(), block)
	assert.True(t, hit)
}

func TestHandleSkipsUnknownTriggerWithoutPanicking(t *testing.T) {
	d := newTestDispatcher(map[string]*model.Trigger{})
	block := model.ProcessedBlock{Matches: []model.MatchRecord{{
		Network: "ethereum_mainnet", Monitor: "m1", TriggerIDs: []string{"missing"},
	}}}

	require.NotPanics(t, func() { d.Handle(context.Background(), block) })
}

func TestHandleNoMatchesIsNoOp(t *testing.T) {
	d := newTestDispatcher(map[string]*model.Trigger{})
	require.NotPanics(t, func() { d.Handle(context.Background(), model.ProcessedBlock{}) })
}
