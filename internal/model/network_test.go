package model

import (
	"testing"

	"github.com/chainwatch/monitor/infrastructure/secrets"
	"github.com/stretchr/testify/assert"
)

func validNetwork() Network {
	return Network{
		Slug:               "ethereum_mainnet",
		Chain:              ChainEVM,
		RpcURLs:            []RpcURL{{Kind: "http", URL: secrets.Plain("https://rpc.example.com"), Weight: 100}},
		BlockTimeMs:        12000,
		ConfirmationBlocks: 2,
		CronSchedule:       "*/15 * * * * *",
	}
}

func TestNetworkValidateAccepts(t *testing.T) {
	n := validNetwork()
	assert.NoError(t, n.Validate())
}

func TestNetworkValidateRejectsBadSlug(t *testing.T) {
	n := validNetwork()
	n.Slug = "Ethereum Mainnet"
	assert.Error(t, n.Validate())
}

func TestNetworkValidateRejectsNoRPCURLs(t *testing.T) {
	n := validNetwork()
	n.RpcURLs = nil
	assert.Error(t, n.Validate())
}

func TestNetworkValidateRejectsWeightOutOfRange(t *testing.T) {
	n := validNetwork()
	n.RpcURLs[0].Weight = 150
	assert.Error(t, n.Validate())
}

func TestRecommendedMaxPastBlocks(t *testing.T) {
	n := validNetwork()
	got := n.RecommendedMaxPastBlocks(60000)
	assert.Equal(t, uint64(60000/12000+2+1), got)
}

func TestEffectiveMaxPastBlocksUsesOverride(t *testing.T) {
	n := validNetwork()
	override := uint64(50)
	n.MaxPastBlocks = &override
	assert.Equal(t, uint64(50), n.EffectiveMaxPastBlocks(60000))
}
