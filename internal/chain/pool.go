package chain

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/chainwatch/monitor/infrastructure/errors"
	"github.com/chainwatch/monitor/infrastructure/logging"
	"github.com/chainwatch/monitor/infrastructure/metrics"
	"github.com/chainwatch/monitor/infrastructure/secrets"
	"github.com/chainwatch/monitor/internal/model"
	"github.com/chainwatch/monitor/internal/transport"
)

// Pool lazily builds and caches one BlockChainClient per network slug,
// avoiding redundant endpoint managers/HTTP clients when the same network
// backs several monitors.
type Pool struct {
	mu        sync.Mutex
	clients   map[string]BlockChainClient
	resolver  *secrets.Resolver
	logger    *logging.Logger
	metrics   *metrics.Metrics
	httpClient *http.Client
}

// NewPool builds an empty client pool.
func NewPool(resolver *secrets.Resolver, logger *logging.Logger, m *metrics.Metrics) *Pool {
	return &Pool{
		clients:    make(map[string]BlockChainClient),
		resolver:   resolver,
		logger:     logger,
		metrics:    m,
		httpClient: &http.Client{},
	}
}

// Get returns the client for network, building and caching it on first use.
func (p *Pool) Get(ctx context.Context, network *model.Network) (BlockChainClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[network.Slug]; ok {
		return client, nil
	}

	client, err := p.build(ctx, network)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, "chain.pool", "build client", err).
			WithMetadata("network", network.Slug)
	}
	p.clients[network.Slug] = client
	return client, nil
}

// Evict drops a cached client, forcing the next Get to rebuild it (used
// after a network's configuration is reloaded).
func (p *Pool) Evict(slug string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, slug)
}

// Put seeds the pool with a pre-built client for slug, bypassing build.
// Used by watcher/recovery tests to inject fakes without a live RPC.
func (p *Pool) Put(slug string, client BlockChainClient) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[slug] = client
}

func (p *Pool) build(ctx context.Context, network *model.Network) (BlockChainClient, error) {
	switch network.Chain {
	case model.ChainStellar:
		urls, err := p.resolveURLs(ctx, network)
		if err != nil {
			return nil, err
		}
		return NewStellarClient(urls[0]), nil
	case model.ChainEVM, model.ChainMidnight, model.ChainSolana:
		em, err := transport.NewEndpointManagerFromNetwork(ctx, network, p.resolveOne)
		if err != nil {
			return nil, err
		}
		tc := transport.NewClient(network.Slug, em, p.httpClient, p.logger, p.metrics)
		switch network.Chain {
		case model.ChainEVM:
			return NewEVMClient(tc), nil
		case model.ChainSolana:
			return NewSolanaClient(tc), nil
		default:
			return NewMidnightClient(tc), nil
		}
	default:
		return nil, fmt.Errorf("chain: unsupported chain family %q", network.Chain)
	}
}

func (p *Pool) resolveOne(ctx context.Context, rpc model.RpcURL) (string, error) {
	return rpc.URL.Resolve(ctx, p.resolver)
}

func (p *Pool) resolveURLs(ctx context.Context, network *model.Network) ([]string, error) {
	urls := make([]string, 0, len(network.RpcURLs))
	for _, rpc := range network.RpcURLs {
		resolved, err := p.resolveOne(ctx, rpc)
		if err != nil {
			return nil, err
		}
		urls = append(urls, resolved)
	}
	return urls, nil
}
