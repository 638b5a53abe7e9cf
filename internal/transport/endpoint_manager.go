// Package transport implements the per-network endpoint manager and JSON-RPC
// transport client (spec §4.1-4.2): weighted endpoint ordering, rotation on
// transport failure, and exponential-backoff retry.
package transport

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/chainwatch/monitor/infrastructure/errors"
	"github.com/chainwatch/monitor/internal/model"
)

// ErrNoHealthyEndpoint is returned when rotation finds no usable fallback.
var ErrNoHealthyEndpoint = fmt.Errorf("transport: no healthy endpoint")

// EndpointManager holds one active URL and an ordered list of fallback URLs
// per network. Reads (Current) proceed concurrently; Rotate is serialized by
// an exclusive lock (spec §4.1).
type EndpointManager struct {
	mu        sync.RWMutex
	network   string
	active    string
	fallbacks []string
}

// weightedURL pairs a resolved URL with the weight it was configured with,
// used only to establish the initial descending-weight order.
type weightedURL struct {
	url    string
	weight int
	order  int
}

// NewEndpointManager builds the manager from a set of already-resolved URLs
// and their configured weights. Initial order is strictly descending weight;
// ties are broken by configuration order (spec §4.1).
func NewEndpointManager(network string, urls []string, weights []int) (*EndpointManager, error) {
	if len(urls) == 0 {
		return nil, errors.New(errors.KindConfig, "transport.endpoint_manager", "at least one RPC URL required")
	}
	weighted := make([]weightedURL, len(urls))
	for i, u := range urls {
		w := 0
		if i < len(weights) {
			w = weights[i]
		}
		weighted[i] = weightedURL{url: u, weight: w, order: i}
	}
	sort.SliceStable(weighted, func(i, j int) bool {
		return weighted[i].weight > weighted[j].weight
	})

	ordered := make([]string, len(weighted))
	for i, w := range weighted {
		ordered[i] = w.url
	}

	return &EndpointManager{
		network:   network,
		active:    ordered[0],
		fallbacks: ordered[1:],
	}, nil
}

// NewEndpointManagerFromNetwork resolves each of the network's RPC URL
// secrets via resolveFn and builds the manager from them.
func NewEndpointManagerFromNetwork(ctx context.Context, network *model.Network, resolveFn func(context.Context, model.RpcURL) (string, error)) (*EndpointManager, error) {
	urls := make([]string, 0, len(network.RpcURLs))
	weights := make([]int, 0, len(network.RpcURLs))
	for _, rpc := range network.RpcURLs {
		resolved, err := resolveFn(ctx, rpc)
		if err != nil {
			return nil, errors.Wrap(errors.KindConfig, "transport.endpoint_manager", "resolve RPC URL secret", err)
		}
		urls = append(urls, resolved)
		weights = append(weights, rpc.Weight)
	}
	return NewEndpointManager(network.Slug, urls, weights)
}

// Current returns the active URL. Concurrent-safe.
func (e *EndpointManager) Current() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// EndpointCount returns the total number of configured endpoints (active +
// fallbacks), used by callers to bound rotation attempts.
func (e *EndpointManager) EndpointCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return 1 + len(e.fallbacks)
}

// Rotate selects the first fallback, invokes probe against it, and on
// success swaps it in as the active endpoint, pushing the old active to the
// tail of the fallback list. On probe failure the candidate is returned to
// the tail and Rotate fails with ErrNoHealthyEndpoint. Serialized by an
// exclusive lock; Current may still be read concurrently by other
// goroutines mid-rotation (spec §4.1).
func (e *EndpointManager) Rotate(ctx context.Context, probe func(ctx context.Context, candidate string) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.fallbacks) == 0 {
		return errors.Wrap(errors.KindTransport, "transport.endpoint_manager", "rotate", ErrNoHealthyEndpoint).
			WithMetadata("network", e.network)
	}

	candidate := e.fallbacks[0]
	rest := append([]string(nil), e.fallbacks[1:]...)

	if err := probe(ctx, candidate); err != nil {
		e.fallbacks = append(rest, candidate)
		return errors.Wrap(errors.KindTransport, "transport.endpoint_manager", "rotate", ErrNoHealthyEndpoint).
			WithMetadata("network", e.network).
			WithMetadata("candidate_error", err.Error())
	}

	oldActive := e.active
	e.active = candidate
	e.fallbacks = append(rest, oldActive)
	return nil
}
