// Package tracker implements the block tracker (spec §4.6): a bounded,
// per-network sliding window of recently processed block numbers used for
// diagnostics only — it never gates cursor advancement, which is owned by
// storage.BlockStorage's last-processed value. An optional Redis mirror
// publishes each network's most recent block number (not the whole window)
// so other monitor instances can observe it, the
// way the teacher's platform layer treats its cache driver as a sidecar to
// the authoritative store rather than a source of truth (system/platform).
package tracker

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultCapacity is the default number of block numbers retained per
// network.
const DefaultCapacity = 1000

// Tracker holds a bounded window of recently seen block numbers per
// network, for health/diagnostics endpoints — not for correctness.
type Tracker struct {
	capacity int

	mu     sync.Mutex
	queues map[string][]uint64

	cache *redisMirror
}

// New creates a Tracker with the given per-network capacity. capacity <= 0
// falls back to DefaultCapacity.
func New(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{capacity: capacity, queues: make(map[string][]uint64)}
}

// WithRedisMirror attaches a Redis client used to publish each network's
// most recent block number so other monitor instances can observe it; the
// rest of the window is not mirrored. Mirroring is
// best-effort: failures are swallowed since the in-memory window remains
// authoritative for this process.
func (t *Tracker) WithRedisMirror(client *redis.Client, keyPrefix string, ttl time.Duration) *Tracker {
	t.cache = &redisMirror{client: client, keyPrefix: keyPrefix, ttl: ttl}
	return t
}

// Record appends a processed block number to network's window, trimming
// from the front once capacity is exceeded.
func (t *Tracker) Record(ctx context.Context, network string, blockNumber uint64) {
	t.mu.Lock()
	q := append(t.queues[network], blockNumber)
	if over := len(q) - t.capacity; over > 0 {
		q = q[over:]
	}
	t.queues[network] = q
	window := append([]uint64(nil), q...)
	t.mu.Unlock()

	if t.cache != nil {
		t.cache.publish(ctx, network, window)
	}
}

// LastBlock returns the most recently recorded block number for network,
// or nil if nothing has been recorded.
func (t *Tracker) LastBlock(network string) *uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := t.queues[network]
	if len(q) == 0 {
		return nil
	}
	last := q[len(q)-1]
	return &last
}

// Window returns a copy of the currently tracked block numbers for
// network, oldest first.
func (t *Tracker) Window(network string) []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := t.queues[network]
	return append([]uint64(nil), q...)
}

type redisMirror struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func (r *redisMirror) publish(ctx context.Context, network string, window []uint64) {
	if len(window) == 0 {
		return
	}
	key := r.keyPrefix + ":" + network + ":last_block"
	// Best effort: an unreachable cache must never block block processing.
	_ = r.client.Set(ctx, key, strconv.FormatUint(window[len(window)-1], 10), r.ttl).Err()
}
