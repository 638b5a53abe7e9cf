package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainwatch/monitor/infrastructure/logging"
	"github.com/chainwatch/monitor/infrastructure/metrics"
	"github.com/chainwatch/monitor/internal/chain"
	"github.com/chainwatch/monitor/internal/model"
	"github.com/chainwatch/monitor/internal/tracker"
)

type fakeClient struct {
	chainFamily model.ChainFamily
	latest      uint64
	latestErr   error
	blocks      map[uint64]model.Block
	blocksErr   error
}

func (f *fakeClient) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return f.latest, f.latestErr
}

func (f *fakeClient) Blocks(ctx context.Context, from uint64, to *uint64) ([]model.Block, error) {
	if f.blocksErr != nil {
		return nil, f.blocksErr
	}
	end := from
	if to != nil {
		end = *to
	}
	var out []model.Block
	for n := from; n <= end; n++ {
		if b, ok := f.blocks[n]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeClient) Chain() model.ChainFamily { return f.chainFamily }

type fakeStorage struct {
	mu            sync.Mutex
	lastProcessed map[string]uint64
	missed        map[string][]uint64
	savedBlocks   map[string][]json.RawMessage
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		lastProcessed: make(map[string]uint64),
		missed:        make(map[string][]uint64),
		savedBlocks:   make(map[string][]json.RawMessage),
	}
}

func (s *fakeStorage) GetLastProcessed(ctx context.Context, network string) (*uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.lastProcessed[network]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

func (s *fakeStorage) SaveLastProcessed(ctx context.Context, network string, n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastProcessed[network] = n
	return nil
}

func (s *fakeStorage) SaveBlocks(ctx context.Context, network string, blocks []json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedBlocks[network] = blocks
	return nil
}

func (s *fakeStorage) DeleteBlocks(ctx context.Context, network string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.savedBlocks, network)
	return nil
}

func (s *fakeStorage) SaveMissedBlock(ctx context.Context, network string, n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missed[network] = append(s.missed[network], n)
	return nil
}

func (s *fakeStorage) GetMissedBlocks(ctx context.Context, network string, maxAge, currentConfirmed uint64) ([]model.MissedBlockEntry, error) {
	return nil, nil
}

func (s *fakeStorage) UpdateMissedBlockStatus(ctx context.Context, network string, n uint64, status model.MissedBlockStatus, lastErr string) error {
	return nil
}

func (s *fakeStorage) RemoveRecoveredBlocks(ctx context.Context, network string, ns []uint64) error {
	return nil
}

func (s *fakeStorage) PruneOldMissedBlocks(ctx context.Context, network string, maxAge, currentConfirmed uint64) (int, error) {
	return 0, nil
}

type fakeMonitorSource struct {
	monitors []model.Monitor
}

func (f *fakeMonitorSource) MonitorsForNetwork(slug string) []model.Monitor {
	return f.monitors
}

func newTestService(client chain.BlockChainClient, store *fakeStorage, monitors MonitorSource, onTrigger TriggerHandler) *Service {
	logger := logging.New("monitor-test", "error", "text")
	m := metrics.NewWithRegistry("monitor-test", prometheus.NewRegistry())
	pool := chain.NewPool(nil, logger, m)
	pool.Put("ethereum_mainnet", client)
	return NewService(pool, store, monitors, tracker.New(10), onTrigger, logger, m)
}

func testNetwork() *model.Network {
	return &model.Network{
		Slug:               "ethereum_mainnet",
		Chain:              model.ChainEVM,
		RpcURLs:            []model.RpcURL{{Kind: "primary", Weight: 100}},
		BlockTimeMs:        12000,
		ConfirmationBlocks: 2,
		CronSchedule:       "*/15 * * * * *",
		StoreBlocks:        false,
	}
}

func TestTickColdStartFetchesOnlyLatestConfirmed(t *testing.T) {
	network := testNetwork()
	blocks := map[uint64]model.Block{
		98:  &model.EVMBlock{BlockNumber: 98},
		99:  &model.EVMBlock{BlockNumber: 99},
		100: &model.EVMBlock{BlockNumber: 100},
	}
	client := &fakeClient{chainFamily: model.ChainEVM, latest: 102, blocks: blocks}
	store := newFakeStorage()

	var dispatched []uint64
	var mu sync.Mutex
	onTrigger := func(ctx context.Context, pb model.ProcessedBlock) {
		mu.Lock()
		defer mu.Unlock()
		dispatched = append(dispatched, pb.BlockNumber)
	}

	svc := newTestService(client, store, &fakeMonitorSource{}, onTrigger)
	err := svc.tick(context.Background(), network)
	require.NoError(t, err)

	assert.Equal(t, []uint64{100}, dispatched)
	last, err := store.GetLastProcessed(context.Background(), network.Slug)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, uint64(100), *last)
}

func TestTickFetchesRangeAfterColdStart(t *testing.T) {
	network := testNetwork()
	blocks := map[uint64]model.Block{
		11: &model.EVMBlock{BlockNumber: 11},
		12: &model.EVMBlock{BlockNumber: 12},
		13: &model.EVMBlock{BlockNumber: 13},
	}
	client := &fakeClient{chainFamily: model.ChainEVM, latest: 15, blocks: blocks}
	store := newFakeStorage()
	store.lastProcessed[network.Slug] = 10

	var dispatched []uint64
	onTrigger := func(ctx context.Context, pb model.ProcessedBlock) {
		dispatched = append(dispatched, pb.BlockNumber)
	}

	svc := newTestService(client, store, &fakeMonitorSource{}, onTrigger)
	err := svc.tick(context.Background(), network)
	require.NoError(t, err)

	assert.Equal(t, []uint64{11, 12, 13}, dispatched)
}

func TestTickNoOpWhenNothingNewlyConfirmed(t *testing.T) {
	network := testNetwork()
	client := &fakeClient{chainFamily: model.ChainEVM, latest: 12, blocks: map[uint64]model.Block{}}
	store := newFakeStorage()
	store.lastProcessed[network.Slug] = 10

	called := false
	onTrigger := func(ctx context.Context, pb model.ProcessedBlock) { called = true }

	svc := newTestService(client, store, &fakeMonitorSource{}, onTrigger)
	err := svc.tick(context.Background(), network)
	require.NoError(t, err)
	assert.False(t, called)

	last, err := store.GetLastProcessed(context.Background(), network.Slug)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, uint64(10), *last, "cursor must stay untouched when there is nothing to do")
}

func TestTickAbortsOnLatestBlockNumberErrorWithoutTouchingCursor(t *testing.T) {
	network := testNetwork()
	client := &fakeClient{chainFamily: model.ChainEVM, latestErr: errors.New("rpc down")}
	store := newFakeStorage()
	store.lastProcessed[network.Slug] = 10

	svc := newTestService(client, store, &fakeMonitorSource{}, func(ctx context.Context, pb model.ProcessedBlock) {})
	err := svc.tick(context.Background(), network)
	require.Error(t, err)

	last, err := store.GetLastProcessed(context.Background(), network.Slug)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), *last)
}

func TestTickDispatchesInAscendingOrderDespiteConcurrency(t *testing.T) {
	network := testNetwork()
	maxPast := uint64(100)
	network.MaxPastBlocks = &maxPast
	blocks := map[uint64]model.Block{}
	for n := uint64(1); n <= 50; n++ {
		blocks[n] = &model.EVMBlock{BlockNumber: n}
	}
	client := &fakeClient{chainFamily: model.ChainEVM, latest: 52, blocks: blocks}
	store := newFakeStorage()
	store.lastProcessed[network.Slug] = 1

	var dispatched []uint64
	var mu sync.Mutex
	onTrigger := func(ctx context.Context, pb model.ProcessedBlock) {
		mu.Lock()
		defer mu.Unlock()
		dispatched = append(dispatched, pb.BlockNumber)
	}

	// A non-zero cursor takes the warm path: blocks 2..50 are filtered
	// concurrently in stage 1 and must still reach stage 2 in ascending order.
	svc := newTestService(client, store, &fakeMonitorSource{}, onTrigger)
	require.NoError(t, svc.tick(context.Background(), network))

	require.Len(t, dispatched, 49)
	for i := 1; i < len(dispatched); i++ {
		assert.Less(t, dispatched[i-1], dispatched[i])
	}
}
