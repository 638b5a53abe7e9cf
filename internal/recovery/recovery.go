// Package recovery implements the missed-block recovery job (spec §4.8): a
// separate, lower-frequency cron schedule that retries blocks whose filter
// step failed during a normal watcher tick (a failed fetch aborts the tick
// and is not queued), without adding RPC load to the main tick loop.
package recovery

import (
	"context"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chainwatch/monitor/infrastructure/errors"
	"github.com/chainwatch/monitor/infrastructure/logging"
	"github.com/chainwatch/monitor/infrastructure/metrics"
	"github.com/chainwatch/monitor/internal/chain"
	"github.com/chainwatch/monitor/internal/filter"
	"github.com/chainwatch/monitor/internal/model"
	"github.com/chainwatch/monitor/internal/storage"
	"github.com/chainwatch/monitor/internal/watcher"
)

// Result tallies one recovery run's outcome (spec §4.8).
type Result struct {
	Attempted int
	Recovered int
	Failed    int
	Pruned    int
}

// Job runs the recovery cron schedule for every network that configures
// one (network.Recovery != nil).
type Job struct {
	pool      *chain.Pool
	store     storage.BlockStorage
	monitors  watcher.MonitorSource
	onTrigger watcher.TriggerHandler
	logger    *logging.Logger
	metrics   *metrics.Metrics

	cron *cron.Cron
}

// NewJob wires a recovery Job from its dependencies.
func NewJob(pool *chain.Pool, store storage.BlockStorage, monitors watcher.MonitorSource, onTrigger watcher.TriggerHandler, logger *logging.Logger, m *metrics.Metrics) *Job {
	return &Job{
		pool:      pool,
		store:     store,
		monitors:  monitors,
		onTrigger: onTrigger,
		logger:    logger,
		metrics:   m,
		cron:      cron.New(cron.WithSeconds()),
	}
}

// Schedule registers network's recovery cron schedule. A network with no
// Recovery config is never scheduled.
func (j *Job) Schedule(network *model.Network) error {
	if network.Recovery == nil {
		return nil
	}
	n := network
	_, err := j.cron.AddFunc(network.Recovery.CronSchedule, func() {
		ctx := logging.WithTraceID(context.Background(), logging.NewTraceID())
		ctx = logging.WithNetwork(ctx, n.Slug)
		result, err := j.Run(ctx, n)
		j.metrics.RecordRecoveryRun(n.Slug, result.Attempted, result.Recovered, result.Failed)
		if err != nil {
			j.logger.WithContext(ctx).WithError(err).Error("recovery run failed")
		}
	})
	if err != nil {
		return errors.Wrap(errors.KindConfig, "recovery", "invalid recovery cron schedule", err).
			WithMetadata("network", n.Slug)
	}
	return nil
}

// Start begins running every scheduled network's recovery job.
func (j *Job) Start() { j.cron.Start() }

// Stop halts the recovery scheduler, waiting for any in-flight run.
func (j *Job) Stop() { <-j.cron.Stop().Done() }

// Run executes one recovery pass for network, implementing spec §4.8's
// algorithm: prune, load eligible entries, retry oldest-first up to
// max_blocks_per_run, with a retry_delay_ms pause between attempts.
func (j *Job) Run(ctx context.Context, network *model.Network) (Result, error) {
	var result Result
	cfg := network.Recovery
	if cfg == nil {
		return result, nil
	}

	client, err := j.pool.Get(ctx, network)
	if err != nil {
		return result, errors.Wrap(errors.KindChain, "recovery", "get chain client", err).
			WithMetadata("network", network.Slug)
	}

	current, err := client.LatestBlockNumber(ctx)
	if err != nil {
		return result, errors.Wrap(errors.KindChain, "recovery", "latest block number", err).
			WithMetadata("network", network.Slug)
	}
	currentConfirmed := saturatingSub(current, network.ConfirmationBlocks)

	pruned, err := j.store.PruneOldMissedBlocks(ctx, network.Slug, cfg.MaxBlockAge, currentConfirmed)
	if err != nil {
		return result, errors.Wrap(errors.KindRepository, "recovery", "prune old missed blocks", err).
			WithMetadata("network", network.Slug)
	}
	result.Pruned = pruned

	entries, err := j.store.GetMissedBlocks(ctx, network.Slug, cfg.MaxBlockAge, currentConfirmed)
	if err != nil {
		return result, errors.Wrap(errors.KindRepository, "recovery", "get missed blocks", err).
			WithMetadata("network", network.Slug)
	}

	eligible := entries[:0]
	for _, e := range entries {
		if e.RetryCount < cfg.MaxRetries {
			eligible = append(eligible, e)
		}
	}
	sort.Slice(eligible, func(i, k int) bool { return eligible[i].BlockNumber < eligible[k].BlockNumber })
	if cfg.MaxBlocksPerRun > 0 && len(eligible) > cfg.MaxBlocksPerRun {
		eligible = eligible[:cfg.MaxBlocksPerRun]
	}

	if len(eligible) == 0 {
		return result, nil
	}

	monitors := j.monitors.MonitorsForNetwork(network.Slug)
	var recovered []uint64

	for _, entry := range eligible {
		result.Attempted++
		blockNumber := entry.BlockNumber

		if err := j.store.UpdateMissedBlockStatus(ctx, network.Slug, blockNumber, model.MissedRecovering, ""); err != nil {
			j.logger.WithContext(ctx).WithError(err).Warn("failed to mark block recovering")
		}

		to := blockNumber
		blocks, fetchErr := client.Blocks(ctx, blockNumber, &to)
		if fetchErr == nil && len(blocks) > 0 {
			matches, filterErr := filter.FilterBlock(ctx, client, network, blocks[0], monitors, j.logger)
			if filterErr != nil {
				j.recordFailure(ctx, network, &entry, filterErr.Error(), cfg, &result)
				sleep(ctx, cfg.RetryDelayMs)
				continue
			}

			j.onTrigger(ctx, model.ProcessedBlock{NetworkSlug: network.Slug, BlockNumber: blockNumber, Matches: matches})

			if err := j.store.UpdateMissedBlockStatus(ctx, network.Slug, blockNumber, model.MissedRecovered, ""); err != nil {
				j.logger.WithContext(ctx).WithError(err).Warn("failed to mark block recovered")
			}
			recovered = append(recovered, blockNumber)
			result.Recovered++
			j.logger.WithContext(ctx).WithField("block", blockNumber).Info("recovered missed block")
			continue
		}

		lastErr := "block not found in RPC response"
		if fetchErr != nil {
			lastErr = fetchErr.Error()
		}
		j.recordFailure(ctx, network, &entry, lastErr, cfg, &result)
		sleep(ctx, cfg.RetryDelayMs)
	}

	if len(recovered) > 0 {
		if err := j.store.RemoveRecoveredBlocks(ctx, network.Slug, recovered); err != nil {
			return result, errors.Wrap(errors.KindRepository, "recovery", "remove recovered blocks", err).
				WithMetadata("network", network.Slug)
		}
	}

	return result, nil
}

func (j *Job) recordFailure(ctx context.Context, network *model.Network, entry *model.MissedBlockEntry, lastErr string, cfg *model.RecoveryConfig, result *Result) {
	newRetryCount := entry.RetryCount + 1
	status := model.MissedPending
	if newRetryCount >= cfg.MaxRetries {
		status = model.MissedFailed
	}

	if err := j.store.UpdateMissedBlockStatus(ctx, network.Slug, entry.BlockNumber, status, lastErr); err != nil {
		j.logger.WithContext(ctx).WithError(err).Warn("failed to update missed block status")
	}

	if status == model.MissedFailed {
		result.Failed++
		j.logger.WithContext(ctx).WithField("block", entry.BlockNumber).WithField("retries", newRetryCount).
			Error("block recovery failed after max retries: " + lastErr)
	} else {
		j.logger.WithContext(ctx).WithField("block", entry.BlockNumber).WithField("retry", newRetryCount).
			Warn("block recovery attempt failed, will retry: " + lastErr)
	}
}

// sleep applies the configured inter-attempt delay, respecting ctx
// cancellation so shutdown does not hang on a long retry_delay_ms.
func sleep(ctx context.Context, delayMs int) {
	if delayMs <= 0 {
		return
	}
	timer := time.NewTimer(time.Duration(delayMs) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
