// Command monitor runs the multi-chain blockchain monitoring service: it
// loads networks/monitors/triggers from CONFIG_DIR, starts one watcher and
// (where configured) one recovery job per network, and serves health,
// metrics, and admin HTTP endpoints until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/chainwatch/monitor/infrastructure/config"
	"github.com/chainwatch/monitor/infrastructure/logging"
	"github.com/chainwatch/monitor/infrastructure/metrics"
	"github.com/chainwatch/monitor/infrastructure/secrets"
	"github.com/chainwatch/monitor/infrastructure/service"
	"github.com/chainwatch/monitor/internal/adminapi"
	"github.com/chainwatch/monitor/internal/chain"
	"github.com/chainwatch/monitor/internal/recovery"
	"github.com/chainwatch/monitor/internal/storage"
	"github.com/chainwatch/monitor/internal/storage/fs"
	"github.com/chainwatch/monitor/internal/storage/postgres"
	"github.com/chainwatch/monitor/internal/tracker"
	"github.com/chainwatch/monitor/internal/trigger"
	"github.com/chainwatch/monitor/internal/watcher"
)

const serviceName = "monitor"

func main() {
	// .env is optional and only used for local runs; real deployments set
	// these directly in the environment.
	_ = godotenv.Load()

	logger := logging.NewFromEnv(serviceName)
	ctx := context.Background()

	configDir := config.GetEnv("CONFIG_DIR", "./config")
	bundle, err := config.LoadBundle(configDir)
	if err != nil {
		log.Fatalf("CRITICAL: load config bundle: %v", err)
	}

	resolver, err := secrets.NewResolver(config.GetEnv("VAULT_URL", ""))
	if err != nil {
		log.Fatalf("CRITICAL: build secrets resolver: %v", err)
	}

	store, err := openStorage(ctx, configDir)
	if err != nil {
		log.Fatalf("CRITICAL: open storage: %v", err)
	}

	m := metrics.Init(serviceName)
	activeMonitors := 0
	for _, mon := range bundle.AllMonitors() {
		if !mon.Paused {
			activeMonitors++
		}
	}
	m.SetMonitorCounts(len(bundle.Monitors), activeMonitors)

	pool := chain.NewPool(resolver, logger, m)
	trk := tracker.New(config.ParseIntOrDefault(config.GetEnv("TRACKER_WINDOW", ""), tracker.DefaultCapacity))

	dispatcher := trigger.NewDispatcher(bundle, resolver, logger, m)

	watcherSvc := watcher.NewService(pool, store, bundle, trk, dispatcher.Handle, logger, m)
	recoveryJob := recovery.NewJob(pool, store, bundle, dispatcher.Handle, logger, m)

	for _, network := range bundle.Networks {
		if err := watcherSvc.Start(network); err != nil {
			log.Fatalf("CRITICAL: start watcher for %s: %v", network.Slug, err)
		}
		if err := recoveryJob.Schedule(network); err != nil {
			log.Fatalf("CRITICAL: schedule recovery for %s: %v", network.Slug, err)
		}
	}
	recoveryJob.Start()

	health := service.NewDeepHealthChecker(10 * time.Second)
	health.Register("storage", storageHealthCheck(store))
	probes := service.NewProbeManager(30 * time.Second)

	httpServer := service.NewServer(serviceName, version(), logger, health, probes)
	admin := adminapi.NewServer(bundle, logger)
	httpServer.Router().Mount("/admin", admin.Handler())

	probes.SetReady(true)

	addr := fmt.Sprintf(":%d", config.GetPort("HTTP_ADDR_PORT", 8080))
	err = httpServer.Run(ctx, addr, 15*time.Second, func(shutdownCtx context.Context) error {
		probes.SetReady(false)
		watcherSvc.StopAll()
		recoveryJob.Stop()
		return closeStorage(store)
	})
	if err != nil {
		log.Fatalf("CRITICAL: http server: %v", err)
	}
}

func openStorage(ctx context.Context, configDir string) (storage.BlockStorage, error) {
	storageCfg, err := config.LoadStorageConfig(configDir + "/storage.yaml")
	if err != nil {
		return nil, err
	}
	switch storageCfg.Backend {
	case "postgres":
		return postgres.Open(ctx, storageCfg.Postgres.DSN)
	default:
		return fs.New(storageCfg.FS.BaseDir)
	}
}

func closeStorage(store storage.BlockStorage) error {
	if closer, ok := store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func storageHealthCheck(store storage.BlockStorage) service.HealthCheckFunc {
	return func(ctx context.Context) *service.ComponentHealth {
		if _, err := store.GetLastProcessed(ctx, "__healthcheck__"); err != nil {
			return &service.ComponentHealth{Status: "unhealthy", Message: err.Error()}
		}
		return &service.ComponentHealth{Status: "healthy"}
	}
}

func version() string {
	if v := os.Getenv("MONITOR_VERSION"); v != "" {
		return v
	}
	return "dev"
}
