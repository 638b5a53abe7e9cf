// Package postgres implements storage.BlockStorage against PostgreSQL via
// sqlx, applying its embedded schema with golang-migrate on open. Grounded
// on the connection-setup and upsert idiom of the indexer's own storage
// layer, adapted to sqlx's context-aware convenience methods.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	infraerrors "github.com/chainwatch/monitor/infrastructure/errors"
	"github.com/chainwatch/monitor/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Storage is a PostgreSQL-backed BlockStorage implementation.
type Storage struct {
	db *sqlx.DB
}

// Open connects to dsn, applies pending migrations, and returns a ready
// Storage. Pool sizing mirrors the indexer's own connection settings.
func Open(ctx context.Context, dsn string) (*Storage, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, infraerrors.Wrap(infraerrors.KindRepository, "storage.postgres", "open database", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, infraerrors.Wrap(infraerrors.KindRepository, "storage.postgres", "ping database", err)
	}

	if err := migrateUp(db.DB); err != nil {
		db.Close()
		return nil, infraerrors.Wrap(infraerrors.KindRepository, "storage.postgres", "apply migrations", err)
	}

	return &Storage{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("init migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	return s.db.Close()
}

// GetLastProcessed returns the saved cursor for network, or nil if none.
func (s *Storage) GetLastProcessed(ctx context.Context, network string) (*uint64, error) {
	var n uint64
	err := s.db.GetContext(ctx, &n, `SELECT last_processed FROM monitor_cursors WHERE network = $1`, network)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, infraerrors.Wrap(infraerrors.KindRepository, "storage.postgres", "get last processed", err).
			WithMetadata("network", network)
	}
	return &n, nil
}

// SaveLastProcessed persists the cursor for network.
func (s *Storage) SaveLastProcessed(ctx context.Context, network string, n uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitor_cursors (network, last_processed)
		VALUES ($1, $2)
		ON CONFLICT (network) DO UPDATE SET last_processed = EXCLUDED.last_processed
	`, network, n)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindRepository, "storage.postgres", "save last processed", err).
			WithMetadata("network", network)
	}
	return nil
}

// SaveBlocks persists an opaque JSON dump of blocks for network.
func (s *Storage) SaveBlocks(ctx context.Context, network string, blocks []json.RawMessage) error {
	raw, err := json.Marshal(blocks)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindRepository, "storage.postgres", "encode blocks", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO monitor_block_dumps (network, blocks, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (network) DO UPDATE SET blocks = EXCLUDED.blocks, updated_at = EXCLUDED.updated_at
	`, network, raw)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindRepository, "storage.postgres", "save blocks", err).
			WithMetadata("network", network)
	}
	return nil
}

// DeleteBlocks removes the stored block dump for network, if any.
func (s *Storage) DeleteBlocks(ctx context.Context, network string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM monitor_block_dumps WHERE network = $1`, network)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindRepository, "storage.postgres", "delete blocks", err).
			WithMetadata("network", network)
	}
	return nil
}

// SaveMissedBlock inserts a pending missed-block entry for network,
// ignoring the call if one already exists.
func (s *Storage) SaveMissedBlock(ctx context.Context, network string, n uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitor_missed_blocks (network, block_number, first_seen_at, retry_count, status, last_error)
		VALUES ($1, $2, $3, 0, $4, '')
		ON CONFLICT (network, block_number) DO NOTHING
	`, network, n, time.Now().UTC(), model.MissedPending)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindRepository, "storage.postgres", "save missed block", err).
			WithMetadata("network", network).WithMetadata("block_number", n)
	}
	return nil
}

type missedBlockRow struct {
	BlockNumber uint64    `db:"block_number"`
	FirstSeenAt time.Time `db:"first_seen_at"`
	RetryCount  int       `db:"retry_count"`
	Status      string    `db:"status"`
	LastError   string    `db:"last_error"`
}

// GetMissedBlocks returns missed-block entries for network not yet older
// than maxAge relative to currentConfirmed.
func (s *Storage) GetMissedBlocks(ctx context.Context, network string, maxAge, currentConfirmed uint64) ([]model.MissedBlockEntry, error) {
	minBlock := int64(-1)
	if currentConfirmed > maxAge {
		minBlock = int64(currentConfirmed - maxAge)
	}

	var rows []missedBlockRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT block_number, first_seen_at, retry_count, status, last_error
		FROM monitor_missed_blocks
		WHERE network = $1 AND block_number >= $2
		ORDER BY block_number ASC
	`, network, minBlock)
	if err != nil {
		return nil, infraerrors.Wrap(infraerrors.KindRepository, "storage.postgres", "get missed blocks", err).
			WithMetadata("network", network)
	}

	out := make([]model.MissedBlockEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.MissedBlockEntry{
			BlockNumber: r.BlockNumber,
			FirstSeenAt: r.FirstSeenAt,
			RetryCount:  r.RetryCount,
			Status:      model.MissedBlockStatus(r.Status),
			LastError:   r.LastError,
		})
	}
	return out, nil
}

// UpdateMissedBlockStatus updates the status/last_error of a missed-block
// entry. retry_count only advances on the failure-recording transition
// (spec §4.8 step 4d, Pending or terminal Failed) — marking a block
// Recovering before an attempt is not itself a retry.
func (s *Storage) UpdateMissedBlockStatus(ctx context.Context, network string, n uint64, status model.MissedBlockStatus, lastErr string) error {
	bumpRetry := status == model.MissedPending || status == model.MissedFailed
	res, err := s.db.ExecContext(ctx, `
		UPDATE monitor_missed_blocks
		SET status = $1, last_error = $2, retry_count = retry_count + CASE WHEN $3 THEN 1 ELSE 0 END
		WHERE network = $4 AND block_number = $5
	`, string(status), lastErr, bumpRetry, network, n)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindRepository, "storage.postgres", "update missed block status", err).
			WithMetadata("network", network).WithMetadata("block_number", n)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("storage.postgres: missed block %d not found for network %s", n, network)
	}
	return nil
}

// RemoveRecoveredBlocks deletes missed-block entries for the given block
// numbers in one statement.
func (s *Storage) RemoveRecoveredBlocks(ctx context.Context, network string, ns []uint64) error {
	if len(ns) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM monitor_missed_blocks WHERE network = ? AND block_number IN (?)`, network, ns)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindRepository, "storage.postgres", "build remove query", err)
	}
	query = s.db.Rebind(query)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return infraerrors.Wrap(infraerrors.KindRepository, "storage.postgres", "remove recovered blocks", err).
			WithMetadata("network", network)
	}
	return nil
}

// PruneOldMissedBlocks deletes entries whose age exceeds maxAge relative
// to currentConfirmed, returning the count pruned.
func (s *Storage) PruneOldMissedBlocks(ctx context.Context, network string, maxAge, currentConfirmed uint64) (int, error) {
	if currentConfirmed <= maxAge {
		return 0, nil
	}
	threshold := int64(currentConfirmed - maxAge)

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM monitor_missed_blocks WHERE network = $1 AND block_number < $2
	`, network, threshold)
	if err != nil {
		return 0, infraerrors.Wrap(infraerrors.KindRepository, "storage.postgres", "prune missed blocks", err).
			WithMetadata("network", network)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, infraerrors.Wrap(infraerrors.KindRepository, "storage.postgres", "read rows affected", err)
	}
	return int(affected), nil
}
