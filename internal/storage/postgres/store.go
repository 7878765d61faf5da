package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nftSwap/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS pool_logs (
	chain_id BIGINT NOT NULL,
	block_number BIGINT NOT NULL,
	log_index BIGINT NOT NULL,
	tx_hash TEXT NOT NULL DEFAULT '',
	pool_address TEXT NOT NULL,
	topic0 TEXT NOT NULL,
	data TEXT NOT NULL,
	block_ts BIGINT NOT NULL,
	removed BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, block_number, log_index, pool_address)
);
CREATE TABLE IF NOT EXISTS pools (
	chain_id BIGINT NOT NULL,
	pool_address TEXT NOT NULL,
	factory TEXT NOT NULL DEFAULT '',
	nft0 TEXT NOT NULL,
	nft1 TEXT NOT NULL,
	first_seen_block BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, pool_address)
);
CREATE TABLE IF NOT EXISTS pool_activity_windows (
	chain_id BIGINT NOT NULL,
	pool_address TEXT NOT NULL,
	window_size_seconds BIGINT NOT NULL,
	window_start_ts TIMESTAMPTZ NOT NULL,
	window_end_ts TIMESTAMPTZ NOT NULL,
	created_count BIGINT NOT NULL,
	updated_count BIGINT NOT NULL,
	cancelled_count BIGINT NOT NULL,
	trade_count BIGINT NOT NULL,
	unique_owners BIGINT NOT NULL,
	unique_traders BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, pool_address, window_size_seconds, window_start_ts)
);
CREATE TABLE IF NOT EXISTS indexer_state (
	name TEXT PRIMARY KEY,
	last_processed_ts BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for pool logs, the pool registry and
// activity windows.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables the store writes to.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// InsertLogs stores pool log records, ignoring records already stored.
func (s *Store) InsertLogs(ctx context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, lr := range logs {
		batch.Queue(`
			INSERT INTO pool_logs (
				chain_id, block_number, log_index, tx_hash, pool_address, topic0, data, block_ts, removed
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (chain_id, block_number, log_index, pool_address) DO NOTHING
		`,
			int64(lr.ChainID),
			int64(lr.BlockNumber),
			int64(lr.LogIndex),
			lr.TxHash,
			lr.Address,
			lr.Topic0(),
			lr.Data,
			int64(lr.Timestamp),
			lr.Removed,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range logs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert pool log: %w", err)
		}
	}
	return nil
}

// UpsertPools inserts or updates pool registry records.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				chain_id, pool_address, factory, nft0, nft1, first_seen_block, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			ON CONFLICT (chain_id, pool_address)
			DO UPDATE SET
				factory = CASE WHEN EXCLUDED.factory = '' THEN pools.factory ELSE EXCLUDED.factory END,
				nft0 = EXCLUDED.nft0,
				nft1 = EXCLUDED.nft1,
				first_seen_block = LEAST(pools.first_seen_block, EXCLUDED.first_seen_block),
				updated_at = now()
		`,
			int64(pool.ChainID),
			pool.Address,
			pool.Factory,
			pool.NFT0,
			pool.NFT1,
			int64(pool.FirstSeenBlock),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pools {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertActivityWindows inserts or updates per-pool activity windows.
func (s *Store) UpsertActivityWindows(ctx context.Context, windows []model.PoolActivityWindow) error {
	if len(windows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, w := range windows {
		batch.Queue(`
			INSERT INTO pool_activity_windows (
				chain_id, pool_address, window_size_seconds, window_start_ts, window_end_ts,
				created_count, updated_count, cancelled_count, trade_count,
				unique_owners, unique_traders, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())
			ON CONFLICT (chain_id, pool_address, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				created_count = EXCLUDED.created_count,
				updated_count = EXCLUDED.updated_count,
				cancelled_count = EXCLUDED.cancelled_count,
				trade_count = EXCLUDED.trade_count,
				unique_owners = EXCLUDED.unique_owners,
				unique_traders = EXCLUDED.unique_traders,
				updated_at = now()
		`,
			int64(w.ChainID),
			w.PoolAddress,
			w.WindowSizeSecs,
			w.WindowStart,
			w.WindowEnd,
			int64(w.CreatedCount),
			int64(w.UpdatedCount),
			int64(w.CancelledCount),
			int64(w.TradeCount),
			int64(w.UniqueOwners),
			int64(w.UniqueTraders),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range windows {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}

// LogWriter adapts the store to the log record sink interface.
type LogWriter struct {
	store *Store
	ctx   context.Context
}

// LogWriter returns a sink that inserts batches with ctx.
func (s *Store) LogWriter(ctx context.Context) *LogWriter {
	return &LogWriter{store: s, ctx: ctx}
}

func (w *LogWriter) PutLogBatch(logs []model.LogRecord) error {
	return w.store.InsertLogs(w.ctx, logs)
}
