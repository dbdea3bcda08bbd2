package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"airfarm/internal/logger"
	"airfarm/internal/storage"
	"airfarm/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// store implements storage.Store using PostgreSQL.
type store struct {
	pool *pgxpool.Pool
	log  logger.Logger
}

var createTableSQL = []string{
	`CREATE TABLE IF NOT EXISTS activity_log (
    id SERIAL PRIMARY KEY,
    timestamp TIMESTAMP NOT NULL,
    wallet_id INTEGER NOT NULL,
    wallet_address VARCHAR(42) NOT NULL,
    platform VARCHAR(50) NOT NULL,
    activity_type VARCHAR(255) NOT NULL,
    status VARCHAR(50) NOT NULL,
    tx_reference VARCHAR(66),
    details TEXT,
    points_delta DOUBLE PRECISION NOT NULL DEFAULT 0
);`,
	`CREATE TABLE IF NOT EXISTS wallet_state (
    wallet_id INTEGER NOT NULL,
    wallet_address VARCHAR(42) NOT NULL,
    platform VARCHAR(50) NOT NULL,
    last_activity TIMESTAMP,
    tx_count INTEGER NOT NULL DEFAULT 0,
    points DOUBLE PRECISION NOT NULL DEFAULT 0,
    updated_at TIMESTAMP,
    PRIMARY KEY (wallet_id, platform)
);`,
	`CREATE TABLE IF NOT EXISTS platform_stats (
    platform VARCHAR(50) PRIMARY KEY,
    success_count INTEGER NOT NULL DEFAULT 0,
    failure_count INTEGER NOT NULL DEFAULT 0,
    last_run TIMESTAMP
);`,
	`CREATE TABLE IF NOT EXISTS scheduler_runs (
    id SERIAL PRIMARY KEY,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL,
    status VARCHAR(50) NOT NULL,
    wallets_processed INTEGER NOT NULL,
    activities_succeeded INTEGER NOT NULL,
    activities_failed INTEGER NOT NULL,
    error_summary TEXT
);`,
}

// NewStore creates a new PostgreSQL state store.
func NewStore(ctx context.Context, log logger.Logger, connectionString string, maxConnsStr string) (storage.Store, error) {
	config, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	if maxConnsStr != "" {
		maxConns, err := strconv.Atoi(maxConnsStr)
		if err != nil {
			log.Warn("Invalid DB_POOL_MAX_CONNS value, using default", "value", maxConnsStr, "error", err)
		} else if maxConns > 0 {
			config.MaxConns = int32(maxConns)
			log.Info("Setting max DB connections", "count", config.MaxConns)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Defer closing the pool if initialization fails after this point
	defer func() {
		if err != nil && pool != nil {
			pool.Close()
		}
	}()

	if err = pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	for _, stmt := range createTableSQL {
		if _, err = pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	log.Success("Successfully connected to PostgreSQL.")
	return &store{pool: pool, log: log}, nil
}

// AppendActivity saves an activity record to the activity log.
func (s *store) AppendActivity(ctx context.Context, rec storage.ActivityRecord) error {
	query := `INSERT INTO activity_log (timestamp, wallet_id, wallet_address, platform, activity_type, status, tx_reference, details, points_delta)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		rec.Timestamp,
		rec.WalletID,
		rec.WalletAddress,
		string(rec.Platform),
		rec.ActivityType,
		string(rec.Status),
		rec.TxReference,
		rec.Details,
		rec.PointsDelta,
	)
	if err != nil {
		s.log.Error("Failed to insert activity record into DB", "error", err, "wallet", rec.WalletAddress, "platform", rec.Platform)
		return fmt.Errorf("failed to insert activity record: %w", err)
	}
	return nil
}

// UpdateWalletState applies one activity attempt to the cached wallet state.
func (s *store) UpdateWalletState(ctx context.Context, walletID int, address string, platform types.Platform, delta storage.StateDelta) error {
	query := `INSERT INTO wallet_state (wallet_id, wallet_address, platform, last_activity, tx_count, points, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7)
	           ON CONFLICT (wallet_id, platform) DO UPDATE SET
	               last_activity = EXCLUDED.last_activity,
	               tx_count = wallet_state.tx_count + EXCLUDED.tx_count,
	               points = wallet_state.points + EXCLUDED.points,
	               updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		walletID, address, string(platform),
		delta.Timestamp, delta.TxDelta, delta.PointsDelta,
		time.Now().UTC(),
	)
	if err != nil {
		s.log.Error("Failed to update wallet state in DB", "wallet_id", walletID, "platform", platform, "error", err)
		return fmt.Errorf("failed to update wallet state: %w", err)
	}
	return nil
}

// UpdatePlatformStats increments the per-platform aggregate counters.
func (s *store) UpdatePlatformStats(ctx context.Context, platform types.Platform, success bool, at time.Time) error {
	succ, fail := 0, 1
	if success {
		succ, fail = 1, 0
	}
	query := `INSERT INTO platform_stats (platform, success_count, failure_count, last_run)
	           VALUES ($1, $2, $3, $4)
	           ON CONFLICT (platform) DO UPDATE SET
	               success_count = platform_stats.success_count + EXCLUDED.success_count,
	               failure_count = platform_stats.failure_count + EXCLUDED.failure_count,
	               last_run = EXCLUDED.last_run`

	if _, err := s.pool.Exec(ctx, query, string(platform), succ, fail, at); err != nil {
		s.log.Error("Failed to update platform stats in DB", "platform", platform, "error", err)
		return fmt.Errorf("failed to update platform stats: %w", err)
	}
	return nil
}

// RecordRunSummary inserts one scheduler run record and returns its id.
func (s *store) RecordRunSummary(ctx context.Context, summary storage.RunSummary) (int64, error) {
	query := `INSERT INTO scheduler_runs (started_at, finished_at, status, wallets_processed, activities_succeeded, activities_failed, error_summary)
	           VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		summary.StartedAt,
		summary.FinishedAt,
		string(summary.Status),
		summary.WalletsProcessed,
		summary.ActivitiesSucceeded,
		summary.ActivitiesFailed,
		summary.ErrorSummary,
	).Scan(&id)
	if err != nil {
		s.log.Error("Failed to insert run summary into DB", "error", err)
		return 0, fmt.Errorf("failed to insert run summary: %w", err)
	}
	return id, nil
}

// QueryStats assembles the aggregate view in a sequence of short reads.
func (s *store) QueryStats(ctx context.Context) (*storage.StatsView, error) {
	view := &storage.StatsView{GeneratedAt: time.Now().UTC()}

	rows, err := s.pool.Query(ctx,
		`SELECT wallet_id, wallet_address, platform, last_activity, tx_count, points
		 FROM wallet_state ORDER BY wallet_id, platform`)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallet state: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ws storage.WalletState
		var platform string
		var lastActivity *time.Time
		if err := rows.Scan(&ws.WalletID, &ws.WalletAddress, &platform, &lastActivity, &ws.TxCount, &ws.Points); err != nil {
			return nil, fmt.Errorf("failed to scan wallet state row: %w", err)
		}
		ws.Platform = types.Platform(platform)
		if lastActivity != nil {
			ws.LastActivity = *lastActivity
		}
		view.WalletStates = append(view.WalletStates, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wallet state rows: %w", err)
	}

	statRows, err := s.pool.Query(ctx,
		`SELECT platform, success_count, failure_count, last_run FROM platform_stats ORDER BY platform`)
	if err != nil {
		return nil, fmt.Errorf("failed to query platform stats: %w", err)
	}
	defer statRows.Close()
	for statRows.Next() {
		var ps storage.PlatformStats
		var platform string
		var lastRun *time.Time
		if err := statRows.Scan(&platform, &ps.SuccessCount, &ps.FailureCount, &lastRun); err != nil {
			return nil, fmt.Errorf("failed to scan platform stats row: %w", err)
		}
		ps.Platform = types.Platform(platform)
		if lastRun != nil {
			ps.LastRun = *lastRun
		}
		view.PlatformStats = append(view.PlatformStats, ps)
	}
	if err := statRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate platform stats rows: %w", err)
	}

	runRows, err := s.pool.Query(ctx,
		`SELECT id, started_at, finished_at, status, wallets_processed, activities_succeeded, activities_failed, COALESCE(error_summary, '')
		 FROM scheduler_runs ORDER BY id DESC LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduler runs: %w", err)
	}
	defer runRows.Close()
	for runRows.Next() {
		var rs storage.RunSummary
		var status string
		if err := runRows.Scan(&rs.RunID, &rs.StartedAt, &rs.FinishedAt, &status,
			&rs.WalletsProcessed, &rs.ActivitiesSucceeded, &rs.ActivitiesFailed, &rs.ErrorSummary); err != nil {
			return nil, fmt.Errorf("failed to scan scheduler run row: %w", err)
		}
		rs.Status = types.RunStatus(status)
		view.RecentRuns = append(view.RecentRuns, rs)
	}
	if err := runRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scheduler run rows: %w", err)
	}

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activity_log`).Scan(&view.ActivityCount); err != nil {
		return nil, fmt.Errorf("failed to count activity records: %w", err)
	}
	return view, nil
}

// ReplayWalletState recomputes a wallet-platform state from the activity log.
func (s *store) ReplayWalletState(ctx context.Context, walletID int, platform types.Platform) (storage.WalletState, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT timestamp, wallet_id, wallet_address, platform, activity_type, status, COALESCE(tx_reference, ''), COALESCE(details, ''), points_delta
		 FROM activity_log WHERE wallet_id = $1 AND platform = $2 ORDER BY timestamp, id`,
		walletID, string(platform))
	if err != nil {
		return storage.WalletState{}, fmt.Errorf("failed to query activity log: %w", err)
	}
	defer rows.Close()

	recs, err := scanActivities(rows)
	if err != nil {
		return storage.WalletState{}, err
	}
	return storage.FoldActivities(walletID, platform, recs), nil
}

// RecentActivities returns the newest activity records, newest first.
func (s *store) RecentActivities(ctx context.Context, limit int) ([]storage.ActivityRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT timestamp, wallet_id, wallet_address, platform, activity_type, status, COALESCE(tx_reference, ''), COALESCE(details, ''), points_delta
		 FROM activity_log ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent activities: %w", err)
	}
	defer rows.Close()
	return scanActivities(rows)
}

func scanActivities(rows pgx.Rows) ([]storage.ActivityRecord, error) {
	var recs []storage.ActivityRecord
	for rows.Next() {
		var rec storage.ActivityRecord
		var platform, status string
		if err := rows.Scan(&rec.Timestamp, &rec.WalletID, &rec.WalletAddress, &platform,
			&rec.ActivityType, &status, &rec.TxReference, &rec.Details, &rec.PointsDelta); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		rec.Platform = types.Platform(platform)
		rec.Status = types.ActivityStatus(status)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity rows: %w", err)
	}
	return recs, nil
}

// Close closes the database connection pool.
func (s *store) Close() error {
	if s.pool != nil {
		s.log.Info("Closing PostgreSQL connection pool...")
		s.pool.Close()
	}
	return nil
}
