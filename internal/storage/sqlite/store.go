package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"airfarm/internal/logger"
	"airfarm/internal/storage"
	"airfarm/internal/types"

	_ "github.com/mattn/go-sqlite3"
)

// store implements storage.Store using SQLite.
type store struct {
	db  *sql.DB
	log logger.Logger
}

var createTableSQL = []string{
	`CREATE TABLE IF NOT EXISTS activity_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp DATETIME NOT NULL,
    wallet_id INTEGER NOT NULL,
    wallet_address TEXT NOT NULL,
    platform TEXT NOT NULL,
    activity_type TEXT NOT NULL,
    status TEXT NOT NULL,
    tx_reference TEXT,
    details TEXT,
    points_delta REAL NOT NULL DEFAULT 0
);`,
	`CREATE TABLE IF NOT EXISTS wallet_state (
    wallet_id INTEGER NOT NULL,
    wallet_address TEXT NOT NULL,
    platform TEXT NOT NULL,
    last_activity DATETIME,
    tx_count INTEGER NOT NULL DEFAULT 0,
    points REAL NOT NULL DEFAULT 0,
    updated_at DATETIME,
    PRIMARY KEY (wallet_id, platform)
);`,
	`CREATE TABLE IF NOT EXISTS platform_stats (
    platform TEXT PRIMARY KEY,
    success_count INTEGER NOT NULL DEFAULT 0,
    failure_count INTEGER NOT NULL DEFAULT 0,
    last_run DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS scheduler_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME NOT NULL,
    status TEXT NOT NULL,
    wallets_processed INTEGER NOT NULL,
    activities_succeeded INTEGER NOT NULL,
    activities_failed INTEGER NOT NULL,
    error_summary TEXT
);`,
}

// NewStore creates a new SQLite state store. WAL mode keeps the stats query
// path from blocking the single writer, and the file stays safe to back up
// by plain copy between cycles.
func NewStore(ctx context.Context, log logger.Logger, dbPath string) (storage.Store, error) {
	log.Info("Initializing SQLite database...", "path", dbPath)

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite db %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database at %s: %w", dbPath, err)
	}

	// Defer closing the DB if initialization fails
	defer func() {
		if err != nil && db != nil {
			db.Close()
		}
	}()

	if err = db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite database at %s: %w", dbPath, err)
	}

	for _, stmt := range createTableSQL {
		if _, err = db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	log.Success("SQLite database initialized successfully.", "path", dbPath)
	return &store{db: db, log: log}, nil
}

// AppendActivity saves an activity record to the activity log.
func (s *store) AppendActivity(ctx context.Context, rec storage.ActivityRecord) error {
	query := `INSERT INTO activity_log (timestamp, wallet_id, wallet_address, platform, activity_type, status, tx_reference, details, points_delta)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
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
		s.log.Error("Failed to insert activity record into SQLite DB", "error", err,
			"wallet", rec.WalletAddress, "platform", rec.Platform)
		return fmt.Errorf("failed to insert activity record in sqlite: %w", err)
	}
	s.log.Debug("Activity record saved", "wallet", rec.WalletAddress, "platform", rec.Platform, "status", rec.Status)
	return nil
}

// UpdateWalletState applies one activity attempt to the cached wallet state.
func (s *store) UpdateWalletState(ctx context.Context, walletID int, address string, platform types.Platform, delta storage.StateDelta) error {
	query := `INSERT INTO wallet_state (wallet_id, wallet_address, platform, last_activity, tx_count, points, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?)
	           ON CONFLICT (wallet_id, platform) DO UPDATE SET
	               last_activity = excluded.last_activity,
	               tx_count = wallet_state.tx_count + excluded.tx_count,
	               points = wallet_state.points + excluded.points,
	               updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		walletID, address, string(platform),
		delta.Timestamp, delta.TxDelta, delta.PointsDelta,
		time.Now().UTC(),
	)
	if err != nil {
		s.log.Error("Failed to update wallet state in SQLite DB", "wallet_id", walletID, "platform", platform, "error", err)
		return fmt.Errorf("failed to update wallet state in sqlite: %w", err)
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
	           VALUES (?, ?, ?, ?)
	           ON CONFLICT (platform) DO UPDATE SET
	               success_count = platform_stats.success_count + excluded.success_count,
	               failure_count = platform_stats.failure_count + excluded.failure_count,
	               last_run = excluded.last_run`

	if _, err := s.db.ExecContext(ctx, query, string(platform), succ, fail, at); err != nil {
		s.log.Error("Failed to update platform stats in SQLite DB", "platform", platform, "error", err)
		return fmt.Errorf("failed to update platform stats in sqlite: %w", err)
	}
	return nil
}

// RecordRunSummary inserts one scheduler run record.
func (s *store) RecordRunSummary(ctx context.Context, summary storage.RunSummary) (int64, error) {
	query := `INSERT INTO scheduler_runs (started_at, finished_at, status, wallets_processed, activities_succeeded, activities_failed, error_summary)
               VALUES (?, ?, ?, ?, ?, ?, ?)`

	res, err := s.db.ExecContext(ctx, query,
		summary.StartedAt,
		summary.FinishedAt,
		string(summary.Status),
		summary.WalletsProcessed,
		summary.ActivitiesSucceeded,
		summary.ActivitiesFailed,
		summary.ErrorSummary,
	)
	if err != nil {
		s.log.Error("Failed to insert run summary into SQLite DB", "error", err)
		return 0, fmt.Errorf("failed to insert run summary in sqlite: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id from sqlite: %w", err)
	}
	return id, nil
}

// QueryStats assembles the aggregate view in a sequence of short reads.
func (s *store) QueryStats(ctx context.Context) (*storage.StatsView, error) {
	view := &storage.StatsView{GeneratedAt: time.Now().UTC()}

	rows, err := s.db.QueryContext(ctx,
		`SELECT wallet_id, wallet_address, platform, last_activity, tx_count, points
		 FROM wallet_state ORDER BY wallet_id, platform`)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallet state from sqlite: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ws storage.WalletState
		var platform string
		var lastActivity sql.NullTime
		if err := rows.Scan(&ws.WalletID, &ws.WalletAddress, &platform, &lastActivity, &ws.TxCount, &ws.Points); err != nil {
			return nil, fmt.Errorf("failed to scan wallet state row: %w", err)
		}
		ws.Platform = types.Platform(platform)
		if lastActivity.Valid {
			ws.LastActivity = lastActivity.Time
		}
		view.WalletStates = append(view.WalletStates, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wallet state rows: %w", err)
	}

	statRows, err := s.db.QueryContext(ctx,
		`SELECT platform, success_count, failure_count, last_run FROM platform_stats ORDER BY platform`)
	if err != nil {
		return nil, fmt.Errorf("failed to query platform stats from sqlite: %w", err)
	}
	defer statRows.Close()
	for statRows.Next() {
		var ps storage.PlatformStats
		var platform string
		var lastRun sql.NullTime
		if err := statRows.Scan(&platform, &ps.SuccessCount, &ps.FailureCount, &lastRun); err != nil {
			return nil, fmt.Errorf("failed to scan platform stats row: %w", err)
		}
		ps.Platform = types.Platform(platform)
		if lastRun.Valid {
			ps.LastRun = lastRun.Time
		}
		view.PlatformStats = append(view.PlatformStats, ps)
	}
	if err := statRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate platform stats rows: %w", err)
	}

	runRows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, status, wallets_processed, activities_succeeded, activities_failed, COALESCE(error_summary, '')
		 FROM scheduler_runs ORDER BY id DESC LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduler runs from sqlite: %w", err)
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

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_log`).Scan(&view.ActivityCount); err != nil {
		return nil, fmt.Errorf("failed to count activity records in sqlite: %w", err)
	}
	return view, nil
}

// ReplayWalletState recomputes a wallet-platform state by folding its
// activity records in timestamp order.
func (s *store) ReplayWalletState(ctx context.Context, walletID int, platform types.Platform) (storage.WalletState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, wallet_id, wallet_address, platform, activity_type, status, COALESCE(tx_reference, ''), COALESCE(details, ''), points_delta
		 FROM activity_log WHERE wallet_id = ? AND platform = ? ORDER BY timestamp, id`,
		walletID, string(platform))
	if err != nil {
		return storage.WalletState{}, fmt.Errorf("failed to query activity log from sqlite: %w", err)
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, wallet_id, wallet_address, platform, activity_type, status, COALESCE(tx_reference, ''), COALESCE(details, ''), points_delta
		 FROM activity_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent activities from sqlite: %w", err)
	}
	defer rows.Close()
	return scanActivities(rows)
}

func scanActivities(rows *sql.Rows) ([]storage.ActivityRecord, error) {
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

// Close closes the database connection.
func (s *store) Close() error {
	s.log.Info("Closing SQLite database connection...")
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
