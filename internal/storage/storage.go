package storage

import (
	"context"
	"errors"
	"time"

	"airfarm/internal/types"
)

// ErrNotFound indicates that a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// ActivityRecord represents one attempted wallet/platform interaction,
// including failures. The log of these records is append-only and carries
// enough information to recompute wallet state by replay.
type ActivityRecord struct {
	Timestamp     time.Time            `json:"timestamp"`
	WalletID      int                  `json:"wallet_id"`
	WalletAddress string               `json:"wallet_address"`
	Platform      types.Platform       `json:"platform"`
	ActivityType  string               `json:"activity_type"`
	Status        types.ActivityStatus `json:"status"`
	TxReference   string               `json:"tx_reference,omitempty"`
	Details       string               `json:"details,omitempty"`
	PointsDelta   float64              `json:"points_delta,omitempty"`
}

// StateDelta describes the wallet-state effect of exactly one activity attempt.
type StateDelta struct {
	Timestamp   time.Time
	TxDelta     int
	PointsDelta float64
}

// WalletState is the cached per wallet-platform aggregate. It is always
// derivable by folding the wallet's activity records in timestamp order.
type WalletState struct {
	WalletID      int
	WalletAddress string
	Platform      types.Platform
	LastActivity  time.Time
	TxCount       int
	Points        float64
}

// PlatformStats is the derived per-platform aggregate.
type PlatformStats struct {
	Platform     types.Platform
	SuccessCount int
	FailureCount int
	LastRun      time.Time
}

// RunSummary is the record of one orchestrator cycle, written even on
// partial failure.
type RunSummary struct {
	RunID               int64
	StartedAt           time.Time
	FinishedAt          time.Time
	Status              types.RunStatus
	WalletsProcessed    int
	ActivitiesSucceeded int
	ActivitiesFailed    int
	ErrorSummary        string
}

// StatsView is the read-only aggregate returned by QueryStats.
type StatsView struct {
	WalletStates  []WalletState
	PlatformStats []PlatformStats
	RecentRuns    []RunSummary
	ActivityCount int
	GeneratedAt   time.Time
}

// Store is the durable state store. A single orchestrator run is the only
// writer at any time; QueryStats must use a short-lived read path that never
// blocks a concurrent writer beyond one query.
type Store interface {
	// AppendActivity durably inserts one activity record. Never overwrites.
	AppendActivity(ctx context.Context, rec ActivityRecord) error
	// UpdateWalletState applies the effect of exactly one activity attempt.
	UpdateWalletState(ctx context.Context, walletID int, address string, platform types.Platform, delta StateDelta) error
	// UpdatePlatformStats increments the per-platform success/failure counters.
	UpdatePlatformStats(ctx context.Context, platform types.Platform, success bool, at time.Time) error
	// RecordRunSummary inserts one row per cycle and returns its run id.
	RecordRunSummary(ctx context.Context, summary RunSummary) (int64, error)
	// QueryStats returns the aggregate view used by the stats command.
	QueryStats(ctx context.Context) (*StatsView, error)
	// ReplayWalletState recomputes a wallet-platform state from the activity
	// log; used by the consistency check.
	ReplayWalletState(ctx context.Context, walletID int, platform types.Platform) (WalletState, error)
	// RecentActivities returns the newest activity records, newest first.
	RecentActivities(ctx context.Context, limit int) ([]ActivityRecord, error)
	// Close closes any underlying resources.
	Close() error
}

// DeltaFor converts an activity record into its wallet-state delta. Failed
// and pending attempts still move the last-activity timestamp but contribute
// no counters.
func DeltaFor(rec ActivityRecord) StateDelta {
	delta := StateDelta{Timestamp: rec.Timestamp}
	if rec.Status == types.ActivitySuccess {
		delta.TxDelta = 1
		delta.PointsDelta = rec.PointsDelta
	}
	return delta
}

// FoldActivities recomputes a wallet-platform state from its activity records.
// Records must be ordered by timestamp; both store drivers and the replay
// tests share this fold so live state and replayed state cannot drift apart.
func FoldActivities(walletID int, platform types.Platform, recs []ActivityRecord) WalletState {
	state := WalletState{WalletID: walletID, Platform: platform}
	for _, rec := range recs {
		if rec.WalletID != walletID || rec.Platform != platform {
			continue
		}
		delta := DeltaFor(rec)
		state.WalletAddress = rec.WalletAddress
		state.LastActivity = delta.Timestamp
		state.TxCount += delta.TxDelta
		state.Points += delta.PointsDelta
	}
	return state
}
