package noop

import (
	"context"
	"time"

	"airfarm/internal/storage"
	"airfarm/internal/types"
)

// store is a no-op storage.Store for dry runs with persistence disabled.
type store struct{}

// NewStore creates a state store that discards everything.
func NewStore() storage.Store {
	return &store{}
}

func (s *store) AppendActivity(context.Context, storage.ActivityRecord) error {
	return nil
}

func (s *store) UpdateWalletState(context.Context, int, string, types.Platform, storage.StateDelta) error {
	return nil
}

func (s *store) UpdatePlatformStats(context.Context, types.Platform, bool, time.Time) error {
	return nil
}

func (s *store) RecordRunSummary(context.Context, storage.RunSummary) (int64, error) {
	return 0, nil
}

func (s *store) QueryStats(context.Context) (*storage.StatsView, error) {
	return &storage.StatsView{GeneratedAt: time.Now().UTC()}, nil
}

func (s *store) ReplayWalletState(_ context.Context, walletID int, platform types.Platform) (storage.WalletState, error) {
	return storage.WalletState{WalletID: walletID, Platform: platform}, nil
}

func (s *store) RecentActivities(context.Context, int) ([]storage.ActivityRecord, error) {
	return nil, nil
}

func (s *store) Close() error {
	return nil
}
