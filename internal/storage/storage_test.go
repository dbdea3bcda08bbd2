package storage

import (
	"testing"
	"time"

	"airfarm/internal/types"

	"github.com/stretchr/testify/assert"
)

func TestDeltaFor(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	success := DeltaFor(ActivityRecord{Timestamp: at, Status: types.ActivitySuccess, PointsDelta: 2.5})
	assert.Equal(t, StateDelta{Timestamp: at, TxDelta: 1, PointsDelta: 2.5}, success)

	// Failed and pending attempts only move the last-activity timestamp.
	failed := DeltaFor(ActivityRecord{Timestamp: at, Status: types.ActivityFailed, PointsDelta: 2.5})
	assert.Equal(t, StateDelta{Timestamp: at}, failed)

	pending := DeltaFor(ActivityRecord{Timestamp: at, Status: types.ActivityPending})
	assert.Equal(t, StateDelta{Timestamp: at}, pending)
}

func TestFoldActivities(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	address := "0xAb00000000000000000000000000000000000001"

	recs := []ActivityRecord{
		{Timestamp: base, WalletID: 1, WalletAddress: address, Platform: types.PlatformDex, Status: types.ActivitySuccess, PointsDelta: 10},
		{Timestamp: base.Add(time.Minute), WalletID: 1, WalletAddress: address, Platform: types.PlatformDex, Status: types.ActivityFailed},
		{Timestamp: base.Add(2 * time.Minute), WalletID: 1, WalletAddress: address, Platform: types.PlatformDex, Status: types.ActivitySuccess, PointsDelta: 5},
		// Other wallets and platforms must not leak into the fold.
		{Timestamp: base, WalletID: 2, WalletAddress: "0xother", Platform: types.PlatformDex, Status: types.ActivitySuccess, PointsDelta: 100},
		{Timestamp: base, WalletID: 1, WalletAddress: address, Platform: types.PlatformMarket, Status: types.ActivitySuccess, PointsDelta: 7},
	}

	state := FoldActivities(1, types.PlatformDex, recs)
	assert.Equal(t, WalletState{
		WalletID:      1,
		WalletAddress: address,
		Platform:      types.PlatformDex,
		LastActivity:  base.Add(2 * time.Minute),
		TxCount:       2,
		Points:        15,
	}, state)
}

func TestFoldActivitiesEmpty(t *testing.T) {
	state := FoldActivities(1, types.PlatformDex, nil)
	assert.Equal(t, WalletState{WalletID: 1, Platform: types.PlatformDex}, state)
}
