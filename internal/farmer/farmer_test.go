package farmer

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"airfarm/internal/config"
	"airfarm/internal/evm"
	"airfarm/internal/logger"
	"airfarm/internal/platforms"
	"airfarm/internal/sink"
	"airfarm/internal/storage"
	"airfarm/internal/storage/sqlite"
	"airfarm/internal/types"
	"airfarm/internal/vault"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test master secret"

type fakeCap struct {
	name types.Platform
	exec func(ctx context.Context, signer *evm.Signer) (platforms.Result, error)
}

func (f *fakeCap) Name() types.Platform { return f.name }

func (f *fakeCap) Execute(ctx context.Context, signer *evm.Signer) (platforms.Result, error) {
	return f.exec(ctx, signer)
}

func succeeding(name types.Platform, points float64) *fakeCap {
	return &fakeCap{name: name, exec: func(context.Context, *evm.Signer) (platforms.Result, error) {
		return platforms.Result{
			ActivityType: "fake_interaction",
			Status:       types.ActivitySuccess,
			PointsDelta:  points,
		}, nil
	}}
}

func newTestFarmer(t *testing.T, walletCount int, caps []platforms.Capability) (*Farmer, *vault.Vault, storage.Store) {
	t.Helper()
	dir := t.TempDir()

	v, err := vault.Open(filepath.Join(dir, "wallets.enc"), testSecret, logger.NewNop())
	require.NoError(t, err)
	if walletCount > 0 {
		_, err = v.CreateWallets(walletCount)
		require.NoError(t, err)
	}

	store, err := sqlite.NewStore(context.Background(), logger.NewNop(), filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{
		CallTimeout: time.Minute,
		Pacing:      config.DefaultPacing(),
	}
	dash := sink.New(config.API{}, logger.NewNop())
	return New(cfg, v, caps, store, dash, logger.NewNop()), v, store
}

func allPlatformCaps() []platforms.Capability {
	return []platforms.Capability{
		succeeding(types.PlatformTestChain, 0),
		succeeding(types.PlatformDex, 10),
		succeeding(types.PlatformMarket, 2),
	}
}

func TestRunCycleAllSucceed(t *testing.T) {
	f, v, store := newTestFarmer(t, 3, allPlatformCaps())
	ctx := context.Background()

	summary, err := f.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, types.RunSuccess, summary.Status)
	assert.Equal(t, 3, summary.WalletsProcessed)
	assert.Equal(t, 9, summary.ActivitiesSucceeded)
	assert.Equal(t, 0, summary.ActivitiesFailed)
	assert.Empty(t, summary.ErrorSummary)
	assert.NotZero(t, summary.RunID)

	recs, err := store.RecentActivities(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, recs, 9)

	// Cached state must equal the state replayed from the activity log.
	for _, w := range v.ListWallets() {
		replayed, err := store.ReplayWalletState(ctx, w.ID, types.PlatformDex)
		require.NoError(t, err)
		assert.Equal(t, 1, replayed.TxCount)
		assert.Equal(t, 10.0, replayed.Points)
	}

	view, err := store.QueryStats(ctx)
	require.NoError(t, err)
	require.Len(t, view.RecentRuns, 1)
	assert.Equal(t, summary.RunID, view.RecentRuns[0].RunID)
	assert.Equal(t, 9, view.RecentRuns[0].ActivitiesSucceeded)
}

func TestRunCycleCapabilityErrorDoesNotAbort(t *testing.T) {
	// The dex capability raises for the first wallet only; every other
	// wallet/platform combination still completes.
	var failNext atomic.Bool
	failNext.Store(true)
	flaky := &fakeCap{name: types.PlatformDex, exec: func(context.Context, *evm.Signer) (platforms.Result, error) {
		if failNext.CompareAndSwap(true, false) {
			return platforms.Result{}, errors.New("dex api exploded")
		}
		return platforms.Result{ActivityType: "fake_interaction", Status: types.ActivitySuccess, PointsDelta: 10}, nil
	}}
	caps := []platforms.Capability{
		succeeding(types.PlatformTestChain, 0),
		flaky,
		succeeding(types.PlatformMarket, 2),
	}
	f, _, store := newTestFarmer(t, 3, caps)
	ctx := context.Background()

	summary, err := f.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, types.RunPartial, summary.Status)
	assert.Equal(t, 3, summary.WalletsProcessed)
	assert.Equal(t, 8, summary.ActivitiesSucceeded)
	assert.Equal(t, 1, summary.ActivitiesFailed)

	// The failure is recorded, not swallowed.
	recs, err := store.RecentActivities(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, recs, 9)
	var failedCount int
	for _, rec := range recs {
		if rec.Status == types.ActivityFailed {
			failedCount++
			assert.Equal(t, 0, rec.WalletID)
			assert.Equal(t, types.PlatformDex, rec.Platform)
			assert.Contains(t, rec.Details, "dex api exploded")
		}
	}
	assert.Equal(t, 1, failedCount)
}

func TestRunCyclePanicIsRecorded(t *testing.T) {
	panicking := &fakeCap{name: types.PlatformDex, exec: func(context.Context, *evm.Signer) (platforms.Result, error) {
		panic("capability bug")
	}}
	caps := []platforms.Capability{
		succeeding(types.PlatformTestChain, 0),
		panicking,
	}
	f, _, store := newTestFarmer(t, 2, caps)
	ctx := context.Background()

	summary, err := f.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, types.RunPartial, summary.Status)
	assert.Equal(t, 2, summary.ActivitiesSucceeded)
	assert.Equal(t, 2, summary.ActivitiesFailed)

	recs, err := store.RecentActivities(ctx, 100)
	require.NoError(t, err)
	require.Len(t, recs, 4)
	for _, rec := range recs {
		if rec.Status == types.ActivityFailed {
			assert.Contains(t, rec.Details, "capability panicked")
		}
	}
}

func TestRunCycleZeroWallets(t *testing.T) {
	f, _, store := newTestFarmer(t, 0, allPlatformCaps())
	ctx := context.Background()

	summary, err := f.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, types.RunSuccess, summary.Status)
	assert.Equal(t, 0, summary.WalletsProcessed)
	assert.Equal(t, 0, summary.ActivitiesSucceeded)
	assert.Equal(t, 0, summary.ActivitiesFailed)

	// The run record is still written.
	view, err := store.QueryStats(ctx)
	require.NoError(t, err)
	require.Len(t, view.RecentRuns, 1)
	assert.Equal(t, 0, view.RecentRuns[0].WalletsProcessed)
	assert.Equal(t, 0, view.ActivityCount)
}

func TestRunCycleVaultErrorAbortsOnlyThatWallet(t *testing.T) {
	dir := t.TempDir()
	vaultPath := filepath.Join(dir, "wallets.enc")

	v, err := vault.Open(vaultPath, testSecret, logger.NewNop())
	require.NoError(t, err)
	_, err = v.CreateWallets(3)
	require.NoError(t, err)

	// Corrupt the second wallet's ciphertext on disk. Open only verifies the
	// first record, so the damage surfaces mid-cycle.
	data, err := os.ReadFile(vaultPath)
	require.NoError(t, err)
	var env struct {
		Version       int                      `json:"version"`
		KDFIterations int                      `json:"kdf_iterations"`
		Salt          string                   `json:"salt"`
		Wallets       []map[string]interface{} `json:"wallets"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	require.Len(t, env.Wallets, 3)
	env.Wallets[1]["ciphertext"] = "not hex"
	tampered, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(vaultPath, tampered, 0600))

	v, err = vault.Open(vaultPath, testSecret, logger.NewNop())
	require.NoError(t, err)

	store, err := sqlite.NewStore(context.Background(), logger.NewNop(), filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{CallTimeout: time.Minute, Pacing: config.DefaultPacing()}
	f := New(cfg, v, allPlatformCaps(), store, sink.New(config.API{}, logger.NewNop()), logger.NewNop())

	ctx := context.Background()
	summary, err := f.RunCycle(ctx)
	require.NoError(t, err)

	// Wallets 0 and 2 complete all three platforms; wallet 1 records a single
	// failed system activity and skips the rest.
	assert.Equal(t, types.RunPartial, summary.Status)
	assert.Equal(t, 3, summary.WalletsProcessed)
	assert.Equal(t, 6, summary.ActivitiesSucceeded)
	assert.Equal(t, 1, summary.ActivitiesFailed)
	assert.Contains(t, summary.ErrorSummary, "wallet 1")

	recs, err := store.RecentActivities(ctx, 100)
	require.NoError(t, err)
	require.Len(t, recs, 7)
	var systemRecords int
	for _, rec := range recs {
		if rec.Platform == types.PlatformSystem {
			systemRecords++
			assert.Equal(t, 1, rec.WalletID)
			assert.Equal(t, types.ActivityFailed, rec.Status)
		}
	}
	assert.Equal(t, 1, systemRecords)
}

func TestShutdownLetsInFlightAttemptFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The capability observes the cycle being cancelled mid-call; its own
	// call context must stay live so the attempt completes with its real
	// outcome.
	finisher := &fakeCap{name: types.PlatformDex, exec: func(callCtx context.Context, _ *evm.Signer) (platforms.Result, error) {
		cancel()
		if err := callCtx.Err(); err != nil {
			return platforms.Result{}, err
		}
		return platforms.Result{ActivityType: "fake_interaction", Status: types.ActivitySuccess, PointsDelta: 1}, nil
	}}
	f, _, store := newTestFarmer(t, 2, []platforms.Capability{finisher})

	summary, err := f.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.ActivitiesSucceeded)
	assert.Equal(t, 0, summary.ActivitiesFailed)

	recs, err := store.RecentActivities(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, types.ActivitySuccess, recs[0].Status)
}

func TestRunCycleInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls int
	slow := &fakeCap{name: types.PlatformDex, exec: func(context.Context, *evm.Signer) (platforms.Result, error) {
		calls++
		cancel()
		return platforms.Result{ActivityType: "fake_interaction", Status: types.ActivitySuccess}, nil
	}}
	f, _, store := newTestFarmer(t, 3, []platforms.Capability{slow})

	summary, err := f.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Contains(t, summary.ErrorSummary, "interrupted")

	// The partial run is still on record.
	view, qerr := store.QueryStats(context.Background())
	require.NoError(t, qerr)
	require.Len(t, view.RecentRuns, 1)
}
