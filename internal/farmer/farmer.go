package farmer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"airfarm/internal/config"
	"airfarm/internal/evm"
	"airfarm/internal/logger"
	"airfarm/internal/platforms"
	"airfarm/internal/sink"
	"airfarm/internal/storage"
	"airfarm/internal/types"
	"airfarm/internal/vault"
)

// Farmer orchestrates one execution cycle: every wallet is driven through
// every configured platform capability, every attempt is recorded, and a run
// summary is persisted even on partial failure.
type Farmer struct {
	cfg   *config.Config
	vault *vault.Vault
	caps  []platforms.Capability
	store storage.Store
	dash  *sink.Dashboard
	log   logger.Logger
}

// New creates a Farmer from its collaborators.
func New(cfg *config.Config, v *vault.Vault, caps []platforms.Capability, store storage.Store, dash *sink.Dashboard, log logger.Logger) *Farmer {
	return &Farmer{cfg: cfg, vault: v, caps: caps, store: store, dash: dash, log: log}
}

// RunCycle processes wallets in creation order and platforms in the fixed
// configured order, strictly sequentially. Capability failures never abort
// the remaining work; vault failures abort only the affected wallet. The
// returned error is non-nil only when the cycle was interrupted by ctx.
func (f *Farmer) RunCycle(ctx context.Context) (storage.RunSummary, error) {
	summary := storage.RunSummary{StartedAt: time.Now().UTC()}
	wallets := f.vault.ListWallets()
	f.log.Info("Starting cycle", "wallets", len(wallets), "platforms", len(f.caps))

	// Persistence must survive shutdown: a cancelled cycle still writes its
	// remaining records and the run summary.
	storeCtx := context.WithoutCancel(ctx)

	var (
		cycleRecords []storage.ActivityRecord
		problems     []string
		interrupted  bool
	)

walletLoop:
	for wi, w := range wallets {
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		f.log.Info("Processing wallet", "id", w.ID, "address", w.Address)

		for ci, c := range f.caps {
			if ctx.Err() != nil {
				interrupted = true
				break walletLoop
			}

			rec, vaultErr := f.attempt(ctx, w, c)
			f.record(storeCtx, rec, &summary, &problems)
			cycleRecords = append(cycleRecords, rec)

			if vaultErr != nil {
				// Wrong secret or corrupt ciphertext: the remaining
				// platforms for this wallet cannot be signed for.
				f.log.Error("Vault failure, skipping wallet's remaining activities",
					"wallet", w.Address, "error", vaultErr)
				problems = append(problems, fmt.Sprintf("wallet %d: %v", w.ID, vaultErr))
				break
			}

			if ci < len(f.caps)-1 {
				f.pause(ctx, f.cfg.Pacing.BetweenPlatforms)
			}
		}

		summary.WalletsProcessed++
		if wi < len(wallets)-1 {
			f.pause(ctx, f.cfg.Pacing.BetweenWallets)
		}
	}

	summary.FinishedAt = time.Now().UTC()
	if interrupted {
		problems = append(problems, "cycle interrupted by shutdown")
	}
	summary.ErrorSummary = joinProblems(problems)
	summary.Status = runStatus(summary, len(problems) > 0)

	runID, err := f.store.RecordRunSummary(storeCtx, summary)
	if err != nil {
		f.log.Error("Failed to persist run summary", "error", err)
	} else {
		summary.RunID = runID
	}

	f.mirror(storeCtx, cycleRecords, summary)

	f.log.Success("Cycle finished",
		"status", summary.Status,
		"wallets", summary.WalletsProcessed,
		"succeeded", summary.ActivitiesSucceeded,
		"failed", summary.ActivitiesFailed,
		"duration", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))

	if interrupted {
		return summary, ctx.Err()
	}
	return summary, nil
}

// attempt runs one wallet/platform interaction under a scoped signer and a
// per-call timeout, converting every capability error or panic into a failed
// activity record. The returned error is non-nil only for vault failures.
func (f *Farmer) attempt(ctx context.Context, w vault.Wallet, c platforms.Capability) (storage.ActivityRecord, error) {
	rec := storage.ActivityRecord{
		Timestamp:     time.Now().UTC(),
		WalletID:      w.ID,
		WalletAddress: w.Address,
		Platform:      c.Name(),
		ActivityType:  "interaction",
	}

	var res platforms.Result
	err := f.vault.WithSigner(w.ID, func(signer *evm.Signer) error {
		// Shutdown must not abort an attempt already in flight: the call
		// context carries only the per-call timeout, and cancellation is
		// honored at the wallet/platform loop boundaries instead.
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.cfg.CallTimeout)
		defer cancel()

		var execErr error
		func() {
			defer func() {
				if r := recover(); r != nil {
					execErr = fmt.Errorf("capability panicked: %v", r)
				}
			}()
			res, execErr = c.Execute(callCtx, signer)
		}()
		return execErr
	})

	if err != nil {
		rec.Status = types.ActivityFailed
		rec.Details = err.Error()
		if errors.Is(err, vault.ErrInvalidCredential) || errors.Is(err, vault.ErrVaultCorrupt) || errors.Is(err, vault.ErrWalletNotFound) {
			rec.Platform = types.PlatformSystem
			rec.ActivityType = "vault_access"
			return rec, err
		}
		f.log.Warn("Capability failed", "wallet", w.Address, "platform", c.Name(), "error", err)
		return rec, nil
	}

	rec.ActivityType = res.ActivityType
	rec.Status = res.Status
	rec.TxReference = res.TxReference
	rec.Details = res.Details
	rec.PointsDelta = res.PointsDelta
	return rec, nil
}

// record persists one activity record and its derived state updates. Store
// write failures are logged and flagged but never abort the cycle.
func (f *Farmer) record(ctx context.Context, rec storage.ActivityRecord, summary *storage.RunSummary, problems *[]string) {
	switch rec.Status {
	case types.ActivitySuccess:
		summary.ActivitiesSucceeded++
	case types.ActivityFailed:
		summary.ActivitiesFailed++
	}

	if err := f.store.AppendActivity(ctx, rec); err != nil {
		*problems = append(*problems, fmt.Sprintf("store: %v", err))
		return
	}
	if err := f.store.UpdateWalletState(ctx, rec.WalletID, rec.WalletAddress, rec.Platform, storage.DeltaFor(rec)); err != nil {
		*problems = append(*problems, fmt.Sprintf("store: %v", err))
	}
	if rec.Status != types.ActivityPending {
		ok := rec.Status == types.ActivitySuccess
		if err := f.store.UpdatePlatformStats(ctx, rec.Platform, ok, rec.Timestamp); err != nil {
			*problems = append(*problems, fmt.Sprintf("store: %v", err))
		}
	}
}

// mirror sends the cycle's records to the dashboard sink. Best-effort only.
func (f *Farmer) mirror(ctx context.Context, recs []storage.ActivityRecord, summary storage.RunSummary) {
	if !f.dash.Enabled() {
		return
	}
	for _, rec := range recs {
		if err := f.dash.LogActivity(ctx, rec); err != nil {
			f.log.Warn("Dashboard delivery failed", "wallet", rec.WalletAddress, "platform", rec.Platform, "error", err)
		}
	}
	if err := f.dash.LogRunSummary(ctx, summary); err != nil {
		f.log.Warn("Dashboard run summary delivery failed", "error", err)
	}
}

// pause waits out a pacing delay, returning early on context cancellation.
func (f *Farmer) pause(ctx context.Context, d config.DelayRange) {
	dur, err := d.Duration()
	if err != nil {
		f.log.Warn("Invalid pacing delay, skipping", "error", err)
		return
	}
	if dur <= 0 {
		return
	}
	f.log.Debug("Pausing", "duration", dur)
	select {
	case <-time.After(dur):
	case <-ctx.Done():
	}
}

func runStatus(summary storage.RunSummary, hadProblems bool) types.RunStatus {
	switch {
	case summary.ActivitiesSucceeded == 0 && summary.ActivitiesFailed > 0:
		return types.RunFailed
	case summary.ActivitiesFailed > 0 || hadProblems:
		return types.RunPartial
	default:
		return types.RunSuccess
	}
}

func joinProblems(problems []string) string {
	const maxProblems = 10
	if len(problems) > maxProblems {
		problems = append(problems[:maxProblems:maxProblems],
			fmt.Sprintf("and %d more", len(problems)-maxProblems))
	}
	return strings.Join(problems, "; ")
}
