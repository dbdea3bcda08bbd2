package platforms

import (
	"context"
	"fmt"

	"airfarm/internal/config"
	"airfarm/internal/evm"
	"airfarm/internal/logger"
	"airfarm/internal/types"
)

// Result is the structured outcome of one capability invocation.
type Result struct {
	ActivityType string
	Status       types.ActivityStatus
	TxReference  string
	Details      string
	// PointsDelta is the points/volume earned by this attempt. It feeds the
	// wallet-state metric, so a capability reports increments, not totals.
	PointsDelta float64
}

// Capability is the uniform interface each platform integration exposes to
// the orchestrator. Expected failure conditions (network errors, insufficient
// balance) must map to a failed Result, not an error; the orchestrator treats
// a returned error or panic as a failed activity with the error text as details.
type Capability interface {
	Name() types.Platform
	Execute(ctx context.Context, signer *evm.Signer) (Result, error)
}

// FromConfig builds the configured capabilities in the fixed platform order.
func FromConfig(cfg *config.Config, log logger.Logger) ([]Capability, error) {
	byName := map[types.Platform]Capability{
		types.PlatformTestChain: NewTestChain(cfg.Chain, log),
		types.PlatformDex:       NewDex(cfg.Dex, log),
		types.PlatformMarket:    NewMarket(cfg.Market, log),
	}

	caps := make([]Capability, 0, len(cfg.Pacing.PlatformOrder))
	for _, name := range cfg.Pacing.PlatformOrder {
		c, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown platform in platform_order: %s", name)
		}
		caps = append(caps, c)
	}
	return caps, nil
}

func failed(activityType, details string) Result {
	return Result{ActivityType: activityType, Status: types.ActivityFailed, Details: details}
}
