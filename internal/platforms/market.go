package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"airfarm/internal/config"
	"airfarm/internal/evm"
	"airfarm/internal/logger"
	"airfarm/internal/types"
)

const activityInteractionTracking = "interaction_tracking"

// Market tracks a wallet's interactions on the prediction-market API:
// trade history and open positions.
type Market struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     logger.Logger
}

// NewMarket creates the prediction-market capability.
func NewMarket(cfg config.API, log logger.Logger) *Market {
	return &Market{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.Key,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// Name returns the platform identifier.
func (m *Market) Name() types.Platform {
	return types.PlatformMarket
}

type marketTrade struct {
	ID     string  `json:"id"`
	Market string  `json:"market"`
	Size   float64 `json:"size"`
}

type marketPosition struct {
	Market string  `json:"market"`
	Size   float64 `json:"size"`
}

// Execute fetches the wallet's trades and positions. The trade count feeds
// the wallet's volume metric; API failures map to a failed result.
func (m *Market) Execute(ctx context.Context, signer *evm.Signer) (Result, error) {
	address := signer.Address().Hex()

	var trades []marketTrade
	if err := m.getJSON(ctx, fmt.Sprintf("%s/trades/%s", m.baseURL, address), &trades); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return failed(activityInteractionTracking, err.Error()), nil
	}

	var positions []marketPosition
	if err := m.getJSON(ctx, fmt.Sprintf("%s/positions/%s", m.baseURL, address), &positions); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return failed(activityInteractionTracking, err.Error()), nil
	}

	m.log.Debug("Market interactions fetched", "wallet", address, "trades", len(trades), "positions", len(positions))
	return Result{
		ActivityType: activityInteractionTracking,
		Status:       types.ActivitySuccess,
		Details:      fmt.Sprintf("%d trades, %d open positions", len(trades), len(positions)),
		PointsDelta:  float64(len(trades)),
	}, nil
}

// getJSON performs an authenticated GET and decodes the JSON body into out.
func (m *Market) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request failed: %w", err)
	}
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("market api unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("market api returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding market response failed: %w", err)
	}
	return nil
}
