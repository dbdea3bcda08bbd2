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

const activityPointsFarming = "points_farming"

// Dex tracks points farming on the decentralized-exchange API. The API
// credits points per wallet for maintained activity; each cycle reads the
// points earned since the previous check.
type Dex struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     logger.Logger
}

// NewDex creates the DEX points capability.
func NewDex(cfg config.API, log logger.Logger) *Dex {
	return &Dex{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.Key,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// Name returns the platform identifier.
func (d *Dex) Name() types.Platform {
	return types.PlatformDex
}

type dexPointsResponse struct {
	Wallet       string  `json:"wallet"`
	PointsEarned float64 `json:"points_earned"`
	TotalPoints  float64 `json:"total_points"`
}

// Execute fetches the points earned by the signer's wallet since the last
// check. HTTP and decoding problems are expected conditions and map to a
// failed result.
func (d *Dex) Execute(ctx context.Context, signer *evm.Signer) (Result, error) {
	address := signer.Address().Hex()
	url := fmt.Sprintf("%s/points/%s", d.baseURL, address)

	var points dexPointsResponse
	if err := d.getJSON(ctx, url, &points); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return failed(activityPointsFarming, err.Error()), nil
	}

	d.log.Debug("DEX points fetched", "wallet", address, "earned", points.PointsEarned, "total", points.TotalPoints)
	return Result{
		ActivityType: activityPointsFarming,
		Status:       types.ActivitySuccess,
		Details:      fmt.Sprintf("earned %.2f points (total %.2f)", points.PointsEarned, points.TotalPoints),
		PointsDelta:  points.PointsEarned,
	}, nil
}

// getJSON performs an authenticated GET and decodes the JSON body into out.
func (d *Dex) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request failed: %w", err)
	}
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("dex api unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dex api returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding dex response failed: %w", err)
	}
	return nil
}
