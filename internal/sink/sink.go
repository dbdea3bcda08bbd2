package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"airfarm/internal/config"
	"airfarm/internal/logger"
	"airfarm/internal/storage"
)

// Dashboard mirrors activity records and run summaries to the remote logging
// dashboard. Delivery is best-effort: failures are reported to the caller for
// logging and never affect the cycle outcome.
type Dashboard struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     logger.Logger
}

// New creates the dashboard sink. An empty URL yields a disabled sink.
func New(cfg config.API, log logger.Logger) *Dashboard {
	return &Dashboard{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.Key,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

// Enabled reports whether a dashboard endpoint is configured.
func (d *Dashboard) Enabled() bool {
	return d.baseURL != ""
}

// activityPayload is the wire format the dashboard accepts for one activity.
type activityPayload struct {
	Wallet      string    `json:"wallet"`
	Platform    string    `json:"platform"`
	Activity    string    `json:"activity"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	TxReference string    `json:"tx_reference,omitempty"`
	Details     string    `json:"details,omitempty"`
}

// runPayload is the wire format for one scheduler run summary.
type runPayload struct {
	Status              string    `json:"status"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
	WalletsProcessed    int       `json:"wallets_processed"`
	ActivitiesSucceeded int       `json:"activities_succeeded"`
	ActivitiesFailed    int       `json:"activities_failed"`
	ErrorSummary        string    `json:"error_summary,omitempty"`
}

// LogActivity mirrors one activity record to the dashboard.
func (d *Dashboard) LogActivity(ctx context.Context, rec storage.ActivityRecord) error {
	if !d.Enabled() {
		return nil
	}
	return d.post(ctx, "/activities", activityPayload{
		Wallet:      rec.WalletAddress,
		Platform:    string(rec.Platform),
		Activity:    rec.ActivityType,
		Status:      string(rec.Status),
		Timestamp:   rec.Timestamp,
		TxReference: rec.TxReference,
		Details:     rec.Details,
	})
}

// LogRunSummary mirrors one run summary to the dashboard.
func (d *Dashboard) LogRunSummary(ctx context.Context, summary storage.RunSummary) error {
	if !d.Enabled() {
		return nil
	}
	return d.post(ctx, "/runs", runPayload{
		Status:              string(summary.Status),
		StartedAt:           summary.StartedAt,
		FinishedAt:          summary.FinishedAt,
		WalletsProcessed:    summary.WalletsProcessed,
		ActivitiesSucceeded: summary.ActivitiesSucceeded,
		ActivitiesFailed:    summary.ActivitiesFailed,
		ErrorSummary:        summary.ErrorSummary,
	})
}

func (d *Dashboard) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling dashboard payload failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building dashboard request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("dashboard unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("dashboard returned status %d", resp.StatusCode)
	}
	return nil
}
