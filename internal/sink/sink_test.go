package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"airfarm/internal/config"
	"airfarm/internal/logger"
	"airfarm/internal/storage"
	"airfarm/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledSinkIsNoop(t *testing.T) {
	dash := New(config.API{}, logger.NewNop())
	assert.False(t, dash.Enabled())
	assert.NoError(t, dash.LogActivity(context.Background(), storage.ActivityRecord{}))
	assert.NoError(t, dash.LogRunSummary(context.Background(), storage.RunSummary{}))
}

func TestLogActivity(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	dash := New(config.API{URL: server.URL + "/", Key: "sekrit"}, logger.NewNop())
	require.True(t, dash.Enabled())

	err := dash.LogActivity(context.Background(), storage.ActivityRecord{
		Timestamp:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		WalletAddress: "0xabc",
		Platform:      types.PlatformDex,
		ActivityType:  "points_farming",
		Status:        types.ActivitySuccess,
	})
	require.NoError(t, err)

	assert.Equal(t, "/activities", gotPath)
	assert.Equal(t, "Bearer sekrit", gotAuth)
	assert.Equal(t, "0xabc", gotBody["wallet"])
	assert.Equal(t, "dex", gotBody["platform"])
	assert.Equal(t, "success", gotBody["status"])
}

func TestLogRunSummary(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
	}))
	defer server.Close()

	dash := New(config.API{URL: server.URL}, logger.NewNop())
	err := dash.LogRunSummary(context.Background(), storage.RunSummary{
		Status:              types.RunPartial,
		WalletsProcessed:    3,
		ActivitiesSucceeded: 8,
		ActivitiesFailed:    1,
		ErrorSummary:        "wallet 2: dex api unreachable",
	})
	require.NoError(t, err)

	assert.Equal(t, "/runs", gotPath)
	assert.Equal(t, "partial", gotBody["status"])
	assert.Equal(t, 3.0, gotBody["wallets_processed"])
	assert.Equal(t, "wallet 2: dex api unreachable", gotBody["error_summary"])
}

func TestDeliveryFailureIsReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	dash := New(config.API{URL: server.URL}, logger.NewNop())
	err := dash.LogActivity(context.Background(), storage.ActivityRecord{})
	assert.ErrorContains(t, err, "503")
}
