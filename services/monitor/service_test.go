package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uzx-v/renewbot/lib/renewstore"
	"github.com/uzx-v/renewbot/lib/renewstore/db"
	"github.com/uzx-v/renewbot/lib/testutil"
	"github.com/uzx-v/renewbot/lib/timezone"
)

func setupMonitor(t *testing.T, accessToken string) (*httptest.Server, renewstore.Store, func()) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/monitor",
		DbSchema: db.Schema,
	})
	store := renewstore.NewStore(setup.DB)

	mux := http.NewServeMux()
	NewService(Options{Store: store, AccessToken: accessToken}).Register(mux)
	server := httptest.NewServer(mux)

	return server, store, func() {
		server.Close()
		cleanup()
	}
}

func TestHealth(t *testing.T) {
	server, _, cleanup := setupMonitor(t, "")
	defer cleanup()

	res, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestStatusAndHistory(t *testing.T) {
	server, store, cleanup := setupMonitor(t, "")
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	expires := timezone.Now().Add(time.Hour * 72)
	_, err := store.RecordAttempt(ctx, renewstore.Attempt{
		Provider:  "castlehost",
		Target:    "12345",
		Status:    "renewed",
		ExpiresAt: expires,
		DaysLeft:  3,
	})
	require.NoError(t, err)
	_, err = store.RecordAttempt(ctx, renewstore.Attempt{
		Provider: "katabump",
		Target:   "999",
		Status:   "cooldown",
		Detail:   "You can only once at one time period.",
	})
	require.NoError(t, err)

	res, err := http.Get(server.URL + "/api/status")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var statuses []serverStatus
	require.NoError(t, json.NewDecoder(res.Body).Decode(&statuses))
	require.Len(t, statuses, 2)

	var castle *serverStatus
	for i := range statuses {
		if statuses[i].Provider == "castlehost" {
			castle = &statuses[i]
		}
	}
	require.NotNil(t, castle)
	require.Equal(t, "renewed", castle.LastStatus)
	require.NotEmpty(t, castle.Remaining)

	res, err = http.Get(server.URL + "/api/history?provider=katabump")
	require.NoError(t, err)
	defer res.Body.Close()

	var history []historyEntry
	require.NoError(t, json.NewDecoder(res.Body).Decode(&history))
	require.Len(t, history, 1)
	require.Equal(t, "cooldown", history[0].Status)
	require.Empty(t, history[0].ExpiresAt)
}

func TestHistoryRejectsBadLimit(t *testing.T) {
	server, _, cleanup := setupMonitor(t, "")
	defer cleanup()

	res, err := http.Get(server.URL + "/api/history?limit=banana")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestAccessToken(t *testing.T) {
	server, _, cleanup := setupMonitor(t, "sekrit")
	defer cleanup()

	res, err := http.Get(server.URL + "/api/status")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	// health stays open for uptime probes
	res, err = http.Get(server.URL + "/health")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	req, err := http.NewRequest("GET", server.URL+"/api/status", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer sekrit")
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
}
