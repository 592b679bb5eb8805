package renewstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uzx-v/renewbot/lib/renewstore/db"
	"github.com/uzx-v/renewbot/lib/testutil"
	"github.com/uzx-v/renewbot/lib/timezone"
)

func TestStore(t *testing.T) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "lib/renewstore",
		DbSchema: db.Schema,
	})
	defer cleanup()
	store := NewStore(setup.DB)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	_, found, err := store.LastAttempt(ctx, "castlehost", "srv-1")
	require.NoError(t, err)
	require.False(t, found)

	expires := time.Date(2026, 9, 10, 0, 0, 0, 0, timezone.Location)
	first, err := store.RecordAttempt(ctx, Attempt{
		Provider:    "castlehost",
		Target:      "srv-1",
		Status:      "renewed",
		ExpiresAt:   expires,
		DaysLeft:    12,
		AttemptedAt: timezone.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.Id)

	_, err = store.RecordAttempt(ctx, Attempt{
		Provider: "castlehost",
		Target:   "srv-1",
		Status:   "cooldown",
		Detail:   "renewable once per 24 hours",
	})
	require.NoError(t, err)

	_, err = store.RecordAttempt(ctx, Attempt{
		Provider: "pella",
		Target:   "user@example.com",
		Status:   "skipped",
		DaysLeft: 9,
	})
	require.NoError(t, err)

	last, found, err := store.LastAttempt(ctx, "castlehost", "srv-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "cooldown", last.Status)
	require.Equal(t, "renewable once per 24 hours", last.Detail)

	attempts, err := store.ListAttempts(ctx, "castlehost", 10)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	require.Equal(t, "cooldown", attempts[0].Status)
	require.Equal(t, "renewed", attempts[1].Status)
	require.True(t, attempts[1].ExpiresAt.Equal(expires))

	all, err := store.ListAttempts(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)

	states, err := store.ProviderStates(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)

	// cooldown attempt carried no expiration, the state keeps the old one
	require.Equal(t, "castlehost", states[0].Provider)
	require.Equal(t, "cooldown", states[0].LastStatus)
	require.True(t, states[0].ExpiresAt.Equal(expires))
}
