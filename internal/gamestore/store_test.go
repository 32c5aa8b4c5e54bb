package gamestore

import (
	"context"
	"gamesync-backend/internal/components/telemetry"
	"gamesync-backend/internal/gamestore/db"
	"gamesync-backend/internal/reconcile"
	"gamesync-backend/lib/testutil"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func setup(t testing.TB) Store {
	sqlite := testutil.OpenDB(t, testutil.DBParams{Schema: db.Schema})
	return NewStore(sqlite, &telemetry.Recorder{})
}

func game(id, date, clock, location string) reconcile.ExternalGame {
	return reconcile.ExternalGame{
		GameID:   id,
		Date:     date,
		Time:     clock,
		HomeTeam: "S-Kiekko Punainen",
		AwayTeam: "Kiekko-Vantaa",
		Location: location,
		TeamID:   "981",
		TeamName: "S-Kiekko Punainen",
		Type:     reconcile.TYPE_MANAGE,
	}
}

func TestTrack(t *testing.T) {
	store := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	first := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	diff, err := store.Track(ctx, []reconcile.ExternalGame{
		game("1", "2025-07-01", "12:00", "Arena 3"),
		game("2", "2025-07-05", reconcile.Unscheduled, "Tapiola"),
	}, first)
	require.NoError(t, err)
	require.Len(t, diff.Added, 2)
	require.Empty(t, diff.Updated)

	diff, err = store.Track(ctx, []reconcile.ExternalGame{
		game("1", "2025-07-01", "12:00", "Arena 3"),
		game("2", "2025-07-06", "10:15", "Tapiola"),
		game("3", "2025-07-09", "18:00", "Myyrmäki 2"),
	}, first.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, diff.Added, 1)
	require.Equal(t, "3", diff.Added[0].GameID)
	require.Len(t, diff.Updated, 1)

	expected := []Change{
		{Field: "date", Old: "2025-07-05", New: "2025-07-06"},
		{Field: "time", Old: reconcile.Unscheduled, New: "10:15"},
	}
	if d := cmp.Diff(expected, diff.Updated[0].Changes); d != "" {
		t.Fatalf("changes differ (-want +got):\n%s", d)
	}

	diff, err = store.Track(ctx, []reconcile.ExternalGame{game("3", "2025-07-09", "18:00", "Myyrmäki 2")}, first.Add(2*time.Hour))
	require.NoError(t, err)
	require.True(t, diff.Empty())
}

func TestGamesAndPrune(t *testing.T) {
	store := setup(t)
	ctx := context.Background()

	seen := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	_, err := store.Track(ctx, []reconcile.ExternalGame{
		game("1", "2025-05-20", "12:00", "Arena 3"),
		game("2", "2025-07-05", "10:00", "Tapiola"),
		game("3", "2025-07-01", "09:00", "Arena 1"),
	}, seen)
	require.NoError(t, err)

	games, err := store.Games(ctx, "981", "2025-06-01")
	require.NoError(t, err)
	require.Len(t, games, 2)
	require.Equal(t, "3", games[0].GameID)
	require.Equal(t, game("2", "2025-07-05", "10:00", "Tapiola"), games[1])

	removed, err := store.Prune(ctx, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	games, err = store.Games(ctx, "981", "2000-01-01")
	require.NoError(t, err)
	require.Len(t, games, 2)
}
