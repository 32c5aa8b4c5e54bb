package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func sampleState() *State {
	return &State{
		Username:    "manager@example.com",
		AccessToken: "access",
		Cookies: map[string][]Cookie{
			"https://hallinta.example.com": {{Name: "ASP.NET_SessionId", Value: "abc"}},
		},
		BaseURL:           "https://hallinta.example.com/Admin/HockeyPox2020/",
		Tokens:            Tokens{ViewState: "vs", ViewStateGenerator: "gen", EventValidation: "ev"},
		LastAuthenticated: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC),
	}
}

func testStore(t *testing.T, store Store) {
	ctx := context.Background()

	_, ok, err := store.Load(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Save(ctx, "user-1", sampleState()))

	loaded, ok, err := store.Load(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(sampleState(), loaded); diff != "" {
		t.Fatalf("loaded state differs (-want +got):\n%s", diff)
	}

	require.NoError(t, store.Delete(ctx, "user-1"))
	_, ok, err = store.Load(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Delete(ctx, "never-saved"))
}

func TestLRUStore(t *testing.T) {
	testStore(t, NewLRUStore(16, time.Hour))
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	testStore(t, store)
}

func TestCachedStore(t *testing.T) {
	files, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	testStore(t, NewCachedStore(NewLRUStore(16, time.Hour), files))

	ctx := context.Background()
	cache := NewLRUStore(16, time.Hour)
	store := NewCachedStore(cache, files)
	require.NoError(t, files.Save(ctx, "user-2", &State{Username: "user-2"}))

	state, ok, err := store.Load(ctx, "user-2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "user-2", state.Username)

	cached, ok, err := cache.Load(ctx, "user-2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "user-2", cached.Username)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("GAMESYNC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GAMESYNC_TEST_REDIS_ADDR is not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	testStore(t, NewRedisStore(client, "gamesync-test:", time.Minute))
}
