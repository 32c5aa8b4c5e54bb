package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"gamesync-backend/internal/components/assert"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Store keeps session states between calls, keyed by whatever identifies the end
// user to the caller.
type Store interface {
	Load(ctx context.Context, key string) (*State, bool, error)
	Save(ctx context.Context, key string, state *State) error
	Delete(ctx context.Context, key string) error
}

// LRUStore is an in-memory Store, entries expire after ttl.
type LRUStore struct {
	cache *expirable.LRU[string, State]
}

func NewLRUStore(size int, ttl time.Duration) LRUStore {
	return LRUStore{
		cache: expirable.NewLRU[string, State](size, nil, ttl),
	}
}

func (s LRUStore) Load(ctx context.Context, key string) (*State, bool, error) {
	state, hit := s.cache.Get(key)
	if !hit {
		return nil, false, nil
	}
	return &state, true, nil
}

func (s LRUStore) Save(ctx context.Context, key string, state *State) error {
	if state == nil {
		return s.Delete(ctx, key)
	}
	s.cache.Add(key, *state)
	return nil
}

func (s LRUStore) Delete(ctx context.Context, key string) error {
	s.cache.Remove(key)
	return nil
}

// CachedStore serves loads from an LRUStore and writes through to a slower
// backing Store, long running processes use it in front of FileStore or RedisStore.
type CachedStore struct {
	cache   LRUStore
	backing Store
}

func NewCachedStore(cache LRUStore, backing Store) CachedStore {
	assert.NotNil(backing)
	return CachedStore{cache: cache, backing: backing}
}

func (s CachedStore) Load(ctx context.Context, key string) (*State, bool, error) {
	state, ok, _ := s.cache.Load(ctx, key)
	if ok {
		return state, true, nil
	}
	state, ok, err := s.backing.Load(ctx, key)
	if err != nil || !ok {
		return state, ok, err
	}
	s.cache.Save(ctx, key, state)
	return state, true, nil
}

func (s CachedStore) Save(ctx context.Context, key string, state *State) error {
	err := s.backing.Save(ctx, key, state)
	if err != nil {
		return err
	}
	return s.cache.Save(ctx, key, state)
}

func (s CachedStore) Delete(ctx context.Context, key string) error {
	s.cache.Delete(ctx, key)
	return s.backing.Delete(ctx, key)
}

// FileStore keeps one json file per key in a directory, it is what the cli uses
// so a session survives between invocations.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (FileStore, error) {
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		return FileStore{}, err
	}
	return FileStore{dir: dir}, nil
}

func (s FileStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".json")
}

func (s FileStore) Load(ctx context.Context, key string) (*State, bool, error) {
	buff, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var state State
	err = json.Unmarshal(buff, &state)
	if err != nil {
		return nil, false, fmt.Errorf("decode session state: %w", err)
	}
	return &state, true, nil
}

func (s FileStore) Save(ctx context.Context, key string, state *State) error {
	if state == nil {
		return s.Delete(ctx, key)
	}
	buff, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(key), buff, 0600)
}

func (s FileStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// RedisStore keeps states as json values under prefix+key, so several instances
// can share logins. Entries expire after ttl, zero keeps them until deleted.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) RedisStore {
	assert.NotNil(client)
	return RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s RedisStore) Load(ctx context.Context, key string) (*State, bool, error) {
	buff, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var state State
	err = json.Unmarshal(buff, &state)
	if err != nil {
		return nil, false, fmt.Errorf("decode session state: %w", err)
	}
	return &state, true, nil
}

func (s RedisStore) Save(ctx context.Context, key string, state *State) error {
	if state == nil {
		return s.Delete(ctx, key)
	}
	buff, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+key, buff, s.ttl).Err()
}

func (s RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
