package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces plan snapshots in Redis.
const keyPrefix = "shiftcast:plan:"

// DefaultRedisTTL applies when NewRedisStore is given a zero TTL.
const DefaultRedisTTL = 24 * time.Hour

// scanBatch is the COUNT hint used when listing sites.
const scanBatch = 100

// RedisStore keeps snapshots in Redis so several planner replicas serve the
// same plans. Each Put refreshes the key's TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var (
	_ Store  = (*RedisStore)(nil)
	_ Lister = (*RedisStore)(nil)
)

// NewRedisStore connects to the Redis server at addr and checks it with a
// PING. A zero ttl means DefaultRedisTTL.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	switch {
	case addr == "":
		return nil, errors.New("redis address cannot be empty")
	case db < 0:
		return nil, fmt.Errorf("redis database must be >= 0, got %d", db)
	case ttl < 0:
		return nil, fmt.Errorf("redis ttl cannot be negative, got %v", ttl)
	case ttl == 0:
		ttl = DefaultRedisTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis at %s: %w", addr, err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func redisKey(site string) string { return keyPrefix + site }

// Put writes the snapshot as JSON under shiftcast:plan:<site>.
func (r *RedisStore) Put(ctx context.Context, s Snapshot) error {
	if err := validateSite(s.Site); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot for %s: %w", s.Site, err)
	}
	if err := r.client.Set(ctx, redisKey(s.Site), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("store snapshot for %s: %w", s.Site, err)
	}
	return nil
}

// GetLatest reads the snapshot for site. A missing or expired key reports
// found == false.
func (r *RedisStore) GetLatest(ctx context.Context, site string) (Snapshot, bool, error) {
	if err := validateSite(site); err != nil {
		return Snapshot{}, false, err
	}

	data, err := r.client.Get(ctx, redisKey(site)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load snapshot for %s: %w", site, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode snapshot for %s: %w", site, err)
	}
	return snap, true, nil
}

// Sites scans the plan keyspace and returns the stored site names.
func (r *RedisStore) Sites(ctx context.Context) ([]string, error) {
	var sites []string
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		sites = append(sites, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan plan keys: %w", err)
	}
	// SCAN may return a key more than once.
	slices.Sort(sites)
	return slices.Compact(sites), nil
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client. Closing twice is not an error.
func (r *RedisStore) Close() error {
	if err := r.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
