package embcache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// RedisStore is the rueidis-backed cache store.
type RedisStore struct {
	client rueidis.Client
}

// NewRedisStore connects to the Redis server at addr.
func NewRedisStore(addr string) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{addr},
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *RedisStore) Close() {
	s.client.Close()
}

// GetMulti fetches all keys in one round trip. Missing keys yield nil.
func (s *RedisStore) GetMulti(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make(rueidis.Commands, len(keys))
	for i, k := range keys {
		cmds[i] = s.client.B().Get().Key(k).Build()
	}

	out := make([][]byte, len(keys))
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		data, err := res.AsBytes()
		if err != nil {
			if rueidis.IsRedisNil(err) {
				continue
			}
			return nil, fmt.Errorf("get %s: %w", keys[i], err)
		}
		out[i] = data
	}
	return out, nil
}

// SetMulti stores all items with the given TTL in one round trip. A zero TTL
// stores without expiry.
func (s *RedisStore) SetMulti(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if len(items) == 0 {
		return nil
	}

	cmds := make(rueidis.Commands, 0, len(items))
	keys := make([]string, 0, len(items))
	for k, v := range items {
		if ttl > 0 {
			cmds = append(cmds, s.client.B().Set().Key(k).Value(rueidis.BinaryString(v)).Ex(ttl).Build())
		} else {
			cmds = append(cmds, s.client.B().Set().Key(k).Value(rueidis.BinaryString(v)).Build())
		}
		keys = append(keys, k)
	}

	for i, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return fmt.Errorf("set %s: %w", keys[i], err)
		}
	}
	return nil
}
