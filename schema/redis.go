package schema

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultRedisPrefix namespaces descriptor keys in Redis.
const DefaultRedisPrefix = "persist:schema:"

// RedisStore shares descriptors through Redis, encoded with msgpack.
type RedisStore struct {
	Client redis.UniversalClient
	Prefix string
	// TTL bounds how long a descriptor is shared. Zero keeps it forever.
	TTL time.Duration
}

// NewRedisStore creates a store on a new client.
func NewRedisStore(opt *redis.Options, ttl time.Duration) *RedisStore {
	return &RedisStore{
		Client: redis.NewClient(opt),
		Prefix: DefaultRedisPrefix,
		TTL:    ttl,
	}
}

func (s *RedisStore) key(key Key) string {
	return s.Prefix + key.String()
}

func (s *RedisStore) Load(ctx context.Context, key Key) (*Descriptor, bool, error) {
	data, err := s.Client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("schema: redis get: %w", err)
	}
	var d Descriptor
	if err := msgpack.Unmarshal(data, &d); err != nil {
		return nil, false, fmt.Errorf("schema: decode %s: %w", key, err)
	}
	return &d, true, nil
}

func (s *RedisStore) Save(ctx context.Context, key Key, d *Descriptor) error {
	data, err := msgpack.Marshal(d)
	if err != nil {
		return fmt.Errorf("schema: encode %s: %w", key, err)
	}
	if err := s.Client.Set(ctx, s.key(key), data, s.TTL).Err(); err != nil {
		return fmt.Errorf("schema: redis set: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.Client.Close()
}
