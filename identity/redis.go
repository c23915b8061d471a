package identity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/c360/gqlbridge/errors"
)

// redisKeyPrefix namespaces session keys in Redis.
const redisKeyPrefix = "gqlbridge:session:"

// RedisStore resolves session tokens against a Redis-backed session store.
// Sessions are stored as JSON-encoded Identity values under
// "gqlbridge:session:<token>" with a TTL managed by the identity provider.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
}

// RedisConfig holds connection parameters for the Redis identity backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore creates a Redis-backed identity store.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		timeout: 3 * time.Second,
	}
}

// Lookup implements Store. A missing key is a nil identity, not an error;
// only transport failures surface as errors.
func (s *RedisStore) Lookup(ctx context.Context, sessionToken string) (*Identity, error) {
	if sessionToken == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.client.Get(ctx, redisKeyPrefix+sessionToken).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "RedisStore", "Lookup", "redis get")
	}

	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, errors.WrapInvalid(err, "RedisStore", "Lookup", "decode session")
	}
	return &id, nil
}

// Put stores an identity under a session token with the given TTL. Exposed
// for the identity provider side and for tests.
func (s *RedisStore) Put(ctx context.Context, sessionToken string, id Identity, ttl time.Duration) error {
	data, err := json.Marshal(id)
	if err != nil {
		return errors.WrapInvalid(err, "RedisStore", "Put", "encode session")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Set(ctx, redisKeyPrefix+sessionToken, data, ttl).Err(); err != nil {
		return errors.WrapTransient(err, "RedisStore", "Put", "redis set")
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
