package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the tier.
const DefaultPrefix = "weft:cache:"

// farFuture is the index score of entries without expiration (2100-01-01).
const farFuture = 4102444800

// Tier implements ports.CacheTier using Redis, so several engine processes can share results.
// Entries are plain string keys; a sorted set indexes them by expiry for List, Size and Clear.
type Tier struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Tier)

// WithTTL sets the expiration for entries.
func WithTTL(ttl time.Duration) Option {
	return func(t *Tier) {
		t.ttl = ttl
	}
}

// WithPrefix sets the key prefix for entries.
func WithPrefix(prefix string) Option {
	return func(t *Tier) {
		t.prefix = prefix
	}
}

// New creates a new Redis tier with options.
func New(address, password string, db int, opts ...Option) *Tier {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis tier from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Tier {
	tier := &Tier{
		client: client,
		prefix: DefaultPrefix,
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(tier)
	}

	return tier
}

func (t *Tier) key(fingerprint string) string {
	return t.prefix + fingerprint
}

func (t *Tier) indexKey() string {
	return t.prefix + "index"
}

// Write stores the entry and indexes it.
func (t *Tier) Write(ctx context.Context, fingerprint string, data []byte) error {
	pipe := t.client.TxPipeline()

	pipe.Set(ctx, t.key(fingerprint), data, t.ttl)

	score := float64(time.Now().Add(t.ttl).Unix())
	if t.ttl == 0 {
		score = farFuture
	}
	pipe.ZAdd(ctx, t.indexKey(), backend.Z{
		Score:  score,
		Member: fingerprint,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write cache entry to redis: %w", err)
	}
	return nil
}

// Read retrieves the entry bytes.
func (t *Tier) Read(ctx context.Context, fingerprint string) ([]byte, error) {
	val, err := t.client.Get(ctx, t.key(fingerprint)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read cache entry from redis: %w", err)
	}
	return val, nil
}

// Delete removes the entry and its index member.
func (t *Tier) Delete(ctx context.Context, fingerprint string) error {
	pipe := t.client.TxPipeline()
	pipe.Del(ctx, t.key(fingerprint))
	pipe.ZRem(ctx, t.indexKey(), fingerprint)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete cache entry from redis: %w", err)
	}
	return nil
}

// List returns indexed fingerprints, lazily pruning expired ones.
func (t *Tier) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := t.client.ZRemRangeByScore(ctx, t.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired entries: %w", err)
	}

	fps, err := t.client.ZRange(ctx, t.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	return fps, nil
}

// Size sums the lengths of every live entry.
func (t *Tier) Size(ctx context.Context) (int64, error) {
	fps, err := t.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(fps) == 0 {
		return 0, nil
	}

	pipe := t.client.Pipeline()
	lens := make([]*backend.IntCmd, len(fps))
	for i, fp := range fps {
		lens[i] = pipe.StrLen(ctx, t.key(fp))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to size cache entries: %w", err)
	}

	var total int64
	for _, cmd := range lens {
		total += cmd.Val() // expired keys report 0
	}
	return total, nil
}

// Clear removes every indexed entry and the index itself.
// Keys outside the prefix are untouched.
func (t *Tier) Clear(ctx context.Context) error {
	fps, err := t.client.ZRange(ctx, t.indexKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to list cache entries: %w", err)
	}

	keys := make([]string, 0, len(fps)+1)
	for _, fp := range fps {
		keys = append(keys, t.key(fp))
	}
	keys = append(keys, t.indexKey())

	if err := t.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// Ping checks connectivity, used at startup to fail fast on a bad address.
func (t *Tier) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (t *Tier) Close() error {
	return t.client.Close()
}
