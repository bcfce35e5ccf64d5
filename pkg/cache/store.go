package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

const (
	DefaultMaxEntries = 256
	DefaultMaxBytes   = 256 << 20
)

// Store is the two-tier result cache: an in-process LRU in front of a durable ports.CacheTier.
// A nil tier keeps results in process memory only.
type Store struct {
	tier   ports.CacheTier
	mem    *lru
	logger *slog.Logger
	now    func() time.Time

	memHits  atomic.Int64
	tierHits atomic.Int64
	misses   atomic.Int64
	writes   atomic.Int64
	corrupt  atomic.Int64
	evicted  atomic.Int64
}

// Option configures a Store.
type Option func(*storeConfig)

type storeConfig struct {
	maxEntries int
	maxBytes   int64
	logger     *slog.Logger
	now        func() time.Time
}

// WithMaxEntries bounds the in-process tier by entry count. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(c *storeConfig) { c.maxEntries = n }
}

// WithMaxBytes bounds the in-process tier by encoded size. Zero means unbounded.
func WithMaxBytes(n int64) Option {
	return func(c *storeConfig) { c.maxBytes = n }
}

// WithLogger sets the logger used to report degraded cache operations.
func WithLogger(l *slog.Logger) Option {
	return func(c *storeConfig) { c.logger = l }
}

// WithClock overrides the entry creation clock.
func WithClock(now func() time.Time) Option {
	return func(c *storeConfig) { c.now = now }
}

// New creates a cache Store backed by tier.
func New(tier ports.CacheTier, opts ...Option) *Store {
	cfg := storeConfig{
		maxEntries: DefaultMaxEntries,
		maxBytes:   DefaultMaxBytes,
		logger:     logging.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Store{
		tier:   tier,
		mem:    newLRU(cfg.maxEntries, cfg.maxBytes),
		logger: cfg.logger,
		now:    cfg.now,
	}
}

// Get returns the entry for a fingerprint, checking memory first and then the durable tier.
// Durable hits are promoted to memory. Entries that fail verification are deleted and
// reported as domain.ErrCacheMiss, as are durable read failures.
func (s *Store) Get(ctx context.Context, fp string) (*Entry, error) {
	if e, ok := s.mem.get(fp); ok {
		s.memHits.Add(1)
		return e, nil
	}
	if s.tier == nil {
		s.misses.Add(1)
		return nil, domain.ErrCacheMiss
	}

	data, err := s.tier.Read(ctx, fp)
	if err != nil {
		s.misses.Add(1)
		if !errors.Is(err, domain.ErrCacheMiss) {
			s.logger.Warn("cache read failed, recomputing", "fingerprint", fp, "error", err)
		}
		return nil, domain.ErrCacheMiss
	}

	e, err := Decode(fp, data)
	if err != nil {
		s.misses.Add(1)
		s.corrupt.Add(1)
		s.logger.Warn("dropping corrupt cache entry", "fingerprint", fp, "error", err)
		if delErr := s.tier.Delete(ctx, fp); delErr != nil {
			s.logger.Warn("failed to delete corrupt cache entry", "fingerprint", fp, "error", delErr)
		}
		return nil, domain.ErrCacheMiss
	}

	s.tierHits.Add(1)
	s.evicted.Add(int64(s.mem.add(e)))
	return e, nil
}

// Put stores a successful result under fp in both tiers.
// Encoding failures (domain.ErrUnsupportedPayload) leave both tiers untouched.
// A durable write failure is returned after the memory tier was populated.
func (s *Store) Put(ctx context.Context, fp string, res *domain.NodeResult) error {
	createdAt := s.now()
	data, err := Encode(fp, res, createdAt)
	if err != nil {
		return err
	}

	e := &Entry{
		Fingerprint: fp,
		Outputs:     res.Outputs,
		Metadata:    res.Metadata,
		Preview:     res.Preview,
		CreatedAt:   createdAt,
		Size:        int64(len(data)),
	}
	s.evicted.Add(int64(s.mem.add(e)))
	s.writes.Add(1)

	if s.tier == nil {
		return nil
	}
	if err := s.tier.Write(ctx, fp, data); err != nil {
		return fmt.Errorf("failed to persist cache entry %s: %w", fp, err)
	}
	return nil
}

// Invalidate removes a fingerprint from both tiers.
func (s *Store) Invalidate(ctx context.Context, fp string) error {
	s.mem.remove(fp)
	if s.tier == nil {
		return nil
	}
	return s.tier.Delete(ctx, fp)
}

// SizeBytes reports the durable footprint, or the in-process footprint without a tier.
func (s *Store) SizeBytes(ctx context.Context) (int64, error) {
	if s.tier == nil {
		_, n := s.mem.stats()
		return n, nil
	}
	return s.tier.Size(ctx)
}

// Clear empties both tiers.
func (s *Store) Clear(ctx context.Context) error {
	s.mem.clear()
	if s.tier == nil {
		return nil
	}
	return s.tier.Clear(ctx)
}

// Stats is a snapshot of cache counters.
type Stats struct {
	MemoryHits  int64 `json:"memory_hits"`
	TierHits    int64 `json:"tier_hits"`
	Misses      int64 `json:"misses"`
	Writes      int64 `json:"writes"`
	Corrupt     int64 `json:"corrupt"`
	Evictions   int64 `json:"evictions"`
	Entries     int   `json:"entries"`
	MemoryBytes int64 `json:"memory_bytes"`
}

// Stats returns the current counters.
func (s *Store) Stats() Stats {
	entries, bytes := s.mem.stats()
	return Stats{
		MemoryHits:  s.memHits.Load(),
		TierHits:    s.tierHits.Load(),
		Misses:      s.misses.Load(),
		Writes:      s.writes.Load(),
		Corrupt:     s.corrupt.Load(),
		Evictions:   s.evicted.Load(),
		Entries:     entries,
		MemoryBytes: bytes,
	}
}
