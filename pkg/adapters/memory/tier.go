package memory

import (
	"context"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
)

// Tier implements ports.CacheTier in memory.
// Safe for concurrent use. Contents are lost when the process exits.
type Tier struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewTier creates a new in-memory tier.
func NewTier() *Tier {
	return &Tier{
		data: make(map[string][]byte),
	}
}

// Write stores a private copy of the bytes.
func (s *Tier) Write(ctx context.Context, fingerprint string, data []byte) error {
	copied := append([]byte(nil), data...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[fingerprint] = copied
	return nil
}

// Read returns a copy so callers can't mutate stored entries.
func (s *Tier) Read(ctx context.Context, fingerprint string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[fingerprint]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return append([]byte(nil), data...), nil
}

// Delete removes the entry.
func (s *Tier) Delete(ctx context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, fingerprint)
	return nil
}

// List returns stored fingerprints.
func (s *Tier) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fps := make([]string, 0, len(s.data))
	for fp := range s.data {
		fps = append(fps, fp)
	}
	return fps, nil
}

// Size returns the total stored bytes.
func (s *Tier) Size(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, b := range s.data {
		total += int64(len(b))
	}
	return total, nil
}

// Clear drops every entry.
func (s *Tier) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string][]byte)
	return nil
}
