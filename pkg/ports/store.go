package ports

import "context"

// CacheTier defines the durable storage behind the result cache.
// Entries are opaque, already-encoded envelopes addressed by fingerprint.
// Implementations must be safe for concurrent use; concurrent writes of the same
// fingerprint carry identical bytes, so last-writer-wins is acceptable.
type CacheTier interface {
	// Read returns the stored bytes for a fingerprint.
	// Returns domain.ErrCacheMiss if nothing is stored.
	Read(ctx context.Context, fingerprint string) ([]byte, error)

	// Write stores the bytes for a fingerprint, replacing any previous entry.
	Write(ctx context.Context, fingerprint string, data []byte) error

	// Delete removes the entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, fingerprint string) error

	// List returns the fingerprints currently stored.
	List(ctx context.Context) ([]string, error)

	// Size returns the total number of stored bytes.
	Size(ctx context.Context) (int64, error)

	// Clear removes every entry owned by the tier.
	Clear(ctx context.Context) error
}
