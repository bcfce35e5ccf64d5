package ports

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCacheTierContract runs a suite of tests to verify that a CacheTier implementation
// adheres to the defined interface contract.
// The tier is cleared at the end of the suite.
func RunCacheTierContract(t *testing.T, tier CacheTier) {
	ctx := context.Background()
	prefix := fmt.Sprintf("%x", time.Now().UnixNano())
	fp := func(n int) string { return fmt.Sprintf("%s%04d", prefix, n) }

	t.Cleanup(func() { _ = tier.Clear(ctx) })

	t.Run("Write and Read", func(t *testing.T) {
		payload := []byte("encoded-entry\x00\x01\x02")
		require.NoError(t, tier.Write(ctx, fp(1), payload), "Write should not return error")

		got, err := tier.Read(ctx, fp(1))
		require.NoError(t, err, "Read should not return error")
		assert.Equal(t, payload, got)
	})

	t.Run("Read Non-Existent", func(t *testing.T) {
		_, err := tier.Read(ctx, fp(999))
		assert.ErrorIs(t, err, domain.ErrCacheMiss)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, tier.Write(ctx, fp(2), []byte("first")))
		require.NoError(t, tier.Write(ctx, fp(2), []byte("second")))

		got, err := tier.Read(ctx, fp(2))
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), got)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, tier.Write(ctx, fp(3), []byte("gone soon")))
		require.NoError(t, tier.Delete(ctx, fp(3)), "Delete should not return error")

		_, err := tier.Read(ctx, fp(3))
		assert.ErrorIs(t, err, domain.ErrCacheMiss, "Read after Delete should return ErrCacheMiss")

		assert.NoError(t, tier.Delete(ctx, fp(3)), "Deleting twice is not an error")
	})

	t.Run("List and Size", func(t *testing.T) {
		require.NoError(t, tier.Clear(ctx))
		require.NoError(t, tier.Write(ctx, fp(4), bytes.Repeat([]byte("a"), 100)))
		require.NoError(t, tier.Write(ctx, fp(5), bytes.Repeat([]byte("b"), 50)))

		keys, err := tier.List(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{fp(4), fp(5)}, keys)

		size, err := tier.Size(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(150), size)
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, tier.Write(ctx, fp(6), []byte("x")))
		require.NoError(t, tier.Clear(ctx))

		_, err := tier.Read(ctx, fp(6))
		assert.ErrorIs(t, err, domain.ErrCacheMiss)

		size, err := tier.Size(ctx)
		require.NoError(t, err)
		assert.Zero(t, size)
	})

	t.Run("Concurrent Writes", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, tier.Write(ctx, fp(100+i%2), []byte("same-bytes")))
			}(i)
		}
		wg.Wait()

		for _, n := range []int{100, 101} {
			got, err := tier.Read(ctx, fp(n))
			require.NoError(t, err)
			assert.Equal(t, []byte("same-bytes"), got)
		}
	})
}
