package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// ErrInvalidKey is returned when a key is not KeySize bytes long.
var ErrInvalidKey = errors.New("encryption key must be 32 bytes (AES-256)")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey encrypts new entries.
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key cannot open an entry,
	// so keys can be rotated without dropping the cache.
	FallbackKeys [][]byte
}

// ParseKey decodes a hex encoded AES-256 key.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	return key, nil
}

type encryptionMiddleware struct {
	ports.CacheTier
	active cipher.AEAD
	all    []cipher.AEAD
}

// NewEncryptionMiddleware seals every entry with AES-GCM before it reaches the wrapped tier.
// The fingerprint is bound as additional data, so an entry copied under another
// fingerprint fails to open. Entries that fail to open read as corrupt.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	active, err := newAEAD(config.ActiveKey)
	if err != nil {
		return nil, err
	}
	all := []cipher.AEAD{active}
	for i, key := range config.FallbackKeys {
		aead, err := newAEAD(key)
		if err != nil {
			return nil, fmt.Errorf("fallback key %d: %w", i, err)
		}
		all = append(all, aead)
	}
	return func(next ports.CacheTier) ports.CacheTier {
		return &encryptionMiddleware{CacheTier: next, active: active, all: all}
	}, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (m *encryptionMiddleware) Write(ctx context.Context, fingerprint string, data []byte) error {
	nonce := make([]byte, m.active.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := m.active.Seal(nonce, nonce, data, []byte(fingerprint))
	return m.CacheTier.Write(ctx, fingerprint, sealed)
}

func (m *encryptionMiddleware) Read(ctx context.Context, fingerprint string) ([]byte, error) {
	sealed, err := m.CacheTier.Read(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	for _, aead := range m.all {
		if len(sealed) < aead.NonceSize() {
			break
		}
		nonce, body := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
		if plain, err := aead.Open(nil, nonce, body, []byte(fingerprint)); err == nil {
			return plain, nil
		}
	}
	return nil, fmt.Errorf("%w: decryption failed with all available keys", domain.ErrCorruptEntry)
}
