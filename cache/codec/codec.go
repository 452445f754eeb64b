// Package codec turns cache entries into the bytes the l1 and l2 tiers hold.
// JSON is the plain encoding; Sealed wraps another codec with
// XChaCha20-Poly1305 so credential values are never stored in the clear.
package codec

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/status-im/credential-host/cache"
	"github.com/status-im/credential-host/models"
)

var (
	_ cache.Codec = JSON{}
	_ cache.Codec = (*Sealed)(nil)
)

// sealedVersion leads every sealed payload so the layout can change later
const sealedVersion byte = 1

var (
	// ErrNotSealed is returned when a Sealed codec reads bytes it did not write
	ErrNotSealed = errors.New("cache entry is not sealed")
	// ErrOpen is returned when a sealed entry fails authentication, usually
	// because it was written with another key
	ErrOpen = errors.New("cache entry could not be opened")
)

// JSON encodes entries as JSON objects
type JSON struct{}

func (JSON) Marshal(entry models.CacheEntry) ([]byte, error) {
	return json.Marshal(entry)
}

func (JSON) Unmarshal(data []byte) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Sealed encrypts whatever inner produces. The stored form is
// version || nonce || ciphertext, and the version byte is authenticated.
type Sealed struct {
	aead  cipher.AEAD
	inner cache.Codec
}

// NewSealed returns a codec sealing with key, which must be 32 bytes.
// A nil inner defaults to JSON.
func NewSealed(key []byte, inner cache.Codec) (*Sealed, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if inner == nil {
		inner = JSON{}
	}
	return &Sealed{aead: aead, inner: inner}, nil
}

func (s *Sealed) Marshal(entry models.CacheEntry) ([]byte, error) {
	plain, err := s.inner.Marshal(entry)
	if err != nil {
		return nil, err
	}

	nonceSize := s.aead.NonceSize()
	out := make([]byte, 1+nonceSize, 1+nonceSize+len(plain)+s.aead.Overhead())
	out[0] = sealedVersion
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(out, out[1:], plain, out[:1]), nil
}

func (s *Sealed) Unmarshal(data []byte) (*models.CacheEntry, error) {
	nonceSize := s.aead.NonceSize()
	if len(data) < 1+nonceSize+s.aead.Overhead() || data[0] != sealedVersion {
		return nil, ErrNotSealed
	}

	plain, err := s.aead.Open(nil, data[1:1+nonceSize], data[1+nonceSize:], data[:1])
	if err != nil {
		return nil, ErrOpen
	}
	return s.inner.Unmarshal(plain)
}

// ParseKey decodes a base64 key (standard or URL alphabet, padded or not)
// and checks its length
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	var (
		key []byte
		err error
	)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if key, err = enc.DecodeString(encoded); err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid base64: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return key, nil
}

// GenerateKey returns a fresh random key in the encoding ParseKey accepts
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
