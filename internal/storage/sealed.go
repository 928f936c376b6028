package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const sealedKeyInfo = "fintrack sealed store v1"

// ErrSealed is returned when a sealed value cannot be opened.
var ErrSealed = errors.New("sealed value could not be opened")

// SealedStore encrypts every value at rest with AES-256-GCM.
// The key name is bound as associated data so values cannot be moved between keys.
type SealedStore struct {
	inner Store
	aead  cipher.AEAD
}

// NewSealedStore wraps inner, deriving the value encryption key from masterKey.
func NewSealedStore(inner Store, masterKey []byte) (*SealedStore, error) {
	if len(masterKey) < 16 {
		return nil, errors.New("master key must be at least 16 bytes")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(sealedKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive sealed store key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &SealedStore{inner: inner, aead: aead}, nil
}

// Get opens the value stored under key.
func (s *SealedStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	n := s.aead.NonceSize()
	if len(raw) < n {
		return nil, ErrSealed
	}
	plain, err := s.aead.Open(nil, raw[:n], raw[n:], []byte(key))
	if err != nil {
		return nil, ErrSealed
	}
	return plain, nil
}

// Set seals value and stores it under key.
func (s *SealedStore) Set(ctx context.Context, key string, value []byte) error {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, value, []byte(key))
	return s.inner.Set(ctx, key, sealed)
}

// Delete removes key.
func (s *SealedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

// Keys lists keys with the given prefix. Key names are not encrypted.
func (s *SealedStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.Keys(ctx, prefix)
}

// Ensure SealedStore implements Store.
var _ Store = (*SealedStore)(nil)
