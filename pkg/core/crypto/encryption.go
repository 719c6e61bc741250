// Package crypto provides the MediaVault encryption engine.
// It derives per-encryption keys from a per-resource secret and performs
// authenticated encryption of arbitrary media buffers.
//
// The engine provides two layers:
//   - PBKDF2-HMAC-SHA256 key derivation with a fixed 100,000 iteration work factor
//   - AES-256-GCM authenticated encryption with a 12-byte nonce and 16-byte tag
//
// Every call to Encrypt generates a fresh 16-byte salt, and therefore a fresh
// key, before generating its nonce. A (key, nonce) pair can never repeat across
// calls, even when the same secret encrypts many blobs.
//
// The salt and nonce travel in BlobMetadata, stored next to (not inside) the
// ciphertext. The secret itself never appears in BlobMetadata.
//
// This package performs no network or disk I/O.
//
// Standards Compliance:
//   - NIST SP 800-38D (GCM mode)
//   - RFC 8018 (PBKDF2)
//   - RFC 5869 (HKDF, used by SecretSealer)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
)

const (
	// SaltSize is the KDF salt length in bytes.
	SaltSize = 16
	// NonceSize is the AES-GCM nonce length in bytes.
	NonceSize = 12
	// KeySize is the derived AES-256 key length in bytes.
	KeySize = 32
	// SecretSize is the length of a generated per-resource secret.
	SecretSize = 32
	// KDFIterations is the PBKDF2 work factor.
	KDFIterations = 100000
)

// BlobMetadata carries everything needed, besides the secret, to decrypt one
// ciphertext. It is safe to expose to clients: it holds no key material.
//
// Salt and Nonce are raw bytes and must round-trip byte-exact through any
// persistence layer (BYTEA columns, or base64 via encoding/json).
type BlobMetadata struct {
	Salt                []byte `json:"salt"`
	Nonce               []byte `json:"nonce"`
	OriginalContentType string `json:"original_content_type"`
	OriginalByteLength  int64  `json:"original_byte_length"`
}

// Clone returns a deep copy of m.
func (m *BlobMetadata) Clone() *BlobMetadata {
	if m == nil {
		return nil
	}
	return &BlobMetadata{
		Salt:                append([]byte(nil), m.Salt...),
		Nonce:               append([]byte(nil), m.Nonce...),
		OriginalContentType: m.OriginalContentType,
		OriginalByteLength:  m.OriginalByteLength,
	}
}

// DeriveKey derives a 256-bit AES key from secret and salt using PBKDF2-HMAC-SHA256.
//
// The derivation is deterministic: the same (secret, salt) pair always yields
// the same key, and different salts yield independent keys for the same secret.
//
// Parameters:
//   - secret: per-resource key material (must be non-empty)
//   - salt: exactly SaltSize random bytes
//
// Returns ErrInvalidInput when either argument is malformed.
func DeriveKey(secret, salt []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("derive key: secret is empty: %w", vaulterr.ErrInvalidInput)
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("derive key: salt must be %d bytes, got %d: %w", SaltSize, len(salt), vaulterr.ErrInvalidInput)
	}

	return pbkdf2.Key(secret, salt, KDFIterations, KeySize, sha256.New), nil
}

// Encrypt encrypts plaintext under a key derived from secret and a fresh salt.
//
// Output:
//   - ciphertext: AES-256-GCM sealed data with the 16-byte tag appended
//   - metadata: the salt, the nonce and the plaintext length
//
// OriginalContentType is left empty; the blob store adapter fills it in.
// Any failure of the underlying primitives is reported as ErrCryptoFailure.
func Encrypt(plaintext, secret []byte) ([]byte, *BlobMetadata, error) {
	salt, err := SecureRandom(SaltSize)
	if err != nil {
		return nil, nil, fmt.Errorf("generate salt: %w: %v", vaulterr.ErrCryptoFailure, err)
	}

	key, err := DeriveKey(secret, salt)
	if err != nil {
		return nil, nil, err
	}
	defer SecureZero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce, err := SecureRandom(NonceSize)
	if err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w: %v", vaulterr.ErrCryptoFailure, err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	return ciphertext, &BlobMetadata{
		Salt:               salt,
		Nonce:              nonce,
		OriginalByteLength: int64(len(plaintext)),
	}, nil
}

// Decrypt re-derives the key from secret and metadata.Salt, then opens
// ciphertext with metadata.Nonce.
//
// Tampered ciphertext, a wrong secret, or a tampered or malformed salt or
// nonce all fail with ErrAuthenticationFailure. No plaintext is returned on
// failure.
func Decrypt(ciphertext, secret []byte, metadata *BlobMetadata) ([]byte, error) {
	if metadata == nil {
		return nil, fmt.Errorf("decrypt: missing metadata: %w", vaulterr.ErrAuthenticationFailure)
	}
	if len(metadata.Salt) != SaltSize || len(metadata.Nonce) != NonceSize {
		return nil, fmt.Errorf("decrypt: malformed salt or nonce: %w", vaulterr.ErrAuthenticationFailure)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("decrypt: secret is empty: %w", vaulterr.ErrInvalidInput)
	}

	key, err := DeriveKey(secret, metadata.Salt)
	if err != nil {
		return nil, err
	}
	defer SecureZero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, metadata.Nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", vaulterr.ErrAuthenticationFailure)
	}

	return plaintext, nil
}

// GenerateSecret returns a fresh random per-resource secret of SecretSize bytes.
func GenerateSecret() ([]byte, error) {
	secret, err := SecureRandom(SecretSize)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w: %v", vaulterr.ErrCryptoFailure, err)
	}
	return secret, nil
}

// SecureRandom generates size bytes from crypto/rand.
func SecureRandom(size int) ([]byte, error) {
	bytes := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return bytes, nil
}

// SecureZero overwrites data with zeros. Call it on keys and secrets once they
// are no longer needed.
func SecureZero(data []byte) {
	for i := range data {
		data[i] = 0
	}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w: %v", vaulterr.ErrCryptoFailure, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w: %v", vaulterr.ErrCryptoFailure, err)
	}

	return gcm, nil
}
