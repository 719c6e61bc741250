package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
)

// MinMasterKeySize is the shortest master key NewSecretSealer accepts.
const MinMasterKeySize = 16

var sealerInfo = []byte("mediavault/resource-secret/v1")

// SecretSealer protects per-resource secrets at rest under a server-held master key.
//
// The sealing key is derived from the master key with HKDF-SHA256. Sealed
// secrets use the format [nonce][ciphertext_with_tag], and the resource ID is
// bound as associated data, so a sealed secret copied onto another resource
// row fails to open.
type SecretSealer struct {
	key []byte
}

// NewSecretSealer derives a sealing key from masterKey.
func NewSecretSealer(masterKey []byte) (*SecretSealer, error) {
	if len(masterKey) < MinMasterKeySize {
		return nil, fmt.Errorf("master key must be at least %d bytes: %w", MinMasterKeySize, vaulterr.ErrInvalidInput)
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, sealerInfo), key); err != nil {
		return nil, fmt.Errorf("derive sealing key: %w: %v", vaulterr.ErrCryptoFailure, err)
	}

	return &SecretSealer{key: key}, nil
}

// Seal encrypts secret for resourceID.
func (s *SecretSealer) Seal(resourceID string, secret []byte) ([]byte, error) {
	if resourceID == "" || len(secret) == 0 {
		return nil, fmt.Errorf("seal secret: resource id and secret are required: %w", vaulterr.ErrInvalidInput)
	}

	gcm, err := newGCM(s.key)
	if err != nil {
		return nil, err
	}

	nonce, err := SecureRandom(gcm.NonceSize())
	if err != nil {
		return nil, fmt.Errorf("seal secret: %w: %v", vaulterr.ErrCryptoFailure, err)
	}

	return gcm.Seal(nonce, nonce, secret, []byte(resourceID)), nil
}

// Open recovers the secret sealed for resourceID.
func (s *SecretSealer) Open(resourceID string, sealed []byte) ([]byte, error) {
	gcm, err := newGCM(s.key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize+gcm.Overhead() {
		return nil, fmt.Errorf("open secret: sealed secret too short: %w", vaulterr.ErrAuthenticationFailure)
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	secret, err := gcm.Open(nil, nonce, ciphertext, []byte(resourceID))
	if err != nil {
		return nil, fmt.Errorf("open secret for resource %s: %w", resourceID, vaulterr.ErrAuthenticationFailure)
	}

	return secret, nil
}
