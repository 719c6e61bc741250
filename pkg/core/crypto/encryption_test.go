package crypto

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
)

func TestDeriveKey(t *testing.T) {
	secret := []byte("per-resource secret")
	salt := bytes.Repeat([]byte{0x01}, SaltSize)

	t.Run("deterministic", func(t *testing.T) {
		k1, err := DeriveKey(secret, salt)
		require.NoError(t, err)
		k2, err := DeriveKey(secret, salt)
		require.NoError(t, err)
		assert.Equal(t, k1, k2)
		assert.Len(t, k1, KeySize)
	})

	t.Run("salt changes key", func(t *testing.T) {
		other := bytes.Repeat([]byte{0x02}, SaltSize)
		k1, err := DeriveKey(secret, salt)
		require.NoError(t, err)
		k2, err := DeriveKey(secret, other)
		require.NoError(t, err)
		assert.NotEqual(t, k1, k2)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := DeriveKey(nil, salt)
		assert.ErrorIs(t, err, vaulterr.ErrInvalidInput)
		_, err = DeriveKey(secret, salt[:8])
		assert.ErrorIs(t, err, vaulterr.ErrInvalidInput)
	})
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty": {},
		"small": []byte("hello"),
		"large": bytes.Repeat([]byte("media"), 200000),
	}

	for name, plaintext := range cases {
		t.Run(name, func(t *testing.T) {
			ciphertext, meta, err := Encrypt(plaintext, secret)
			require.NoError(t, err)

			assert.Len(t, meta.Salt, SaltSize)
			assert.Len(t, meta.Nonce, NonceSize)
			assert.Equal(t, int64(len(plaintext)), meta.OriginalByteLength)
			assert.Len(t, ciphertext, len(plaintext)+16)

			decrypted, err := Decrypt(ciphertext, secret, meta)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(plaintext, decrypted))
		})
	}
}

func TestEncryptFreshSaltAndNonce(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)
	plaintext := []byte("same input every time")

	c1, m1, err := Encrypt(plaintext, secret)
	require.NoError(t, err)
	c2, m2, err := Encrypt(plaintext, secret)
	require.NoError(t, err)

	assert.NotEqual(t, m1.Salt, m2.Salt)
	assert.NotEqual(t, m1.Nonce, m2.Nonce)
	assert.NotEqual(t, c1, c2)
}

func TestDecryptTamperDetection(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)
	ciphertext, meta, err := Encrypt([]byte("integrity matters"), secret)
	require.NoError(t, err)

	t.Run("flipped ciphertext bit", func(t *testing.T) {
		for i := range ciphertext {
			tampered := append([]byte(nil), ciphertext...)
			tampered[i] ^= 0x01
			_, err := Decrypt(tampered, secret, meta)
			require.ErrorIs(t, err, vaulterr.ErrAuthenticationFailure, "byte %d", i)
		}
	})

	t.Run("flipped nonce bit", func(t *testing.T) {
		m := meta.Clone()
		m.Nonce[0] ^= 0x80
		_, err := Decrypt(ciphertext, secret, m)
		assert.ErrorIs(t, err, vaulterr.ErrAuthenticationFailure)
	})

	t.Run("flipped salt bit", func(t *testing.T) {
		m := meta.Clone()
		m.Salt[SaltSize-1] ^= 0x01
		_, err := Decrypt(ciphertext, secret, m)
		assert.ErrorIs(t, err, vaulterr.ErrAuthenticationFailure)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := GenerateSecret()
		require.NoError(t, err)
		_, err = Decrypt(ciphertext, other, meta)
		assert.ErrorIs(t, err, vaulterr.ErrAuthenticationFailure)
	})

	t.Run("truncated ciphertext", func(t *testing.T) {
		_, err := Decrypt(ciphertext[:4], secret, meta)
		assert.ErrorIs(t, err, vaulterr.ErrAuthenticationFailure)
	})

	t.Run("malformed metadata", func(t *testing.T) {
		m := meta.Clone()
		m.Nonce = m.Nonce[:5]
		_, err := Decrypt(ciphertext, secret, m)
		assert.ErrorIs(t, err, vaulterr.ErrAuthenticationFailure)

		_, err = Decrypt(ciphertext, secret, nil)
		assert.ErrorIs(t, err, vaulterr.ErrAuthenticationFailure)
	})
}

func TestBlobMetadataJSONKeepsBytes(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)
	ciphertext, meta, err := Encrypt([]byte{0x00, 0xff, 0x10}, secret)
	require.NoError(t, err)
	meta.OriginalContentType = "image/jpeg"

	raw, err := json.Marshal(meta)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), string(secret))

	var restored BlobMetadata
	require.NoError(t, json.Unmarshal(raw, &restored))

	plaintext, err := Decrypt(ciphertext, secret, &restored)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff, 0x10}, plaintext)
}

func TestSecureZero(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	SecureZero(data)
	assert.Equal(t, []byte{0, 0, 0, 0}, data)
}
