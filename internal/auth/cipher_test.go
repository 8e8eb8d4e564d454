package auth_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisdurfee/authgate/internal/auth"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestCipherRoundTrip(t *testing.T) {
	cipher, err := auth.NewCipher(testKey(t))
	require.NoError(t, err)

	plaintext := []byte(`{"fingerprint":"fp-laptop","ip_address":"10.0.0.1"}`)

	ciphertext, nonce, err := cipher.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := cipher.Decrypt(ciphertext, nonce)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestCipherRejectsBadKeyLength(t *testing.T) {
	_, err := auth.NewCipher([]byte("too-short"))
	assert.Error(t, err)
}

func TestCipherDetectsTampering(t *testing.T) {
	cipher, err := auth.NewCipher(testKey(t))
	require.NoError(t, err)

	ciphertext, nonce, err := cipher.Encrypt([]byte("session state"))
	require.NoError(t, err)

	ciphertext[0] ^= 0xff
	_, err = cipher.Decrypt(ciphertext, nonce)
	assert.Error(t, err)
}

func TestCipherWrongKeyFails(t *testing.T) {
	first, err := auth.NewCipher(testKey(t))
	require.NoError(t, err)
	second, err := auth.NewCipher(testKey(t))
	require.NoError(t, err)

	ciphertext, nonce, err := first.Encrypt([]byte("session state"))
	require.NoError(t, err)

	_, err = second.Decrypt(ciphertext, nonce)
	assert.Error(t, err)
}

func TestGenerateToken(t *testing.T) {
	a, err := auth.GenerateToken(32)
	require.NoError(t, err)
	assert.Len(t, a, 64) // hex-encoded

	b, err := auth.GenerateToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestGenerateNumericCode(t *testing.T) {
	code, err := auth.GenerateNumericCode(6)
	require.NoError(t, err)
	assert.Len(t, code, 6)
	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9', "code must be digits only, got %q", code)
	}
}
