package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// Cipher provides symmetric encryption for data at rest (session data blobs,
// TOTP secrets) and random token generation.
type Cipher struct {
	key []byte // 32-byte AES-256 key
}

// NewCipher creates a new Cipher.
// key must be exactly 32 bytes for AES-256.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("cipher key must be exactly 32 bytes, got %d", len(key))
	}

	return &Cipher{key: key}, nil
}

// Encrypt encrypts plaintext using AES-256-GCM.
// Returns: (ciphertext, nonce, error)
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, []byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	// Generate random nonce (12 bytes for GCM)
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	return ciphertext, nonce, nil
}

// Decrypt decrypts ciphertext produced by Encrypt
func (c *Cipher) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

// GenerateToken returns a hex-encoded cryptographically random value
func GenerateToken(byteLen int) (string, error) {
	randomBytes := make([]byte, byteLen)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}

// GenerateNumericCode returns a random code of the given length using
// digits only. Codes are non-sequential and independently random.
func GenerateNumericCode(length int) (string, error) {
	const digits = "0123456789"

	code := make([]byte, length)
	for i := 0; i < length; i++ {
		b := make([]byte, 1)
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("failed to generate random byte: %w", err)
		}
		code[i] = digits[b[0]%byte(len(digits))]
	}

	return string(code), nil
}
