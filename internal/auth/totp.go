package auth

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

// TOTPManager handles authenticator-app secret generation, encryption, and
// code validation for the "totp" MFA channel.
type TOTPManager struct {
	cipher *Cipher
	issuer string
}

// NewTOTPManager creates a new TOTP manager
func NewTOTPManager(cipher *Cipher, issuer string) *TOTPManager {
	return &TOTPManager{
		cipher: cipher,
		issuer: issuer,
	}
}

// GenerateSecretWithQR generates a secret for an account and returns it
// encrypted for storage plus a QR provisioning image.
// Returns: (encryptedSecret, nonce, qrCodeDataURL, error)
func (tm *TOTPManager) GenerateSecretWithQR(accountEmail string) ([]byte, []byte, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountEmail,
		SecretSize:  32, // 256 bits
		Period:      30,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	encrypted, nonce, err := tm.cipher.Encrypt([]byte(key.Secret()))
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to encrypt secret: %w", err)
	}

	qr, err := qrcode.New(key.URL(), qrcode.Highest)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to create QR code: %w", err)
	}

	qrImage, err := qr.PNG(200)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	qrDataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrImage)

	return encrypted, nonce, qrDataURL, nil
}

// Validate checks a TOTP code against an encrypted secret.
// Allows ±1 time step for clock drift.
func (tm *TOTPManager) Validate(encryptedSecret, nonce []byte, code string) (bool, error) {
	secretBytes, err := tm.cipher.Decrypt(encryptedSecret, nonce)
	if err != nil {
		return false, fmt.Errorf("failed to decrypt TOTP secret: %w", err)
	}

	valid, err := totp.ValidateCustom(code, string(secretBytes), time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to validate TOTP: %w", err)
	}

	return valid, nil
}
