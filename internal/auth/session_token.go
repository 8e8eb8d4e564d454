package auth

import (
	"fmt"
	"time"

	"github.com/chrisdurfee/authgate/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// TokenManager signs and validates session handle tokens.
// The token carries only the session id and user id; all session state
// (expiry, trust, gating) lives in the persisted session record.
type TokenManager struct {
	secret string
	maxAge time.Duration
}

// NewTokenManager creates a new TokenManager.
// maxAge should match the session absolute lifetime so the handle never
// outlives the record it points at.
func NewTokenManager(secret string, maxAge time.Duration) *TokenManager {
	return &TokenManager{
		secret: secret,
		maxAge: maxAge,
	}
}

// GenerateSessionToken creates a signed handle for a session
func (tm *TokenManager) GenerateSessionToken(sessionID, userID string) (string, error) {
	claims := &models.SessionClaims{
		SessionID: sessionID,
		UserID:    userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tm.maxAge)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return tokenString, nil
}

// ValidateSessionToken parses and validates a session handle token
func (tm *TokenManager) ValidateSessionToken(tokenString string) (*models.SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse session token: %w", err)
	}

	claims, ok := token.Claims.(*models.SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session token")
	}

	if claims.SessionID == "" || claims.UserID == "" {
		return nil, fmt.Errorf("session token missing claims")
	}

	return claims, nil
}
