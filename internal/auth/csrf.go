package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/chrisdurfee/authgate/internal/models"
)

// CsrfTokenStore defines the persistence operations the gate needs
type CsrfTokenStore interface {
	Upsert(ctx context.Context, token *models.CsrfToken) error
	GetBySession(ctx context.Context, sessionID string) (*models.CsrfToken, error)
	DeleteBySession(ctx context.Context, sessionID string) error
}

// CsrfGate issues and validates anti-forgery tokens bound to a session.
// Tokens are reusable within their TTL so several state-changing requests
// can share one token; validation never consumes.
type CsrfGate struct {
	store    CsrfTokenStore
	tokenTTL time.Duration
}

// NewCsrfGate creates a new CSRF gate
func NewCsrfGate(store CsrfTokenStore, tokenTTL time.Duration) *CsrfGate {
	return &CsrfGate{
		store:    store,
		tokenTTL: tokenTTL,
	}
}

// Issue generates a token bound to the session, replacing any previous one.
// Returns the token value for embedding in a cookie/header pair.
func (g *CsrfGate) Issue(ctx context.Context, sessionID string) (string, error) {
	value, err := GenerateToken(32)
	if err != nil {
		return "", err
	}

	now := time.Now()
	token := &models.CsrfToken{
		Value:     value,
		SessionID: sessionID,
		IssuedAt:  now,
		ExpiresAt: now.Add(g.tokenTTL),
	}

	if err := g.store.Upsert(ctx, token); err != nil {
		return "", err
	}

	return value, nil
}

// Current returns the session's token, issuing a fresh one if none exists
// or the existing one has expired.
func (g *CsrfGate) Current(ctx context.Context, sessionID string) (string, error) {
	token, err := g.store.GetBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return g.Issue(ctx, sessionID)
		}
		return "", err
	}

	if token.Expired(time.Now()) {
		return g.Issue(ctx, sessionID)
	}

	return token.Value, nil
}

// Validate checks a supplied token against the session's stored token.
// Fails with ErrCsrfMismatch when no token exists for the session, the
// values differ, or the TTL has elapsed. The comparison is constant-time
// so a token matching some other session's value is still rejected without
// a timing oracle.
func (g *CsrfGate) Validate(ctx context.Context, sessionID, supplied string) error {
	if supplied == "" {
		return models.ErrCsrfMismatch
	}

	token, err := g.store.GetBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrCsrfMismatch
		}
		return err
	}

	if subtle.ConstantTimeCompare([]byte(token.Value), []byte(supplied)) != 1 {
		return models.ErrCsrfMismatch
	}

	if token.Expired(time.Now()) {
		return models.ErrCsrfMismatch
	}

	return nil
}

// Revoke removes the session's token, used on logout
func (g *CsrfGate) Revoke(ctx context.Context, sessionID string) error {
	return g.store.DeleteBySession(ctx, sessionID)
}
