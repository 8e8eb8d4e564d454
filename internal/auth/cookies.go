package auth

import (
	"net/http"
	"time"
)

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain   string // Empty string = current host only
	Secure   bool   // HTTPS only
	SameSite string // "strict", "lax", or "none"
}

// SetSessionTokenCookie sets the session handle in an httpOnly cookie
func SetSessionTokenCookie(w http.ResponseWriter, token string, maxAge int, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     "session_token",
		Value:    token,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  time.Now().Add(time.Duration(maxAge) * time.Second),
		MaxAge:   maxAge,
		HttpOnly: true, // prevents JavaScript access (XSS protection)
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	}
	http.SetCookie(w, cookie)
}

// SetCsrfTokenCookie sets a CSRF token in a readable cookie (not httpOnly).
// JavaScript needs to read this and send it in the X-CSRF-Token header.
func SetCsrfTokenCookie(w http.ResponseWriter, csrfToken string, maxAge int, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     "csrf_token",
		Value:    csrfToken,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  time.Now().Add(time.Duration(maxAge) * time.Second),
		MaxAge:   maxAge,
		HttpOnly: false,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	}
	http.SetCookie(w, cookie)
}

// ClearSessionCookies clears the session and CSRF cookies on logout
func ClearSessionCookies(w http.ResponseWriter, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     "session_token",
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1, // Negative MaxAge deletes the cookie
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	})
	http.SetCookie(w, &http.Cookie{
		Name:     "csrf_token",
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: false,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	})
}

// parseSameSite converts string to http.SameSite constant
func parseSameSite(sameSite string) http.SameSite {
	switch sameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
