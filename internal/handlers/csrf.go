package handlers

import (
	"net/http"

	"github.com/chrisdurfee/authgate/internal/auth"
	pkghttp "github.com/chrisdurfee/authgate/pkg/http"
)

// CsrfHandler serves the session's current CSRF token
type CsrfHandler struct {
	csrf CsrfGateInterface
}

func NewCsrfHandler(csrf CsrfGateInterface) *CsrfHandler {
	return &CsrfHandler{csrf: csrf}
}

// GetToken handles GET /csrf-token. Returns the session's current token,
// minting one if none is outstanding. Tokens are reusable until they expire
// or the session ends.
func (h *CsrfHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	token, err := h.csrf.Current(r.Context(), claims.SessionID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}
