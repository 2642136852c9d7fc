package api

import (
	"errors"
	"net/http"
	"strings"

	"vehicle-registry/internal/auth"
)

// ExtractToken pulls the bearer token from an Authorization header.
func ExtractToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", errors.New("invalid authorization header")
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// requireAdmin validates the bearer token and ensures the caller holds the
// admin role. On failure it writes the error response and returns ok=false.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (auth.Claims, bool) {
	token, err := ExtractToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return auth.Claims{}, false
	}
	claims, err := h.Tokens.Validate(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, auth.ErrInvalidToken)
		return auth.Claims{}, false
	}
	if err := claims.RequireRole(auth.RoleAdmin); err != nil {
		writeError(w, http.StatusForbidden, auth.ErrForbidden)
		return auth.Claims{}, false
	}
	return claims, true
}
