package httpapi

import (
	"net/http"
	"strings"
	"time"

	"dacgov.org/internal/audit"
	"dacgov.org/internal/auth"
	"dacgov.org/internal/host"
)

type tokenRequest struct {
	Account string   `json:"account"`
	Roles   []string `json:"roles"`
	TTL     string   `json:"ttl,omitempty"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

const (
	tokenTTL    = 15 * time.Minute
	maxTokenTTL = 24 * time.Hour
)

// handleAuthToken lets an admin mint a bearer token for an account.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	account := strings.TrimSpace(req.Account)
	if !host.ValidName(account) {
		writeError(w, r, http.StatusBadRequest, "account must be a valid account name")
		return
	}
	ttl := tokenTTL
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d <= 0 || d > maxTokenTTL {
			writeError(w, r, http.StatusBadRequest, "ttl must be a duration up to 24h")
			return
		}
		ttl = d
	}
	roles := make([]string, 0, len(req.Roles))
	for _, role := range req.Roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		roles = append(roles, role)
	}

	token, err := auth.GenerateToken(account, roles, ttl)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(ttl)
	fields := map[string]any{
		"account":    account,
		"roles":      roles,
		"expires_at": expiresAt.Format(time.RFC3339),
	}
	_ = audit.LogEvent(r.Context(), "auth.token.issued", fields)

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
