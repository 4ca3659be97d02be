package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"gridcast/backend/services/energy-service/internal/service"
)

// Authenticator exchanges operator credentials for a bearer token.
type Authenticator interface {
	Login(username, password string) (string, time.Time, error)
}

// NewTokenHandler handles POST /api/v1/auth/token.
func NewTokenHandler(auth Authenticator) http.HandlerFunc {
	type request struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	type response struct {
		Token     string    `json:"token"`
		TokenType string    `json:"token_type"`
		ExpiresAt time.Time `json:"expires_at"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		req.Username = strings.TrimSpace(req.Username)
		if req.Username == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "username and password are required")
			return
		}

		token, expires, err := auth.Login(req.Username, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidCredentials):
				writeError(w, http.StatusUnauthorized, "invalid credentials")
			case errors.Is(err, service.ErrAuthDisabled):
				writeError(w, http.StatusServiceUnavailable, "operator login not configured")
			default:
				writeError(w, http.StatusInternalServerError, "failed to issue token")
			}
			return
		}

		writeJSON(w, http.StatusOK, response{
			Token:     token,
			TokenType: "Bearer",
			ExpiresAt: expires,
		})
	}
}
