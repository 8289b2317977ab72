// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/historiographus/internal/auth"
	"github.com/tomtom215/historiographus/internal/config"
	"github.com/tomtom215/historiographus/internal/logging"
	"github.com/tomtom215/historiographus/internal/store"
)

type loginRequest struct {
	Username string `json:"username" validate:"required,min=2,max=64"`
	Password string `json:"password" validate:"required,min=1,max=256"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	Username  string `json:"username"`
	Role      string `json:"role"`
}

// handleLogin authenticates a user and issues a JWT, both in the body
// and as an HttpOnly cookie for browser clients.
//
// Method: POST
// Path: /api/v1/auth/login
// Authentication: none
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if h.cfg.Security.AuthMode != config.AuthModeJWT {
		respondError(w, http.StatusBadRequest, "LOGIN_DISABLED",
			"Token login is not available in this authentication mode", nil)
		return
	}

	var req loginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	ip := auth.ClientIP(r)
	if locked, remaining := h.lockout.CheckLocked(req.Username, ip); locked {
		w.Header().Set("Retry-After", formatRetryAfter(remaining))
		respondError(w, http.StatusTooManyRequests, "ACCOUNT_LOCKED",
			"Too many failed attempts, try again later", nil)
		return
	}

	user, err := h.users.Authenticate(req.Username, req.Password)
	if err != nil {
		h.lockout.RecordFailure(req.Username, ip)
		logging.Warn().Str("username", sanitizeLogValue(req.Username)).Str("ip", ip).Msg("Login failed")
		respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS",
			"Invalid username or password", nil)
		return
	}
	h.lockout.RecordSuccess(req.Username, ip)

	token, err := h.jwt.GenerateToken(user)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED",
			"Failed to generate token", err)
		return
	}

	timeout := h.cfg.Security.SessionTimeout
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}
	expiresAt := time.Now().Add(timeout)
	http.SetCookie(w, &http.Cookie{
		Name:     auth.AuthCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   !h.cfg.IsDevelopment(),
	})

	logging.Info().Str("username", user.Username).Str("role", user.Role).Msg("Login succeeded")
	respondSuccess(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		Username:  user.Username,
		Role:      user.Role,
	}, start)
}

// handleLogout clears the auth cookie. Tokens themselves stay valid
// until expiry; there is no server-side revocation list.
//
// Method: POST
// Path: /api/v1/auth/logout
// Authentication: required
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	http.SetCookie(w, &http.Cookie{
		Name:     auth.AuthCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	respondSuccess(w, http.StatusOK, map[string]string{"message": "logged out"}, start)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=256"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=256"`
}

// handleChangePassword rotates the caller's own password after proving
// the current one. Works for viewers too; admin role is not required.
//
// Method: PUT
// Path: /api/v1/auth/password
// Authentication: required
func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return
	}

	var req changePasswordRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	user, err := h.users.GetByUsername(identity.Username)
	if err != nil {
		respondStoreError(w, err, "user")
		return
	}
	if _, err := h.users.Authenticate(user.Username, req.CurrentPassword); err != nil {
		respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Current password is incorrect", nil)
		return
	}

	updated, err := h.users.Update(user.ID, user.DisplayName, user.Role, req.NewPassword)
	if err != nil {
		respondStoreError(w, err, "user")
		return
	}
	logging.Info().Str("username", updated.Username).Msg("Password changed")
	respondSuccess(w, http.StatusOK, updated.Sanitized(), start)
}

// handleMe returns the authenticated identity.
//
// Method: GET
// Path: /api/v1/auth/me
// Authentication: required
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return
	}

	// In none mode there is no backing user record.
	if user, err := h.users.GetByUsername(identity.Username); err == nil {
		respondSuccess(w, http.StatusOK, user.Sanitized(), start)
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusInternalServerError, "USER_LOOKUP_FAILED", "Failed to load user", err)
		return
	}
	respondSuccess(w, http.StatusOK, identity, start)
}

// formatRetryAfter renders a Retry-After value in whole seconds.
func formatRetryAfter(d time.Duration) string {
	secs := int64(d.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
