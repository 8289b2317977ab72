// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package auth

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/historiographus/internal/config"
	"github.com/tomtom215/historiographus/internal/logging"
	"github.com/tomtom215/historiographus/internal/models"
	"github.com/tomtom215/historiographus/internal/store"
)

type identityKey struct{}

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	UserID   string
	Username string
	Role     string
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == models.RoleAdmin
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// ContextWithIdentity attaches an identity to the context. Exposed for
// handler tests.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// Authenticator produces the middleware protecting API routes. The
// configured auth mode selects the verification strategy:
//
//   - jwt: Bearer token from the Authorization header or auth cookie
//   - basic: HTTP basic auth verified against the user store
//   - none: every request runs as an anonymous admin
type Authenticator struct {
	mode    string
	jwt     *JWTManager
	users   *store.UserStore
	lockout *LockoutManager
}

// NewAuthenticator builds the authenticator for the configured mode.
// jwtManager may be nil when the mode is basic or none.
func NewAuthenticator(cfg *config.SecurityConfig, jwtManager *JWTManager, users *store.UserStore, lockout *LockoutManager) *Authenticator {
	return &Authenticator{
		mode:    cfg.AuthMode,
		jwt:     jwtManager,
		users:   users,
		lockout: lockout,
	}
}

// AuthCookieName is the cookie checked for a JWT when no Authorization
// header is present, so report downloads work from plain links.
const AuthCookieName = "historiographus_token"

// Middleware authenticates the request and attaches the identity.
// Unauthenticated requests receive 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := a.authenticate(r)
		if !ok {
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (Identity, bool) {
	switch a.mode {
	case config.AuthModeNone:
		return Identity{Username: "anonymous", Role: models.RoleAdmin}, true
	case config.AuthModeBasic:
		return a.authenticateBasic(r)
	default:
		return a.authenticateJWT(r)
	}
}

func (a *Authenticator) authenticateJWT(r *http.Request) (Identity, bool) {
	token := bearerToken(r)
	if token == "" {
		if cookie, err := r.Cookie(AuthCookieName); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		return Identity{}, false
	}

	claims, err := a.jwt.ValidateToken(token)
	if err != nil {
		logging.Debug().Err(err).Msg("Token validation failed")
		return Identity{}, false
	}
	return Identity{
		UserID:   claims.Subject,
		Username: claims.Username,
		Role:     claims.Role,
	}, true
}

func (a *Authenticator) authenticateBasic(r *http.Request) (Identity, bool) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return Identity{}, false
	}

	ip := ClientIP(r)
	if locked, _ := a.lockout.CheckLocked(username, ip); locked {
		return Identity{}, false
	}

	user, err := a.users.Authenticate(username, password)
	if err != nil {
		a.lockout.RecordFailure(username, ip)
		return Identity{}, false
	}
	a.lockout.RecordSuccess(username, ip)
	return Identity{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	}, true
}

// RequireAdmin rejects non-admin identities with 403. It must run
// after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			unauthorized(w)
			return
		}
		if !identity.IsAdmin() {
			forbidden(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// ClientIP returns the request's source IP. X-Forwarded-For is not
// trusted; the service is expected to sit behind its own listener.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func unauthorized(w http.ResponseWriter) {
	writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
}

func forbidden(w http.ResponseWriter) {
	writeAuthError(w, http.StatusForbidden, "FORBIDDEN", "Admin role required")
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := models.APIResponse{
		Status: "error",
		Error:  &models.APIError{Code: code, Message: message},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Debug().Err(err).Msg("Failed to encode auth error response")
	}
}
