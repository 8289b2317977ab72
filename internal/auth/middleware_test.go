// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package auth

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/historiographus/internal/config"
	"github.com/tomtom215/historiographus/internal/models"
	"github.com/tomtom215/historiographus/internal/store"
)

// echoIdentity records the identity the middleware injected.
func echoIdentity(t *testing.T, got *Identity) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Error("no identity in context")
		}
		*got = id
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareJWT(t *testing.T) {
	cfg := &config.SecurityConfig{
		AuthMode:       config.AuthModeJWT,
		JWTSecret:      testSecret,
		SessionTimeout: time.Hour,
	}
	jwtManager, err := NewJWTManager(cfg)
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}
	a := NewAuthenticator(cfg, jwtManager, nil, NewLockoutManager(nil))

	token, err := jwtManager.GenerateToken(models.User{ID: "u-1", Username: "alice", Role: models.RoleViewer})
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	tests := []struct {
		name       string
		header     string
		cookie     string
		wantStatus int
	}{
		{"valid bearer", "Bearer " + token, "", http.StatusOK},
		{"valid cookie", "", token, http.StatusOK},
		{"missing credentials", "", "", http.StatusUnauthorized},
		{"malformed header", "Token " + token, "", http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.token", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Identity
			handler := a.Middleware(echoIdentity(t, &got))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: AuthCookieName, Value: tt.cookie})
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if got.Username != "alice" || got.UserID != "u-1" || got.Role != models.RoleViewer {
					t.Errorf("identity = %+v", got)
				}
			}
		})
	}
}

func TestMiddlewareBasic(t *testing.T) {
	users, err := store.NewUserStore(filepath.Join(t.TempDir(), "users.json"))
	if err != nil {
		t.Fatalf("NewUserStore() error = %v", err)
	}
	if _, err := users.Create("alice", "Alice", models.RoleAdmin, "correct-horse-9"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	cfg := &config.SecurityConfig{AuthMode: config.AuthModeBasic}
	a := NewAuthenticator(cfg, nil, users, NewLockoutManager(nil))

	tests := []struct {
		name       string
		username   string
		password   string
		wantStatus int
	}{
		{"valid", "alice", "correct-horse-9", http.StatusOK},
		{"wrong password", "alice", "wrong-password", http.StatusUnauthorized},
		{"unknown user", "mallory", "whatever-here", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Identity
			handler := a.Middleware(echoIdentity(t, &got))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil)
			req.SetBasicAuth(tt.username, tt.password)

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && got.Username != "alice" {
				t.Errorf("identity = %+v", got)
			}
		})
	}
}

func TestMiddlewareBasicHonorsLockout(t *testing.T) {
	users, err := store.NewUserStore(filepath.Join(t.TempDir(), "users.json"))
	if err != nil {
		t.Fatalf("NewUserStore() error = %v", err)
	}
	if _, err := users.Create("alice", "Alice", models.RoleAdmin, "correct-horse-9"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	lockout := NewLockoutManager(&LockoutConfig{MaxAttempts: 2, LockoutDuration: time.Hour})
	a := NewAuthenticator(&config.SecurityConfig{AuthMode: config.AuthModeBasic}, nil, users, lockout)

	do := func(password string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil)
		req.RemoteAddr = "10.0.0.9:51234"
		req.SetBasicAuth("alice", password)
		rec := httptest.NewRecorder()
		a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)
		return rec.Code
	}

	do("wrong-password")
	do("wrong-password")

	// Locked out now, even with the right password.
	if code := do("correct-horse-9"); code != http.StatusUnauthorized {
		t.Errorf("status after lockout = %d, want 401", code)
	}
}

func TestMiddlewareNoneMode(t *testing.T) {
	a := NewAuthenticator(&config.SecurityConfig{AuthMode: config.AuthModeNone}, nil, nil, NewLockoutManager(nil))

	var got Identity
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil)
	rec := httptest.NewRecorder()
	a.Middleware(echoIdentity(t, &got)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got.Role != models.RoleAdmin {
		t.Errorf("role = %q, want admin", got.Role)
	}
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name       string
		identity   *Identity
		wantStatus int
	}{
		{"admin", &Identity{Username: "alice", Role: models.RoleAdmin}, http.StatusOK},
		{"viewer", &Identity{Username: "bob", Role: models.RoleViewer}, http.StatusForbidden},
		{"no identity", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodDelete, "/api/v1/users/u-2", nil)
			if tt.identity != nil {
				req = req.WithContext(ContextWithIdentity(req.Context(), *tt.identity))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"10.0.0.9:51234", "10.0.0.9"},
		{"[::1]:8080", "::1"},
		{"10.0.0.9", "10.0.0.9"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remoteAddr
		if got := ClientIP(req); got != tt.want {
			t.Errorf("ClientIP(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}
