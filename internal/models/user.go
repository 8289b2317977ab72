// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package models

import "time"

// User roles. Admin may mutate endpoints, users, schedules, and delete
// reports; viewers may read data and generate reports.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// ShadowUsername is the auto-created service account used by the
// scheduler and internal callers. It cannot be deleted via the API.
const ShadowUsername = "reportsvc"

// User is a local account persisted in the user store.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username" validate:"required,min=2,max=64"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role" validate:"required,oneof=admin viewer"`

	// PasswordHash is the bcrypt hash; never serialized to API clients.
	PasswordHash string `json:"password_hash,omitempty"`

	// Shadow marks the auto-created service account.
	Shadow bool `json:"shadow,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sanitized returns a copy safe for API responses (hash stripped).
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
