// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/historiographus/internal/logging"
)

type createUserRequest struct {
	Username    string `json:"username" validate:"required,min=2,max=64"`
	DisplayName string `json:"display_name" validate:"max=128"`
	Role        string `json:"role" validate:"required,oneof=admin viewer"`
	Password    string `json:"password" validate:"required,min=8,max=256"`
}

type updateUserRequest struct {
	DisplayName string `json:"display_name" validate:"max=128"`
	Role        string `json:"role" validate:"required,oneof=admin viewer"`

	// Password is optional; empty keeps the current one.
	Password string `json:"password" validate:"omitempty,min=8,max=256"`
}

// handleListUsers returns all accounts, hashes stripped.
//
// Method: GET
// Path: /api/v1/users
// Authentication: admin
func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	users := h.users.List()
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"users": users,
		"count": len(users),
	}, start)
}

// handleGetUser returns one account by ID.
//
// Method: GET
// Path: /api/v1/users/{id}
// Authentication: admin
func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	user, err := h.users.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err, "user")
		return
	}
	respondSuccess(w, http.StatusOK, user.Sanitized(), start)
}

// handleCreateUser creates an account.
//
// Method: POST
// Path: /api/v1/users
// Authentication: admin
func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req createUserRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	user, err := h.users.Create(req.Username, req.DisplayName, req.Role, req.Password)
	if err != nil {
		respondStoreError(w, err, "user")
		return
	}
	logging.Info().Str("user_id", user.ID).Str("username", sanitizeLogValue(user.Username)).
		Str("role", user.Role).Msg("User created")
	respondSuccess(w, http.StatusCreated, user.Sanitized(), start)
}

// handleUpdateUser changes display name, role, and optionally the
// password. Demoting the last admin is rejected by the store.
//
// Method: PUT
// Path: /api/v1/users/{id}
// Authentication: admin
func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req updateUserRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	user, err := h.users.Update(chi.URLParam(r, "id"), req.DisplayName, req.Role, req.Password)
	if err != nil {
		respondStoreError(w, err, "user")
		return
	}
	respondSuccess(w, http.StatusOK, user.Sanitized(), start)
}

// handleDeleteUser removes an account. The shadow service account and
// the last admin are protected by the store.
//
// Method: DELETE
// Path: /api/v1/users/{id}
// Authentication: admin
func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")
	if err := h.users.Delete(id); err != nil {
		respondStoreError(w, err, "user")
		return
	}
	logging.Info().Str("user_id", id).Msg("User deleted")
	respondSuccess(w, http.StatusOK, map[string]string{"deleted": id}, start)
}
