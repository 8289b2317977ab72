// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/historiographus/internal/logging"
	"github.com/tomtom215/historiographus/internal/models"
	"github.com/tomtom215/historiographus/internal/store"
)

// handleListEndpoints returns all configured endpoints with masked
// credentials.
//
// Method: GET
// Path: /api/v1/endpoints
// Authentication: required
func (h *Handler) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	endpoints, err := h.endpoints.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "ENDPOINT_LIST_FAILED", "Failed to list endpoints", err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"endpoints": endpoints,
		"count":     len(endpoints),
	}, start)
}

// handleGetEndpoint returns a single endpoint by ID.
//
// Method: GET
// Path: /api/v1/endpoints/{id}
// Authentication: required
func (h *Handler) handleGetEndpoint(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ep, err := h.endpoints.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err, "endpoint")
		return
	}
	respondSuccess(w, http.StatusOK, ep, start)
}

// handleCreateEndpoint registers a new data-source endpoint.
//
// Method: POST
// Path: /api/v1/endpoints
// Authentication: admin
func (h *Handler) handleCreateEndpoint(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var ep models.Endpoint
	if !decodeJSONBody(w, r, &ep) {
		return
	}
	if apiErr := validateRequest(&ep); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	created, err := h.endpoints.Create(ep)
	if err != nil {
		respondStoreError(w, err, "endpoint")
		return
	}
	logging.Info().Str("endpoint_id", created.ID).Str("name", sanitizeLogValue(created.Name)).Msg("Endpoint created")
	respondSuccess(w, http.StatusCreated, created, start)
}

// handleUpdateEndpoint replaces an endpoint's configuration. An empty
// password keeps the stored credential.
//
// Method: PUT
// Path: /api/v1/endpoints/{id}
// Authentication: admin
func (h *Handler) handleUpdateEndpoint(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var ep models.Endpoint
	if !decodeJSONBody(w, r, &ep) {
		return
	}
	if apiErr := validateRequest(&ep); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	updated, err := h.endpoints.Update(chi.URLParam(r, "id"), ep)
	if err != nil {
		respondStoreError(w, err, "endpoint")
		return
	}
	respondSuccess(w, http.StatusOK, updated, start)
}

// handleDeleteEndpoint removes an endpoint and its archived samples.
//
// Method: DELETE
// Path: /api/v1/endpoints/{id}
// Authentication: admin
func (h *Handler) handleDeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")

	if err := h.endpoints.Delete(id); err != nil {
		respondStoreError(w, err, "endpoint")
		return
	}
	if err := h.archive.DeleteEndpoint(r.Context(), id); err != nil {
		// The endpoint is gone; orphaned samples age out via retention.
		logging.Error().Err(err).Str("endpoint_id", id).Msg("Failed to purge archived samples")
	}

	logging.Info().Str("endpoint_id", id).Msg("Endpoint deleted")
	respondSuccess(w, http.StatusOK, map[string]string{"deleted": id}, start)
}

// handleTestEndpoint checks connectivity for a candidate configuration
// without persisting it.
//
// Method: POST
// Path: /api/v1/endpoints/test
// Authentication: admin
func (h *Handler) handleTestEndpoint(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var ep models.Endpoint
	if !decodeJSONBody(w, r, &ep) {
		return
	}
	if apiErr := validateRequest(&ep); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	if err := h.historian.TestConnection(r.Context(), ep); err != nil {
		respondSuccess(w, http.StatusOK, map[string]interface{}{
			"reachable": false,
			"detail":    err.Error(),
		}, start)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]interface{}{"reachable": true}, start)
}

type browseRequest struct {
	Root string `json:"root,omitempty"`
}

// handleBrowseEndpoint lists address-space nodes under the given root
// (Objects folder when empty) for tag discovery.
//
// Method: POST
// Path: /api/v1/endpoints/{id}/browse
// Authentication: admin
func (h *Handler) handleBrowseEndpoint(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req browseRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	ep, err := h.endpoints.GetWithCredentials(chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err, "endpoint")
		return
	}

	tags, err := h.historian.Browse(r.Context(), ep, req.Root)
	if err != nil {
		respondError(w, http.StatusBadGateway, "BROWSE_FAILED", "Failed to browse endpoint", err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"tags":  tags,
		"count": len(tags),
	}, start)
}

// respondStoreError maps store sentinel errors to HTTP statuses.
func respondStoreError(w http.ResponseWriter, err error, resource string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", resource+" not found", nil)
	case errors.Is(err, store.ErrDuplicateName):
		respondError(w, http.StatusConflict, "DUPLICATE_NAME", "Name is already in use", nil)
	case errors.Is(err, store.ErrLastAdmin):
		respondError(w, http.StatusConflict, "LAST_ADMIN", "Cannot remove the last admin account", nil)
	case errors.Is(err, store.ErrShadowAccount):
		respondError(w, http.StatusForbidden, "SHADOW_ACCOUNT", "The service account cannot be modified", nil)
	default:
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to persist "+resource, err)
	}
}
