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
	"github.com/tomtom215/historiographus/internal/report/scheduler"
)

// handleListSchedules returns all report schedules.
//
// Method: GET
// Path: /api/v1/schedules
// Authentication: required
func (h *Handler) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	schedules := h.schedules.List()
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"schedules": schedules,
		"count":     len(schedules),
	}, start)
}

// handleGetSchedule returns one schedule by ID.
//
// Method: GET
// Path: /api/v1/schedules/{id}
// Authentication: required
func (h *Handler) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sc, err := h.schedules.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err, "schedule")
		return
	}
	respondSuccess(w, http.StatusOK, sc, start)
}

// handleCreateSchedule creates a cron-driven report schedule. The cron
// expression is parsed up front so a bad one never reaches the runner.
//
// Method: POST
// Path: /api/v1/schedules
// Authentication: admin
func (h *Handler) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var sc models.Schedule
	if !decodeJSONBody(w, r, &sc) {
		return
	}
	if apiErr := validateRequest(&sc); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}
	if _, err := scheduler.Parse(sc.Cron); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_CRON", "Invalid cron expression", err)
		return
	}

	created, err := h.schedules.Create(sc)
	if err != nil {
		respondStoreError(w, err, "schedule")
		return
	}
	logging.Info().Str("schedule_id", created.ID).Str("name", sanitizeLogValue(created.Name)).
		Str("cron", sanitizeLogValue(created.Cron)).Msg("Schedule created")
	respondSuccess(w, http.StatusCreated, created, start)
}

// handleUpdateSchedule replaces a schedule's definition.
//
// Method: PUT
// Path: /api/v1/schedules/{id}
// Authentication: admin
func (h *Handler) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var sc models.Schedule
	if !decodeJSONBody(w, r, &sc) {
		return
	}
	if apiErr := validateRequest(&sc); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}
	if _, err := scheduler.Parse(sc.Cron); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_CRON", "Invalid cron expression", err)
		return
	}

	updated, err := h.schedules.Update(chi.URLParam(r, "id"), sc)
	if err != nil {
		respondStoreError(w, err, "schedule")
		return
	}
	respondSuccess(w, http.StatusOK, updated, start)
}

// handleDeleteSchedule removes a schedule.
//
// Method: DELETE
// Path: /api/v1/schedules/{id}
// Authentication: admin
func (h *Handler) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")
	if err := h.schedules.Delete(id); err != nil {
		respondStoreError(w, err, "schedule")
		return
	}
	logging.Info().Str("schedule_id", id).Msg("Schedule deleted")
	respondSuccess(w, http.StatusOK, map[string]string{"deleted": id}, start)
}

// handleTriggerSchedule runs a schedule immediately, outside its cron
// cadence. A run already in flight yields 409.
//
// Method: POST
// Path: /api/v1/schedules/{id}/trigger
// Authentication: admin
func (h *Handler) handleTriggerSchedule(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")

	if err := h.trigger.TriggerNow(r.Context(), id); err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			respondError(w, http.StatusConflict, "ALREADY_RUNNING", "Schedule is already running", nil)
			return
		}
		respondStoreError(w, err, "schedule")
		return
	}
	respondSuccess(w, http.StatusAccepted, map[string]string{"triggered": id}, start)
}
