// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/historiographus/internal/auth"
	"github.com/tomtom215/historiographus/internal/logging"
	"github.com/tomtom215/historiographus/internal/models"
	"github.com/tomtom215/historiographus/internal/report"
)

// handleListReports returns generated report records, newest first.
//
// Method: GET
// Path: /api/v1/reports
// Authentication: required
func (h *Handler) handleListReports(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	records := h.registry.List()
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"reports": records,
		"count":   len(records),
	}, start)
}

// handleGetReport returns one report record (not the document).
//
// Method: GET
// Path: /api/v1/reports/{id}
// Authentication: required
func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	record, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondReportError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, record, start)
}

// handleGenerateReport runs the report pipeline synchronously and
// returns the registry record for the new document.
//
// Method: POST
// Path: /api/v1/reports
// Authentication: required
func (h *Handler) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var spec models.ReportSpec
	if !decodeJSONBody(w, r, &spec) {
		return
	}
	if apiErr := validateRequest(&spec); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	generatedBy := ""
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		generatedBy = identity.Username
	}

	record, err := h.generator.Generate(r.Context(), spec, generatedBy)
	if err != nil {
		respondReportError(w, err)
		return
	}
	logging.Info().Str("report_id", record.ID).Str("format", record.Format).
		Str("generated_by", generatedBy).Msg("Report generated via API")
	respondSuccess(w, http.StatusCreated, record, start)
}

// handleDownloadReport streams the generated document.
//
// Method: GET
// Path: /api/v1/reports/{id}/download
// Authentication: required
func (h *Handler) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	f, record, err := h.registry.Open(chi.URLParam(r, "id"))
	if err != nil {
		respondReportError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", documentContentType(record.Format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", record.Filename))
	http.ServeContent(w, r, record.Filename, record.GeneratedAt, f)
}

// handleDeleteReport removes a report record and its document.
//
// Method: DELETE
// Path: /api/v1/reports/{id}
// Authentication: admin
func (h *Handler) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")
	if err := h.registry.Delete(id); err != nil {
		respondReportError(w, err)
		return
	}
	logging.Info().Str("report_id", id).Msg("Report deleted")
	respondSuccess(w, http.StatusOK, map[string]string{"deleted": id}, start)
}

func documentContentType(format string) string {
	switch format {
	case models.FormatPDF:
		return "application/pdf"
	case models.FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}

// respondReportError maps pipeline and registry errors to HTTP
// statuses.
func respondReportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, report.ErrReportNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "report not found", nil)
	case errors.Is(err, report.ErrInvalidWindow):
		respondError(w, http.StatusBadRequest, "INVALID_WINDOW", "Report end must be after start", nil)
	case errors.Is(err, report.ErrUnsupportedFormat):
		respondError(w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", "Format must be pdf or docx", nil)
	case errors.Is(err, report.ErrNoSectionData):
		respondError(w, http.StatusUnprocessableEntity, "NO_DATA",
			"No section produced any data for the requested range", nil)
	default:
		respondStoreError(w, err, "report")
	}
}
