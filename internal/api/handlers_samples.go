// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/tomtom215/historiographus/internal/models"
	"github.com/tomtom215/historiographus/internal/stats"
)

const (
	defaultSampleLimit = 5000
	maxSampleLimit     = 100000
)

// handleQuerySamples reads archived samples for one endpoint/tag pair.
// With bucket_seconds set the result is aggregated buckets instead of
// raw samples.
//
// Method: GET
// Path: /api/v1/samples?endpoint_id=&tag=&start=&end=&limit=&bucket_seconds=
// Authentication: required
func (h *Handler) handleQuerySamples(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	endpointID := r.URL.Query().Get("endpoint_id")
	tag := r.URL.Query().Get("tag")
	if endpointID == "" || tag == "" {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMETER",
			"endpoint_id and tag query parameters are required", nil)
		return
	}

	from, to, err := parseTimeRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_TIME_RANGE", "start/end must be RFC 3339 timestamps", err)
		return
	}
	if !to.After(from) {
		respondError(w, http.StatusBadRequest, "INVALID_TIME_RANGE", "end must be after start", nil)
		return
	}

	bucketSeconds := getIntParam(r, "bucket_seconds", 0)
	if bucketSeconds > 0 {
		buckets, err := h.archive.Aggregate(r.Context(), endpointID, tag, from, to,
			time.Duration(bucketSeconds)*time.Second)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "ARCHIVE_QUERY_FAILED", "Failed to aggregate samples", err)
			return
		}
		respondCached(w, map[string]interface{}{
			"buckets": buckets,
			"count":   len(buckets),
		}, start)
		return
	}

	limit := getIntParam(r, "limit", defaultSampleLimit)
	if limit <= 0 || limit > maxSampleLimit {
		limit = defaultSampleLimit
	}

	samples, err := h.archive.QueryRange(r.Context(), endpointID, tag, from, to, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "ARCHIVE_QUERY_FAILED", "Failed to query samples", err)
		return
	}
	respondCached(w, map[string]interface{}{
		"samples": samples,
		"count":   len(samples),
	}, start)
}

// handleCurrentSamples performs a live read of the endpoint's tags.
// The tags query parameter (comma separated) narrows the set; default
// is every configured tag.
//
// Method: GET
// Path: /api/v1/samples/current?endpoint_id=&tags=
// Authentication: required
func (h *Handler) handleCurrentSamples(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	endpointID := r.URL.Query().Get("endpoint_id")
	if endpointID == "" {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMETER",
			"endpoint_id query parameter is required", nil)
		return
	}

	ep, err := h.endpoints.GetWithCredentials(endpointID)
	if err != nil {
		respondStoreError(w, err, "endpoint")
		return
	}

	tags := tagsFromQuery(r, ep)
	if len(tags) == 0 {
		respondError(w, http.StatusBadRequest, "NO_TAGS", "Endpoint has no tags to read", nil)
		return
	}

	samples, err := h.historian.ReadCurrent(r.Context(), ep, tags)
	if err != nil {
		respondError(w, http.StatusBadGateway, "LIVE_READ_FAILED", "Failed to read current values", err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"samples": samples,
		"count":   len(samples),
	}, start)
}

// handleStatsPreview summarizes an archived series the way a report
// stats table would, without generating a document.
//
// Method: GET
// Path: /api/v1/stats/preview?endpoint_id=&tag=&start=&end=
// Authentication: required
func (h *Handler) handleStatsPreview(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	endpointID := r.URL.Query().Get("endpoint_id")
	tag := r.URL.Query().Get("tag")
	if endpointID == "" || tag == "" {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMETER",
			"endpoint_id and tag query parameters are required", nil)
		return
	}

	from, to, err := parseTimeRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_TIME_RANGE", "start/end must be RFC 3339 timestamps", err)
		return
	}

	samples, err := h.archive.QueryRange(r.Context(), endpointID, tag, from, to, maxSampleLimit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "ARCHIVE_QUERY_FAILED", "Failed to query samples", err)
		return
	}

	summary, err := stats.Summarize(samples)
	if err != nil {
		respondError(w, http.StatusNotFound, "NO_DATA", "No samples in the requested range", nil)
		return
	}

	result := map[string]interface{}{
		"summary": summary,
		"count":   len(samples),
	}
	if trend, err := stats.FitTrend(samples); err == nil {
		result["trend"] = trend
	}
	respondCached(w, result, start)
}

// respondCached is respondSuccess with the archive-cache flag set.
func respondCached(w http.ResponseWriter, data interface{}, start time.Time) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
			Cached:      true,
		},
	})
}

func tagsFromQuery(r *http.Request, ep models.Endpoint) []string {
	raw := r.URL.Query().Get("tags")
	if raw == "" {
		tags := make([]string, 0, len(ep.Tags))
		for _, t := range ep.Tags {
			tags = append(tags, t.NodeID)
		}
		return tags
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
