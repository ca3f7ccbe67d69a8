/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/semestra/semestra/internal/events"
)

// handleScheduleExport streams the user's planner as an iCalendar file.
func (a *API) handleScheduleExport(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	from, err := parseTimeParam(r, "from", time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from")
		return
	}
	to, err := parseTimeParam(r, "to", from.Add(defaultListWindow))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_to")
		return
	}
	if !to.After(from) {
		writeError(w, http.StatusBadRequest, "empty_range")
		return
	}

	result, err := a.exporter.ExportToICal(r.Context(), userID, from, to)
	if err != nil {
		a.logger.Error().Err(err).Str("user_id", userID).Msg("ical export failed")
		writeError(w, http.StatusInternalServerError, "export_failed")
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// handleScheduleImport ingests an iCalendar file as busy calendar events.
func (a *API) handleScheduleImport(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	result, err := a.exporter.ImportFromICal(r.Context(), userID, r.Body)
	if err != nil {
		a.logger.Error().Err(err).Str("user_id", userID).Msg("ical import failed")
		writeError(w, http.StatusBadRequest, "import_failed")
		return
	}

	if result.Imported > 0 {
		a.invalidateTimetable(r, userID)
	}
	a.publishAuditEvent(r, events.EventCommitmentsUpdated, events.Payload{
		"imported": result.Imported,
		"skipped":  result.Skipped,
	})

	writeJSON(w, http.StatusOK, result)
}
