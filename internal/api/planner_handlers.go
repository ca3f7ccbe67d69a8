/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/semestra/semestra/internal/autoschedule"
	"github.com/semestra/semestra/internal/events"
	"github.com/semestra/semestra/internal/interval"
	"github.com/semestra/semestra/internal/models"
	"github.com/semestra/semestra/internal/planner"
	"github.com/semestra/semestra/internal/sessions"
)

// defaultListWindow bounds list and availability queries when the caller
// does not pass an explicit range.
const defaultListWindow = 14 * 24 * time.Hour

func (a *API) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	settings, err := a.provider.Settings(r.Context(), userID)
	if err != nil {
		a.logger.Error().Err(err).Msg("load settings failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type settingsUpdateRequest struct {
	WorkStartHour          *int `json:"work_start_hour"`
	WorkEndHour            *int `json:"work_end_hour"`
	DefaultSessionMinutes  *int `json:"default_session_minutes"`
	DefaultSessionsPerExam *int `json:"default_sessions_per_exam"`
}

func (a *API) handleSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	settings, err := a.provider.Settings(r.Context(), userID)
	if err != nil {
		a.logger.Error().Err(err).Msg("load settings failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	var req settingsUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	if req.WorkStartHour != nil {
		settings.WorkStartHour = *req.WorkStartHour
	}
	if req.WorkEndHour != nil {
		settings.WorkEndHour = *req.WorkEndHour
	}
	if settings.WorkStartHour < 0 || settings.WorkEndHour > 24 || settings.WorkStartHour >= settings.WorkEndHour {
		writeError(w, http.StatusBadRequest, "invalid_work_window")
		return
	}
	if req.DefaultSessionMinutes != nil {
		if *req.DefaultSessionMinutes <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_session_minutes")
			return
		}
		settings.DefaultSessionMinutes = *req.DefaultSessionMinutes
	}
	if req.DefaultSessionsPerExam != nil {
		if *req.DefaultSessionsPerExam <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_sessions_per_exam")
			return
		}
		settings.DefaultSessionsPerExam = *req.DefaultSessionsPerExam
	}

	if err := a.db.WithContext(r.Context()).Save(&settings).Error; err != nil {
		a.logger.Error().Err(err).Msg("save settings failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	if err := a.cache.InvalidatePlannerSettings(r.Context(), userID); err != nil {
		a.logger.Debug().Err(err).Msg("failed to invalidate settings cache")
	}
	if a.bus != nil {
		a.bus.Publish(events.EventSettingsUpdated, events.Payload{"user_id": userID})
	}

	writeJSON(w, http.StatusOK, settings)
}

// handleAvailability answers "when is my next free block of N minutes".
func (a *API) handleAvailability(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	from, err := parseTimeParam(r, "from", time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from")
		return
	}

	durationMinutes := 0
	if raw := r.URL.Query().Get("duration_minutes"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_duration")
			return
		}
		durationMinutes = parsed
	}
	if durationMinutes == 0 {
		settings, err := a.provider.Settings(r.Context(), userID)
		if err != nil {
			a.logger.Error().Err(err).Msg("load settings failed")
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		durationMinutes = settings.DefaultSessionMinutes
	}

	constraints, err := a.provider.Constraints(r.Context(), userID)
	if err != nil {
		a.logger.Error().Err(err).Msg("load constraints failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	busy, err := a.provider.BusyIntervals(r.Context(), userID, from, from.Add(defaultListWindow))
	if err != nil {
		a.logger.Error().Err(err).Msg("collect busy intervals failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	duration := time.Duration(durationMinutes) * time.Minute
	start, err := planner.FindNextAvailableSlot(duration, busy, from, constraints)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_duration")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"starts_at":        start,
		"ends_at":          start.Add(duration),
		"duration_minutes": durationMinutes,
	})
}

func (a *API) handleAutoSchedule(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	created, err := a.autoSched.ScheduleUser(r.Context(), userID)
	if err != nil {
		a.logger.Error().Err(err).Str("user_id", userID).Msg("auto schedule failed")
		writeError(w, http.StatusInternalServerError, "schedule_failed")
		return
	}

	a.publishAuditEvent(r, events.EventAuditScheduleRefresh, events.Payload{"sessions_created": created})
	writeJSON(w, http.StatusOK, map[string]any{"sessions_created": created})
}

type examPlanRequest struct {
	Sessions       int `json:"sessions"`
	SessionMinutes int `json:"session_minutes"`
}

func (a *API) handleExamPlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var req examPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	created, err := a.autoSched.PlanExam(r.Context(), userID, chi.URLParam(r, "examID"), req.Sessions, req.SessionMinutes)
	switch {
	case errors.Is(err, autoschedule.ErrExamNotFound):
		writeError(w, http.StatusNotFound, "not_found")
		return
	case errors.Is(err, planner.ErrInvalidSessionCount), errors.Is(err, planner.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, "invalid_plan_request")
		return
	case err != nil:
		a.logger.Error().Err(err).Str("user_id", userID).Msg("exam plan failed")
		writeError(w, http.StatusInternalServerError, "plan_failed")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleSessionsList(w http.ResponseWriter, r *http.Request) {
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

	list, err := a.sink.ListRange(r.Context(), userID, from, to)
	if err != nil {
		a.logger.Error().Err(err).Msg("list sessions failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type sessionCreateRequest struct {
	TaskType string `json:"task_type"`
	TaskID   string `json:"task_id"`
	Title    string `json:"title"`
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
}

func (a *API) handleSessionsCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var req sessionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.TaskType != "assignment" && req.TaskType != "exam" {
		writeError(w, http.StatusBadRequest, "invalid_task_type")
		return
	}
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}
	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_starts_at")
		return
	}
	endsAt, err := time.Parse(time.RFC3339, req.EndsAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_ends_at")
		return
	}

	block := interval.Interval{Start: startsAt, End: endsAt}
	if !block.Valid() {
		writeError(w, http.StatusBadRequest, "end_before_start")
		return
	}

	busy, err := a.provider.BusyIntervals(r.Context(), userID, startsAt, endsAt)
	if err != nil {
		a.logger.Error().Err(err).Msg("collect busy intervals failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if busy.Conflicts(block) {
		writeError(w, http.StatusConflict, "slot_busy")
		return
	}

	created, err := a.sink.Record(r.Context(), userID, []sessions.PlacedSession{{
		TaskType: req.TaskType,
		TaskID:   req.TaskID,
		Title:    req.Title,
		Interval: block,
		Source:   models.SessionSourceManual,
	}})
	if err != nil {
		a.logger.Error().Err(err).Msg("record session failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusCreated, created[0])
}

func (a *API) handleSessionsDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	err := a.sink.Delete(r.Context(), userID, chi.URLParam(r, "sessionID"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("delete session failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
