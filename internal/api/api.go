/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the HTTP surface of the planner.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/semestra/semestra/internal/auth"
	"github.com/semestra/semestra/internal/autoschedule"
	"github.com/semestra/semestra/internal/cache"
	"github.com/semestra/semestra/internal/events"
	"github.com/semestra/semestra/internal/schedule"
	"github.com/semestra/semestra/internal/sessions"
	"github.com/semestra/semestra/internal/timetable"
)

// API exposes HTTP handlers.
type API struct {
	db        *gorm.DB
	jwtSecret []byte
	autoSched *autoschedule.Service
	provider  *timetable.Provider
	sink      *sessions.Sink
	exporter  *schedule.ExportService
	cache     *cache.Cache
	bus       sessions.Publisher
	logger    zerolog.Logger
}

// New creates the API router wrapper.
func New(db *gorm.DB, jwtSecret []byte, autoSched *autoschedule.Service, provider *timetable.Provider, sink *sessions.Sink, exporter *schedule.ExportService, c *cache.Cache, bus sessions.Publisher, logger zerolog.Logger) *API {
	return &API{
		db:        db,
		jwtSecret: jwtSecret,
		autoSched: autoSched,
		provider:  provider,
		sink:      sink,
		exporter:  exporter,
		cache:     c,
		bus:       bus,
		logger:    logger,
	}
}

// Routes mounts API routes on provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		// Public endpoints (no auth required)
		r.Post("/auth/register", a.handleRegister)
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(pr chi.Router) {
			pr.Use(a.authMiddleware())

			pr.Route("/settings", func(r chi.Router) {
				r.Get("/", a.handleSettingsGet)
				r.Put("/", a.handleSettingsUpdate)
			})

			pr.Route("/courses", func(r chi.Router) {
				r.Get("/", a.handleCoursesList)
				r.Post("/", a.handleCoursesCreate)
				r.Route("/{courseID}", func(r chi.Router) {
					r.Get("/", a.handleCoursesGet)
					r.Delete("/", a.handleCoursesDelete)
					r.Post("/meetings", a.handleMeetingsCreate)
				})
			})
			pr.Delete("/meetings/{meetingID}", a.handleMeetingsDelete)

			pr.Route("/assignments", func(r chi.Router) {
				r.Get("/", a.handleAssignmentsList)
				r.Post("/", a.handleAssignmentsCreate)
				r.Patch("/{assignmentID}", a.handleAssignmentsUpdate)
				r.Delete("/{assignmentID}", a.handleAssignmentsDelete)
			})

			pr.Route("/exams", func(r chi.Router) {
				r.Get("/", a.handleExamsList)
				r.Post("/", a.handleExamsCreate)
				r.Delete("/{examID}", a.handleExamsDelete)
				r.Post("/{examID}/plan", a.handleExamPlan)
			})

			pr.Route("/events", func(r chi.Router) {
				r.Get("/", a.handleCalendarEventsList)
				r.Post("/", a.handleCalendarEventsCreate)
				r.Delete("/{eventID}", a.handleCalendarEventsDelete)
			})

			pr.Route("/holidays", func(r chi.Router) {
				r.Get("/", a.handleHolidaysList)
				r.Post("/", a.handleHolidaysCreate)
				r.Delete("/{holidayID}", a.handleHolidaysDelete)
			})

			pr.Route("/sessions", func(r chi.Router) {
				r.Get("/", a.handleSessionsList)
				r.Post("/", a.handleSessionsCreate)
				r.Delete("/{sessionID}", a.handleSessionsDelete)
			})

			pr.Get("/availability", a.handleAvailability)
			pr.Post("/schedule/auto", a.handleAutoSchedule)
			pr.Get("/schedule/export.ics", a.handleScheduleExport)
			pr.Post("/schedule/import", a.handleScheduleImport)

			pr.Route("/apikeys", func(r chi.Router) {
				r.Get("/", a.handleAPIKeysList)
				r.Post("/", a.handleAPIKeysCreate)
				r.Delete("/{keyID}", a.handleAPIKeysRevoke)
			})
		})
	})
}

func (a *API) authMiddleware() func(http.Handler) http.Handler {
	return auth.MiddlewareWithJWT(a.db, a.jwtSecret)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// currentUserID resolves the authenticated user or writes 401.
func (a *API) currentUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return userID, true
}

// invalidateTimetable drops cached busy windows after commitment edits.
func (a *API) invalidateTimetable(r *http.Request, userID string) {
	if err := a.cache.InvalidateBusyWindows(r.Context(), userID); err != nil {
		a.logger.Debug().Err(err).Str("user_id", userID).Msg("failed to invalidate busy windows")
	}
	if a.bus != nil {
		a.bus.Publish(events.EventCommitmentsUpdated, events.Payload{"user_id": userID})
	}
}

// parseTimeParam reads an RFC 3339 query parameter with a fallback.
func parseTimeParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// publishAuditEvent publishes an audit event with request context.
func (a *API) publishAuditEvent(r *http.Request, eventType events.EventType, data events.Payload) {
	if a.bus == nil {
		return
	}
	payload := events.Payload{
		"ip_address": r.RemoteAddr,
		"user_agent": r.UserAgent(),
	}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims != nil {
		payload["user_id"] = claims.UserID
	}
	for k, v := range data {
		payload[k] = v
	}
	a.bus.Publish(eventType, payload)
}

// ownedRecord loads a record by id scoped to the user, writing the
// appropriate error response on failure.
func ownedRecord[T any](a *API, w http.ResponseWriter, r *http.Request, id, userID string, dest *T) bool {
	err := a.db.WithContext(r.Context()).Where("id = ? AND user_id = ?", id, userID).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return false
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("load record failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return false
	}
	return true
}
