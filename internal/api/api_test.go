/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/semestra/semestra/internal/autoschedule"
	"github.com/semestra/semestra/internal/events"
	"github.com/semestra/semestra/internal/models"
	"github.com/semestra/semestra/internal/schedule"
	"github.com/semestra/semestra/internal/sessions"
	"github.com/semestra/semestra/internal/timetable"
)

func setupTestAPI(t *testing.T) (*chi.Mux, *autoschedule.Service) {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	err = database.AutoMigrate(
		&models.User{},
		&models.APIKey{},
		&models.PlannerSettings{},
		&models.Course{},
		&models.CourseMeeting{},
		&models.CalendarEvent{},
		&models.HolidayPeriod{},
		&models.Assignment{},
		&models.Exam{},
		&models.StudySession{},
	)
	if err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	logger := zerolog.Nop()
	bus := events.NewBus()
	provider := timetable.NewProvider(database, nil, logger)
	sink := sessions.NewSink(database, bus, nil, logger)
	autoSched := autoschedule.New(database, provider, sink, bus, time.Minute, 14*24*time.Hour, logger)
	exporter := schedule.NewExportService(database, logger)

	a := New(database, []byte("test-secret"), autoSched, provider, sink, exporter, nil, bus, logger)
	router := chi.NewRouter()
	a.Routes(router)
	return router, autoSched
}

func doRequest(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func registerUser(t *testing.T, router http.Handler, email string) string {
	t.Helper()

	rec := doRequest(t, router, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":        email,
		"password":     "correct-horse",
		"display_name": "Test Student",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &resp)
	if resp.Token == "" {
		t.Fatal("register returned empty token")
	}
	return resp.Token
}

func TestRegisterAndLogin(t *testing.T) {
	router, _ := setupTestAPI(t)

	registerUser(t, router, "ada@example.edu")

	// Duplicate email is rejected.
	rec := doRequest(t, router, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":    "ada@example.edu",
		"password": "correct-horse",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register returned %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    "Ada@Example.edu",
		"password": "correct-horse",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    "ada@example.edu",
		"password": "wrong-password",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password returned %d", rec.Code)
	}
}

func TestRequiresAuthentication(t *testing.T) {
	router, _ := setupTestAPI(t)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/assignments", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated request returned %d", rec.Code)
	}
}

func TestCommitmentOwnershipScoping(t *testing.T) {
	router, _ := setupTestAPI(t)
	tokenA := registerUser(t, router, "ada@example.edu")
	tokenB := registerUser(t, router, "bob@example.edu")

	rec := doRequest(t, router, http.MethodPost, "/api/v1/assignments", tokenA, map[string]any{
		"title":  "essay draft",
		"due_by": "2030-01-10T17:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create assignment returned %d: %s", rec.Code, rec.Body.String())
	}
	var assignment models.Assignment
	decodeBody(t, rec, &assignment)

	rec = doRequest(t, router, http.MethodDelete, "/api/v1/assignments/"+assignment.ID, tokenB, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-user delete returned %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodDelete, "/api/v1/assignments/"+assignment.ID, tokenA, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner delete returned %d", rec.Code)
	}
}

func TestAutoScheduleEndpointPlacesSessions(t *testing.T) {
	router, autoSched := setupTestAPI(t)
	token := registerUser(t, router, "ada@example.edu")

	// Monday 08:30. The first free hour-aligned slot is 09:00.
	now := time.Date(2030, 1, 7, 8, 30, 0, 0, time.UTC)
	autoSched.SetClock(func() time.Time { return now })

	rec := doRequest(t, router, http.MethodPost, "/api/v1/assignments", token, map[string]any{
		"title":            "problem set",
		"due_by":           "2030-01-09T17:00:00Z",
		"duration_minutes": 60,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create assignment returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/schedule/auto", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("auto schedule returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		SessionsCreated int `json:"sessions_created"`
	}
	decodeBody(t, rec, &resp)
	if resp.SessionsCreated != 1 {
		t.Fatalf("expected 1 session created, got %d", resp.SessionsCreated)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/sessions?from=2030-01-07T00:00:00Z&to=2030-01-14T00:00:00Z", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list sessions returned %d", rec.Code)
	}
	var placed []models.StudySession
	decodeBody(t, rec, &placed)
	if len(placed) != 1 {
		t.Fatalf("expected 1 session, got %d", len(placed))
	}
	want := time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)
	if !placed[0].StartsAt.Equal(want) {
		t.Fatalf("session starts at %v, want %v", placed[0].StartsAt, want)
	}

	// A second pass has nothing left to place.
	rec = doRequest(t, router, http.MethodPost, "/api/v1/schedule/auto", token, nil)
	decodeBody(t, rec, &resp)
	if resp.SessionsCreated != 0 {
		t.Fatalf("second pass created %d sessions", resp.SessionsCreated)
	}
}

func TestManualSessionRejectsBusySlot(t *testing.T) {
	router, _ := setupTestAPI(t)
	token := registerUser(t, router, "ada@example.edu")

	rec := doRequest(t, router, http.MethodPost, "/api/v1/events", token, map[string]any{
		"title":     "lab",
		"starts_at": "2030-01-07T09:00:00Z",
		"ends_at":   "2030-01-07T10:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create event returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/sessions", token, map[string]any{
		"task_type": "assignment",
		"title":     "clashes with lab",
		"starts_at": "2030-01-07T09:30:00Z",
		"ends_at":   "2030-01-07T10:30:00Z",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("overlapping session returned %d", rec.Code)
	}

	// Back-to-back with the lab is fine, intervals are half-open.
	rec = doRequest(t, router, http.MethodPost, "/api/v1/sessions", token, map[string]any{
		"task_type": "assignment",
		"title":     "after the lab",
		"starts_at": "2030-01-07T10:00:00Z",
		"ends_at":   "2030-01-07T11:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("adjacent session returned %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAvailabilityWalksPastConflicts(t *testing.T) {
	router, _ := setupTestAPI(t)
	token := registerUser(t, router, "ada@example.edu")

	rec := doRequest(t, router, http.MethodPost, "/api/v1/events", token, map[string]any{
		"title":     "seminar",
		"starts_at": "2030-01-07T09:00:00Z",
		"ends_at":   "2030-01-07T10:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create event returned %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet,
		"/api/v1/availability?from=2030-01-07T08:30:00Z&duration_minutes=60", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("availability returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		StartsAt time.Time `json:"starts_at"`
		EndsAt   time.Time `json:"ends_at"`
	}
	decodeBody(t, rec, &resp)
	want := time.Date(2030, 1, 7, 10, 0, 0, 0, time.UTC)
	if !resp.StartsAt.Equal(want) {
		t.Fatalf("availability starts at %v, want %v", resp.StartsAt, want)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	router, _ := setupTestAPI(t)
	token := registerUser(t, router, "ada@example.edu")

	rec := doRequest(t, router, http.MethodGet, "/api/v1/settings", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get settings returned %d", rec.Code)
	}
	var settings models.PlannerSettings
	decodeBody(t, rec, &settings)
	if settings.WorkStartHour != 8 || settings.WorkEndHour != 21 {
		t.Fatalf("default window is %d-%d, want 8-21", settings.WorkStartHour, settings.WorkEndHour)
	}

	rec = doRequest(t, router, http.MethodPut, "/api/v1/settings", token, map[string]any{
		"work_start_hour": 10,
		"work_end_hour":   18,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update settings returned %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &settings)
	if settings.WorkStartHour != 10 || settings.WorkEndHour != 18 {
		t.Fatalf("updated window is %d-%d, want 10-18", settings.WorkStartHour, settings.WorkEndHour)
	}

	rec = doRequest(t, router, http.MethodPut, "/api/v1/settings", token, map[string]any{
		"work_start_hour": 20,
		"work_end_hour":   8,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("inverted window returned %d", rec.Code)
	}
}

func TestExamPlanEndpoint(t *testing.T) {
	router, autoSched := setupTestAPI(t)
	token := registerUser(t, router, "ada@example.edu")

	now := time.Date(2030, 1, 7, 8, 0, 0, 0, time.UTC)
	autoSched.SetClock(func() time.Time { return now })

	rec := doRequest(t, router, http.MethodPost, "/api/v1/exams", token, map[string]any{
		"title":     "algorithms final",
		"starts_at": "2030-01-14T09:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create exam returned %d: %s", rec.Code, rec.Body.String())
	}
	var exam models.Exam
	decodeBody(t, rec, &exam)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/exams/"+exam.ID+"/plan", token, map[string]any{
		"sessions":        3,
		"session_minutes": 60,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("exam plan returned %d: %s", rec.Code, rec.Body.String())
	}
	var plan []models.StudySession
	decodeBody(t, rec, &plan)
	if len(plan) != 3 {
		t.Fatalf("expected 3 study sessions, got %d", len(plan))
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/exams/no-such-exam/plan", token, map[string]any{
		"sessions": 2,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown exam returned %d", rec.Code)
	}
}

func TestScheduleExportProducesICal(t *testing.T) {
	router, _ := setupTestAPI(t)
	token := registerUser(t, router, "ada@example.edu")

	rec := doRequest(t, router, http.MethodPost, "/api/v1/events", token, map[string]any{
		"title":     "society meetup",
		"starts_at": "2030-01-08T18:00:00Z",
		"ends_at":   "2030-01-08T20:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create event returned %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet,
		"/api/v1/schedule/export.ics?from=2030-01-07T00:00:00Z&to=2030-01-14T00:00:00Z", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export returned %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/calendar") {
		t.Fatalf("export content type %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Fatalf("export content disposition %q", cd)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "BEGIN:VCALENDAR") || !strings.Contains(body, "SUMMARY:society meetup") {
		t.Fatalf("export body missing expected lines:\n%s", body)
	}
}

func TestCourseWithMeetingsLifecycle(t *testing.T) {
	router, _ := setupTestAPI(t)
	token := registerUser(t, router, "ada@example.edu")

	rec := doRequest(t, router, http.MethodPost, "/api/v1/courses", token, map[string]any{
		"name": "Algorithms",
		"code": "CS201",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create course returned %d: %s", rec.Code, rec.Body.String())
	}
	var course models.Course
	decodeBody(t, rec, &course)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/courses/"+course.ID+"/meetings", token, map[string]any{
		"day_of_week": 1,
		"start_time":  "09:00",
		"end_time":    "10:30",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create meeting returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/courses/"+course.ID+"/meetings", token, map[string]any{
		"day_of_week": 1,
		"start_time":  "11:00",
		"end_time":    "10:00",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("inverted meeting returned %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/courses/"+course.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get course returned %d", rec.Code)
	}
	var detail struct {
		Course   models.Course          `json:"course"`
		Meetings []models.CourseMeeting `json:"meetings"`
	}
	decodeBody(t, rec, &detail)
	if len(detail.Meetings) != 1 {
		t.Fatalf("expected 1 meeting, got %d", len(detail.Meetings))
	}

	// Deleting the course takes its meetings with it.
	rec = doRequest(t, router, http.MethodDelete, "/api/v1/courses/"+course.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete course returned %d", rec.Code)
	}
	rec = doRequest(t, router, http.MethodGet, "/api/v1/courses/"+course.ID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted course returned %d", rec.Code)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	router, _ := setupTestAPI(t)
	token := registerUser(t, router, "ada@example.edu")

	rec := doRequest(t, router, http.MethodPost, "/api/v1/apikeys", token, map[string]any{
		"name": "calendar sync",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create api key returned %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Key    string        `json:"key"`
		APIKey models.APIKey `json:"api_key"`
	}
	decodeBody(t, rec, &created)
	if created.Key == "" {
		t.Fatal("plaintext key missing from response")
	}

	// The raw key authenticates requests.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/assignments", nil)
	req.Header.Set("X-API-Key", created.Key)
	keyRec := httptest.NewRecorder()
	router.ServeHTTP(keyRec, req)
	if keyRec.Code != http.StatusOK {
		t.Fatalf("api key auth returned %d", keyRec.Code)
	}

	rec = doRequest(t, router, http.MethodDelete, "/api/v1/apikeys/"+created.APIKey.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke returned %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/assignments", nil)
	req.Header.Set("X-API-Key", created.Key)
	keyRec = httptest.NewRecorder()
	router.ServeHTTP(keyRec, req)
	if keyRec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked key returned %d", keyRec.Code)
	}
}
