/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/semestra/semestra/internal/models"
	"github.com/semestra/semestra/internal/timetable"
)

// Courses

type courseRequest struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	Color    string `json:"color"`
	Location string `json:"location"`
}

func (a *API) handleCoursesList(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var courses []models.Course
	if err := a.db.WithContext(r.Context()).Where("user_id = ?", userID).Order("name asc").Find(&courses).Error; err != nil {
		a.logger.Error().Err(err).Msg("list courses failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

func (a *API) handleCoursesCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var req courseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name_required")
		return
	}

	course := models.Course{
		ID:       uuid.NewString(),
		UserID:   userID,
		Name:     req.Name,
		Code:     req.Code,
		Color:    req.Color,
		Location: req.Location,
	}
	if err := a.db.WithContext(r.Context()).Create(&course).Error; err != nil {
		a.logger.Error().Err(err).Msg("create course failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusCreated, course)
}

func (a *API) handleCoursesGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var course models.Course
	if !ownedRecord(a, w, r, chi.URLParam(r, "courseID"), userID, &course) {
		return
	}

	var meetings []models.CourseMeeting
	if err := a.db.WithContext(r.Context()).Where("course_id = ?", course.ID).Find(&meetings).Error; err != nil {
		a.logger.Error().Err(err).Msg("load meetings failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"course":   course,
		"meetings": meetings,
	})
}

func (a *API) handleCoursesDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var course models.Course
	if !ownedRecord(a, w, r, chi.URLParam(r, "courseID"), userID, &course) {
		return
	}

	err := a.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("course_id = ?", course.ID).Delete(&models.CourseMeeting{}).Error; err != nil {
			return err
		}
		return tx.Delete(&course).Error
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("delete course failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.invalidateTimetable(r, userID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Meetings

type meetingRequest struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	FirstWeek string `json:"first_week,omitempty"`
	LastWeek  string `json:"last_week,omitempty"`
}

func (a *API) handleMeetingsCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var course models.Course
	if !ownedRecord(a, w, r, chi.URLParam(r, "courseID"), userID, &course) {
		return
	}

	var req meetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.DayOfWeek < 0 || req.DayOfWeek > 6 {
		writeError(w, http.StatusBadRequest, "invalid_day_of_week")
		return
	}
	startHour, startMinute, err := timetable.ParseClock(req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_time")
		return
	}
	endHour, endMinute, err := timetable.ParseClock(req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end_time")
		return
	}
	if endHour*60+endMinute <= startHour*60+startMinute {
		writeError(w, http.StatusBadRequest, "end_before_start")
		return
	}

	meeting := models.CourseMeeting{
		ID:        uuid.NewString(),
		CourseID:  course.ID,
		UserID:    userID,
		DayOfWeek: req.DayOfWeek,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	}
	if req.FirstWeek != "" {
		first, err := time.Parse("2006-01-02", req.FirstWeek)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_first_week")
			return
		}
		meeting.FirstWeek = &first
	}
	if req.LastWeek != "" {
		last, err := time.Parse("2006-01-02", req.LastWeek)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_last_week")
			return
		}
		meeting.LastWeek = &last
	}

	if err := a.db.WithContext(r.Context()).Create(&meeting).Error; err != nil {
		a.logger.Error().Err(err).Msg("create meeting failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.invalidateTimetable(r, userID)
	writeJSON(w, http.StatusCreated, meeting)
}

func (a *API) handleMeetingsDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var meeting models.CourseMeeting
	if !ownedRecord(a, w, r, chi.URLParam(r, "meetingID"), userID, &meeting) {
		return
	}
	if err := a.db.WithContext(r.Context()).Delete(&meeting).Error; err != nil {
		a.logger.Error().Err(err).Msg("delete meeting failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.invalidateTimetable(r, userID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Assignments

type assignmentRequest struct {
	CourseID        *string `json:"course_id"`
	Title           string  `json:"title"`
	Notes           string  `json:"notes"`
	DueBy           string  `json:"due_by"`
	DurationMinutes int     `json:"duration_minutes"`
	Priority        int     `json:"priority"`
}

func (a *API) handleAssignmentsList(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	query := a.db.WithContext(r.Context()).Where("user_id = ?", userID)
	if r.URL.Query().Get("pending") == "true" {
		query = query.Where("completed = ?", false)
	}

	var assignments []models.Assignment
	if err := query.Order("due_by asc").Find(&assignments).Error; err != nil {
		a.logger.Error().Err(err).Msg("list assignments failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

func (a *API) handleAssignmentsCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var req assignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title_required")
		return
	}
	dueBy, err := time.Parse(time.RFC3339, req.DueBy)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_due_by")
		return
	}
	if req.DurationMinutes <= 0 {
		req.DurationMinutes = 60
	}

	assignment := models.Assignment{
		ID:              uuid.NewString(),
		UserID:          userID,
		CourseID:        req.CourseID,
		Title:           req.Title,
		Notes:           req.Notes,
		DueBy:           dueBy,
		DurationMinutes: req.DurationMinutes,
		Priority:        req.Priority,
	}
	if err := a.db.WithContext(r.Context()).Create(&assignment).Error; err != nil {
		a.logger.Error().Err(err).Msg("create assignment failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusCreated, assignment)
}

type assignmentUpdateRequest struct {
	Title           *string `json:"title"`
	Notes           *string `json:"notes"`
	DueBy           *string `json:"due_by"`
	DurationMinutes *int    `json:"duration_minutes"`
	Priority        *int    `json:"priority"`
	Completed       *bool   `json:"completed"`
}

func (a *API) handleAssignmentsUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var assignment models.Assignment
	if !ownedRecord(a, w, r, chi.URLParam(r, "assignmentID"), userID, &assignment) {
		return
	}

	var req assignmentUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	updates := map[string]any{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if req.DueBy != nil {
		dueBy, err := time.Parse(time.RFC3339, *req.DueBy)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_due_by")
			return
		}
		updates["due_by"] = dueBy
	}
	if req.DurationMinutes != nil {
		if *req.DurationMinutes <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_duration")
			return
		}
		updates["duration_minutes"] = *req.DurationMinutes
	}
	if req.Priority != nil {
		updates["priority"] = *req.Priority
	}
	if req.Completed != nil {
		updates["completed"] = *req.Completed
	}

	if len(updates) > 0 {
		if err := a.db.WithContext(r.Context()).Model(&assignment).Updates(updates).Error; err != nil {
			a.logger.Error().Err(err).Msg("update assignment failed")
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
	}

	writeJSON(w, http.StatusOK, assignment)
}

func (a *API) handleAssignmentsDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var assignment models.Assignment
	if !ownedRecord(a, w, r, chi.URLParam(r, "assignmentID"), userID, &assignment) {
		return
	}
	if err := a.db.WithContext(r.Context()).Delete(&assignment).Error; err != nil {
		a.logger.Error().Err(err).Msg("delete assignment failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Exams

type examRequest struct {
	CourseID        *string `json:"course_id"`
	Title           string  `json:"title"`
	StartsAt        string  `json:"starts_at"`
	DurationMinutes int     `json:"duration_minutes"`
	Location        string  `json:"location"`
}

func (a *API) handleExamsList(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var exams []models.Exam
	if err := a.db.WithContext(r.Context()).Where("user_id = ?", userID).Order("starts_at asc").Find(&exams).Error; err != nil {
		a.logger.Error().Err(err).Msg("list exams failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, exams)
}

func (a *API) handleExamsCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var req examRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title_required")
		return
	}
	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_starts_at")
		return
	}
	if req.DurationMinutes <= 0 {
		req.DurationMinutes = 120
	}

	exam := models.Exam{
		ID:              uuid.NewString(),
		UserID:          userID,
		CourseID:        req.CourseID,
		Title:           req.Title,
		StartsAt:        startsAt,
		DurationMinutes: req.DurationMinutes,
		Location:        req.Location,
	}
	if err := a.db.WithContext(r.Context()).Create(&exam).Error; err != nil {
		a.logger.Error().Err(err).Msg("create exam failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.invalidateTimetable(r, userID)
	writeJSON(w, http.StatusCreated, exam)
}

func (a *API) handleExamsDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var exam models.Exam
	if !ownedRecord(a, w, r, chi.URLParam(r, "examID"), userID, &exam) {
		return
	}
	if err := a.db.WithContext(r.Context()).Delete(&exam).Error; err != nil {
		a.logger.Error().Err(err).Msg("delete exam failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.invalidateTimetable(r, userID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Calendar events

type calendarEventRequest struct {
	Title    string `json:"title"`
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
}

func (a *API) handleCalendarEventsList(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var calendarEvents []models.CalendarEvent
	if err := a.db.WithContext(r.Context()).Where("user_id = ?", userID).Order("starts_at asc").Find(&calendarEvents).Error; err != nil {
		a.logger.Error().Err(err).Msg("list events failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, calendarEvents)
}

func (a *API) handleCalendarEventsCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var req calendarEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
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
	if !endsAt.After(startsAt) {
		writeError(w, http.StatusBadRequest, "end_before_start")
		return
	}

	event := models.CalendarEvent{
		ID:       uuid.NewString(),
		UserID:   userID,
		Title:    req.Title,
		StartsAt: startsAt,
		EndsAt:   endsAt,
		Source:   "manual",
	}
	if err := a.db.WithContext(r.Context()).Create(&event).Error; err != nil {
		a.logger.Error().Err(err).Msg("create event failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.invalidateTimetable(r, userID)
	writeJSON(w, http.StatusCreated, event)
}

func (a *API) handleCalendarEventsDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var event models.CalendarEvent
	if !ownedRecord(a, w, r, chi.URLParam(r, "eventID"), userID, &event) {
		return
	}
	if err := a.db.WithContext(r.Context()).Delete(&event).Error; err != nil {
		a.logger.Error().Err(err).Msg("delete event failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.invalidateTimetable(r, userID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Holiday periods

type holidayRequest struct {
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (a *API) handleHolidaysList(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var holidays []models.HolidayPeriod
	if err := a.db.WithContext(r.Context()).Where("user_id = ?", userID).Order("start_date asc").Find(&holidays).Error; err != nil {
		a.logger.Error().Err(err).Msg("list holidays failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, holidays)
}

func (a *API) handleHolidaysCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var req holidayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_date")
		return
	}
	endDate, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end_date")
		return
	}
	if endDate.Before(startDate) {
		writeError(w, http.StatusBadRequest, "end_before_start")
		return
	}

	holiday := models.HolidayPeriod{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      req.Name,
		StartDate: startDate,
		EndDate:   endDate,
	}
	if err := a.db.WithContext(r.Context()).Create(&holiday).Error; err != nil {
		a.logger.Error().Err(err).Msg("create holiday failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.invalidateTimetable(r, userID)
	writeJSON(w, http.StatusCreated, holiday)
}

func (a *API) handleHolidaysDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var holiday models.HolidayPeriod
	if !ownedRecord(a, w, r, chi.URLParam(r, "holidayID"), userID, &holiday) {
		return
	}
	if err := a.db.WithContext(r.Context()).Delete(&holiday).Error; err != nil {
		a.logger.Error().Err(err).Msg("delete holiday failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.invalidateTimetable(r, userID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
