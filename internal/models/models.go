/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package models defines the persistent domain records.
package models

import (
	"time"
)

// User is an account in the planner.
type User struct {
	ID           string `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	DisplayName  string `json:"display_name"`
	PasswordHash string `gorm:"not null" json:"-"`
	Timezone     string `gorm:"type:varchar(64);default:'UTC'" json:"timezone"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlannerSettings holds per-user scheduling preferences. The working
// window defaults match the planner's: 08:00–21:00.
type PlannerSettings struct {
	ID     string `gorm:"type:uuid;primaryKey" json:"id"`
	UserID string `gorm:"type:uuid;uniqueIndex:idx_planner_settings_user;not null" json:"user_id"`

	WorkStartHour int `gorm:"not null;default:8" json:"work_start_hour"`
	WorkEndHour   int `gorm:"not null;default:21" json:"work_end_hour"`

	// Default study session shape used when a plan request does not
	// specify its own.
	DefaultSessionMinutes  int `gorm:"not null;default:60" json:"default_session_minutes"`
	DefaultSessionsPerExam int `gorm:"not null;default:3" json:"default_sessions_per_exam"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (PlannerSettings) TableName() string {
	return "planner_settings"
}

// Course groups assignments, exams and weekly meetings.
type Course struct {
	ID     string `gorm:"type:uuid;primaryKey" json:"id"`
	UserID string `gorm:"type:uuid;index:idx_courses_user;not null" json:"user_id"`

	Name     string `gorm:"not null" json:"name"`
	Code     string `gorm:"type:varchar(32)" json:"code,omitempty"`
	Color    string `gorm:"type:varchar(16)" json:"color,omitempty"`
	Location string `json:"location,omitempty"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CourseMeeting is a recurring weekly block: lectures, labs, tutorials.
// DayOfWeek follows time.Weekday (0=Sunday). The window uses HH:MM
// strings so meetings stay wall-clock stable across DST shifts.
type CourseMeeting struct {
	ID       string `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID string `gorm:"type:uuid;index:idx_course_meetings_course;not null" json:"course_id"`
	UserID   string `gorm:"type:uuid;index:idx_course_meetings_user;not null" json:"user_id"`

	DayOfWeek int    `gorm:"not null" json:"day_of_week"`
	StartTime string `gorm:"type:varchar(5);not null" json:"start_time"` // HH:MM
	EndTime   string `gorm:"type:varchar(5);not null" json:"end_time"`   // HH:MM

	// Optional bounds on the recurrence; zero values mean "whole range".
	FirstWeek *time.Time `gorm:"type:date" json:"first_week,omitempty"`
	LastWeek  *time.Time `gorm:"type:date" json:"last_week,omitempty"`

	Course *Course `gorm:"foreignKey:CourseID" json:"course,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (CourseMeeting) TableName() string {
	return "course_meetings"
}

// Assignment is a task with a deadline. Unscheduled overdue assignments
// are what the auto-schedule loop picks up.
type Assignment struct {
	ID       string  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   string  `gorm:"type:uuid;index:idx_assignments_user;not null" json:"user_id"`
	CourseID *string `gorm:"type:uuid;index" json:"course_id,omitempty"`

	Title           string    `gorm:"not null" json:"title"`
	Notes           string    `gorm:"type:text" json:"notes,omitempty"`
	DueBy           time.Time `gorm:"index" json:"due_by"`
	DurationMinutes int       `gorm:"not null;default:60" json:"duration_minutes"`
	Priority        int       `gorm:"not null;default:0" json:"priority"`
	Completed       bool      `gorm:"not null;default:false;index" json:"completed"`

	Course *Course `gorm:"foreignKey:CourseID" json:"course,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Exam is a dated exam that study sessions are generated ahead of.
type Exam struct {
	ID       string  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   string  `gorm:"type:uuid;index:idx_exams_user;not null" json:"user_id"`
	CourseID *string `gorm:"type:uuid;index" json:"course_id,omitempty"`

	Title           string    `gorm:"not null" json:"title"`
	StartsAt        time.Time `gorm:"index" json:"starts_at"`
	DurationMinutes int       `gorm:"not null;default:120" json:"duration_minutes"`
	Location        string    `json:"location,omitempty"`

	Course *Course `gorm:"foreignKey:CourseID" json:"course,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CalendarEvent is a one-off busy block imported or entered by the user:
// appointments, society meetings, synced calendar entries.
type CalendarEvent struct {
	ID     string `gorm:"type:uuid;primaryKey" json:"id"`
	UserID string `gorm:"type:uuid;index:idx_calendar_events_user;not null" json:"user_id"`

	Title    string    `json:"title"`
	StartsAt time.Time `gorm:"index" json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Source   string    `gorm:"type:varchar(32);default:'manual'" json:"source"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (CalendarEvent) TableName() string {
	return "calendar_events"
}

// HolidayPeriod is a date range with no recurring meetings (reading week,
// semester break). Weekly meeting expansion skips days inside it.
type HolidayPeriod struct {
	ID     string `gorm:"type:uuid;primaryKey" json:"id"`
	UserID string `gorm:"type:uuid;index:idx_holiday_periods_user;not null" json:"user_id"`

	Name      string    `json:"name"`
	StartDate time.Time `gorm:"type:date;not null" json:"start_date"`
	EndDate   time.Time `gorm:"type:date;not null" json:"end_date"` // inclusive

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (HolidayPeriod) TableName() string {
	return "holiday_periods"
}

// Covers reports whether the given day falls inside the holiday.
func (h HolidayPeriod) Covers(day time.Time) bool {
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	start := time.Date(h.StartDate.Year(), h.StartDate.Month(), h.StartDate.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(h.EndDate.Year(), h.EndDate.Month(), h.EndDate.Day(), 0, 0, 0, 0, time.UTC)
	return !d.Before(start) && !d.After(end)
}

// StudySessionSource identifies what produced a session.
type StudySessionSource string

const (
	SessionSourceManual       StudySessionSource = "manual"
	SessionSourceAutoSchedule StudySessionSource = "auto_schedule"
	SessionSourceStudyPlan    StudySessionSource = "study_plan"
)

// StudySession is a placed block of work: the planner's durable output.
type StudySession struct {
	ID     string `gorm:"type:uuid;primaryKey" json:"id"`
	UserID string `gorm:"type:uuid;index:idx_study_sessions_user;not null" json:"user_id"`

	// What this session works toward: an assignment or an exam.
	TaskType string `gorm:"type:varchar(16);not null" json:"task_type"` // "assignment" | "exam"
	TaskID   string `gorm:"type:uuid;index;not null" json:"task_id"`

	Title    string             `json:"title"`
	StartsAt time.Time          `gorm:"index" json:"starts_at"`
	EndsAt   time.Time          `json:"ends_at"`
	Source   StudySessionSource `gorm:"type:varchar(32);not null;default:'manual'" json:"source"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (StudySession) TableName() string {
	return "study_sessions"
}
