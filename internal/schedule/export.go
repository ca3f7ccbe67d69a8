/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package schedule handles calendar import and export.
package schedule

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/semestra/semestra/internal/models"
)

// ExportService handles schedule import/export.
type ExportService struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewExportService creates a new export service.
func NewExportService(db *gorm.DB, logger zerolog.Logger) *ExportService {
	return &ExportService{
		db:     db,
		logger: logger.With().Str("component", "schedule_export").Logger(),
	}
}

// ExportICalResult contains the iCal export data.
type ExportICalResult struct {
	Data        []byte
	Filename    string
	ContentType string
}

// ExportToICal exports a user's planner to iCal: study sessions, exams,
// and one-off calendar events within the range.
func (s *ExportService) ExportToICal(ctx context.Context, userID string, start, end time.Time) (*ExportICalResult, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	var studySessions []models.StudySession
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND starts_at >= ? AND starts_at < ?", userID, start, end).
		Order("starts_at ASC").
		Find(&studySessions).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch study sessions: %w", err)
	}

	var exams []models.Exam
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND starts_at >= ? AND starts_at < ?", userID, start, end).
		Order("starts_at ASC").
		Find(&exams).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch exams: %w", err)
	}

	var calendarEvents []models.CalendarEvent
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND starts_at >= ? AND starts_at < ?", userID, start, end).
		Order("starts_at ASC").
		Find(&calendarEvents).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch calendar events: %w", err)
	}

	calendarName := "Semestra"
	if user.DisplayName != "" {
		calendarName = user.DisplayName
	}

	// Build iCal
	var buf bytes.Buffer
	buf.WriteString("BEGIN:VCALENDAR\r\n")
	buf.WriteString("VERSION:2.0\r\n")
	buf.WriteString("PRODID:-//Semestra//Planner Export//EN\r\n")
	buf.WriteString(fmt.Sprintf("X-WR-CALNAME:%s Planner\r\n", escapeICalText(calendarName)))
	buf.WriteString("CALSCALE:GREGORIAN\r\n")
	buf.WriteString("METHOD:PUBLISH\r\n")

	now := time.Now()
	for _, session := range studySessions {
		summary := session.Title
		if summary == "" {
			summary = "Study session"
		}
		writeICalEvent(&buf, session.ID, now, session.StartsAt, session.EndsAt, summary, "STUDY")
	}
	for _, exam := range exams {
		end := exam.StartsAt.Add(time.Duration(exam.DurationMinutes) * time.Minute)
		writeICalEvent(&buf, exam.ID, now, exam.StartsAt, end, exam.Title, "EXAM")
	}
	for _, event := range calendarEvents {
		summary := event.Title
		if summary == "" {
			summary = "Busy"
		}
		writeICalEvent(&buf, event.ID, now, event.StartsAt, event.EndsAt, summary, "EVENT")
	}

	buf.WriteString("END:VCALENDAR\r\n")

	filename := fmt.Sprintf("%s-planner-%s-to-%s.ics",
		slugify(calendarName),
		start.Format("2006-01-02"),
		end.Format("2006-01-02"))

	return &ExportICalResult{
		Data:        buf.Bytes(),
		Filename:    filename,
		ContentType: "text/calendar; charset=utf-8",
	}, nil
}

func writeICalEvent(buf *bytes.Buffer, id string, stamp, start, end time.Time, summary, category string) {
	buf.WriteString("BEGIN:VEVENT\r\n")
	buf.WriteString(fmt.Sprintf("UID:%s@semestra\r\n", id))
	buf.WriteString(fmt.Sprintf("DTSTAMP:%s\r\n", formatICalTime(stamp)))
	buf.WriteString(fmt.Sprintf("DTSTART:%s\r\n", formatICalTime(start)))
	buf.WriteString(fmt.Sprintf("DTEND:%s\r\n", formatICalTime(end)))
	buf.WriteString(fmt.Sprintf("SUMMARY:%s\r\n", escapeICalText(summary)))
	buf.WriteString(fmt.Sprintf("CATEGORIES:%s\r\n", category))
	buf.WriteString("END:VEVENT\r\n")
}

// ImportICalResult contains the result of an iCal import.
type ImportICalResult struct {
	Imported int
	Skipped  int
	Errors   []string
}

// ImportFromICal imports events from iCal data as busy calendar blocks
// for the user.
func (s *ExportService) ImportFromICal(ctx context.Context, userID string, data io.Reader) (*ImportICalResult, error) {
	result := &ImportICalResult{}

	// Read all data
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(data); err != nil {
		return nil, fmt.Errorf("failed to read iCal data: %w", err)
	}

	content := buf.String()

	// Parse events (simple parser)
	events := parseICalEvents(content)

	for _, event := range events {
		// Check for required fields
		if event.Summary == "" || event.Start.IsZero() || event.End.IsZero() {
			result.Skipped++
			continue
		}
		if !event.End.After(event.Start) {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("invalid range for %s", event.Summary))
			continue
		}

		// Skip duplicates of earlier imports
		var existingCount int64
		s.db.WithContext(ctx).Model(&models.CalendarEvent{}).
			Where("user_id = ? AND title = ? AND starts_at = ?", userID, event.Summary, event.Start).
			Count(&existingCount)
		if existingCount > 0 {
			result.Skipped++
			continue
		}

		record := &models.CalendarEvent{
			ID:       uuid.NewString(),
			UserID:   userID,
			Title:    event.Summary,
			StartsAt: event.Start,
			EndsAt:   event.End,
			Source:   "ical_import",
		}

		if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to create event %s: %v", event.Summary, err))
			continue
		}

		result.Imported++
	}

	s.logger.Info().
		Str("user_id", userID).
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Msg("iCal import completed")

	return result, nil
}

// ICalEvent represents a parsed iCal event.
type ICalEvent struct {
	UID         string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

// parseICalEvents parses events from iCal content (simple implementation).
func parseICalEvents(content string) []ICalEvent {
	var events []ICalEvent
	var currentEvent *ICalEvent

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimSuffix(line, "\r")

		if line == "BEGIN:VEVENT" {
			currentEvent = &ICalEvent{}
		} else if line == "END:VEVENT" && currentEvent != nil {
			events = append(events, *currentEvent)
			currentEvent = nil
		} else if currentEvent != nil {
			if strings.HasPrefix(line, "UID:") {
				currentEvent.UID = strings.TrimPrefix(line, "UID:")
			} else if strings.HasPrefix(line, "SUMMARY:") {
				currentEvent.Summary = unescapeICalText(strings.TrimPrefix(line, "SUMMARY:"))
			} else if strings.HasPrefix(line, "DESCRIPTION:") {
				currentEvent.Description = unescapeICalText(strings.TrimPrefix(line, "DESCRIPTION:"))
			} else if strings.HasPrefix(line, "DTSTART:") {
				currentEvent.Start = parseICalTime(strings.TrimPrefix(line, "DTSTART:"))
			} else if strings.HasPrefix(line, "DTEND:") {
				currentEvent.End = parseICalTime(strings.TrimPrefix(line, "DTEND:"))
			}
		}
	}

	return events
}

// parseICalTime parses an iCal time string.
func parseICalTime(s string) time.Time {
	// Remove TZID if present
	if idx := strings.Index(s, ":"); idx > 0 {
		s = s[idx+1:]
	}

	// Try various formats
	formats := []string{
		"20060102T150405Z",
		"20060102T150405",
		"20060102",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}

	return time.Time{}
}

// Helper functions

func formatICalTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func escapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func unescapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\n", "\n")
	s = strings.ReplaceAll(s, "\\,", ",")
	s = strings.ReplaceAll(s, "\\;", ";")
	s = strings.ReplaceAll(s, "\\\\", "\\")
	return s
}

func slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
