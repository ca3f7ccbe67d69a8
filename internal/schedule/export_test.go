/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/semestra/semestra/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.AutoMigrate(
		&models.User{},
		&models.CalendarEvent{},
		&models.Exam{},
		&models.StudySession{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return database
}

func at(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02T15:04", value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return parsed
}

func TestExportToICal(t *testing.T) {
	database := setupTestDB(t)
	service := NewExportService(database, zerolog.Nop())
	userID := uuid.NewString()

	if err := database.Create(&models.User{
		ID:          userID,
		Email:       "ada@example.edu",
		DisplayName: "Ada",
	}).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := database.Create(&models.StudySession{
		ID:       uuid.NewString(),
		UserID:   userID,
		TaskType: "assignment",
		TaskID:   uuid.NewString(),
		Title:    "essay; draft, one",
		StartsAt: at(t, "2024-01-02T09:00"),
		EndsAt:   at(t, "2024-01-02T10:00"),
		Source:   models.SessionSourceAutoSchedule,
	}).Error; err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := database.Create(&models.Exam{
		ID:              uuid.NewString(),
		UserID:          userID,
		Title:           "algorithms final",
		StartsAt:        at(t, "2024-01-03T09:00"),
		DurationMinutes: 120,
	}).Error; err != nil {
		t.Fatalf("create exam: %v", err)
	}

	result, err := service.ExportToICal(context.Background(), userID, at(t, "2024-01-01T00:00"), at(t, "2024-01-08T00:00"))
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	content := string(result.Data)
	if !strings.HasPrefix(content, "BEGIN:VCALENDAR\r\n") || !strings.HasSuffix(content, "END:VCALENDAR\r\n") {
		t.Fatalf("malformed calendar envelope:\n%s", content)
	}
	if got := strings.Count(content, "BEGIN:VEVENT"); got != 2 {
		t.Fatalf("expected 2 events, got %d", got)
	}
	if !strings.Contains(content, "SUMMARY:essay\\; draft\\, one") {
		t.Errorf("summary not escaped:\n%s", content)
	}
	if !strings.Contains(content, "DTSTART:20240102T090000Z") {
		t.Errorf("missing session start:\n%s", content)
	}
	// Exam end derives from its duration.
	if !strings.Contains(content, "DTEND:20240103T110000Z") {
		t.Errorf("missing exam end:\n%s", content)
	}
	if result.Filename != "ada-planner-2024-01-01-to-2024-01-08.ics" {
		t.Errorf("unexpected filename %s", result.Filename)
	}
}

func TestExportExcludesOutOfRange(t *testing.T) {
	database := setupTestDB(t)
	service := NewExportService(database, zerolog.Nop())
	userID := uuid.NewString()

	if err := database.Create(&models.User{ID: userID, Email: "b@example.edu"}).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := database.Create(&models.StudySession{
		ID:       uuid.NewString(),
		UserID:   userID,
		TaskType: "assignment",
		TaskID:   uuid.NewString(),
		StartsAt: at(t, "2024-02-01T09:00"),
		EndsAt:   at(t, "2024-02-01T10:00"),
		Source:   models.SessionSourceManual,
	}).Error; err != nil {
		t.Fatalf("create session: %v", err)
	}

	result, err := service.ExportToICal(context.Background(), userID, at(t, "2024-01-01T00:00"), at(t, "2024-01-08T00:00"))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if strings.Contains(string(result.Data), "BEGIN:VEVENT") {
		t.Fatal("expected no events in range")
	}
}

func TestImportFromICal(t *testing.T) {
	database := setupTestDB(t)
	service := NewExportService(database, zerolog.Nop())
	userID := uuid.NewString()

	ical := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"BEGIN:VEVENT",
		"UID:abc@elsewhere",
		"SUMMARY:Society meeting",
		"DTSTART:20240102T180000Z",
		"DTEND:20240102T200000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"SUMMARY:No times",
		"END:VEVENT",
		"END:VCALENDAR",
	}, "\r\n")

	result, err := service.ImportFromICal(context.Background(), userID, strings.NewReader(ical))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Imported != 1 || result.Skipped != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	var event models.CalendarEvent
	if err := database.Where("user_id = ?", userID).First(&event).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if event.Title != "Society meeting" || event.Source != "ical_import" {
		t.Fatalf("unexpected event: %+v", event)
	}

	// Re-importing the same feed must not duplicate.
	again, err := service.ImportFromICal(context.Background(), userID, strings.NewReader(ical))
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if again.Imported != 0 {
		t.Fatalf("expected duplicate events to be skipped, imported %d", again.Imported)
	}
}
