/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package importer pulls courses, timetable slots, coursework, and exam
// sittings out of a legacy campus Postgres database and loads them into
// a Semestra account.
package importer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/semestra/semestra/internal/models"
	"github.com/semestra/semestra/internal/timetable"
)

// Options controls import behavior.
type Options struct {
	// DryRun walks the legacy data without writing anything.
	DryRun bool

	// SkipCoursework imports only courses, meetings, and exams.
	SkipCoursework bool
}

// Stats accumulates import counters.
type Stats struct {
	CoursesImported     int
	MeetingsImported    int
	AssignmentsImported int
	ExamsImported       int
	ErrorsEncountered   int
}

// ProgressCallback reports import progress.
type ProgressCallback func(step, total int, message string)

// Importer handles importing from legacy campus databases.
type Importer struct {
	db       *gorm.DB
	logger   zerolog.Logger
	options  Options
	stats    Stats
	progress ProgressCallback
}

// NewImporter creates a legacy campus importer.
func NewImporter(db *gorm.DB, logger zerolog.Logger, options Options) *Importer {
	return &Importer{
		db:      db,
		logger:  logger.With().Str("component", "legacy_importer").Logger(),
		options: options,
	}
}

// SetProgressCallback sets the progress callback function.
func (i *Importer) SetProgressCallback(callback ProgressCallback) {
	i.progress = callback
}

// Import reads the legacy database at dbDSN and loads everything into
// the given user's planner.
func (i *Importer) Import(ctx context.Context, dbDSN, userID string) (*Stats, error) {
	i.logger.Info().
		Str("dsn", maskDSN(dbDSN)).
		Str("user_id", userID).
		Bool("dry_run", i.options.DryRun).
		Msg("starting legacy timetable import")

	i.reportProgress(1, 5, "Connecting to legacy database")
	legacyDB, err := sql.Open("postgres", dbDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to legacy db: %w", err)
	}
	defer legacyDB.Close()

	if err := legacyDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping legacy db: %w", err)
	}

	i.reportProgress(2, 5, "Importing courses")
	courseIDs, err := i.importCourses(ctx, legacyDB, userID)
	if err != nil {
		return nil, fmt.Errorf("import courses: %w", err)
	}

	i.reportProgress(3, 5, "Importing timetable slots")
	if err := i.importMeetings(ctx, legacyDB, userID, courseIDs); err != nil {
		return nil, fmt.Errorf("import meetings: %w", err)
	}

	if !i.options.SkipCoursework {
		i.reportProgress(4, 5, "Importing coursework")
		if err := i.importCoursework(ctx, legacyDB, userID, courseIDs); err != nil {
			return nil, fmt.Errorf("import coursework: %w", err)
		}
	}

	i.reportProgress(5, 5, "Importing exam sittings")
	if err := i.importExams(ctx, legacyDB, userID, courseIDs); err != nil {
		return nil, fmt.Errorf("import exams: %w", err)
	}

	i.logger.Info().
		Interface("stats", i.stats).
		Msg("legacy timetable import completed")

	return &i.stats, nil
}

// importCourses imports courses and returns a legacy id to new id map.
func (i *Importer) importCourses(ctx context.Context, legacyDB *sql.DB, userID string) (map[int64]string, error) {
	rows, err := legacyDB.QueryContext(ctx, `
		SELECT id, code, title, room
		FROM courses
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	courseIDs := make(map[int64]string)
	for rows.Next() {
		var legacyID int64
		var code, title string
		var room sql.NullString

		if err := rows.Scan(&legacyID, &code, &title, &room); err != nil {
			i.logger.Error().Err(err).Msg("scan course")
			i.stats.ErrorsEncountered++
			continue
		}

		course := &models.Course{
			ID:       uuid.New().String(),
			UserID:   userID,
			Name:     title,
			Code:     code,
			Location: room.String,
		}

		if !i.options.DryRun {
			if err := i.db.WithContext(ctx).Create(course).Error; err != nil {
				i.logger.Error().Err(err).Str("code", code).Msg("create course")
				i.stats.ErrorsEncountered++
				continue
			}
		}

		courseIDs[legacyID] = course.ID
		i.stats.CoursesImported++
	}

	return courseIDs, rows.Err()
}

// importMeetings imports weekly timetable slots from course_slots.
func (i *Importer) importMeetings(ctx context.Context, legacyDB *sql.DB, userID string, courseIDs map[int64]string) error {
	rows, err := legacyDB.QueryContext(ctx, `
		SELECT course_id, weekday, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI')
		FROM course_slots
		ORDER BY course_id, weekday
	`)
	if err != nil {
		return fmt.Errorf("query course slots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var legacyCourseID int64
		var weekday int
		var startClock, endClock string

		if err := rows.Scan(&legacyCourseID, &weekday, &startClock, &endClock); err != nil {
			i.logger.Error().Err(err).Msg("scan course slot")
			i.stats.ErrorsEncountered++
			continue
		}

		courseID, ok := courseIDs[legacyCourseID]
		if !ok {
			i.logger.Warn().Int64("legacy_course_id", legacyCourseID).Msg("slot references unknown course")
			i.stats.ErrorsEncountered++
			continue
		}

		if _, _, err := timetable.ParseClock(startClock); err != nil {
			i.logger.Warn().Err(err).Int64("legacy_course_id", legacyCourseID).Msg("bad slot start")
			i.stats.ErrorsEncountered++
			continue
		}
		if _, _, err := timetable.ParseClock(endClock); err != nil {
			i.logger.Warn().Err(err).Int64("legacy_course_id", legacyCourseID).Msg("bad slot end")
			i.stats.ErrorsEncountered++
			continue
		}

		meeting := &models.CourseMeeting{
			ID:        uuid.New().String(),
			CourseID:  courseID,
			UserID:    userID,
			DayOfWeek: weekday % 7,
			StartTime: startClock,
			EndTime:   endClock,
		}

		if !i.options.DryRun {
			if err := i.db.WithContext(ctx).Create(meeting).Error; err != nil {
				i.logger.Error().Err(err).Str("course_id", courseID).Msg("create meeting")
				i.stats.ErrorsEncountered++
				continue
			}
		}

		i.stats.MeetingsImported++
	}

	return rows.Err()
}

// importCoursework imports assignments from coursework.
func (i *Importer) importCoursework(ctx context.Context, legacyDB *sql.DB, userID string, courseIDs map[int64]string) error {
	rows, err := legacyDB.QueryContext(ctx, `
		SELECT course_id, title, deadline, est_minutes
		FROM coursework
		WHERE submitted = false
		ORDER BY deadline
	`)
	if err != nil {
		return fmt.Errorf("query coursework: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var legacyCourseID int64
		var title string
		var deadline sql.NullTime
		var estMinutes sql.NullInt64

		if err := rows.Scan(&legacyCourseID, &title, &deadline, &estMinutes); err != nil {
			i.logger.Error().Err(err).Msg("scan coursework")
			i.stats.ErrorsEncountered++
			continue
		}
		if !deadline.Valid {
			i.stats.ErrorsEncountered++
			continue
		}

		duration := 60
		if estMinutes.Valid && estMinutes.Int64 > 0 {
			duration = int(estMinutes.Int64)
		}

		assignment := &models.Assignment{
			ID:              uuid.New().String(),
			UserID:          userID,
			Title:           title,
			DueBy:           deadline.Time,
			DurationMinutes: duration,
		}
		if courseID, ok := courseIDs[legacyCourseID]; ok {
			assignment.CourseID = &courseID
		}

		if !i.options.DryRun {
			if err := i.db.WithContext(ctx).Create(assignment).Error; err != nil {
				i.logger.Error().Err(err).Str("title", title).Msg("create assignment")
				i.stats.ErrorsEncountered++
				continue
			}
		}

		i.stats.AssignmentsImported++
	}

	return rows.Err()
}

// importExams imports exam sittings from exam_sittings.
func (i *Importer) importExams(ctx context.Context, legacyDB *sql.DB, userID string, courseIDs map[int64]string) error {
	rows, err := legacyDB.QueryContext(ctx, `
		SELECT course_id, title, sitting_at, minutes, room
		FROM exam_sittings
		ORDER BY sitting_at
	`)
	if err != nil {
		return fmt.Errorf("query exam sittings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var legacyCourseID int64
		var title string
		var sittingAt sql.NullTime
		var minutes sql.NullInt64
		var room sql.NullString

		if err := rows.Scan(&legacyCourseID, &title, &sittingAt, &minutes, &room); err != nil {
			i.logger.Error().Err(err).Msg("scan exam sitting")
			i.stats.ErrorsEncountered++
			continue
		}
		if !sittingAt.Valid {
			i.stats.ErrorsEncountered++
			continue
		}

		duration := 120
		if minutes.Valid && minutes.Int64 > 0 {
			duration = int(minutes.Int64)
		}

		exam := &models.Exam{
			ID:              uuid.New().String(),
			UserID:          userID,
			Title:           title,
			StartsAt:        sittingAt.Time,
			DurationMinutes: duration,
			Location:        room.String,
		}
		if courseID, ok := courseIDs[legacyCourseID]; ok {
			exam.CourseID = &courseID
		}

		if !i.options.DryRun {
			if err := i.db.WithContext(ctx).Create(exam).Error; err != nil {
				i.logger.Error().Err(err).Str("title", title).Msg("create exam")
				i.stats.ErrorsEncountered++
				continue
			}
		}

		i.stats.ExamsImported++
	}

	return rows.Err()
}

func (i *Importer) reportProgress(step, total int, message string) {
	if i.progress != nil {
		i.progress(step, total, message)
	}
}

// maskDSN hides credentials in a DSN for logging.
func maskDSN(dsn string) string {
	if idx := strings.Index(dsn, "@"); idx > 0 {
		if schemeIdx := strings.Index(dsn, "://"); schemeIdx > 0 && schemeIdx < idx {
			return dsn[:schemeIdx+3] + "***" + dsn[idx:]
		}
	}
	parts := strings.Fields(dsn)
	for n, part := range parts {
		if strings.HasPrefix(part, "password=") {
			parts[n] = "password=***"
		}
	}
	return strings.Join(parts, " ")
}
