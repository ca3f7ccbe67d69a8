/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/semestra/semestra/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		// Accounts
		&models.User{},
		&models.APIKey{},
		&models.PlannerSettings{},

		// Courses and commitments
		&models.Course{},
		&models.CourseMeeting{},
		&models.CalendarEvent{},
		&models.HolidayPeriod{},

		// Work items
		&models.Assignment{},
		&models.Exam{},

		// Planner output
		&models.StudySession{},
	); err != nil {
		return err
	}

	if err := applyPostgresSessionOverlapGuard(database); err != nil {
		return err
	}

	return nil
}

// applyPostgresSessionOverlapGuard installs a trigger rejecting study
// sessions that overlap an existing session for the same user. The
// planner already guarantees this; the trigger is a database-level
// backstop for postgres deployments with concurrent writers.
func applyPostgresSessionOverlapGuard(database *gorm.DB) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}

	stmt := `
CREATE OR REPLACE FUNCTION prevent_study_session_overlap()
RETURNS trigger
LANGUAGE plpgsql
AS $$
BEGIN
  IF NEW.ends_at <= NEW.starts_at THEN
    RAISE EXCEPTION 'study session end must be after start'
      USING ERRCODE = '23514';
  END IF;

  IF EXISTS (
    SELECT 1
    FROM study_sessions ss
    WHERE ss.user_id = NEW.user_id
      AND ss.id <> NEW.id
      AND tstzrange(ss.starts_at, ss.ends_at, '[)') && tstzrange(NEW.starts_at, NEW.ends_at, '[)')
  ) THEN
    RAISE EXCEPTION 'overlapping study sessions are not allowed for user %', NEW.user_id
      USING ERRCODE = '23514';
  END IF;

  RETURN NEW;
END;
$$;

DROP TRIGGER IF EXISTS trg_prevent_study_session_overlap ON study_sessions;

CREATE TRIGGER trg_prevent_study_session_overlap
BEFORE INSERT OR UPDATE OF user_id, starts_at, ends_at
ON study_sessions
FOR EACH ROW
EXECUTE FUNCTION prevent_study_session_overlap();
`
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply postgres study session overlap guard: %w", err)
	}

	return nil
}
