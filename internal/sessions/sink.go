/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sessions persists planner output. Every placed block of work
// flows through the Sink so that cache invalidation and event fan-out
// happen in one place.
package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/semestra/semestra/internal/cache"
	"github.com/semestra/semestra/internal/events"
	"github.com/semestra/semestra/internal/interval"
	"github.com/semestra/semestra/internal/models"
)

// Publisher is the event fan-out the sink notifies after writes.
type Publisher interface {
	Publish(eventType events.EventType, payload events.Payload)
}

// PlacedSession describes one block the planner decided on.
type PlacedSession struct {
	TaskType string // "assignment" | "exam"
	TaskID   string
	Title    string
	Interval interval.Interval
	Source   models.StudySessionSource
}

// Sink writes study sessions and keeps caches and subscribers in sync.
type Sink struct {
	db     *gorm.DB
	bus    Publisher
	cache  *cache.Cache
	logger zerolog.Logger
}

// NewSink creates a session sink. Bus and cache may be nil.
func NewSink(database *gorm.DB, bus Publisher, c *cache.Cache, logger zerolog.Logger) *Sink {
	return &Sink{
		db:     database,
		bus:    bus,
		cache:  c,
		logger: logger.With().Str("component", "sessions").Logger(),
	}
}

// Record persists a batch of placed sessions atomically.
func (s *Sink) Record(ctx context.Context, userID string, placed []PlacedSession) ([]models.StudySession, error) {
	if len(placed) == 0 {
		return nil, nil
	}

	records := make([]models.StudySession, 0, len(placed))
	for _, p := range placed {
		if !p.Interval.Valid() {
			return nil, fmt.Errorf("session for task %s has invalid interval %s", p.TaskID, p.Interval)
		}
		records = append(records, models.StudySession{
			ID:       uuid.NewString(),
			UserID:   userID,
			TaskType: p.TaskType,
			TaskID:   p.TaskID,
			Title:    p.Title,
			StartsAt: p.Interval.Start,
			EndsAt:   p.Interval.End,
			Source:   p.Source,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&records).Error
	})
	if err != nil {
		return nil, fmt.Errorf("persist study sessions: %w", err)
	}

	s.invalidate(ctx, userID)

	for _, record := range records {
		s.publish(events.EventSessionCreated, events.Payload{
			"user_id":    userID,
			"session_id": record.ID,
			"task_type":  record.TaskType,
			"task_id":    record.TaskID,
			"starts_at":  record.StartsAt,
			"ends_at":    record.EndsAt,
			"source":     string(record.Source),
		})
	}
	s.publish(events.EventScheduleUpdate, events.Payload{
		"user_id": userID,
		"count":   len(records),
	})

	s.logger.Debug().Str("user_id", userID).Int("count", len(records)).Msg("recorded study sessions")
	return records, nil
}

// Delete removes a session owned by the user.
func (s *Sink) Delete(ctx context.Context, userID, sessionID string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Delete(&models.StudySession{})
	if result.Error != nil {
		return fmt.Errorf("delete study session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	s.invalidate(ctx, userID)
	s.publish(events.EventSessionDeleted, events.Payload{
		"user_id":    userID,
		"session_id": sessionID,
	})
	s.publish(events.EventScheduleUpdate, events.Payload{
		"user_id": userID,
	})

	return nil
}

// DeleteBySource removes every session of a source for the user, used
// when a schedule is rebuilt from scratch.
func (s *Sink) DeleteBySource(ctx context.Context, userID string, source models.StudySessionSource) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND source = ?", userID, source).
		Delete(&models.StudySession{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete study sessions by source: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.invalidate(ctx, userID)
		s.publish(events.EventScheduleUpdate, events.Payload{
			"user_id": userID,
		})
	}

	return result.RowsAffected, nil
}

// ListRange returns the user's sessions overlapping [from, to) ordered
// by start time.
func (s *Sink) ListRange(ctx context.Context, userID string, from, to time.Time) ([]models.StudySession, error) {
	var out []models.StudySession
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND starts_at < ? AND ends_at > ?", userID, to, from).
		Order("starts_at asc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list study sessions: %w", err)
	}
	return out, nil
}

// HasSessionsForTask reports whether any session exists for the task.
func (s *Sink) HasSessionsForTask(ctx context.Context, userID, taskType, taskID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.StudySession{}).
		Where("user_id = ? AND task_type = ? AND task_id = ?", userID, taskType, taskID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count task sessions: %w", err)
	}
	return count > 0, nil
}

func (s *Sink) invalidate(ctx context.Context, userID string) {
	if err := s.cache.InvalidateBusyWindows(ctx, userID); err != nil {
		s.logger.Debug().Err(err).Str("user_id", userID).Msg("failed to invalidate busy windows")
	}
}

func (s *Sink) publish(eventType events.EventType, payload events.Payload) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventType, payload)
}
