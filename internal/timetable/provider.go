/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package timetable

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/semestra/semestra/internal/cache"
	"github.com/semestra/semestra/internal/interval"
	"github.com/semestra/semestra/internal/models"
	"github.com/semestra/semestra/internal/planner"
)

// Provider loads a user's busy windows and planner settings from the
// database, with an optional Redis cache in front.
type Provider struct {
	db     *gorm.DB
	cache  *cache.Cache
	logger zerolog.Logger
}

// NewProvider creates a timetable provider. The cache may be nil.
func NewProvider(database *gorm.DB, c *cache.Cache, logger zerolog.Logger) *Provider {
	return &Provider{
		db:     database,
		cache:  c,
		logger: logger.With().Str("component", "timetable").Logger(),
	}
}

// BusyIntervals returns every busy interval for the user within
// [from, to): expanded course meetings, calendar events, exams, and
// already placed study sessions.
func (p *Provider) BusyIntervals(ctx context.Context, userID string, from, to time.Time) (*interval.BusySet, error) {
	if !to.After(from) {
		return interval.NewBusySet(nil), nil
	}

	if cached, ok := p.cache.GetBusyWindows(ctx, userID, from, to); ok {
		set := interval.NewBusySet(nil)
		for _, w := range cached.Windows {
			if clipped, ok := (interval.Interval{Start: w.Start, End: w.End}).Clip(from, to); ok {
				set.Insert(clipped)
			}
		}
		return set, nil
	}

	set, err := p.collectBusyIntervals(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	windows := make([]cache.CachedWindow, 0, set.Len())
	for _, iv := range set.Intervals() {
		windows = append(windows, cache.CachedWindow{Start: iv.Start, End: iv.End})
	}
	if err := p.cache.SetBusyWindows(ctx, userID, &cache.CachedBusyWindows{
		From:    from,
		To:      to,
		Windows: windows,
	}); err != nil {
		p.logger.Debug().Err(err).Str("user_id", userID).Msg("failed to cache busy windows")
	}

	return set, nil
}

func (p *Provider) collectBusyIntervals(ctx context.Context, userID string, from, to time.Time) (*interval.BusySet, error) {
	set := interval.NewBusySet(nil)

	var holidays []models.HolidayPeriod
	if err := p.db.WithContext(ctx).
		Where("user_id = ? AND start_date < ? AND end_date >= ?", userID, to, from.AddDate(0, 0, -1)).
		Find(&holidays).Error; err != nil {
		return nil, fmt.Errorf("load holiday periods: %w", err)
	}

	var meetings []models.CourseMeeting
	if err := p.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&meetings).Error; err != nil {
		return nil, fmt.Errorf("load course meetings: %w", err)
	}
	for _, meeting := range meetings {
		blocks, err := ExpandMeeting(meeting, from, to, holidays)
		if err != nil {
			// A malformed meeting must not sink the whole timetable.
			p.logger.Warn().Err(err).Str("meeting_id", meeting.ID).Msg("skipping unexpandable meeting")
			continue
		}
		for _, block := range blocks {
			set.Insert(block)
		}
	}

	var events []models.CalendarEvent
	if err := p.db.WithContext(ctx).
		Where("user_id = ? AND starts_at < ? AND ends_at > ?", userID, to, from).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("load calendar events: %w", err)
	}
	for _, event := range events {
		if clipped, ok := (interval.Interval{Start: event.StartsAt, End: event.EndsAt}).Clip(from, to); ok {
			set.Insert(clipped)
		}
	}

	// Exam end times are derived from duration, so overlap filtering
	// happens here rather than in SQL. A day of slack on the lower
	// bound covers any plausible exam length.
	var exams []models.Exam
	if err := p.db.WithContext(ctx).
		Where("user_id = ? AND starts_at < ? AND starts_at > ?", userID, to, from.AddDate(0, 0, -1)).
		Find(&exams).Error; err != nil {
		return nil, fmt.Errorf("load exams: %w", err)
	}
	for _, exam := range exams {
		end := exam.StartsAt.Add(time.Duration(exam.DurationMinutes) * time.Minute)
		if clipped, ok := (interval.Interval{Start: exam.StartsAt, End: end}).Clip(from, to); ok {
			set.Insert(clipped)
		}
	}

	var sessions []models.StudySession
	if err := p.db.WithContext(ctx).
		Where("user_id = ? AND starts_at < ? AND ends_at > ?", userID, to, from).
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("load study sessions: %w", err)
	}
	for _, session := range sessions {
		if clipped, ok := (interval.Interval{Start: session.StartsAt, End: session.EndsAt}).Clip(from, to); ok {
			set.Insert(clipped)
		}
	}

	return set, nil
}

// cachedSettings snapshots a settings row for the cache.
func cachedSettings(s models.PlannerSettings) *cache.CachedPlannerSettings {
	return &cache.CachedPlannerSettings{
		ID:                     s.ID,
		UserID:                 s.UserID,
		WorkStartHour:          s.WorkStartHour,
		WorkEndHour:            s.WorkEndHour,
		DefaultSessionMinutes:  s.DefaultSessionMinutes,
		DefaultSessionsPerExam: s.DefaultSessionsPerExam,
		CreatedAt:              s.CreatedAt,
	}
}

// settingsFromCache rebuilds the row from a cache snapshot. The primary
// key rides along so the result can be mutated and saved in place.
func settingsFromCache(c *cache.CachedPlannerSettings) models.PlannerSettings {
	return models.PlannerSettings{
		ID:                     c.ID,
		UserID:                 c.UserID,
		WorkStartHour:          c.WorkStartHour,
		WorkEndHour:            c.WorkEndHour,
		DefaultSessionMinutes:  c.DefaultSessionMinutes,
		DefaultSessionsPerExam: c.DefaultSessionsPerExam,
		CreatedAt:              c.CreatedAt,
	}
}

// Settings returns the user's planner settings, creating the default
// record on first access.
func (p *Provider) Settings(ctx context.Context, userID string) (models.PlannerSettings, error) {
	if cached, ok := p.cache.GetPlannerSettings(ctx, userID); ok && cached.ID != "" {
		return settingsFromCache(cached), nil
	}

	var settings models.PlannerSettings
	err := p.db.WithContext(ctx).Where("user_id = ?", userID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settings = models.PlannerSettings{
			ID:                     uuid.NewString(),
			UserID:                 userID,
			WorkStartHour:          planner.DefaultConstraints().WorkStartHour,
			WorkEndHour:            planner.DefaultConstraints().WorkEndHour,
			DefaultSessionMinutes:  60,
			DefaultSessionsPerExam: 3,
		}
		if err := p.db.WithContext(ctx).Create(&settings).Error; err != nil {
			return models.PlannerSettings{}, fmt.Errorf("create default planner settings: %w", err)
		}
	} else if err != nil {
		return models.PlannerSettings{}, fmt.Errorf("load planner settings: %w", err)
	}

	if err := p.cache.SetPlannerSettings(ctx, cachedSettings(settings)); err != nil {
		p.logger.Debug().Err(err).Str("user_id", userID).Msg("failed to cache planner settings")
	}

	return settings, nil
}

// Constraints resolves the user's working window for the planner.
func (p *Provider) Constraints(ctx context.Context, userID string) (planner.Constraints, error) {
	settings, err := p.Settings(ctx, userID)
	if err != nil {
		return planner.Constraints{}, err
	}
	return planner.Constraints{
		WorkStartHour: settings.WorkStartHour,
		WorkEndHour:   settings.WorkEndHour,
	}, nil
}
