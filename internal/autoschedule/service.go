/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package autoschedule runs the background loop that turns unscheduled
// work into placed study sessions.
package autoschedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/semestra/semestra/internal/events"
	"github.com/semestra/semestra/internal/leadership"
	"github.com/semestra/semestra/internal/models"
	"github.com/semestra/semestra/internal/planner"
	"github.com/semestra/semestra/internal/sessions"
	"github.com/semestra/semestra/internal/telemetry"
	"github.com/semestra/semestra/internal/timetable"
)

// ErrExamNotFound is returned when a study plan targets a missing exam.
var ErrExamNotFound = errors.New("exam not found")

// Service orchestrates automatic session placement.
type Service struct {
	db       *gorm.DB
	provider *timetable.Provider
	sink     *sessions.Sink
	bus      sessions.Publisher
	logger   zerolog.Logger

	interval time.Duration
	horizon  time.Duration
	now      planner.Clock

	election *leadership.Election
}

// New constructs the auto-schedule service.
func New(db *gorm.DB, provider *timetable.Provider, sink *sessions.Sink, bus sessions.Publisher, interval, horizon time.Duration, logger zerolog.Logger) *Service {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if horizon <= 0 {
		horizon = 14 * 24 * time.Hour
	}
	return &Service{
		db:       db,
		provider: provider,
		sink:     sink,
		bus:      bus,
		logger:   logger.With().Str("component", "autoschedule").Logger(),
		interval: interval,
		horizon:  horizon,
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(clock planner.Clock) {
	s.now = clock
}

// SetElection gates ticks behind distributed leadership.
func (s *Service) SetElection(election *leadership.Election) {
	s.election = election
}

// Run executes the auto-schedule loop until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("auto-schedule loop started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("auto-schedule loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one pass over every user with pending work. A failing user
// does not stop the others.
func (s *Service) Tick(ctx context.Context) {
	if s.election != nil && !s.election.IsLeader() {
		return
	}

	telemetry.AutoScheduleTicksTotal.Inc()

	userIDs, err := s.pendingUserIDs(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("auto-schedule failed to load users")
		telemetry.AutoScheduleErrorsTotal.WithLabelValues("", "load_users").Inc()
		return
	}

	for _, userID := range userIDs {
		placed, err := s.ScheduleUser(ctx, userID)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("user scheduling failed")
			telemetry.AutoScheduleErrorsTotal.WithLabelValues(userID, "schedule_user").Inc()
			continue
		}
		if placed > 0 {
			s.logger.Info().Str("user_id", userID).Int("placed", placed).Msg("auto-scheduled study sessions")
		}
	}
}

// pendingUserIDs returns users holding incomplete assignments.
func (s *Service) pendingUserIDs(ctx context.Context) ([]string, error) {
	var userIDs []string
	err := s.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("completed = ?", false).
		Distinct().
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, fmt.Errorf("load pending users: %w", err)
	}
	return userIDs, nil
}

// ScheduleUser places sessions for every unscheduled assignment of the
// user, packed sequentially from now. Returns the number of sessions
// placed.
func (s *Service) ScheduleUser(ctx context.Context, userID string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "autoschedule", "ScheduleUser")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{"user_id": userID})

	startTime := s.now()
	defer func() {
		telemetry.ScheduleBuildDuration.WithLabelValues("auto_schedule").Observe(time.Since(startTime).Seconds())
	}()

	assignments, err := s.unscheduledAssignments(ctx, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}
	if len(assignments) == 0 {
		return 0, nil
	}

	constraints, err := s.provider.Constraints(ctx, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}

	now := s.now()
	busy, err := s.provider.BusyIntervals(ctx, userID, now, now.Add(s.horizon))
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}

	tasks := make([]planner.Task, 0, len(assignments))
	titles := make(map[string]string, len(assignments))
	for _, a := range assignments {
		due := a.DueBy
		tasks = append(tasks, planner.Task{
			ID:              a.ID,
			Title:           a.Title,
			DurationMinutes: a.DurationMinutes,
			DueBy:           &due,
			Priority:        a.Priority,
		})
		titles[a.ID] = a.Title
	}

	placements, err := planner.ScheduleSequentially(tasks, busy, now, constraints)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, fmt.Errorf("schedule assignments: %w", err)
	}

	placed := make([]sessions.PlacedSession, 0, len(placements))
	for _, p := range placements {
		placed = append(placed, sessions.PlacedSession{
			TaskType: "assignment",
			TaskID:   p.TaskID,
			Title:    titles[p.TaskID],
			Interval: p.Interval,
			Source:   models.SessionSourceAutoSchedule,
		})
	}

	if _, err := s.sink.Record(ctx, userID, placed); err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}

	telemetry.AutoScheduleSessionsTotal.Add(float64(len(placed)))
	if s.bus != nil {
		s.bus.Publish(events.EventAutoScheduleRun, events.Payload{
			"user_id": userID,
			"placed":  len(placed),
		})
	}

	return len(placed), nil
}

// unscheduledAssignments returns the user's incomplete assignments that
// have no session yet, most urgent first.
func (s *Service) unscheduledAssignments(ctx context.Context, userID string) ([]models.Assignment, error) {
	var assignments []models.Assignment
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND completed = ?", userID, false).
		Order("due_by asc, priority desc").
		Find(&assignments).Error
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}

	out := assignments[:0]
	for _, a := range assignments {
		has, err := s.sink.HasSessionsForTask(ctx, userID, "assignment", a.ID)
		if err != nil {
			return nil, err
		}
		if !has {
			out = append(out, a)
		}
	}
	return out, nil
}

// PlanExam spreads study sessions across the runway before an exam.
// Zero sessionCount or sessionMinutes fall back to the user's defaults.
func (s *Service) PlanExam(ctx context.Context, userID, examID string, sessionCount, sessionMinutes int) ([]models.StudySession, error) {
	ctx, span := telemetry.StartSpan(ctx, "autoschedule", "PlanExam")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{"user_id": userID, "exam_id": examID})

	startTime := s.now()
	defer func() {
		telemetry.ScheduleBuildDuration.WithLabelValues("study_plan").Observe(time.Since(startTime).Seconds())
	}()

	var exam models.Exam
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", examID, userID).First(&exam).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load exam: %w", err)
	}

	settings, err := s.provider.Settings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sessionCount <= 0 {
		sessionCount = settings.DefaultSessionsPerExam
	}
	if sessionMinutes <= 0 {
		sessionMinutes = settings.DefaultSessionMinutes
	}

	constraints := planner.Constraints{
		WorkStartHour: settings.WorkStartHour,
		WorkEndHour:   settings.WorkEndHour,
	}

	now := s.now()
	horizonEnd := exam.StartsAt
	if horizonEnd.Before(now) {
		horizonEnd = now.Add(s.horizon)
	}
	busy, err := s.provider.BusyIntervals(ctx, userID, now, horizonEnd.Add(s.horizon))
	if err != nil {
		return nil, err
	}

	placements, err := planner.BuildStudyPlan(planner.StudyPlanRequest{
		TaskID:         exam.ID,
		Title:          exam.Title,
		DueBy:          exam.StartsAt,
		SessionMinutes: sessionMinutes,
		Sessions:       sessionCount,
	}, busy, now, constraints)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("build study plan: %w", err)
	}

	placed := make([]sessions.PlacedSession, 0, len(placements))
	for _, p := range placements {
		placed = append(placed, sessions.PlacedSession{
			TaskType: "exam",
			TaskID:   exam.ID,
			Title:    exam.Title,
			Interval: p.Interval,
			Source:   models.SessionSourceStudyPlan,
		})
	}

	records, err := s.sink.Record(ctx, userID, placed)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if s.bus != nil {
		s.bus.Publish(events.EventPlanCreated, events.Payload{
			"user_id": userID,
			"exam_id": exam.ID,
			"placed":  len(records),
		})
	}

	return records, nil
}
