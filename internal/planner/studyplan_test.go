/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"errors"
	"testing"
	"time"

	"github.com/semestra/semestra/internal/interval"
)

func TestBuildStudyPlan_SpreadsAcrossDays(t *testing.T) {
	now := at(t, "2024-01-01T08:00")
	req := StudyPlanRequest{
		TaskID:         "exam-1",
		Title:          "Calculus midterm",
		DueBy:          at(t, "2024-01-07T09:00"),
		SessionMinutes: 90,
		Sessions:       3,
	}

	placements, err := BuildStudyPlan(req, interval.NewBusySet(nil), now, DefaultConstraints())
	if err != nil {
		t.Fatalf("BuildStudyPlan: %v", err)
	}
	if len(placements) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(placements))
	}

	// Six days of runway for three sessions: days 0, 2 and 4.
	wantStarts := []time.Time{
		at(t, "2024-01-01T08:00"),
		at(t, "2024-01-03T08:00"),
		at(t, "2024-01-05T08:00"),
	}
	for i, placement := range placements {
		if !placement.Interval.Start.Equal(wantStarts[i]) {
			t.Errorf("session %d start = %v, want %v", i, placement.Interval.Start, wantStarts[i])
		}
		if placement.TaskID != "exam-1" {
			t.Errorf("session %d task = %q", i, placement.TaskID)
		}
	}
}

func TestBuildStudyPlan_SessionsAvoidEachOtherOnSameDay(t *testing.T) {
	// Deadline tomorrow: all sessions land today and must not collide.
	now := at(t, "2024-01-01T08:00")
	req := StudyPlanRequest{
		TaskID:         "exam-2",
		DueBy:          at(t, "2024-01-02T09:00"),
		SessionMinutes: 60,
		Sessions:       3,
	}

	placements, err := BuildStudyPlan(req, interval.NewBusySet(nil), now, DefaultConstraints())
	if err != nil {
		t.Fatalf("BuildStudyPlan: %v", err)
	}
	for i := 0; i < len(placements); i++ {
		for j := i + 1; j < len(placements); j++ {
			if placements[i].Interval.Overlaps(placements[j].Interval) {
				t.Errorf("sessions %d and %d overlap: %v vs %v", i, j, placements[i].Interval, placements[j].Interval)
			}
		}
	}
}

func TestBuildStudyPlan_RespectsExistingCommitments(t *testing.T) {
	now := at(t, "2024-01-01T08:00")
	busy := interval.NewBusySet([]interval.Interval{
		{Start: at(t, "2024-01-01T08:00"), End: at(t, "2024-01-01T12:00")},
	})
	req := StudyPlanRequest{
		TaskID:         "exam-3",
		DueBy:          at(t, "2024-01-02T09:00"),
		SessionMinutes: 60,
		Sessions:       1,
	}

	placements, err := BuildStudyPlan(req, busy, now, DefaultConstraints())
	if err != nil {
		t.Fatalf("BuildStudyPlan: %v", err)
	}
	if want := at(t, "2024-01-01T12:00"); !placements[0].Interval.Start.Equal(want) {
		t.Fatalf("session start = %v, want %v", placements[0].Interval.Start, want)
	}
	if busy.Len() != 1 {
		t.Fatalf("caller's busy set mutated: %d intervals", busy.Len())
	}
}

func TestBuildStudyPlan_RejectsBadRequests(t *testing.T) {
	now := at(t, "2024-01-01T08:00")

	_, err := BuildStudyPlan(StudyPlanRequest{Sessions: 0, SessionMinutes: 60, DueBy: now.AddDate(0, 0, 3)}, nil, now, DefaultConstraints())
	if !errors.Is(err, ErrInvalidSessionCount) {
		t.Fatalf("expected ErrInvalidSessionCount, got %v", err)
	}

	_, err = BuildStudyPlan(StudyPlanRequest{Sessions: 2, SessionMinutes: 0, DueBy: now.AddDate(0, 0, 3)}, nil, now, DefaultConstraints())
	if !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
}
