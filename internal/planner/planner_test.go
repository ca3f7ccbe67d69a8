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

func at(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02T15:04", value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return parsed
}

func TestFindNextAvailableSlot_WalksPastConflict(t *testing.T) {
	// Busy 09:00-10:00, searching from 08:30 for a 60-minute slot: the
	// search rounds up to 09:00, conflicts at 09:00 and 09:30, lands on
	// 10:00 which is adjacent to the busy block and therefore free.
	busy := interval.NewBusySet([]interval.Interval{
		{Start: at(t, "2024-01-01T09:00"), End: at(t, "2024-01-01T10:00")},
	})

	got, err := FindNextAvailableSlot(60*time.Minute, busy, at(t, "2024-01-01T08:30"), DefaultConstraints())
	if err != nil {
		t.Fatalf("FindNextAvailableSlot: %v", err)
	}
	if want := at(t, "2024-01-01T10:00"); !got.Equal(want) {
		t.Fatalf("slot = %v, want %v", got, want)
	}
}

func TestFindNextAvailableSlot_SnapsToWorkStart(t *testing.T) {
	got, err := FindNextAvailableSlot(30*time.Minute, interval.NewBusySet(nil), at(t, "2024-01-01T07:00"), DefaultConstraints())
	if err != nil {
		t.Fatalf("FindNextAvailableSlot: %v", err)
	}
	if want := at(t, "2024-01-01T08:00"); !got.Equal(want) {
		t.Fatalf("slot = %v, want %v", got, want)
	}
}

func TestFindNextAvailableSlot_AfterHoursRollsToNextDay(t *testing.T) {
	got, err := FindNextAvailableSlot(60*time.Minute, interval.NewBusySet(nil), at(t, "2024-01-01T21:30"), DefaultConstraints())
	if err != nil {
		t.Fatalf("FindNextAvailableSlot: %v", err)
	}
	if want := at(t, "2024-01-02T08:00"); !got.Equal(want) {
		t.Fatalf("slot = %v, want %v", got, want)
	}
}

func TestFindNextAvailableSlot_SlotMustEndInsideWorkingWindow(t *testing.T) {
	// 20:00 start with a 2-hour task would end at 22:00, past the window.
	got, err := FindNextAvailableSlot(2*time.Hour, interval.NewBusySet(nil), at(t, "2024-01-01T20:00"), DefaultConstraints())
	if err != nil {
		t.Fatalf("FindNextAvailableSlot: %v", err)
	}
	if want := at(t, "2024-01-02T08:00"); !got.Equal(want) {
		t.Fatalf("slot = %v, want %v", got, want)
	}
}

func TestFindNextAvailableSlot_HourAlignedStartIsKept(t *testing.T) {
	got, err := FindNextAvailableSlot(30*time.Minute, interval.NewBusySet(nil), at(t, "2024-01-01T09:00"), DefaultConstraints())
	if err != nil {
		t.Fatalf("FindNextAvailableSlot: %v", err)
	}
	if want := at(t, "2024-01-01T09:00"); !got.Equal(want) {
		t.Fatalf("slot = %v, want %v", got, want)
	}
}

func TestFindNextAvailableSlot_FallbackIsTomorrowNine(t *testing.T) {
	// A busy block swallowing the working window for months forces the
	// attempt bound; the result must be exactly tomorrow 09:00 relative to
	// the search start, not "start + 100 days" or the first free day.
	searchStart := at(t, "2024-01-01T08:00")
	busy := interval.NewBusySet([]interval.Interval{
		{Start: at(t, "2024-01-01T00:00"), End: at(t, "2024-12-31T00:00")},
	})

	got, err := FindNextAvailableSlot(60*time.Minute, busy, searchStart, DefaultConstraints())
	if err != nil {
		t.Fatalf("FindNextAvailableSlot: %v", err)
	}
	if want := at(t, "2024-01-02T09:00"); !got.Equal(want) {
		t.Fatalf("fallback slot = %v, want %v", got, want)
	}
}

func TestFindNextAvailableSlot_Deterministic(t *testing.T) {
	busy := interval.NewBusySet([]interval.Interval{
		{Start: at(t, "2024-01-01T09:00"), End: at(t, "2024-01-01T12:00")},
	})
	searchStart := at(t, "2024-01-01T08:15")

	first, err := FindNextAvailableSlot(45*time.Minute, busy, searchStart, DefaultConstraints())
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := FindNextAvailableSlot(45*time.Minute, busy, searchStart, DefaultConstraints())
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !first.Equal(second) {
		t.Fatalf("identical inputs produced %v then %v", first, second)
	}
}

func TestFindNextAvailableSlot_RejectsInvalidDuration(t *testing.T) {
	for _, minutes := range []time.Duration{0, -30 * time.Minute} {
		if _, err := FindNextAvailableSlot(minutes, interval.NewBusySet(nil), at(t, "2024-01-01T09:00"), DefaultConstraints()); !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("duration %v: expected ErrInvalidDuration, got %v", minutes, err)
		}
	}
}

func TestFindNextAvailableSlot_CustomWorkingWindow(t *testing.T) {
	constraints := Constraints{WorkStartHour: 10, WorkEndHour: 18}

	got, err := FindNextAvailableSlot(60*time.Minute, interval.NewBusySet(nil), at(t, "2024-01-01T08:30"), constraints)
	if err != nil {
		t.Fatalf("FindNextAvailableSlot: %v", err)
	}
	if want := at(t, "2024-01-01T10:00"); !got.Equal(want) {
		t.Fatalf("slot = %v, want %v", got, want)
	}
}

func TestScheduleSequentially_BuffersBetweenTasks(t *testing.T) {
	tasks := []Task{
		{ID: "a", Title: "Linear Algebra problem set", DurationMinutes: 60},
		{ID: "b", Title: "History reading", DurationMinutes: 60},
		{ID: "c", Title: "Chemistry lab report", DurationMinutes: 60},
	}

	placements, err := ScheduleSequentially(tasks, interval.NewBusySet(nil), at(t, "2024-01-01T09:00"), DefaultConstraints())
	if err != nil {
		t.Fatalf("ScheduleSequentially: %v", err)
	}
	if len(placements) != 3 {
		t.Fatalf("expected 3 placements, got %d", len(placements))
	}

	wantStarts := []time.Time{
		at(t, "2024-01-01T09:00"),
		at(t, "2024-01-01T10:15"),
		at(t, "2024-01-01T11:30"),
	}
	for i, placement := range placements {
		if placement.TaskID != tasks[i].ID {
			t.Errorf("placement %d task = %s, want %s", i, placement.TaskID, tasks[i].ID)
		}
		if !placement.Interval.Start.Equal(wantStarts[i]) {
			t.Errorf("placement %d start = %v, want %v", i, placement.Interval.Start, wantStarts[i])
		}
		if got := placement.Interval.Duration(); got != time.Hour {
			t.Errorf("placement %d duration = %v, want 1h", i, got)
		}
	}
}

func TestScheduleSequentially_NoOverlapInvariant(t *testing.T) {
	initial := interval.NewBusySet([]interval.Interval{
		{Start: at(t, "2024-01-01T09:00"), End: at(t, "2024-01-01T11:00")},
		{Start: at(t, "2024-01-01T13:00"), End: at(t, "2024-01-01T14:30")},
	})
	tasks := []Task{
		{ID: "a", DurationMinutes: 90},
		{ID: "b", DurationMinutes: 45},
		{ID: "c", DurationMinutes: 120},
		{ID: "d", DurationMinutes: 30},
	}

	placements, err := ScheduleSequentially(tasks, initial, at(t, "2024-01-01T08:00"), DefaultConstraints())
	if err != nil {
		t.Fatalf("ScheduleSequentially: %v", err)
	}
	if len(placements) != len(tasks) {
		t.Fatalf("expected %d placements, got %d", len(tasks), len(placements))
	}

	for i := 0; i < len(placements); i++ {
		for j := i + 1; j < len(placements); j++ {
			if placements[i].Interval.Overlaps(placements[j].Interval) {
				t.Errorf("placements %d and %d overlap: %v vs %v", i, j, placements[i].Interval, placements[j].Interval)
			}
		}
		for _, busy := range initial.Intervals() {
			if placements[i].Interval.Overlaps(busy) {
				t.Errorf("placement %d overlaps initial busy interval %v", i, busy)
			}
		}
	}
}

func TestScheduleSequentially_InitialBusySetUntouched(t *testing.T) {
	initial := interval.NewBusySet([]interval.Interval{
		{Start: at(t, "2024-01-01T09:00"), End: at(t, "2024-01-01T10:00")},
	})

	if _, err := ScheduleSequentially([]Task{{ID: "a", DurationMinutes: 60}}, initial, at(t, "2024-01-01T08:00"), DefaultConstraints()); err != nil {
		t.Fatalf("ScheduleSequentially: %v", err)
	}
	if initial.Len() != 1 {
		t.Fatalf("caller's busy set mutated: %d intervals", initial.Len())
	}
}

func TestScheduleSequentially_CrossesWorkDayBoundary(t *testing.T) {
	// Two 3-hour tasks starting late in the day: the second cannot end by
	// 21:00, so it lands on the next morning.
	tasks := []Task{
		{ID: "a", DurationMinutes: 180},
		{ID: "b", DurationMinutes: 180},
	}

	placements, err := ScheduleSequentially(tasks, interval.NewBusySet(nil), at(t, "2024-01-01T16:00"), DefaultConstraints())
	if err != nil {
		t.Fatalf("ScheduleSequentially: %v", err)
	}
	if want := at(t, "2024-01-01T16:00"); !placements[0].Interval.Start.Equal(want) {
		t.Fatalf("first placement start = %v, want %v", placements[0].Interval.Start, want)
	}
	if want := at(t, "2024-01-02T08:00"); !placements[1].Interval.Start.Equal(want) {
		t.Fatalf("second placement start = %v, want %v", placements[1].Interval.Start, want)
	}
}

func TestScheduleSequentially_RejectsInvalidTask(t *testing.T) {
	tasks := []Task{
		{ID: "a", DurationMinutes: 60},
		{ID: "b", DurationMinutes: 0},
	}
	if _, err := ScheduleSequentially(tasks, nil, at(t, "2024-01-01T09:00"), DefaultConstraints()); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
}
