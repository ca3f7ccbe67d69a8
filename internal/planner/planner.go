/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package planner implements conflict-free slot search and sequential task
// placement inside daily working hours. The functions here are pure: the
// current time is always an explicit argument, never read from the wall
// clock, so results are reproducible.
package planner

import (
	"errors"
	"time"

	"github.com/semestra/semestra/internal/interval"
)

const (
	// maxSearchAttempts bounds the slot search before the fallback applies.
	maxSearchAttempts = 100

	// searchStep is how far the candidate advances after a conflict.
	searchStep = 30 * time.Minute

	// sequenceBuffer is the gap inserted between consecutive placements so
	// back-to-back tasks get breathing room.
	sequenceBuffer = 15 * time.Minute

	// fallbackHour is the start hour of the fallback slot (tomorrow 09:00)
	// returned when the search bound is exhausted. Product policy: the
	// caller always gets a slot, never an exhaustion error.
	fallbackHour = 9
)

// ErrInvalidDuration rejects non-positive durations up front.
var ErrInvalidDuration = errors.New("planner: duration must be positive")

// Clock supplies the current time. Callers inject it so scheduling stays
// deterministic under test.
type Clock func() time.Time

// Constraints bound the daily working window. Hours are inclusive at the
// start and exclusive at the end: a slot may start at WorkStartHour and
// must end by WorkEndHour.
type Constraints struct {
	WorkStartHour int
	WorkEndHour   int
}

// DefaultConstraints returns the default 08:00–21:00 working window.
func DefaultConstraints() Constraints {
	return Constraints{WorkStartHour: 8, WorkEndHour: 21}
}

func (c Constraints) normalized() Constraints {
	if c.WorkStartHour <= 0 && c.WorkEndHour <= 0 {
		return DefaultConstraints()
	}
	if c.WorkEndHour <= c.WorkStartHour {
		return DefaultConstraints()
	}
	return c
}

// FindNextAvailableSlot finds the first conflict-free slot of the given
// duration at or after searchStart, inside working hours. The search start
// is rounded up to the next full hour, then the candidate walks forward in
// 30-minute steps past conflicts. When the attempt bound is exhausted the
// deterministic fallback applies: the day after searchStart at 09:00,
// regardless of conflicts.
func FindNextAvailableSlot(duration time.Duration, busy *interval.BusySet, searchStart time.Time, constraints Constraints) (time.Time, error) {
	if duration <= 0 {
		return time.Time{}, ErrInvalidDuration
	}
	return findFrom(duration, busy, roundUpToHour(searchStart), searchStart, constraints.normalized()), nil
}

// findFrom runs the bounded candidate walk without rounding the start.
// reference anchors the fallback slot: tomorrow 09:00 relative to the
// caller's search start, not relative to wherever the walk ended up.
func findFrom(duration time.Duration, busy *interval.BusySet, candidate, reference time.Time, constraints Constraints) time.Time {
	for attempt := 0; attempt < maxSearchAttempts; attempt++ {
		if candidate.Hour() < constraints.WorkStartHour {
			candidate = dayAtHour(candidate, constraints.WorkStartHour)
		}
		if candidate.Hour() >= constraints.WorkEndHour {
			candidate = dayAtHour(candidate.AddDate(0, 0, 1), constraints.WorkStartHour)
			continue
		}

		candidateEnd := candidate.Add(duration)
		if candidateEnd.After(dayAtHour(candidate, constraints.WorkEndHour)) {
			// Slot would spill past the working window; try the next day.
			candidate = dayAtHour(candidate.AddDate(0, 0, 1), constraints.WorkStartHour)
			continue
		}

		if busy == nil || !busy.Conflicts(interval.Interval{Start: candidate, End: candidateEnd}) {
			return candidate
		}

		candidate = candidate.Add(searchStep)
	}

	return fallbackSlot(reference)
}

// fallbackSlot returns tomorrow 09:00 relative to the reference time.
func fallbackSlot(reference time.Time) time.Time {
	return dayAtHour(reference.AddDate(0, 0, 1), fallbackHour)
}

// roundUpToHour snaps t forward to the next full hour. A time already on
// the hour is kept as is.
func roundUpToHour(t time.Time) time.Time {
	truncated := t.Truncate(time.Hour)
	if truncated.Equal(t) {
		return t
	}
	return truncated.Add(time.Hour)
}

func dayAtHour(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}
