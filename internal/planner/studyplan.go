/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"errors"
	"time"

	"github.com/semestra/semestra/internal/interval"
)

// ErrInvalidSessionCount rejects study plan requests without sessions.
var ErrInvalidSessionCount = errors.New("planner: session count must be positive")

// StudyPlanRequest asks for a number of equal-length study sessions spread
// across the days leading up to a deadline (an exam date or an assignment
// due date).
type StudyPlanRequest struct {
	TaskID         string
	Title          string
	DueBy          time.Time
	SessionMinutes int
	Sessions       int
}

// BuildStudyPlan distributes the requested sessions over the days between
// now and the deadline, one slot search per session, feeding every
// placement back into the busy set so sessions never collide with each
// other or with existing commitments. When the deadline leaves fewer days
// than sessions the remainder stack onto the available days.
func BuildStudyPlan(req StudyPlanRequest, busy *interval.BusySet, now time.Time, constraints Constraints) ([]Placement, error) {
	if req.Sessions <= 0 {
		return nil, ErrInvalidSessionCount
	}
	if req.SessionMinutes <= 0 {
		return nil, ErrInvalidDuration
	}

	constraints = constraints.normalized()
	working := interval.NewBusySet(nil)
	if busy != nil {
		working = busy.Clone()
	}

	daysAvailable := int(req.DueBy.Sub(now).Hours() / 24)
	if daysAvailable < 1 {
		daysAvailable = 1
	}

	duration := time.Duration(req.SessionMinutes) * time.Minute
	placements := make([]Placement, 0, req.Sessions)
	earliest := roundUpToHour(now)

	for i := 0; i < req.Sessions; i++ {
		// Spread sessions evenly: session i targets day i*days/sessions.
		offset := i * daysAvailable / req.Sessions
		candidate := dayAtHour(now.AddDate(0, 0, offset), constraints.WorkStartHour)
		if candidate.Before(earliest) {
			candidate = earliest
		}

		slotStart := findFrom(duration, working, candidate, candidate, constraints)
		placed := interval.Interval{Start: slotStart, End: slotStart.Add(duration)}

		placements = append(placements, Placement{TaskID: req.TaskID, Interval: placed})
		working.Insert(placed)
	}

	return placements, nil
}
