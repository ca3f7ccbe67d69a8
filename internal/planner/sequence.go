/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"time"

	"github.com/semestra/semestra/internal/interval"
)

// Task is an immutable scheduling input. The caller decides the order
// (urgency, priority); the planner honours it as given.
type Task struct {
	ID              string
	Title           string
	DurationMinutes int
	DueBy           *time.Time
	Priority        int
}

// Placement assigns one task to one interval.
type Placement struct {
	TaskID   string            `json:"task_id"`
	Interval interval.Interval `json:"interval"`
}

// ScheduleSequentially places every task in order, threading a growing busy
// set so each placement avoids all earlier ones as well as the initial
// commitments. The cursor starts at `start` rounded up to the next full
// hour and advances to each placement's end plus a fixed 15-minute buffer;
// later cursors are used as-is so buffered starts like 10:15 survive.
//
// Every task receives a placement: under contention the per-slot fallback
// policy applies, surfacing "too much work, too little room" is the
// caller's concern, not an error here.
func ScheduleSequentially(tasks []Task, initialBusy *interval.BusySet, start time.Time, constraints Constraints) ([]Placement, error) {
	for _, task := range tasks {
		if task.DurationMinutes <= 0 {
			return nil, ErrInvalidDuration
		}
	}

	constraints = constraints.normalized()
	busy := interval.NewBusySet(nil)
	if initialBusy != nil {
		busy = initialBusy.Clone()
	}

	cursor := roundUpToHour(start)
	placements := make([]Placement, 0, len(tasks))

	for _, task := range tasks {
		duration := time.Duration(task.DurationMinutes) * time.Minute
		slotStart := findFrom(duration, busy, cursor, cursor, constraints)
		placed := interval.Interval{Start: slotStart, End: slotStart.Add(duration)}

		placements = append(placements, Placement{TaskID: task.ID, Interval: placed})
		busy.Insert(placed)
		cursor = placed.End.Add(sequenceBuffer)
	}

	return placements, nil
}
