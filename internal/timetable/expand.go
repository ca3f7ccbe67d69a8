/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package timetable turns a user's commitments into concrete busy
// intervals: recurring course meetings are expanded into dated blocks,
// one-off events and existing study sessions are collected as-is.
package timetable

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/semestra/semestra/internal/interval"
	"github.com/semestra/semestra/internal/models"
)

// rruleWeekdays maps time.Weekday (0=Sunday) onto rrule weekday constants.
var rruleWeekdays = [7]rrule.Weekday{
	rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA,
}

// ParseClock parses a wall clock string in HH:MM form.
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid clock %q: bad hour", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid clock %q: bad minute", s)
	}
	return hour, minute, nil
}

// ExpandMeeting materializes a weekly meeting into busy intervals within
// [from, to). Occurrences on days covered by a holiday period are
// skipped, and occurrences are clipped to the query range.
func ExpandMeeting(meeting models.CourseMeeting, from, to time.Time, holidays []models.HolidayPeriod) ([]interval.Interval, error) {
	if meeting.DayOfWeek < 0 || meeting.DayOfWeek > 6 {
		return nil, fmt.Errorf("meeting %s: day of week %d out of range", meeting.ID, meeting.DayOfWeek)
	}

	startHour, startMinute, err := ParseClock(meeting.StartTime)
	if err != nil {
		return nil, fmt.Errorf("meeting %s: %w", meeting.ID, err)
	}
	endHour, endMinute, err := ParseClock(meeting.EndTime)
	if err != nil {
		return nil, fmt.Errorf("meeting %s: %w", meeting.ID, err)
	}

	duration := time.Duration((endHour*60+endMinute)-(startHour*60+startMinute)) * time.Minute
	if duration <= 0 {
		return nil, fmt.Errorf("meeting %s: end %s not after start %s", meeting.ID, meeting.EndTime, meeting.StartTime)
	}

	// Anchor the recurrence a week before the window so an occurrence
	// straddling the window start is still generated, then clip.
	anchor := from.AddDate(0, 0, -7)
	dtstart := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), startHour, startMinute, 0, 0, from.Location())

	rr, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{rruleWeekdays[meeting.DayOfWeek]},
		Dtstart:   dtstart,
	})
	if err != nil {
		return nil, fmt.Errorf("meeting %s: %w", meeting.ID, err)
	}

	occurrences := rr.Between(dtstart, to, true)

	var out []interval.Interval
	for _, occ := range occurrences {
		if meeting.FirstWeek != nil && occ.Before(*meeting.FirstWeek) {
			continue
		}
		// LastWeek names a day; the meeting on that day still runs.
		if meeting.LastWeek != nil && !occ.Before(meeting.LastWeek.AddDate(0, 0, 1)) {
			continue
		}
		if onHoliday(occ, holidays) {
			continue
		}

		block := interval.Interval{Start: occ, End: occ.Add(duration)}
		clipped, ok := block.Clip(from, to)
		if !ok {
			continue
		}
		out = append(out, clipped)
	}

	return out, nil
}

func onHoliday(day time.Time, holidays []models.HolidayPeriod) bool {
	for _, h := range holidays {
		if h.Covers(day) {
			return true
		}
	}
	return false
}
