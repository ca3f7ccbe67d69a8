/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package timetable

import (
	"testing"
	"time"

	"github.com/semestra/semestra/internal/models"
)

func date(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02T15:04", value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return parsed
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{in: "09:00", hour: 9, minute: 0},
		{in: "21:45", hour: 21, minute: 45},
		{in: "00:00", hour: 0, minute: 0},
		{in: "24:00", wantErr: true},
		{in: "09:60", wantErr: true},
		{in: "0900", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			hour, minute, err := ParseClock(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if hour != tt.hour || minute != tt.minute {
				t.Fatalf("got %02d:%02d, want %02d:%02d", hour, minute, tt.hour, tt.minute)
			}
		})
	}
}

func TestExpandMeetingWeekly(t *testing.T) {
	// 2024-01-01 is a Monday.
	meeting := models.CourseMeeting{
		ID:        "m1",
		DayOfWeek: int(time.Monday),
		StartTime: "10:00",
		EndTime:   "12:00",
	}

	from := date(t, "2024-01-01T00:00")
	to := date(t, "2024-01-15T00:00")

	blocks, err := ExpandMeeting(meeting, from, to, nil)
	if err != nil {
		t.Fatalf("expand meeting: %v", err)
	}

	if len(blocks) != 2 {
		t.Fatalf("expected 2 occurrences, got %d", len(blocks))
	}
	if !blocks[0].Start.Equal(date(t, "2024-01-01T10:00")) {
		t.Errorf("first occurrence starts at %v", blocks[0].Start)
	}
	if !blocks[0].End.Equal(date(t, "2024-01-01T12:00")) {
		t.Errorf("first occurrence ends at %v", blocks[0].End)
	}
	if !blocks[1].Start.Equal(date(t, "2024-01-08T10:00")) {
		t.Errorf("second occurrence starts at %v", blocks[1].Start)
	}
}

func TestExpandMeetingSkipsHolidays(t *testing.T) {
	meeting := models.CourseMeeting{
		ID:        "m1",
		DayOfWeek: int(time.Wednesday),
		StartTime: "09:00",
		EndTime:   "10:30",
	}

	holidays := []models.HolidayPeriod{
		{
			Name:      "reading week",
			StartDate: date(t, "2024-01-08T00:00"),
			EndDate:   date(t, "2024-01-14T00:00"),
		},
	}

	from := date(t, "2024-01-01T00:00")
	to := date(t, "2024-01-22T00:00")

	blocks, err := ExpandMeeting(meeting, from, to, holidays)
	if err != nil {
		t.Fatalf("expand meeting: %v", err)
	}

	// Wednesdays in range: Jan 3, 10, 17. The 10th falls in reading week.
	if len(blocks) != 2 {
		t.Fatalf("expected 2 occurrences, got %d", len(blocks))
	}
	if !blocks[0].Start.Equal(date(t, "2024-01-03T09:00")) {
		t.Errorf("first occurrence starts at %v", blocks[0].Start)
	}
	if !blocks[1].Start.Equal(date(t, "2024-01-17T09:00")) {
		t.Errorf("second occurrence starts at %v", blocks[1].Start)
	}
}

func TestExpandMeetingHonorsRecurrenceBounds(t *testing.T) {
	// Bounds are plain dates; the occurrence on the last day itself
	// carries a time of day but must still be produced.
	first := date(t, "2024-01-08T00:00")
	last := date(t, "2024-01-19T00:00")

	meeting := models.CourseMeeting{
		ID:        "m1",
		DayOfWeek: int(time.Friday),
		StartTime: "14:00",
		EndTime:   "16:00",
		FirstWeek: &first,
		LastWeek:  &last,
	}

	from := date(t, "2024-01-01T00:00")
	to := date(t, "2024-02-01T00:00")

	blocks, err := ExpandMeeting(meeting, from, to, nil)
	if err != nil {
		t.Fatalf("expand meeting: %v", err)
	}

	// Fridays in January 2024: 5, 12, 19, 26. Bounds keep the 12th and 19th.
	if len(blocks) != 2 {
		t.Fatalf("expected 2 occurrences, got %d", len(blocks))
	}
	if !blocks[0].Start.Equal(date(t, "2024-01-12T14:00")) {
		t.Errorf("first occurrence starts at %v", blocks[0].Start)
	}
	if !blocks[1].Start.Equal(date(t, "2024-01-19T14:00")) {
		t.Errorf("second occurrence starts at %v", blocks[1].Start)
	}
}

func TestExpandMeetingClipsAtWindowEdge(t *testing.T) {
	meeting := models.CourseMeeting{
		ID:        "m1",
		DayOfWeek: int(time.Monday),
		StartTime: "10:00",
		EndTime:   "12:00",
	}

	// Window opens mid-meeting.
	from := date(t, "2024-01-01T11:00")
	to := date(t, "2024-01-02T00:00")

	blocks, err := ExpandMeeting(meeting, from, to, nil)
	if err != nil {
		t.Fatalf("expand meeting: %v", err)
	}

	if len(blocks) != 1 {
		t.Fatalf("expected 1 clipped occurrence, got %d", len(blocks))
	}
	if !blocks[0].Start.Equal(from) {
		t.Errorf("clipped occurrence starts at %v, want %v", blocks[0].Start, from)
	}
	if !blocks[0].End.Equal(date(t, "2024-01-01T12:00")) {
		t.Errorf("clipped occurrence ends at %v", blocks[0].End)
	}
}

func TestExpandMeetingRejectsInvertedClock(t *testing.T) {
	meeting := models.CourseMeeting{
		ID:        "m1",
		DayOfWeek: int(time.Monday),
		StartTime: "12:00",
		EndTime:   "10:00",
	}

	_, err := ExpandMeeting(meeting, date(t, "2024-01-01T00:00"), date(t, "2024-01-08T00:00"), nil)
	if err == nil {
		t.Fatal("expected error for inverted meeting clock")
	}
}
