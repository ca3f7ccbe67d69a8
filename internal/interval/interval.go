/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package interval provides the half-open time interval primitives the
// planner is built on.
package interval

import (
	"fmt"
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New builds an interval from a start time and duration.
func New(start time.Time, d time.Duration) Interval {
	return Interval{Start: start, End: start.Add(d)}
}

// Valid reports whether the interval is well formed (Start < End).
func (iv Interval) Valid() bool {
	return iv.Start.Before(iv.End)
}

// Duration returns the interval length.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether two half-open intervals conflict.
// An interval ending exactly when the other starts does not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	// a starts before b ends AND a ends after b starts
	return iv.Start.Before(other.End) && iv.End.After(other.Start)
}

// Contains reports whether t falls inside the interval.
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// Clip trims the interval to the window [start, end), returning the
// trimmed interval and whether anything remains.
func (iv Interval) Clip(start, end time.Time) (Interval, bool) {
	clipped := Interval{Start: maxTime(iv.Start, start), End: minTime(iv.End, end)}
	if !clipped.Valid() {
		return Interval{}, false
	}
	return clipped, true
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s)", iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
}

// BusySet is an ordered collection of committed intervals. It grows
// monotonically during a sequencing run: each placed task is inserted
// before the next task is placed.
type BusySet struct {
	intervals []Interval
}

// NewBusySet builds a busy set from existing commitments. The input
// slice is copied; malformed intervals (start >= end) are dropped.
func NewBusySet(intervals []Interval) *BusySet {
	set := &BusySet{intervals: make([]Interval, 0, len(intervals))}
	for _, iv := range intervals {
		if iv.Valid() {
			set.Insert(iv)
		}
	}
	return set
}

// Insert adds an interval keeping the set ordered by start time.
func (b *BusySet) Insert(iv Interval) {
	idx := sort.Search(len(b.intervals), func(i int) bool {
		return b.intervals[i].Start.After(iv.Start)
	})
	b.intervals = append(b.intervals, Interval{})
	copy(b.intervals[idx+1:], b.intervals[idx:])
	b.intervals[idx] = iv
}

// Conflicts reports whether the candidate overlaps any committed interval.
func (b *BusySet) Conflicts(candidate Interval) bool {
	for _, iv := range b.intervals {
		if candidate.Overlaps(iv) {
			return true
		}
	}
	return false
}

// Len returns the number of committed intervals.
func (b *BusySet) Len() int {
	return len(b.intervals)
}

// Intervals returns a copy of the committed intervals in start order.
func (b *BusySet) Intervals() []Interval {
	out := make([]Interval, len(b.intervals))
	copy(out, b.intervals)
	return out
}

// Clone returns an independent copy so sequencing runs never share state.
func (b *BusySet) Clone() *BusySet {
	clone := &BusySet{intervals: make([]Interval, len(b.intervals))}
	copy(clone.intervals, b.intervals)
	return clone
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
