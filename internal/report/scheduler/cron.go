// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

// Package scheduler runs report schedules on standard 5-field cron
// expressions.
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Expression is a parsed 5-field cron expression:
// minute hour day-of-month month day-of-week.
//
// Supported syntax per field: * n n-m n,m,o */s n-m/s. Day-of-week
// accepts 0-7 with 7 meaning Sunday. When both day-of-month and
// day-of-week are restricted, a time matching either is due (standard
// cron semantics).
type Expression struct {
	minutes [60]bool
	hours   [24]bool
	dom     [32]bool // 1-31
	months  [13]bool // 1-12
	dow     [7]bool

	domAny bool
	dowAny bool
}

// Parse parses a cron expression.
func Parse(expr string) (*Expression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	e := &Expression{}

	if err := parseField(fields[0], 0, 59, e.minutes[:]); err != nil {
		return nil, fmt.Errorf("invalid minute field: %w", err)
	}
	if err := parseField(fields[1], 0, 23, e.hours[:]); err != nil {
		return nil, fmt.Errorf("invalid hour field: %w", err)
	}
	if err := parseField(fields[2], 1, 31, e.dom[:]); err != nil {
		return nil, fmt.Errorf("invalid day-of-month field: %w", err)
	}
	if err := parseField(fields[3], 1, 12, e.months[:]); err != nil {
		return nil, fmt.Errorf("invalid month field: %w", err)
	}

	var dow [8]bool
	if err := parseField(fields[4], 0, 7, dow[:]); err != nil {
		return nil, fmt.Errorf("invalid day-of-week field: %w", err)
	}
	copy(e.dow[:], dow[:7])
	if dow[7] {
		e.dow[0] = true // 7 is Sunday too
	}

	e.domAny = fields[2] == "*"
	e.dowAny = fields[4] == "*"
	return e, nil
}

// Next returns the first time strictly after the given time that the
// expression matches. The search is bounded; a zero time is returned
// only for expressions that can never fire (e.g. Feb 30).
func (e *Expression) Next(after time.Time) time.Time {
	t := after.Add(time.Minute).Truncate(time.Minute)

	// Four years covers every leap-day combination.
	limit := after.AddDate(4, 0, 1)
	for t.Before(limit) {
		if !e.months[int(t.Month())] {
			// Jump to the first minute of the next month.
			t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
			continue
		}
		if !e.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
			continue
		}
		if !e.hours[t.Hour()] {
			t = t.Truncate(time.Hour).Add(time.Hour)
			continue
		}
		if !e.minutes[t.Minute()] {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

func (e *Expression) dayMatches(t time.Time) bool {
	domMatch := e.dom[t.Day()]
	dowMatch := e.dow[int(t.Weekday())]

	switch {
	case e.domAny && e.dowAny:
		return true
	case e.domAny:
		return dowMatch
	case e.dowAny:
		return domMatch
	default:
		// Both restricted: standard cron fires on either.
		return domMatch || dowMatch
	}
}

// parseField fills set (indexed by value) from one cron field.
func parseField(field string, minVal, maxVal int, set []bool) error {
	for _, part := range strings.Split(field, ",") {
		if err := parsePart(part, minVal, maxVal, set); err != nil {
			return err
		}
	}
	return nil
}

func parsePart(part string, minVal, maxVal int, set []bool) error {
	step := 1
	if base, stepStr, ok := strings.Cut(part, "/"); ok {
		s, err := strconv.Atoi(stepStr)
		if err != nil || s <= 0 {
			return fmt.Errorf("invalid step %q", stepStr)
		}
		step = s
		part = base
		if part == "*" {
			part = fmt.Sprintf("%d-%d", minVal, maxVal)
		} else if !strings.Contains(part, "-") {
			// "n/s" steps from n to the field maximum.
			part = fmt.Sprintf("%s-%d", part, maxVal)
		}
	}

	if part == "*" {
		for v := minVal; v <= maxVal; v++ {
			set[v] = true
		}
		return nil
	}

	lo, hi := part, part
	if l, h, ok := strings.Cut(part, "-"); ok {
		lo, hi = l, h
	}
	start, err := strconv.Atoi(lo)
	if err != nil {
		return fmt.Errorf("invalid value %q", lo)
	}
	end, err := strconv.Atoi(hi)
	if err != nil {
		return fmt.Errorf("invalid value %q", hi)
	}
	if start > end || start < minVal || end > maxVal {
		return fmt.Errorf("range %d-%d outside %d-%d", start, end, minVal, maxVal)
	}

	for v := start; v <= end; v += step {
		set[v] = true
	}
	return nil
}

// NextRun parses expr and returns the first firing after the given
// time.
func NextRun(expr string, after time.Time) (time.Time, error) {
	e, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return e.Next(after), nil
}
