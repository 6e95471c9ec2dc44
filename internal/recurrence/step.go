package recurrence

import (
	"time"

	"calendartask/internal/models"
)

// Step returns the n-th occurrence of a rule anchored at anchor, where each
// occurrence is `interval` units apart (n*interval units in total). n = 0
// yields the anchor itself.
//
// Monthly and yearly steps keep the anchor's day of month when the target
// month has it and otherwise clamp to the target month's last day, so a
// series anchored on Jan 31 runs Feb 29 (or 28), Mar 31, Apr 30, ...
// Occurrences are always computed from the anchor, never from the previous
// occurrence, so a clamped month does not shift the rest of the series.
func Step(anchor time.Time, typ models.RecurrenceType, units int) time.Time {
	switch typ {
	case models.RecurrenceDaily:
		return anchor.AddDate(0, 0, units)
	case models.RecurrenceWeekly:
		return anchor.AddDate(0, 0, 7*units)
	case models.RecurrenceMonthly:
		return addMonthsClamped(anchor, units)
	case models.RecurrenceYearly:
		return addMonthsClamped(anchor, 12*units)
	}
	return anchor
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	total := int(m) - 1 + months
	year := y + floorDiv(total, 12)
	month := time.Month(total - floorDiv(total, 12)*12 + 1)

	if last := daysIn(year, month, t.Location()); d > last {
		d = last
	}
	return time.Date(year, month, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
