package models

import (
	"errors"
	"strings"
	"time"
)

type RecurrenceType string

const (
	RecurrenceNone    RecurrenceType = "NONE"
	RecurrenceDaily   RecurrenceType = "DAILY"
	RecurrenceWeekly  RecurrenceType = "WEEKLY"
	RecurrenceMonthly RecurrenceType = "MONTHLY"
	RecurrenceYearly  RecurrenceType = "YEARLY"
)

var (
	ErrInvalidRecurrence = errors.New("invalid recurrence type")
	ErrInvalidInterval   = errors.New("recurrence interval must be at least 1")
)

// Recurrence describes how instances of a task are spaced.
type Recurrence struct {
	Type     RecurrenceType `json:"type" gorm:"size:16;not null;default:NONE"`
	Interval int            `json:"interval" gorm:"not null;default:1"`
	EndDate  *time.Time     `json:"end_date,omitempty"`
}

func (t RecurrenceType) Valid() bool {
	switch t {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
		return true
	}
	return false
}

func ParseRecurrenceType(s string) (RecurrenceType, bool) {
	t := RecurrenceType(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Valid()
}

// Repeats is true when the rule can produce instances at all.
func (r Recurrence) Repeats() bool {
	return r.Type != RecurrenceNone && r.Type != "" && r.Interval > 0
}

func (r Recurrence) Validate() error {
	if r.Type != "" && !r.Type.Valid() {
		return ErrInvalidRecurrence
	}
	if r.Interval < 1 {
		return ErrInvalidInterval
	}
	return nil
}
