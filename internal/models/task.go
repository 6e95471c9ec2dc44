// internal/models/task.go
package models

import (
	"errors"
	"strings"
	"time"
)

// TaskStatus defines the possible statuses for a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "PENDING"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusCompleted  TaskStatus = "COMPLETED"
	StatusCancelled  TaskStatus = "CANCELLED"
)

type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
	PriorityUrgent TaskPriority = "URGENT"
)

const (
	DefaultTaskColor     = "#FFE4B5"
	MaxTitleLength       = 255
	MaxDescriptionLength = 1000
	MaxCategoryLength    = 50
	MaxColorLength       = 20
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrTitleRequired     = errors.New("title is required")
	ErrStartTimeRequired = errors.New("start_time is required")
	ErrInvalidTimeRange  = errors.New("end_time must not be before start_time")
	ErrInvalidPriority   = errors.New("invalid priority")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrFieldTooLong      = errors.New("field too long")
)

// Task is either a user-created task (possibly a recurrence origin) or an
// instance generated from an origin. Instances carry OriginTaskID.
type Task struct {
	ID          int64        `json:"id" gorm:"primaryKey"`
	UserID      *int64       `json:"user_id,omitempty" gorm:"index"`
	Title       string       `json:"title" gorm:"size:255;not null"`
	Description string       `json:"description" gorm:"size:1000"`
	StartTime   time.Time    `json:"start_time" gorm:"not null;index"`
	EndTime     *time.Time   `json:"end_time,omitempty"`
	Priority    TaskPriority `json:"priority" gorm:"size:16;not null;default:MEDIUM"`
	Status      TaskStatus   `json:"status" gorm:"size:16;not null;default:PENDING;index"`
	Category    string       `json:"category" gorm:"size:50;index"`
	Color       string       `json:"color" gorm:"size:20"`
	AllDay      bool         `json:"all_day"`
	Recurrence  Recurrence   `json:"recurrence" gorm:"embedded;embeddedPrefix:repeat_"`

	// Weak back-reference to the task this one was expanded from.
	OriginTaskID *int64 `json:"origin_task_id,omitempty" gorm:"index"`

	RemindedAt *time.Time `json:"reminded_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// IsInstance reports whether the task was generated by recurrence expansion.
func (t *Task) IsInstance() bool {
	return t.OriginTaskID != nil
}

// Duration is EndTime-StartTime, or zero when the task has no end.
func (t *Task) Duration() (time.Duration, bool) {
	if t.EndTime == nil {
		return 0, false
	}
	return t.EndTime.Sub(t.StartTime), true
}

// ApplyDefaults fills the zero-valued enum and display fields.
func (t *Task) ApplyDefaults() {
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Color == "" {
		t.Color = DefaultTaskColor
	}
	if t.Recurrence.Type == "" {
		t.Recurrence.Type = RecurrenceNone
	}
	if t.Recurrence.Interval == 0 {
		t.Recurrence.Interval = 1
	}
}

func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrTitleRequired
	}
	if len(t.Title) > MaxTitleLength || len(t.Description) > MaxDescriptionLength ||
		len(t.Category) > MaxCategoryLength || len(t.Color) > MaxColorLength {
		return ErrFieldTooLong
	}
	if t.StartTime.IsZero() {
		return ErrStartTimeRequired
	}
	if t.EndTime != nil && t.EndTime.Before(t.StartTime) {
		return ErrInvalidTimeRange
	}
	if !t.Priority.Valid() {
		return ErrInvalidPriority
	}
	if !t.Status.Valid() {
		return ErrInvalidStatus
	}
	return t.Recurrence.Validate()
}

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ParseTaskStatus accepts any letter case ("in_progress", "IN_PROGRESS").
func ParseTaskStatus(s string) (TaskStatus, bool) {
	st := TaskStatus(strings.ToUpper(strings.TrimSpace(s)))
	return st, st.Valid()
}

func ParseTaskPriority(s string) (TaskPriority, bool) {
	p := TaskPriority(strings.ToUpper(strings.TrimSpace(s)))
	return p, p.Valid()
}

// TaskFilter defines the available parameters for filtering tasks.
// From/To bound start_time inclusively.
type TaskFilter struct {
	UserID       *int64
	Status       *TaskStatus
	Priority     *TaskPriority
	Category     *string
	OriginTaskID *int64
	From         *time.Time
	To           *time.Time
	Query        string
	Limit        int
	Offset       int
}
