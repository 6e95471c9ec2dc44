// Package gcal mirrors tasks into a Google Calendar.
package gcal

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"calendartask/internal/models"
)

// TaskIDProperty is the private extended property that links an event back to its task.
const TaskIDProperty = "calendartask_id"

const defaultDuration = 30 * time.Minute

// Google Calendar event color ids.
var priorityColors = map[models.TaskPriority]string{
	models.PriorityLow:    "2",
	models.PriorityMedium: "5",
	models.PriorityHigh:   "6",
	models.PriorityUrgent: "11",
}

// ToEvent converts a task into a calendar event. All-day tasks become
// date-only events whose end date is exclusive.
func ToEvent(task *models.Task) (*calendar.Event, error) {
	if task == nil {
		return nil, fmt.Errorf("could not convert nil task")
	}
	if task.StartTime.IsZero() {
		return nil, fmt.Errorf("task %d has no start time", task.ID)
	}

	summary := task.Title
	switch task.Status {
	case models.StatusCompleted:
		summary = "✓ " + summary
	case models.StatusCancelled:
		summary = "✗ " + summary
	}

	event := &calendar.Event{
		Summary:     summary,
		Description: describe(task),
		ColorId:     priorityColors[task.Priority],
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{TaskIDProperty: strconv.FormatInt(task.ID, 10)},
		},
	}

	if task.AllDay {
		start := task.StartTime
		last := start
		if task.EndTime != nil && task.EndTime.After(start) {
			last = *task.EndTime
		}
		event.Start = &calendar.EventDateTime{Date: start.Format("2006-01-02")}
		event.End = &calendar.EventDateTime{Date: last.AddDate(0, 0, 1).Format("2006-01-02")}
		return event, nil
	}

	end := task.StartTime.Add(defaultDuration)
	if task.EndTime != nil && task.EndTime.After(task.StartTime) {
		end = *task.EndTime
	}
	event.Start = &calendar.EventDateTime{DateTime: task.StartTime.UTC().Format(time.RFC3339)}
	event.End = &calendar.EventDateTime{DateTime: end.UTC().Format(time.RFC3339)}
	return event, nil
}

func describe(task *models.Task) string {
	var b strings.Builder
	if task.Description != "" {
		b.WriteString(task.Description)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Status: %s\n", task.Status)
	fmt.Fprintf(&b, "Priority: %s\n", task.Priority)
	if task.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", task.Category)
	}
	if task.OriginTaskID != nil {
		fmt.Fprintf(&b, "Repeats task #%d\n", *task.OriginTaskID)
	}
	return b.String()
}

// diff returns the fields of target that differ from existing, or nil when
// the event is already up to date.
func diff(existing, target *calendar.Event) *calendar.Event {
	patch := &calendar.Event{}
	changed := false

	if existing.Summary != target.Summary {
		patch.Summary = target.Summary
		changed = true
	}
	if existing.Description != target.Description {
		patch.Description = target.Description
		changed = true
	}
	if existing.ColorId != target.ColorId {
		patch.ColorId = target.ColorId
		changed = true
	}
	if !sameMoment(existing.Start, target.Start) || !sameMoment(existing.End, target.End) {
		patch.Start = target.Start
		patch.End = target.End
		changed = true
	}

	if !changed {
		return nil
	}
	return patch
}

func sameMoment(a, b *calendar.EventDateTime) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Date != "" || b.Date != "" {
		return a.Date == b.Date
	}
	ta, errA := time.Parse(time.RFC3339, a.DateTime)
	tb, errB := time.Parse(time.RFC3339, b.DateTime)
	if errA != nil || errB != nil {
		return a.DateTime == b.DateTime
	}
	return ta.Equal(tb)
}
