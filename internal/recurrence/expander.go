// Package recurrence materializes concrete task instances from a task's
// recurrence rule.
package recurrence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"calendartask/internal/models"
)

const (
	// MaxIterations bounds a single expansion regardless of the rule's end
	// date. Iteration 0 is the origin itself, so at most MaxIterations-1
	// instances are created.
	MaxIterations = 1000

	// maxStepUnits keeps n*interval (and the weekly/yearly multipliers) well
	// inside int range.
	maxStepUnits = 1<<31 - 1
)

var (
	ErrOriginNotPersisted = errors.New("origin task has no id")
	ErrMissingStartTime   = errors.New("origin task has no start time")
)

// TaskStore is the persistence the expander writes instances through.
type TaskStore interface {
	Store(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, id int64) (*models.Task, error)
	FindByOriginID(ctx context.Context, originID int64) ([]models.Task, error)
	DeleteAll(ctx context.Context, tasks []models.Task) error
}

type Expander struct {
	store TaskStore
	log   *zap.SugaredLogger
}

func NewExpander(store TaskStore, log *zap.SugaredLogger) *Expander {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Expander{store: store, log: log}
}

// DefaultEndDate is the end of the expansion window when the rule has none:
// one year after the origin's start.
func DefaultEndDate(start time.Time) time.Time {
	return start.AddDate(1, 0, 0)
}

// MergeRule returns base with the non-nil override fields applied.
func MergeRule(base models.Recurrence, typ *models.RecurrenceType, interval *int, endDate *time.Time) models.Recurrence {
	rule := base
	if typ != nil {
		rule.Type = *typ
	}
	if interval != nil {
		rule.Interval = *interval
	}
	if endDate != nil {
		rule.EndDate = endDate
	}
	return rule
}

// Expand creates and persists one instance per occurrence of rule after the
// origin's own start and before the rule's end date. A rule that cannot
// repeat (type NONE, interval < 1) or an end date at or before the origin's
// start yields no instances and no writes.
//
// Instances written before a store failure stay persisted; they are returned
// together with the error.
func (e *Expander) Expand(ctx context.Context, origin *models.Task, rule models.Recurrence) ([]models.Task, error) {
	created := []models.Task{}
	if !rule.Repeats() {
		e.log.Debugw("[recurrence][expand][skip] rule does not repeat",
			"type", rule.Type, "interval", rule.Interval)
		return created, nil
	}
	if origin == nil || origin.ID == 0 {
		return created, ErrOriginNotPersisted
	}
	if origin.StartTime.IsZero() {
		return created, ErrMissingStartTime
	}

	anchor := origin.StartTime
	end := DefaultEndDate(anchor)
	if rule.EndDate != nil {
		end = *rule.EndDate
	}

	prev := anchor
	for n := 0; n < MaxIterations; n++ {
		if n > 0 && rule.Interval > maxStepUnits/n {
			break
		}
		cursor := Step(anchor, rule.Type, n*rule.Interval)
		if !cursor.Before(end) {
			break
		}
		if n == 0 {
			continue
		}
		if !cursor.After(prev) {
			e.log.Warnw("[recurrence][expand][stop] cursor did not advance",
				"origin_id", origin.ID, "n", n, "cursor", cursor)
			break
		}
		prev = cursor

		if err := ctx.Err(); err != nil {
			return created, err
		}

		inst := NewInstance(origin, cursor)
		if err := e.store.Store(ctx, &inst); err != nil {
			e.log.Errorw("[recurrence][expand][err] store instance",
				"origin_id", origin.ID, "start", cursor, "created", len(created), "error", err)
			return created, fmt.Errorf("store instance %d of task %d: %w", n, origin.ID, err)
		}
		created = append(created, inst)
	}

	e.log.Infow("[recurrence][expand][ok]",
		"origin_id", origin.ID, "type", rule.Type, "interval", rule.Interval,
		"until", end, "created", len(created))
	return created, nil
}

// ExpandByID loads the origin from the store and expands it with its own
// recurrence, overridden by any non-nil argument.
func (e *Expander) ExpandByID(ctx context.Context, originID int64, typ *models.RecurrenceType, interval *int, endDate *time.Time) ([]models.Task, error) {
	origin, err := e.store.FindByID(ctx, originID)
	if err != nil {
		return nil, err
	}
	return e.Expand(ctx, origin, MergeRule(origin.Recurrence, typ, interval, endDate))
}

// NewInstance builds the unsaved instance of origin that starts at start.
// Instances never repeat themselves and always start out PENDING.
func NewInstance(origin *models.Task, start time.Time) models.Task {
	originID := origin.ID
	inst := models.Task{
		Title:       origin.Title,
		Description: origin.Description,
		StartTime:   start,
		Priority:    origin.Priority,
		Status:      models.StatusPending,
		Category:    origin.Category,
		Color:       origin.Color,
		AllDay:      origin.AllDay,
		Recurrence: models.Recurrence{
			Type:     models.RecurrenceNone,
			Interval: 1,
		},
		OriginTaskID: &originID,
	}
	if origin.UserID != nil {
		uid := *origin.UserID
		inst.UserID = &uid
	}
	if d, ok := origin.Duration(); ok {
		endTime := start.Add(d)
		inst.EndTime = &endTime
	}
	return inst
}

// FindInstances lists every instance generated from originID.
func (e *Expander) FindInstances(ctx context.Context, originID int64) ([]models.Task, error) {
	return e.store.FindByOriginID(ctx, originID)
}

// DeleteInstances removes every instance generated from originID. It reports
// true whenever the deletion was issued, including when nothing matched.
func (e *Expander) DeleteInstances(ctx context.Context, originID int64) (bool, error) {
	instances, err := e.store.FindByOriginID(ctx, originID)
	if err != nil {
		return false, fmt.Errorf("find instances of task %d: %w", originID, err)
	}
	if err := e.store.DeleteAll(ctx, instances); err != nil {
		return false, fmt.Errorf("delete instances of task %d: %w", originID, err)
	}
	e.log.Infow("[recurrence][delete][ok]", "origin_id", originID, "deleted", len(instances))
	return true, nil
}
