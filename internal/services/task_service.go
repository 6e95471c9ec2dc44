// internal/services/task_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"calendartask/internal/lock"
	"calendartask/internal/models"
	"calendartask/internal/recurrence"
	"calendartask/internal/repositories"
)

var (
	ErrNotExpandable       = errors.New("generated instances cannot be expanded")
	ErrExpansionInProgress = errors.New("expansion of this task is already running")
	ErrExpansionFailed     = errors.New("task saved but recurrence expansion failed")
	ErrIllegalTransition   = errors.New("illegal status transition")
	ErrInvalidDateRange    = errors.New("start date must not be after end date")
)

// ExpandRequest overrides the origin's own recurrence fields when non-nil.
type ExpandRequest struct {
	Type     *models.RecurrenceType
	Interval *int
	EndDate  *time.Time
}

// TaskService defines the task and calendar business logic.
type TaskService interface {
	Create(ctx context.Context, task *models.Task, expand bool) (*models.Task, []models.Task, error)
	GetByID(ctx context.Context, id int64) (*models.Task, error)
	List(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	Update(ctx context.Context, id int64, updateData *models.Task) (*models.Task, error)
	Delete(ctx context.Context, id int64, cascade bool) error

	ByStatus(ctx context.Context, userID *int64, status models.TaskStatus) ([]models.Task, error)
	ByPriority(ctx context.Context, userID *int64, priority models.TaskPriority) ([]models.Task, error)
	ByCategory(ctx context.Context, userID *int64, category string) ([]models.Task, error)
	InRange(ctx context.Context, userID *int64, from, to time.Time) ([]models.Task, error)
	Today(ctx context.Context, userID *int64) ([]models.Task, error)
	ThisWeek(ctx context.Context, userID *int64) ([]models.Task, error)
	ThisMonth(ctx context.Context, userID *int64) ([]models.Task, error)
	Search(ctx context.Context, userID *int64, keyword string) ([]models.Task, error)
	Upcoming(ctx context.Context, userID *int64) ([]models.Task, error)
	Overdue(ctx context.Context, userID *int64) ([]models.Task, error)

	MarkCompleted(ctx context.Context, id int64) (*models.Task, error)
	UpdateStatus(ctx context.Context, id int64, to models.TaskStatus) (*models.Task, error)

	ExpandRecurrence(ctx context.Context, id int64, req ExpandRequest) ([]models.Task, error)
	Instances(ctx context.Context, id int64) ([]models.Task, error)
	DeleteInstances(ctx context.Context, id int64) (bool, error)
}

type TaskServiceOption func(*taskService)

// WithClock replaces time.Now; the calendar windows are computed in the
// location of the returned time.
func WithClock(now func() time.Time) TaskServiceOption {
	return func(s *taskService) { s.now = now }
}

// WithLocker serializes expansions of the same origin.
func WithLocker(l lock.Locker, ttl time.Duration) TaskServiceOption {
	return func(s *taskService) {
		s.locker = l
		s.lockTTL = ttl
	}
}

// WithExpandOnCreate expands every recurring task on create.
func WithExpandOnCreate(on bool) TaskServiceOption {
	return func(s *taskService) { s.expandOnCreate = on }
}

type taskService struct {
	repo     repositories.TaskRepository
	expander *recurrence.Expander
	log      *zap.SugaredLogger

	now            func() time.Time
	locker         lock.Locker
	lockTTL        time.Duration
	expandOnCreate bool
}

func NewTaskService(repo repositories.TaskRepository, log *zap.SugaredLogger, opts ...TaskServiceOption) TaskService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &taskService{
		repo:     repo,
		expander: recurrence.NewExpander(repo, log),
		log:      log,
		now:      time.Now,
		lockTTL:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *taskService) Create(ctx context.Context, task *models.Task, expand bool) (*models.Task, []models.Task, error) {
	task.ID = 0
	task.OriginTaskID = nil
	task.ApplyDefaults()
	if err := task.Validate(); err != nil {
		return nil, nil, err
	}
	if err := s.repo.Store(ctx, task); err != nil {
		return nil, nil, err
	}
	s.log.Infow("[task][create][ok]", "id", task.ID, "title", task.Title, "repeat", task.Recurrence.Type)

	if !(expand || s.expandOnCreate) || !task.Recurrence.Repeats() {
		return task, nil, nil
	}
	instances, err := s.expander.Expand(ctx, task, task.Recurrence)
	if err != nil {
		return task, instances, fmt.Errorf("%w: %v", ErrExpansionFailed, err)
	}
	return task, instances, nil
}

func (s *taskService) GetByID(ctx context.Context, id int64) (*models.Task, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *taskService) List(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	return s.repo.FindAll(ctx, filter)
}

// Update copies every editable field of updateData onto the stored task.
// A status change must still follow the transition table, and a generated
// instance keeps recurrence NONE.
func (s *taskService) Update(ctx context.Context, id int64, updateData *models.Task) (*models.Task, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if updateData.Status != "" && !CanTransitionTask(existing.Status, updateData.Status) {
		return nil, ErrIllegalTransition
	}

	existing.Title = updateData.Title
	existing.Description = updateData.Description
	existing.StartTime = updateData.StartTime
	existing.EndTime = updateData.EndTime
	existing.Priority = updateData.Priority
	existing.Status = updateData.Status
	existing.Category = updateData.Category
	existing.Color = updateData.Color
	existing.AllDay = updateData.AllDay
	if existing.IsInstance() {
		// instances never carry a rule of their own
		if updateData.Recurrence.Repeats() {
			return nil, ErrNotExpandable
		}
		existing.Recurrence = models.Recurrence{Type: models.RecurrenceNone, Interval: 1}
	} else {
		existing.Recurrence = updateData.Recurrence
	}

	existing.ApplyDefaults()
	if err := existing.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *taskService) Delete(ctx context.Context, id int64, cascade bool) error {
	if cascade {
		if _, err := s.expander.DeleteInstances(ctx, id); err != nil {
			return err
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Infow("[task][delete][ok]", "id", id, "cascade", cascade)
	return nil
}

func (s *taskService) ByStatus(ctx context.Context, userID *int64, status models.TaskStatus) ([]models.Task, error) {
	return s.repo.FindAll(ctx, models.TaskFilter{UserID: userID, Status: &status})
}

func (s *taskService) ByPriority(ctx context.Context, userID *int64, priority models.TaskPriority) ([]models.Task, error) {
	return s.repo.FindAll(ctx, models.TaskFilter{UserID: userID, Priority: &priority})
}

func (s *taskService) ByCategory(ctx context.Context, userID *int64, category string) ([]models.Task, error) {
	return s.repo.FindAll(ctx, models.TaskFilter{UserID: userID, Category: &category})
}

// InRange returns tasks whose start lies in [from, to], ordered by start.
func (s *taskService) InRange(ctx context.Context, userID *int64, from, to time.Time) ([]models.Task, error) {
	if from.After(to) {
		return nil, ErrInvalidDateRange
	}
	return s.repo.FindAll(ctx, models.TaskFilter{UserID: userID, From: &from, To: &to})
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (s *taskService) Today(ctx context.Context, userID *int64) ([]models.Task, error) {
	from := startOfDay(s.now())
	return s.InRange(ctx, userID, from, from.AddDate(0, 0, 1).Add(-time.Nanosecond))
}

// ThisWeek covers Monday 00:00 through the end of Sunday.
func (s *taskService) ThisWeek(ctx context.Context, userID *int64) ([]models.Task, error) {
	today := startOfDay(s.now())
	offset := (int(today.Weekday()) + 6) % 7
	from := today.AddDate(0, 0, -offset)
	return s.InRange(ctx, userID, from, from.AddDate(0, 0, 7).Add(-time.Nanosecond))
}

func (s *taskService) ThisMonth(ctx context.Context, userID *int64) ([]models.Task, error) {
	now := s.now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return s.InRange(ctx, userID, from, from.AddDate(0, 1, 0).Add(-time.Nanosecond))
}

func (s *taskService) Search(ctx context.Context, userID *int64, keyword string) ([]models.Task, error) {
	return s.repo.FindAll(ctx, models.TaskFilter{UserID: userID, Query: strings.TrimSpace(keyword)})
}

// Upcoming lists tasks starting within the next 24 hours that are not completed.
func (s *taskService) Upcoming(ctx context.Context, userID *int64) ([]models.Task, error) {
	now := s.now()
	return s.repo.FindUpcoming(ctx, userID, now, now.Add(24*time.Hour))
}

// Overdue lists tasks that ended before now and are neither completed nor cancelled.
func (s *taskService) Overdue(ctx context.Context, userID *int64) ([]models.Task, error) {
	return s.repo.FindOverdue(ctx, userID, s.now())
}

func (s *taskService) MarkCompleted(ctx context.Context, id int64) (*models.Task, error) {
	return s.UpdateStatus(ctx, id, models.StatusCompleted)
}

func (s *taskService) UpdateStatus(ctx context.Context, id int64, to models.TaskStatus) (*models.Task, error) {
	if !to.Valid() {
		return nil, models.ErrInvalidStatus
	}
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransitionTask(current.Status, to) {
		return nil, ErrIllegalTransition
	}
	if err := s.repo.UpdateStatus(ctx, id, to); err != nil {
		return nil, err
	}
	s.log.Infow("[task][status][ok]", "id", id, "from", current.Status, "to", to)
	return s.repo.FindByID(ctx, id)
}

func (s *taskService) ExpandRecurrence(ctx context.Context, id int64, req ExpandRequest) ([]models.Task, error) {
	origin, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if origin.IsInstance() {
		return nil, ErrNotExpandable
	}
	rule := recurrence.MergeRule(origin.Recurrence, req.Type, req.Interval, req.EndDate)
	// a non-positive interval override is a no-op for the expander, not a validation error
	if rule.Type != "" && !rule.Type.Valid() {
		return nil, models.ErrInvalidRecurrence
	}

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, "expand:"+strconv.FormatInt(id, 10), s.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire expansion lock: %w", err)
		}
		if !ok {
			s.log.Warnw("[task][expand][busy]", "id", id)
			return nil, ErrExpansionInProgress
		}
		defer release()
	}

	return s.expander.Expand(ctx, origin, rule)
}

func (s *taskService) Instances(ctx context.Context, id int64) ([]models.Task, error) {
	return s.expander.FindInstances(ctx, id)
}

func (s *taskService) DeleteInstances(ctx context.Context, id int64) (bool, error) {
	return s.expander.DeleteInstances(ctx, id)
}
