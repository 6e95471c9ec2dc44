package repositories

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"calendartask/internal/models"
)

type gormTaskRepository struct {
	db *gorm.DB
}

// NewGormTaskRepository stores tasks through gorm (the embedded sqlite backend).
func NewGormTaskRepository(db *gorm.DB) TaskRepository {
	return &gormTaskRepository{db: db}
}

// sqlite compares timestamps as text, so everything is written and queried in UTC.
func toUTC(task *models.Task) {
	task.StartTime = task.StartTime.UTC()
	if task.EndTime != nil {
		v := task.EndTime.UTC()
		task.EndTime = &v
	}
	if task.Recurrence.EndDate != nil {
		v := task.Recurrence.EndDate.UTC()
		task.Recurrence.EndDate = &v
	}
}

func (r *gormTaskRepository) Store(ctx context.Context, task *models.Task) error {
	toUTC(task)
	now := time.Now().UTC()
	task.ID = 0
	task.CreatedAt, task.UpdatedAt = now, now
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *gormTaskRepository) FindByID(ctx context.Context, id int64) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

func (r *gormTaskRepository) FindAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	q := r.db.WithContext(ctx).Model(&models.Task{})
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.Priority != nil {
		q = q.Where("priority = ?", *filter.Priority)
	}
	if filter.Category != nil {
		q = q.Where("category = ?", *filter.Category)
	}
	if filter.OriginTaskID != nil {
		q = q.Where("origin_task_id = ?", *filter.OriginTaskID)
	}
	if filter.From != nil {
		q = q.Where("start_time >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		q = q.Where("start_time <= ?", filter.To.UTC())
	}
	if s := strings.TrimSpace(filter.Query); s != "" {
		q = q.Where("LOWER(title) LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(s))+"%")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	tasks := []models.Task{}
	if err := q.Order("start_time ASC").Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *gormTaskRepository) FindByOriginID(ctx context.Context, originID int64) ([]models.Task, error) {
	return r.FindAll(ctx, models.TaskFilter{OriginTaskID: &originID})
}

func (r *gormTaskRepository) Update(ctx context.Context, task *models.Task) error {
	toUTC(task)
	task.UpdatedAt = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(task).
		Select("title", "description", "start_time", "end_time", "priority", "status",
			"category", "color", "all_day", "repeat_type", "repeat_interval", "repeat_end_date",
			"updated_at").
		Updates(task)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrTaskNotFound
	}
	return nil
}

func (r *gormTaskRepository) UpdateStatus(ctx context.Context, id int64, to models.TaskStatus) error {
	res := r.db.WithContext(ctx).Model(&models.Task{ID: id}).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrTaskNotFound
	}
	return nil
}

func (r *gormTaskRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&models.Task{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrTaskNotFound
	}
	return nil
}

func (r *gormTaskRepository) DeleteAll(ctx context.Context, tasks []models.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Task{}).Error
}

func (r *gormTaskRepository) FindUpcoming(ctx context.Context, userID *int64, now, until time.Time) ([]models.Task, error) {
	q := r.db.WithContext(ctx).
		Where("start_time BETWEEN ? AND ?", now.UTC(), until.UTC()).
		Where("status <> ?", models.StatusCompleted)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	tasks := []models.Task{}
	err := q.Order("start_time ASC").Find(&tasks).Error
	return tasks, err
}

func (r *gormTaskRepository) FindOverdue(ctx context.Context, userID *int64, now time.Time) ([]models.Task, error) {
	q := r.db.WithContext(ctx).
		Where("end_time < ?", now.UTC()).
		Where("status NOT IN ?", []models.TaskStatus{models.StatusCompleted, models.StatusCancelled})
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	tasks := []models.Task{}
	err := q.Order("end_time ASC").Find(&tasks).Error
	return tasks, err
}

func (r *gormTaskRepository) ListDueForReminder(ctx context.Context, now, until time.Time, limit int) ([]models.Task, error) {
	tasks := []models.Task{}
	err := r.db.WithContext(ctx).
		Where("start_time > ? AND start_time <= ?", now.UTC(), until.UTC()).
		Where("reminded_at IS NULL AND user_id IS NOT NULL").
		Where("status IN ?", []models.TaskStatus{models.StatusPending, models.StatusInProgress}).
		Order("start_time ASC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

func (r *gormTaskRepository) SetReminderSent(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Task{ID: id}).UpdateColumn("reminded_at", at.UTC()).Error
}
