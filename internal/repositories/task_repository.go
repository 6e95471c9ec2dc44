package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"calendartask/internal/models"
)

type TaskRepository interface {
	Store(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, id int64) (*models.Task, error)
	FindAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	FindByOriginID(ctx context.Context, originID int64) ([]models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	UpdateStatus(ctx context.Context, id int64, to models.TaskStatus) error
	Delete(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context, tasks []models.Task) error

	// calendar queries
	FindUpcoming(ctx context.Context, userID *int64, now, until time.Time) ([]models.Task, error)
	FindOverdue(ctx context.Context, userID *int64, now time.Time) ([]models.Task, error)

	// reminders
	ListDueForReminder(ctx context.Context, now, until time.Time, limit int) ([]models.Task, error)
	SetReminderSent(ctx context.Context, id int64, at time.Time) error
}

type taskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) TaskRepository {
	return &taskRepository{db: db}
}

const taskColumns = `id, user_id, title, description, start_time, end_time, priority, status,
       category, color, all_day, repeat_type, repeat_interval, repeat_end_date,
       origin_task_id, reminded_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(s rowScanner) (models.Task, error) {
	var (
		t        models.Task
		userID   sql.NullInt64
		originID sql.NullInt64
		endTime  sql.NullTime
		repEnd   sql.NullTime
		reminded sql.NullTime
		category sql.NullString
		desc     sql.NullString
	)
	err := s.Scan(
		&t.ID, &userID, &t.Title, &desc, &t.StartTime, &endTime, &t.Priority, &t.Status,
		&category, &t.Color, &t.AllDay, &t.Recurrence.Type, &t.Recurrence.Interval, &repEnd,
		&originID, &reminded, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return t, err
	}
	if userID.Valid {
		v := userID.Int64
		t.UserID = &v
	}
	if originID.Valid {
		v := originID.Int64
		t.OriginTaskID = &v
	}
	if endTime.Valid {
		v := endTime.Time
		t.EndTime = &v
	}
	if repEnd.Valid {
		v := repEnd.Time
		t.Recurrence.EndDate = &v
	}
	if reminded.Valid {
		v := reminded.Time
		t.RemindedAt = &v
	}
	t.Category = category.String
	t.Description = desc.String
	return t, nil
}

func scanTasks(rows *sql.Rows) ([]models.Task, error) {
	defer rows.Close()
	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) Store(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (
			user_id, title, description, start_time, end_time, priority, status,
			category, color, all_day, repeat_type, repeat_interval, repeat_end_date,
			origin_task_id, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW(),NOW())
		RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query,
		task.UserID, task.Title, task.Description, task.StartTime, task.EndTime,
		task.Priority, task.Status, task.Category, task.Color, task.AllDay,
		task.Recurrence.Type, task.Recurrence.Interval, task.Recurrence.EndDate,
		task.OriginTaskID,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
}

func (r *taskRepository) FindByID(ctx context.Context, id int64) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	t, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrTaskNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *taskRepository) FindAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	baseQuery := `SELECT ` + taskColumns + ` FROM tasks`

	conditions := []string{}
	args := []interface{}{}
	argID := 1

	add := func(cond string, v interface{}) {
		conditions = append(conditions, fmt.Sprintf(cond, argID))
		args = append(args, v)
		argID++
	}
	if filter.UserID != nil {
		add("user_id = $%d", *filter.UserID)
	}
	if filter.Status != nil {
		add("status = $%d", *filter.Status)
	}
	if filter.Priority != nil {
		add("priority = $%d", *filter.Priority)
	}
	if filter.Category != nil {
		add("category = $%d", *filter.Category)
	}
	if filter.OriginTaskID != nil {
		add("origin_task_id = $%d", *filter.OriginTaskID)
	}
	if filter.From != nil {
		add("start_time >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("start_time <= $%d", *filter.To)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		add("title ILIKE $%d", "%"+escapeLike(q)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	baseQuery += " ORDER BY start_time ASC, id ASC"
	if filter.Limit > 0 {
		baseQuery += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		baseQuery += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}

func (r *taskRepository) FindByOriginID(ctx context.Context, originID int64) ([]models.Task, error) {
	return r.FindAll(ctx, models.TaskFilter{OriginTaskID: &originID})
}

func (r *taskRepository) Update(ctx context.Context, task *models.Task) error {
	query := `
		UPDATE tasks SET
			title=$1, description=$2, start_time=$3, end_time=$4, priority=$5, status=$6,
			category=$7, color=$8, all_day=$9, repeat_type=$10, repeat_interval=$11,
			repeat_end_date=$12, updated_at=NOW()
		WHERE id=$13
		RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query,
		task.Title, task.Description, task.StartTime, task.EndTime, task.Priority, task.Status,
		task.Category, task.Color, task.AllDay, task.Recurrence.Type, task.Recurrence.Interval,
		task.Recurrence.EndDate, task.ID,
	).Scan(&task.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrTaskNotFound
	}
	return err
}

func (r *taskRepository) UpdateStatus(ctx context.Context, id int64, to models.TaskStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET status=$1, updated_at=NOW() WHERE id=$2`, to, id)
	if err != nil {
		return err
	}
	return requireAffected(res, models.ErrTaskNotFound)
}

func (r *taskRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, models.ErrTaskNotFound)
}

func (r *taskRepository) DeleteAll(ctx context.Context, tasks []models.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ANY($1)`, pq.Array(ids))
	return err
}

func (r *taskRepository) FindUpcoming(ctx context.Context, userID *int64, now, until time.Time) ([]models.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks
WHERE start_time BETWEEN $1 AND $2
  AND status <> 'COMPLETED'
  AND ($3::bigint IS NULL OR user_id = $3)
ORDER BY start_time ASC`
	rows, err := r.db.QueryContext(ctx, q, now, until, userID)
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}

func (r *taskRepository) FindOverdue(ctx context.Context, userID *int64, now time.Time) ([]models.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks
WHERE end_time < $1
  AND status NOT IN ('COMPLETED','CANCELLED')
  AND ($2::bigint IS NULL OR user_id = $2)
ORDER BY end_time ASC`
	rows, err := r.db.QueryContext(ctx, q, now, userID)
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}

func (r *taskRepository) ListDueForReminder(ctx context.Context, now, until time.Time, limit int) ([]models.Task, error) {
	q := `
SELECT ` + taskColumns + `
FROM tasks
WHERE start_time > $1
  AND start_time <= $2
  AND reminded_at IS NULL
  AND user_id IS NOT NULL
  AND status IN ('PENDING','IN_PROGRESS')
ORDER BY start_time ASC
LIMIT $3`
	rows, err := r.db.QueryContext(ctx, q, now, until, limit)
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}

func (r *taskRepository) SetReminderSent(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET reminded_at = $1 WHERE id=$2`, at, id)
	return err
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
