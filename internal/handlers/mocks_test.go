package handlers

import (
	"context"
	"io"
	"time"

	"calendartask/internal/gcal"
	"calendartask/internal/models"
	"calendartask/internal/services"
)

type MockTaskService struct {
	CreateFunc           func(ctx context.Context, task *models.Task, expand bool) (*models.Task, []models.Task, error)
	GetByIDFunc          func(ctx context.Context, id int64) (*models.Task, error)
	ListFunc             func(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	UpdateFunc           func(ctx context.Context, id int64, data *models.Task) (*models.Task, error)
	DeleteFunc           func(ctx context.Context, id int64, cascade bool) error
	InRangeFunc          func(ctx context.Context, userID *int64, from, to time.Time) ([]models.Task, error)
	UpdateStatusFunc     func(ctx context.Context, id int64, to models.TaskStatus) (*models.Task, error)
	ExpandRecurrenceFunc func(ctx context.Context, id int64, req services.ExpandRequest) ([]models.Task, error)
	InstancesFunc        func(ctx context.Context, id int64) ([]models.Task, error)
	DeleteInstancesFunc  func(ctx context.Context, id int64) (bool, error)
	ListCalls            []models.TaskFilter
}

func (m *MockTaskService) Create(ctx context.Context, task *models.Task, expand bool) (*models.Task, []models.Task, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, task, expand)
	}
	task.ID = 1
	return task, nil, nil
}

func (m *MockTaskService) GetByID(ctx context.Context, id int64) (*models.Task, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrTaskNotFound
}

func (m *MockTaskService) List(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	m.ListCalls = append(m.ListCalls, filter)
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return nil, nil
}

func (m *MockTaskService) Update(ctx context.Context, id int64, data *models.Task) (*models.Task, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, data)
	}
	data.ID = id
	return data, nil
}

func (m *MockTaskService) Delete(ctx context.Context, id int64, cascade bool) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id, cascade)
	}
	return nil
}

func (m *MockTaskService) ByStatus(ctx context.Context, userID *int64, status models.TaskStatus) ([]models.Task, error) {
	return m.List(ctx, models.TaskFilter{UserID: userID, Status: &status})
}

func (m *MockTaskService) ByPriority(ctx context.Context, userID *int64, priority models.TaskPriority) ([]models.Task, error) {
	return m.List(ctx, models.TaskFilter{UserID: userID, Priority: &priority})
}

func (m *MockTaskService) ByCategory(ctx context.Context, userID *int64, category string) ([]models.Task, error) {
	return m.List(ctx, models.TaskFilter{UserID: userID, Category: &category})
}

func (m *MockTaskService) InRange(ctx context.Context, userID *int64, from, to time.Time) ([]models.Task, error) {
	if m.InRangeFunc != nil {
		return m.InRangeFunc(ctx, userID, from, to)
	}
	if from.After(to) {
		return nil, services.ErrInvalidDateRange
	}
	return nil, nil
}

func (m *MockTaskService) Today(ctx context.Context, userID *int64) ([]models.Task, error) {
	return nil, nil
}

func (m *MockTaskService) ThisWeek(ctx context.Context, userID *int64) ([]models.Task, error) {
	return nil, nil
}

func (m *MockTaskService) ThisMonth(ctx context.Context, userID *int64) ([]models.Task, error) {
	return nil, nil
}

func (m *MockTaskService) Search(ctx context.Context, userID *int64, keyword string) ([]models.Task, error) {
	return m.List(ctx, models.TaskFilter{UserID: userID, Query: keyword})
}

func (m *MockTaskService) Upcoming(ctx context.Context, userID *int64) ([]models.Task, error) {
	return nil, nil
}

func (m *MockTaskService) Overdue(ctx context.Context, userID *int64) ([]models.Task, error) {
	return nil, nil
}

func (m *MockTaskService) MarkCompleted(ctx context.Context, id int64) (*models.Task, error) {
	return m.UpdateStatus(ctx, id, models.StatusCompleted)
}

func (m *MockTaskService) UpdateStatus(ctx context.Context, id int64, to models.TaskStatus) (*models.Task, error) {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, to)
	}
	return &models.Task{ID: id, Status: to}, nil
}

func (m *MockTaskService) ExpandRecurrence(ctx context.Context, id int64, req services.ExpandRequest) ([]models.Task, error) {
	if m.ExpandRecurrenceFunc != nil {
		return m.ExpandRecurrenceFunc(ctx, id, req)
	}
	return nil, nil
}

func (m *MockTaskService) Instances(ctx context.Context, id int64) ([]models.Task, error) {
	if m.InstancesFunc != nil {
		return m.InstancesFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockTaskService) DeleteInstances(ctx context.Context, id int64) (bool, error) {
	if m.DeleteInstancesFunc != nil {
		return m.DeleteInstancesFunc(ctx, id)
	}
	return false, nil
}

type MockUserService struct {
	RegisterFunc func(ctx context.Context, req models.RegisterRequest) (*models.User, error)
	LoginFunc    func(ctx context.Context, req models.LoginRequest) (*models.User, *services.TokenPair, error)
	RefreshFunc  func(ctx context.Context, token string) (*services.TokenPair, error)
	GetByIDFunc  func(ctx context.Context, id int64) (*models.User, error)
	StatsFunc    func(ctx context.Context) (*models.UserStats, error)
	Taken        map[string]bool
	LoggedOut    []int64
}

func (m *MockUserService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, req)
	}
	return &models.User{ID: 1, Username: req.Username, Email: req.Email}, nil
}

func (m *MockUserService) Login(ctx context.Context, req models.LoginRequest) (*models.User, *services.TokenPair, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, req)
	}
	return nil, nil, models.ErrInvalidCredentials
}

func (m *MockUserService) Refresh(ctx context.Context, token string) (*services.TokenPair, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, token)
	}
	return nil, services.ErrInvalidRefreshToken
}

func (m *MockUserService) Logout(ctx context.Context, userID int64) error {
	m.LoggedOut = append(m.LoggedOut, userID)
	return nil
}

func (m *MockUserService) GetByID(ctx context.Context, id int64) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return &models.User{ID: id, Username: "user"}, nil
}

func (m *MockUserService) UpdateProfile(ctx context.Context, id int64, upd models.ProfileUpdate) (*models.User, error) {
	u := &models.User{ID: id}
	if upd.Timezone != nil {
		if _, err := time.LoadLocation(*upd.Timezone); err != nil {
			return nil, services.ErrInvalidTimezone
		}
		u.Timezone = *upd.Timezone
	}
	return u, nil
}

func (m *MockUserService) Delete(ctx context.Context, id int64) error {
	return nil
}

func (m *MockUserService) IsUsernameAvailable(ctx context.Context, username string) (bool, error) {
	return !m.Taken[username], nil
}

func (m *MockUserService) IsEmailAvailable(ctx context.Context, email string) (bool, error) {
	return !m.Taken[email], nil
}

func (m *MockUserService) Stats(ctx context.Context) (*models.UserStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx)
	}
	return &models.UserStats{}, nil
}

type MockAgenda struct {
	Titles []string
	Count  int
}

func (m *MockAgenda) Render(w io.Writer, title string, tasks []models.Task) error {
	m.Titles = append(m.Titles, title)
	m.Count = len(tasks)
	_, err := io.WriteString(w, "%PDF-1.3 mock")
	return err
}

type MockSyncer struct {
	SyncTaskFunc func(ctx context.Context, task *models.Task) (*gcal.SyncResult, error)
}

func (m *MockSyncer) SyncTask(ctx context.Context, task *models.Task) (*gcal.SyncResult, error) {
	if m.SyncTaskFunc != nil {
		return m.SyncTaskFunc(ctx, task)
	}
	return &gcal.SyncResult{EventID: "evt", Created: true, Changed: true}, nil
}
