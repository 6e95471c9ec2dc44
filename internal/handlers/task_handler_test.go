package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"calendartask/internal/gcal"
	"calendartask/internal/middleware"
	"calendartask/internal/models"
	"calendartask/internal/services"
)

const testUserID int64 = 7

func ownedTask(id int64) *models.Task {
	owner := testUserID
	return &models.Task{ID: id, UserID: &owner, Title: "Mine", StartTime: time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC), Status: models.StatusPending}
}

func ownedLookup(ctx context.Context, id int64) (*models.Task, error) {
	switch id {
	case 1:
		return ownedTask(1), nil
	case 2:
		other := int64(99)
		return &models.Task{ID: 2, UserID: &other, Title: "Theirs"}, nil
	}
	return nil, models.ErrTaskNotFound
}

func newTaskRouter(h *TaskHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.CtxUserID, testUserID)
		c.Set(middleware.CtxRole, string(models.RoleUser))
	})
	tasks := r.Group("/api/tasks")
	tasks.GET("", h.List)
	tasks.POST("", h.Create)
	tasks.GET("/date-range", h.DateRange)
	tasks.GET("/status/:status", h.ByStatus)
	tasks.GET("/search", h.Search)
	tasks.GET("/agenda.pdf", h.AgendaPDF)
	tasks.GET("/:id", h.GetByID)
	tasks.PUT("/:id", h.Update)
	tasks.DELETE("/:id", h.Delete)
	tasks.PATCH("/:id/status", h.UpdateStatus)
	tasks.POST("/:id/recurrence/expand", h.ExpandRecurrence)
	tasks.GET("/:id/instances", h.Instances)
	tasks.DELETE("/:id/instances", h.DeleteInstances)
	tasks.POST("/:id/calendar-sync", h.CalendarSync)
	return r
}

func perform(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTaskHandlerCreate(t *testing.T) {
	var got *models.Task
	var gotExpand bool
	svc := &MockTaskService{CreateFunc: func(ctx context.Context, task *models.Task, expand bool) (*models.Task, []models.Task, error) {
		got, gotExpand = task, expand
		task.ID = 10
		if expand {
			return task, []models.Task{{ID: 11}, {ID: 12}}, nil
		}
		return task, nil, nil
	}}
	r := newTaskRouter(NewTaskHandler(svc, &MockAgenda{}, nil, nil))

	w := perform(r, http.MethodPost, "/api/tasks", `{"title":"Gym","start_time":"2024-03-13 18:00:00","priority":"high"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if got.UserID == nil || *got.UserID != testUserID {
		t.Errorf("Expected owner %d, got %v", testUserID, got.UserID)
	}
	if got.Priority != models.PriorityHigh {
		t.Errorf("Expected HIGH priority, got %q", got.Priority)
	}
	if !got.StartTime.Equal(time.Date(2024, 3, 13, 18, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected start time %v", got.StartTime)
	}
	if gotExpand {
		t.Error("Expected expand=false by default")
	}
	var plain struct {
		Task      *models.Task  `json:"task"`
		Instances []models.Task `json:"instances"`
		Count     int           `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &plain)
	if plain.Task == nil || plain.Task.ID != 10 || plain.Instances == nil || plain.Count != 0 {
		t.Errorf("Expected envelope with task 10 and no instances, got %s", w.Body.String())
	}

	w = perform(r, http.MethodPost, "/api/tasks?expand=true",
		`{"title":"Gym","start_time":"2024-03-13T18:00:00Z","recurrence":{"type":"daily","interval":2}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", w.Code)
	}
	var resp struct {
		Count int `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Count != 2 || got.Recurrence.Type != models.RecurrenceDaily || got.Recurrence.Interval != 2 {
		t.Errorf("Expected 2 instances of a DAILY/2 rule, got %d %+v", resp.Count, got.Recurrence)
	}

	if w := perform(r, http.MethodPost, "/api/tasks", `{"title":"x","start_time":"tomorrow"}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad start_time, got %d", w.Code)
	}
	if w := perform(r, http.MethodPost, "/api/tasks", `{"start_time":"2024-03-13 18:00:00"}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing title, got %d", w.Code)
	}
}

func TestTaskHandlerCreateShapeIgnoresServerSideExpansion(t *testing.T) {
	// the service may expand on its own (expand_on_create) without ?expand=true
	svc := &MockTaskService{CreateFunc: func(ctx context.Context, task *models.Task, expand bool) (*models.Task, []models.Task, error) {
		task.ID = 7
		return task, []models.Task{{ID: 8}, {ID: 9}, {ID: 10}}, nil
	}}
	r := newTaskRouter(NewTaskHandler(svc, &MockAgenda{}, nil, nil))

	w := perform(r, http.MethodPost, "/api/tasks",
		`{"title":"Sync","start_time":"2024-03-13 09:00:00","recurrence":{"type":"weekly"}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Task      *models.Task  `json:"task"`
		Instances []models.Task `json:"instances"`
		Count     int           `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid body: %v", err)
	}
	if resp.Task == nil || resp.Task.ID != 7 || resp.Count != 3 || len(resp.Instances) != 3 {
		t.Errorf("Expected task 7 with 3 instances, got %s", w.Body.String())
	}
	if strings.Contains(w.Body.String(), "expansion_error") {
		t.Errorf("Expected no expansion_error, got %s", w.Body.String())
	}
}

func TestTaskHandlerCreateReportsPartialExpansion(t *testing.T) {
	svc := &MockTaskService{CreateFunc: func(ctx context.Context, task *models.Task, expand bool) (*models.Task, []models.Task, error) {
		task.ID = 3
		return task, []models.Task{{ID: 4}}, services.ErrExpansionFailed
	}}
	r := newTaskRouter(NewTaskHandler(svc, &MockAgenda{}, nil, nil))

	w := perform(r, http.MethodPost, "/api/tasks?expand=true", `{"title":"x","start_time":"2024-03-13 18:00:00"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 for a saved task, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "expansion_error") {
		t.Errorf("Expected expansion_error in body, got %s", w.Body.String())
	}
}

func TestTaskHandlerOwnership(t *testing.T) {
	svc := &MockTaskService{GetByIDFunc: ownedLookup}
	r := newTaskRouter(NewTaskHandler(svc, &MockAgenda{}, nil, nil))

	cases := []struct {
		path string
		want int
	}{
		{"/api/tasks/1", http.StatusOK},
		{"/api/tasks/2", http.StatusForbidden},
		{"/api/tasks/3", http.StatusNotFound},
		{"/api/tasks/abc", http.StatusBadRequest},
	}
	for _, tc := range cases {
		if w := perform(r, http.MethodGet, tc.path, ""); w.Code != tc.want {
			t.Errorf("GET %s: expected %d, got %d", tc.path, tc.want, w.Code)
		}
	}

	if w := perform(r, http.MethodDelete, "/api/tasks/2", ""); w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 deleting someone else's task, got %d", w.Code)
	}
}

func TestTaskHandlerListFilters(t *testing.T) {
	svc := &MockTaskService{}
	r := newTaskRouter(NewTaskHandler(svc, &MockAgenda{}, nil, nil))

	w := perform(r, http.MethodGet, "/api/tasks?status=in_progress&priority=LOW&category=work&from=2024-03-01&to=2024-03-31%2023:59:59&q=plan&limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("Expected empty JSON array, got %s", w.Body.String())
	}
	f := svc.ListCalls[0]
	if *f.UserID != testUserID || *f.Status != models.StatusInProgress || *f.Priority != models.PriorityLow {
		t.Errorf("Unexpected filter %+v", f)
	}
	if *f.Category != "work" || f.Query != "plan" || f.Limit != 5 {
		t.Errorf("Unexpected filter %+v", f)
	}
	if f.To == nil || f.To.Hour() != 23 || f.From == nil || f.From.Day() != 1 {
		t.Errorf("Expected parsed range, got %v..%v", f.From, f.To)
	}

	if w := perform(r, http.MethodGet, "/api/tasks?status=someday", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown status, got %d", w.Code)
	}
	if w := perform(r, http.MethodGet, "/api/tasks/status/nope", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown status path, got %d", w.Code)
	}
	if w := perform(r, http.MethodGet, "/api/tasks/search", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty keyword, got %d", w.Code)
	}
}

func TestTaskHandlerDateRange(t *testing.T) {
	r := newTaskRouter(NewTaskHandler(&MockTaskService{}, &MockAgenda{}, nil, nil))

	if w := perform(r, http.MethodGet, "/api/tasks/date-range?startDate=2024-03-01%2000:00:00&endDate=2024-03-31%2023:59:59", ""); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if w := perform(r, http.MethodGet, "/api/tasks/date-range?startDate=2024-04-01&endDate=2024-03-01", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for reversed range, got %d", w.Code)
	}
	if w := perform(r, http.MethodGet, "/api/tasks/date-range?startDate=soon", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad startDate, got %d", w.Code)
	}
}

func TestTaskHandlerUpdateStatus(t *testing.T) {
	svc := &MockTaskService{
		GetByIDFunc: ownedLookup,
		UpdateStatusFunc: func(ctx context.Context, id int64, to models.TaskStatus) (*models.Task, error) {
			if to == models.StatusCancelled {
				return nil, services.ErrIllegalTransition
			}
			return &models.Task{ID: id, Status: to}, nil
		},
	}
	r := newTaskRouter(NewTaskHandler(svc, &MockAgenda{}, nil, nil))

	if w := perform(r, http.MethodPatch, "/api/tasks/1/status", `{"status":"completed"}`); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := perform(r, http.MethodPatch, "/api/tasks/1/status?status=CANCELLED", ""); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for illegal transition, got %d", w.Code)
	}
	if w := perform(r, http.MethodPatch, "/api/tasks/1/status", `{"status":"later"}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown status, got %d", w.Code)
	}
}

func TestTaskHandlerExpandRecurrence(t *testing.T) {
	var gotReq services.ExpandRequest
	svc := &MockTaskService{
		GetByIDFunc: ownedLookup,
		ExpandRecurrenceFunc: func(ctx context.Context, id int64, req services.ExpandRequest) ([]models.Task, error) {
			gotReq = req
			return []models.Task{{ID: 20}, {ID: 21}, {ID: 22}}, nil
		},
	}
	r := newTaskRouter(NewTaskHandler(svc, &MockAgenda{}, nil, nil))

	w := perform(r, http.MethodPost, "/api/tasks/1/recurrence/expand", `{"type":"weekly","interval":2,"end_date":"2024-06-30"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if gotReq.Type == nil || *gotReq.Type != models.RecurrenceWeekly || gotReq.Interval == nil || *gotReq.Interval != 2 || gotReq.EndDate == nil {
		t.Errorf("Expected overrides to be passed through, got %+v", gotReq)
	}
	if !strings.Contains(w.Body.String(), `"count":3`) {
		t.Errorf("Expected count 3, got %s", w.Body.String())
	}

	if w := perform(r, http.MethodPost, "/api/tasks/1/recurrence/expand", ""); w.Code != http.StatusCreated {
		t.Errorf("Expected empty body to use the task's own rule, got %d", w.Code)
	}
	if gotReq.Type != nil || gotReq.Interval != nil {
		t.Errorf("Expected no overrides, got %+v", gotReq)
	}

	if w := perform(r, http.MethodPost, "/api/tasks/1/recurrence/expand", `{"type":"hourly"}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown type, got %d", w.Code)
	}

	for _, err := range []error{services.ErrNotExpandable, services.ErrExpansionInProgress} {
		svc.ExpandRecurrenceFunc = func(context.Context, int64, services.ExpandRequest) ([]models.Task, error) {
			return nil, err
		}
		if w := perform(r, http.MethodPost, "/api/tasks/1/recurrence/expand", ""); w.Code != http.StatusConflict {
			t.Errorf("Expected 409 for %v, got %d", err, w.Code)
		}
	}
}

func TestTaskHandlerDeleteCascadeAndInstances(t *testing.T) {
	var cascaded bool
	svc := &MockTaskService{
		GetByIDFunc: ownedLookup,
		DeleteFunc: func(ctx context.Context, id int64, cascade bool) error {
			cascaded = cascade
			return nil
		},
		DeleteInstancesFunc: func(ctx context.Context, id int64) (bool, error) { return true, nil },
	}
	r := newTaskRouter(NewTaskHandler(svc, &MockAgenda{}, nil, nil))

	if w := perform(r, http.MethodDelete, "/api/tasks/1?cascade=true", ""); w.Code != http.StatusNoContent || !cascaded {
		t.Errorf("Expected cascading 204, got %d cascade=%v", w.Code, cascaded)
	}
	w := perform(r, http.MethodDelete, "/api/tasks/1/instances", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"deleted":true`) {
		t.Errorf("Expected deleted=true, got %d %s", w.Code, w.Body.String())
	}
}

func TestTaskHandlerAgendaPDF(t *testing.T) {
	agenda := &MockAgenda{}
	svc := &MockTaskService{InRangeFunc: func(ctx context.Context, userID *int64, from, to time.Time) ([]models.Task, error) {
		return []models.Task{*ownedTask(1)}, nil
	}}
	r := newTaskRouter(NewTaskHandler(svc, agenda, nil, nil))

	w := perform(r, http.MethodGet, "/api/tasks/agenda.pdf?from=2024-03-11&to=2024-03-17", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Expected application/pdf, got %q", ct)
	}
	if agenda.Count != 1 || agenda.Titles[0] != "Agenda 2024-03-11 - 2024-03-17" {
		t.Errorf("Unexpected render call %+v", agenda)
	}
}

func TestTaskHandlerCalendarSync(t *testing.T) {
	svc := &MockTaskService{GetByIDFunc: ownedLookup}

	r := newTaskRouter(NewTaskHandler(svc, &MockAgenda{}, nil, nil))
	if w := perform(r, http.MethodPost, "/api/tasks/1/calendar-sync", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without syncer, got %d", w.Code)
	}

	r = newTaskRouter(NewTaskHandler(svc, &MockAgenda{}, &MockSyncer{}, nil))
	w := perform(r, http.MethodPost, "/api/tasks/1/calendar-sync", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"event_id":"evt"`) {
		t.Errorf("Expected synced event, got %d %s", w.Code, w.Body.String())
	}

	failing := &MockSyncer{SyncTaskFunc: func(context.Context, *models.Task) (*gcal.SyncResult, error) {
		return nil, errors.New("quota exceeded")
	}}
	r = newTaskRouter(NewTaskHandler(svc, &MockAgenda{}, failing, nil))
	if w := perform(r, http.MethodPost, "/api/tasks/1/calendar-sync", ""); w.Code != http.StatusBadGateway {
		t.Errorf("Expected 502 on sync failure, got %d", w.Code)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[error]int{
		models.ErrTaskNotFound:                   http.StatusNotFound,
		models.ErrTitleRequired:                  http.StatusBadRequest,
		services.ErrIllegalTransition:            http.StatusConflict,
		models.ErrInvalidCredentials:             http.StatusUnauthorized,
		models.ErrUserInactive:                   http.StatusForbidden,
		errors.New("boom"):                       http.StatusInternalServerError,
		errors.Join(models.ErrEmailTaken):        http.StatusConflict,
		errors.Join(services.ErrRefreshExpired):  http.StatusUnauthorized,
		errors.Join(models.ErrInvalidRecurrence): http.StatusBadRequest,
		errors.Join(services.ErrInvalidTimezone): http.StatusBadRequest,
		models.ErrInvalidInterval:                http.StatusBadRequest,
	}
	for err, want := range cases {
		if got := httpStatus(err); got != want {
			t.Errorf("httpStatus(%v): expected %d, got %d", err, want, got)
		}
	}
}
