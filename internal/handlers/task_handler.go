package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"calendartask/internal/authz"
	"calendartask/internal/gcal"
	"calendartask/internal/models"
	"calendartask/internal/pdf"
	"calendartask/internal/services"
)

type TaskHandler struct {
	service services.TaskService
	agenda  pdf.Generator
	syncer  gcal.Syncer // nil when Google Calendar is not configured
	log     *zap.SugaredLogger
}

func NewTaskHandler(service services.TaskService, agenda pdf.Generator, syncer gcal.Syncer, log *zap.SugaredLogger) *TaskHandler {
	return &TaskHandler{service: service, agenda: agenda, syncer: syncer, log: nopIfNil(log)}
}

type recurrenceRequest struct {
	Type     string  `json:"type"`
	Interval int     `json:"interval"`
	EndDate  *string `json:"end_date"`
}

type taskRequest struct {
	Title       string             `json:"title" binding:"required,max=255"`
	Description string             `json:"description" binding:"max=1000"`
	StartTime   string             `json:"start_time" binding:"required"`
	EndTime     *string            `json:"end_time"`
	Priority    string             `json:"priority"`
	Status      string             `json:"status"`
	Category    string             `json:"category" binding:"max=50"`
	Color       string             `json:"color"`
	AllDay      bool               `json:"all_day"`
	Recurrence  *recurrenceRequest `json:"recurrence"`
}

func (r *taskRequest) toTask() (*models.Task, error) {
	start, err := parseTime(r.StartTime, time.UTC)
	if err != nil {
		return nil, errors.New("invalid start_time")
	}
	end, err := parseOptionalTime(r.EndTime, time.UTC)
	if err != nil {
		return nil, errors.New("invalid end_time")
	}
	task := &models.Task{
		Title:       strings.TrimSpace(r.Title),
		Description: r.Description,
		StartTime:   start,
		EndTime:     end,
		Priority:    models.TaskPriority(strings.ToUpper(r.Priority)),
		Status:      models.TaskStatus(strings.ToUpper(r.Status)),
		Category:    strings.TrimSpace(r.Category),
		Color:       r.Color,
		AllDay:      r.AllDay,
	}
	if r.Recurrence != nil {
		until, err := parseOptionalTime(r.Recurrence.EndDate, time.UTC)
		if err != nil {
			return nil, errors.New("invalid recurrence.end_date")
		}
		task.Recurrence = models.Recurrence{
			Type:     models.RecurrenceType(strings.ToUpper(r.Recurrence.Type)),
			Interval: r.Recurrence.Interval,
			EndDate:  until,
		}
	}
	return task, nil
}

type expandRequest struct {
	Type     *string `json:"type"`
	Interval *int    `json:"interval"`
	EndDate  *string `json:"end_date"`
}

// loadOwned fetches the task and checks the caller may manage it.
func (h *TaskHandler) loadOwned(c *gin.Context, tag string) (*models.Task, bool) {
	userID, role := getUserAndRole(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		h.log.Warnw(tag+"[bad_id]", "param", c.Param("id"))
		return nil, false
	}
	task, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, tag, err)
		return nil, false
	}
	if !authz.CanManageTask(userID, role, task) {
		h.log.Warnw(tag+"[deny]", "id", id, "user_id", userID)
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return nil, false
	}
	return task, true
}

func (h *TaskHandler) respondList(c *gin.Context, tag string, tasks []models.Task, err error) {
	if err != nil {
		respondError(c, h.log, tag, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	h.log.Debugw(tag+"[ok]", "count", len(tasks))
	c.JSON(http.StatusOK, tasks)
}

// createTaskResponse is the body of POST /api/tasks. ExpansionError is set
// when the task was saved but its expansion stopped early.
type createTaskResponse struct {
	Task           *models.Task  `json:"task"`
	Instances      []models.Task `json:"instances"`
	Count          int           `json:"count"`
	ExpansionError string        `json:"expansion_error,omitempty"`
}

// @Summary      Create task
// @Tags         Tasks
// @Accept       json
// @Produce      json
// @Param        task    body   taskRequest  true   "Task"
// @Description  Always answers with the same envelope. instances holds whatever expansion
// @Description  ran on create (?expand=true, or recurrence.expand_on_create on the server)
// @Description  and is empty otherwise.
// @Param        expand  query  bool         false  "Expand recurrence immediately"
// @Success      201  {object}  createTaskResponse
// @Failure      400  {object}  map[string]string
// @Security     BearerAuth
// @Router       /api/tasks [post]
func (h *TaskHandler) Create(c *gin.Context) {
	userID, _ := getUserAndRole(c)

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnw("[task][create][bind][err]", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := req.toTask()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task.UserID = &userID

	expand := queryBool(c, "expand")
	created, instances, err := h.service.Create(c.Request.Context(), task, expand)
	if err != nil && created == nil {
		respondError(c, h.log, "[task][create]", err)
		return
	}
	h.log.Infow("[task][create][ok]", "id", created.ID, "user_id", userID, "instances", len(instances))

	if instances == nil {
		instances = []models.Task{}
	}
	resp := createTaskResponse{Task: created, Instances: instances, Count: len(instances)}
	if err != nil {
		// задача сохранена, развёртка оборвалась
		h.log.Errorw("[task][create][expand][err]", "id", created.ID, "error", err)
		resp.ExpansionError = err.Error()
	}
	c.JSON(http.StatusCreated, resp)
}

// @Summary      List tasks
// @Tags         Tasks
// @Produce      json
// @Param        status    query  string  false  "Status"
// @Param        priority  query  string  false  "Priority"
// @Param        category  query  string  false  "Category"
// @Param        from      query  string  false  "Start bound (yyyy-MM-dd HH:mm:ss or RFC3339)"
// @Param        to        query  string  false  "End bound"
// @Param        q         query  string  false  "Title contains"
// @Success      200  {array}  models.Task
// @Security     BearerAuth
// @Router       /api/tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	filter := models.TaskFilter{
		UserID: &userID,
		Query:  strings.TrimSpace(c.Query("q")),
		Limit:  queryInt(c, "limit", 0),
		Offset: queryInt(c, "offset", 0),
	}
	if v, ok := c.GetQuery("status"); ok {
		st, valid := models.ParseTaskStatus(v)
		if !valid {
			c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrInvalidStatus.Error()})
			return
		}
		filter.Status = &st
	}
	if v, ok := c.GetQuery("priority"); ok {
		p, valid := models.ParseTaskPriority(v)
		if !valid {
			c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrInvalidPriority.Error()})
			return
		}
		filter.Priority = &p
	}
	if v, ok := c.GetQuery("category"); ok {
		cat := v
		filter.Category = &cat
	}
	for key, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		if v, ok := c.GetQuery(key); ok {
			t, err := parseTime(v, time.UTC)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
				return
			}
			*dst = &t
		}
	}

	tasks, err := h.service.List(c.Request.Context(), filter)
	h.respondList(c, "[task][list]", tasks, err)
}

// @Summary      Get task
// @Tags         Tasks
// @Produce      json
// @Param        id   path  int  true  "Task ID"
// @Success      200  {object}  models.Task
// @Failure      404  {object}  map[string]string
// @Security     BearerAuth
// @Router       /api/tasks/{id} [get]
func (h *TaskHandler) GetByID(c *gin.Context) {
	task, ok := h.loadOwned(c, "[task][get]")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, task)
}

// @Summary      Replace task fields
// @Tags         Tasks
// @Accept       json
// @Produce      json
// @Param        id    path  int          true  "Task ID"
// @Param        task  body  taskRequest  true  "Task"
// @Success      200  {object}  models.Task
// @Security     BearerAuth
// @Router       /api/tasks/{id} [put]
func (h *TaskHandler) Update(c *gin.Context) {
	current, ok := h.loadOwned(c, "[task][update]")
	if !ok {
		return
	}
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnw("[task][update][bind][err]", "id", current.ID, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, err := req.toTask()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := h.service.Update(c.Request.Context(), current.ID, data)
	if err != nil {
		respondError(c, h.log, "[task][update]", err)
		return
	}
	h.log.Infow("[task][update][ok]", "id", updated.ID)
	c.JSON(http.StatusOK, updated)
}

// @Summary      Delete task
// @Tags         Tasks
// @Param        id       path   int   true   "Task ID"
// @Param        cascade  query  bool  false  "Also delete generated instances"
// @Success      204
// @Security     BearerAuth
// @Router       /api/tasks/{id} [delete]
func (h *TaskHandler) Delete(c *gin.Context) {
	task, ok := h.loadOwned(c, "[task][delete]")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), task.ID, queryBool(c, "cascade")); err != nil {
		respondError(c, h.log, "[task][delete]", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/tasks/status/:status
func (h *TaskHandler) ByStatus(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	st, ok := models.ParseTaskStatus(c.Param("status"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrInvalidStatus.Error()})
		return
	}
	tasks, err := h.service.ByStatus(c.Request.Context(), &userID, st)
	h.respondList(c, "[task][by_status]", tasks, err)
}

// GET /api/tasks/priority/:priority
func (h *TaskHandler) ByPriority(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	p, ok := models.ParseTaskPriority(c.Param("priority"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrInvalidPriority.Error()})
		return
	}
	tasks, err := h.service.ByPriority(c.Request.Context(), &userID, p)
	h.respondList(c, "[task][by_priority]", tasks, err)
}

// GET /api/tasks/category/:category
func (h *TaskHandler) ByCategory(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	tasks, err := h.service.ByCategory(c.Request.Context(), &userID, c.Param("category"))
	h.respondList(c, "[task][by_category]", tasks, err)
}

// @Summary      Tasks in a date range
// @Tags         Calendar
// @Produce      json
// @Param        startDate  query  string  true  "yyyy-MM-dd HH:mm:ss or RFC3339"
// @Param        endDate    query  string  true  "yyyy-MM-dd HH:mm:ss or RFC3339"
// @Success      200  {array}  models.Task
// @Security     BearerAuth
// @Router       /api/tasks/date-range [get]
func (h *TaskHandler) DateRange(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	from, err := parseTime(c.Query("startDate"), time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid startDate"})
		return
	}
	to, err := parseTime(c.Query("endDate"), time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endDate"})
		return
	}
	tasks, err := h.service.InRange(c.Request.Context(), &userID, from, to)
	h.respondList(c, "[task][range]", tasks, err)
}

func (h *TaskHandler) Today(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	tasks, err := h.service.Today(c.Request.Context(), &userID)
	h.respondList(c, "[task][today]", tasks, err)
}

func (h *TaskHandler) ThisWeek(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	tasks, err := h.service.ThisWeek(c.Request.Context(), &userID)
	h.respondList(c, "[task][week]", tasks, err)
}

func (h *TaskHandler) ThisMonth(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	tasks, err := h.service.ThisMonth(c.Request.Context(), &userID)
	h.respondList(c, "[task][month]", tasks, err)
}

// GET /api/tasks/search?keyword=
func (h *TaskHandler) Search(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	keyword := strings.TrimSpace(c.Query("keyword"))
	if keyword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "keyword is required"})
		return
	}
	tasks, err := h.service.Search(c.Request.Context(), &userID, keyword)
	h.respondList(c, "[task][search]", tasks, err)
}

func (h *TaskHandler) Upcoming(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	tasks, err := h.service.Upcoming(c.Request.Context(), &userID)
	h.respondList(c, "[task][upcoming]", tasks, err)
}

func (h *TaskHandler) Overdue(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	tasks, err := h.service.Overdue(c.Request.Context(), &userID)
	h.respondList(c, "[task][overdue]", tasks, err)
}

// PATCH /api/tasks/:id/complete
func (h *TaskHandler) MarkCompleted(c *gin.Context) {
	task, ok := h.loadOwned(c, "[task][complete]")
	if !ok {
		return
	}
	updated, err := h.service.MarkCompleted(c.Request.Context(), task.ID)
	if err != nil {
		respondError(c, h.log, "[task][complete]", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// @Summary      Change task status
// @Tags         Tasks
// @Accept       json
// @Produce      json
// @Param        id      path   int     true   "Task ID"
// @Param        status  query  string  false  "New status (or JSON body {\"status\": ...})"
// @Success      200  {object}  models.Task
// @Failure      409  {object}  map[string]string
// @Security     BearerAuth
// @Router       /api/tasks/{id}/status [patch]
func (h *TaskHandler) UpdateStatus(c *gin.Context) {
	task, ok := h.loadOwned(c, "[task][status]")
	if !ok {
		return
	}
	raw := c.Query("status")
	if raw == "" {
		var body struct {
			Status string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
			return
		}
		raw = body.Status
	}
	st, valid := models.ParseTaskStatus(raw)
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrInvalidStatus.Error()})
		return
	}
	updated, err := h.service.UpdateStatus(c.Request.Context(), task.ID, st)
	if err != nil {
		respondError(c, h.log, "[task][status]", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// @Summary      Expand recurrence
// @Description  Generates instances of a recurring task up to its end date (or one year).
// @Description  Body fields override the task's own recurrence for this run only.
// @Tags         Recurrence
// @Accept       json
// @Produce      json
// @Param        id    path  int            true   "Origin task ID"
// @Param        rule  body  expandRequest  false  "Overrides"
// @Success      201  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]string
// @Security     BearerAuth
// @Router       /api/tasks/{id}/recurrence/expand [post]
func (h *TaskHandler) ExpandRecurrence(c *gin.Context) {
	task, ok := h.loadOwned(c, "[task][expand]")
	if !ok {
		return
	}
	var body expandRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	var req services.ExpandRequest
	if body.Type != nil {
		typ, valid := models.ParseRecurrenceType(*body.Type)
		if !valid {
			c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrInvalidRecurrence.Error()})
			return
		}
		req.Type = &typ
	}
	req.Interval = body.Interval
	until, err := parseOptionalTime(body.EndDate, time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date"})
		return
	}
	req.EndDate = until

	instances, err := h.service.ExpandRecurrence(c.Request.Context(), task.ID, req)
	if err != nil {
		respondError(c, h.log, "[task][expand]", err)
		return
	}
	if instances == nil {
		instances = []models.Task{}
	}
	h.log.Infow("[task][expand][ok]", "id", task.ID, "count", len(instances))
	c.JSON(http.StatusCreated, gin.H{"origin_id": task.ID, "count": len(instances), "instances": instances})
}

// GET /api/tasks/:id/instances
func (h *TaskHandler) Instances(c *gin.Context) {
	task, ok := h.loadOwned(c, "[task][instances]")
	if !ok {
		return
	}
	tasks, err := h.service.Instances(c.Request.Context(), task.ID)
	h.respondList(c, "[task][instances]", tasks, err)
}

// DELETE /api/tasks/:id/instances
func (h *TaskHandler) DeleteInstances(c *gin.Context) {
	task, ok := h.loadOwned(c, "[task][instances][delete]")
	if !ok {
		return
	}
	deleted, err := h.service.DeleteInstances(c.Request.Context(), task.ID)
	if err != nil {
		respondError(c, h.log, "[task][instances][delete]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"origin_id": task.ID, "deleted": deleted})
}

// @Summary      Agenda as PDF
// @Tags         Calendar
// @Produce      application/pdf
// @Param        from  query  string  false  "Defaults to today 00:00"
// @Param        to    query  string  false  "Defaults to seven days after from"
// @Success      200  {file}  binary
// @Security     BearerAuth
// @Router       /api/tasks/agenda.pdf [get]
func (h *TaskHandler) AgendaPDF(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if v := c.Query("from"); v != "" {
		t, err := parseTime(v, time.UTC)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
		from = t
	}
	to := from.AddDate(0, 0, 7).Add(-time.Nanosecond)
	if v := c.Query("to"); v != "" {
		t, err := parseTime(v, time.UTC)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
		to = t
	}

	tasks, err := h.service.InRange(c.Request.Context(), &userID, from, to)
	if err != nil {
		respondError(c, h.log, "[task][agenda]", err)
		return
	}
	title := "Agenda " + from.Format("2006-01-02") + " - " + to.Format("2006-01-02")
	var buf bytes.Buffer
	if err := h.agenda.Render(&buf, title, tasks); err != nil {
		respondError(c, h.log, "[task][agenda]", err)
		return
	}
	c.Header("Content-Disposition", `inline; filename="agenda.pdf"`)
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// @Summary      Push task to Google Calendar
// @Tags         Calendar
// @Produce      json
// @Param        id  path  int  true  "Task ID"
// @Success      200  {object}  gcal.SyncResult
// @Failure      503  {object}  map[string]string
// @Security     BearerAuth
// @Router       /api/tasks/{id}/calendar-sync [post]
func (h *TaskHandler) CalendarSync(c *gin.Context) {
	if h.syncer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "calendar sync is not configured"})
		return
	}
	task, ok := h.loadOwned(c, "[task][gcal]")
	if !ok {
		return
	}
	res, err := h.syncer.SyncTask(c.Request.Context(), task)
	if err != nil {
		h.log.Errorw("[task][gcal][err]", "id", task.ID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "calendar sync failed"})
		return
	}
	c.JSON(http.StatusOK, res)
}
