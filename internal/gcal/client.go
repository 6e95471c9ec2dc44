package gcal

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"calendartask/internal/models"
)

// SyncResult describes the event a task was mirrored to.
type SyncResult struct {
	EventID  string `json:"event_id"`
	HTMLLink string `json:"html_link,omitempty"`
	Created  bool   `json:"created"`
	Changed  bool   `json:"changed"`
}

// Syncer pushes a task to an external calendar.
type Syncer interface {
	SyncTask(ctx context.Context, task *models.Task) (*SyncResult, error)
}

type Client struct {
	srv        *calendar.Service
	calendarID string
	log        *zap.SugaredLogger
}

// NewClient authenticates with a service account (or any credentials JSON
// understood by golang.org/x/oauth2/google).
func NewClient(ctx context.Context, credentialsFile, calendarID string, log *zap.SugaredLogger) (*Client, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file %s: %w", credentialsFile, err)
	}
	creds, err := google.CredentialsFromJSON(ctx, b, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}
	srv, err := calendar.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("unable to create calendar service: %w", err)
	}
	return NewClientWithService(srv, calendarID, log), nil
}

func NewClientWithService(srv *calendar.Service, calendarID string, log *zap.SugaredLogger) *Client {
	if calendarID == "" {
		calendarID = "primary"
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{srv: srv, calendarID: calendarID, log: log}
}

// SyncTask inserts the task's event or patches the one already linked to it.
func (c *Client) SyncTask(ctx context.Context, task *models.Task) (*SyncResult, error) {
	target, err := ToEvent(task)
	if err != nil {
		return nil, err
	}

	existing, err := c.findByTaskID(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("error searching for event: %w", err)
	}

	if existing == nil {
		created, err := c.srv.Events.Insert(c.calendarID, target).Context(ctx).Do()
		if err != nil {
			c.log.Errorw("[gcal][insert][err]", "task_id", task.ID, "error", err)
			return nil, err
		}
		c.log.Infow("[gcal][insert][ok]", "task_id", task.ID, "event_id", created.Id)
		return &SyncResult{EventID: created.Id, HTMLLink: created.HtmlLink, Created: true, Changed: true}, nil
	}

	patch := diff(existing, target)
	if patch == nil {
		return &SyncResult{EventID: existing.Id, HTMLLink: existing.HtmlLink}, nil
	}
	updated, err := c.srv.Events.Patch(c.calendarID, existing.Id, patch).Context(ctx).Do()
	if err != nil {
		c.log.Errorw("[gcal][patch][err]", "task_id", task.ID, "event_id", existing.Id, "error", err)
		return nil, err
	}
	c.log.Infow("[gcal][patch][ok]", "task_id", task.ID, "event_id", updated.Id)
	return &SyncResult{EventID: updated.Id, HTMLLink: updated.HtmlLink, Changed: true}, nil
}

func (c *Client) findByTaskID(ctx context.Context, taskID int64) (*calendar.Event, error) {
	events, err := c.srv.Events.List(c.calendarID).
		PrivateExtendedProperty(TaskIDProperty + "=" + strconv.FormatInt(taskID, 10)).
		ShowDeleted(false).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if len(events.Items) > 0 {
		return events.Items[0], nil
	}
	return nil, nil
}
