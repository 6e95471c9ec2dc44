package services

import (
	"context"
	"errors"
	"html"
	"time"

	"go.uber.org/zap"

	"calendartask/internal/models"
	"calendartask/internal/repositories"
)

const reminderBatch = 100

// ReminderWorker sends a Telegram message shortly before a task starts.
// Each task is reminded at most once.
type ReminderWorker struct {
	tasks    repositories.TaskRepository
	users    repositories.UserRepository
	notifier Notifier
	window   time.Duration
	interval time.Duration
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewReminderWorker(tasks repositories.TaskRepository, users repositories.UserRepository, notifier Notifier,
	window, interval time.Duration, log *zap.SugaredLogger) *ReminderWorker {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ReminderWorker{
		tasks:    tasks,
		users:    users,
		notifier: notifier,
		window:   window,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

// Run polls until ctx is cancelled.
func (w *ReminderWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Infow("[reminder][start]", "window", w.window, "interval", w.interval)
	for {
		if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.log.Errorw("[reminder][tick][err]", "error", err)
		}
		select {
		case <-ctx.Done():
			w.log.Infow("[reminder][stop]")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce handles one batch and returns the number of messages sent.
func (w *ReminderWorker) RunOnce(ctx context.Context) (int, error) {
	now := w.now()
	due, err := w.tasks.ListDueForReminder(ctx, now, now.Add(w.window), reminderBatch)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range due {
		t := &due[i]
		user, err := w.users.GetByID(ctx, *t.UserID)
		if err != nil {
			w.log.Warnw("[reminder][user][err]", "task_id", t.ID, "user_id", *t.UserID, "error", err)
			continue
		}
		if user.IsActive() && user.NotifyTasksTelegram && user.TelegramChatID != 0 {
			if err := w.notifier.SendMessage(user.TelegramChatID, formatReminder(t, user)); err != nil {
				// retried on the next tick
				continue
			}
			sent++
		}
		if err := w.tasks.SetReminderSent(ctx, t.ID, now); err != nil {
			w.log.Errorw("[reminder][mark][err]", "task_id", t.ID, "error", err)
		}
	}
	if len(due) > 0 {
		w.log.Infow("[reminder][tick][ok]", "due", len(due), "sent", sent)
	}
	return sent, nil
}

func formatReminder(t *models.Task, u *models.User) string {
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		loc = time.UTC
	}
	start := t.StartTime.In(loc)
	when := start.Format("2006-01-02 15:04")
	if t.AllDay {
		when = start.Format("2006-01-02")
	}
	msg := "⏰ Task starting soon\n" +
		"• <b>" + html.EscapeString(t.Title) + "</b>\n" +
		"• Starts: <code>" + when + "</code>\n" +
		"• Priority: <code>" + string(t.Priority) + "</code>"
	if t.Category != "" {
		msg += "\n• Category: <code>" + html.EscapeString(t.Category) + "</code>"
	}
	return msg
}
