package services

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"calendartask/internal/lock"
	"calendartask/internal/models"
	"calendartask/internal/repositories"
)

// Wednesday.
var fixedNow = time.Date(2024, time.March, 13, 10, 0, 0, 0, time.UTC)

func newTestRepos(t *testing.T) *repositories.Store {
	t.Helper()
	db, err := repositories.OpenGorm(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	store := repositories.NewGormStore(db)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestTaskService(t *testing.T, opts ...TaskServiceOption) (TaskService, repositories.TaskRepository) {
	t.Helper()
	repo := newTestRepos(t).Tasks
	opts = append([]TaskServiceOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewTaskService(repo, nil, opts...), repo
}

func mustCreate(t *testing.T, svc TaskService, task models.Task) *models.Task {
	t.Helper()
	created, _, err := svc.Create(context.Background(), &task, false)
	if err != nil {
		t.Fatalf("Create %q failed: %v", task.Title, err)
	}
	return created
}

func TestTaskServiceCreateAppliesDefaults(t *testing.T) {
	svc, _ := newTestTaskService(t)

	task := mustCreate(t, svc, models.Task{Title: "Dentist", StartTime: fixedNow})
	if task.Priority != models.PriorityMedium || task.Status != models.StatusPending {
		t.Errorf("Expected MEDIUM/PENDING defaults, got %s/%s", task.Priority, task.Status)
	}
	if task.Color != models.DefaultTaskColor {
		t.Errorf("Expected default color, got %q", task.Color)
	}
	if task.Recurrence.Type != models.RecurrenceNone || task.Recurrence.Interval != 1 {
		t.Errorf("Expected NONE/1 recurrence, got %+v", task.Recurrence)
	}
}

func TestTaskServiceCreateValidates(t *testing.T) {
	svc, _ := newTestTaskService(t)
	before := fixedNow.Add(-time.Hour)

	cases := []struct {
		name string
		task models.Task
		want error
	}{
		{"missing title", models.Task{StartTime: fixedNow}, models.ErrTitleRequired},
		{"missing start", models.Task{Title: "x"}, models.ErrStartTimeRequired},
		{"end before start", models.Task{Title: "x", StartTime: fixedNow, EndTime: &before}, models.ErrInvalidTimeRange},
		{"bad priority", models.Task{Title: "x", StartTime: fixedNow, Priority: "SOMEDAY"}, models.ErrInvalidPriority},
		{"bad recurrence", models.Task{Title: "x", StartTime: fixedNow, Recurrence: models.Recurrence{Type: "HOURLY"}}, models.ErrInvalidRecurrence},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			task := c.task
			if _, _, err := svc.Create(context.Background(), &task, false); !errors.Is(err, c.want) {
				t.Errorf("Expected %v, got %v", c.want, err)
			}
		})
	}
}

func TestTaskServiceCreateWithExpand(t *testing.T) {
	svc, _ := newTestTaskService(t)
	until := fixedNow.AddDate(0, 0, 5)

	task := models.Task{
		Title:      "Stretch",
		StartTime:  fixedNow,
		Recurrence: models.Recurrence{Type: models.RecurrenceDaily, Interval: 1, EndDate: &until},
	}
	created, instances, err := svc.Create(context.Background(), &task, true)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(instances) != 4 {
		t.Fatalf("Expected 4 instances before the end date, got %d", len(instances))
	}
	for i, inst := range instances {
		if inst.OriginTaskID == nil || *inst.OriginTaskID != created.ID {
			t.Errorf("Instance %d: expected origin %d, got %v", i, created.ID, inst.OriginTaskID)
		}
	}

	plain := models.Task{Title: "Once", StartTime: fixedNow, Recurrence: task.Recurrence}
	if _, inst, _ := svc.Create(context.Background(), &plain, false); len(inst) != 0 {
		t.Errorf("Expected no expansion without expand, got %d", len(inst))
	}
}

func TestTaskServiceExpandOnCreateOption(t *testing.T) {
	svc, _ := newTestTaskService(t, WithExpandOnCreate(true))
	until := fixedNow.AddDate(0, 0, 15)
	task := models.Task{
		Title:      "Sync",
		StartTime:  fixedNow,
		Recurrence: models.Recurrence{Type: models.RecurrenceWeekly, Interval: 1, EndDate: &until},
	}
	_, instances, err := svc.Create(context.Background(), &task, false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(instances) != 2 {
		t.Errorf("Expected 2 weekly instances, got %d", len(instances))
	}
}

func TestTaskServiceExpandRecurrence(t *testing.T) {
	svc, _ := newTestTaskService(t)
	ctx := context.Background()

	origin := mustCreate(t, svc, models.Task{
		Title:      "Pay rent",
		StartTime:  time.Date(2024, time.January, 31, 9, 0, 0, 0, time.UTC),
		Recurrence: models.Recurrence{Type: models.RecurrenceMonthly, Interval: 1},
	})

	until := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	instances, err := svc.ExpandRecurrence(ctx, origin.ID, ExpandRequest{EndDate: &until})
	if err != nil {
		t.Fatalf("ExpandRecurrence failed: %v", err)
	}
	wantDays := []int{29, 31, 30}
	if len(instances) != len(wantDays) {
		t.Fatalf("Expected %d instances, got %d", len(wantDays), len(instances))
	}
	for i, d := range wantDays {
		if instances[i].StartTime.Day() != d {
			t.Errorf("Instance %d: expected day %d, got %v", i, d, instances[i].StartTime)
		}
	}

	listed, err := svc.Instances(ctx, origin.ID)
	if err != nil || len(listed) != 3 {
		t.Fatalf("Expected 3 listed instances, got %d (%v)", len(listed), err)
	}

	if _, err := svc.ExpandRecurrence(ctx, listed[0].ID, ExpandRequest{}); !errors.Is(err, ErrNotExpandable) {
		t.Errorf("Expected ErrNotExpandable for an instance, got %v", err)
	}
	if _, err := svc.ExpandRecurrence(ctx, 999, ExpandRequest{}); !errors.Is(err, models.ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
	bad := models.RecurrenceType("HOURLY")
	if _, err := svc.ExpandRecurrence(ctx, origin.ID, ExpandRequest{Type: &bad}); !errors.Is(err, models.ErrInvalidRecurrence) {
		t.Errorf("Expected ErrInvalidRecurrence, got %v", err)
	}

	ok, err := svc.DeleteInstances(ctx, origin.ID)
	if err != nil || !ok {
		t.Fatalf("DeleteInstances failed: %v", err)
	}
	if left, _ := svc.Instances(ctx, origin.ID); len(left) != 0 {
		t.Errorf("Expected no instances after delete, got %d", len(left))
	}
}

func TestTaskServiceExpandRespectsLock(t *testing.T) {
	locker := lock.NewMemoryLocker()
	svc, _ := newTestTaskService(t, WithLocker(locker, time.Minute))

	origin := mustCreate(t, svc, models.Task{
		Title:      "Standup",
		StartTime:  fixedNow,
		Recurrence: models.Recurrence{Type: models.RecurrenceDaily, Interval: 1},
	})

	release, ok, _ := locker.Acquire(context.Background(), "expand:"+strconv.FormatInt(origin.ID, 10), time.Minute)
	if !ok {
		t.Fatal("Expected to acquire the lock")
	}
	if _, err := svc.ExpandRecurrence(context.Background(), origin.ID, ExpandRequest{}); !errors.Is(err, ErrExpansionInProgress) {
		t.Errorf("Expected ErrExpansionInProgress, got %v", err)
	}
	release()

	until := fixedNow.AddDate(0, 0, 3)
	instances, err := svc.ExpandRecurrence(context.Background(), origin.ID, ExpandRequest{EndDate: &until})
	if err != nil || len(instances) != 2 {
		t.Errorf("Expected 2 instances after release, got %d (%v)", len(instances), err)
	}
}

func TestTaskServiceDeleteCascade(t *testing.T) {
	svc, repo := newTestTaskService(t)
	ctx := context.Background()
	until := fixedNow.AddDate(0, 0, 3)
	rule := models.Recurrence{Type: models.RecurrenceDaily, Interval: 1, EndDate: &until}

	kept := mustCreate(t, svc, models.Task{Title: "Keep instances", StartTime: fixedNow, Recurrence: rule})
	if _, err := svc.ExpandRecurrence(ctx, kept.ID, ExpandRequest{}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, kept.ID, false); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if orphans, _ := repo.FindByOriginID(ctx, kept.ID); len(orphans) != 2 {
		t.Errorf("Expected instances to outlive their origin, got %d", len(orphans))
	}

	gone := mustCreate(t, svc, models.Task{Title: "Drop instances", StartTime: fixedNow, Recurrence: rule})
	if _, err := svc.ExpandRecurrence(ctx, gone.ID, ExpandRequest{}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, gone.ID, true); err != nil {
		t.Fatalf("Delete with cascade failed: %v", err)
	}
	if left, _ := repo.FindByOriginID(ctx, gone.ID); len(left) != 0 {
		t.Errorf("Expected cascade to remove instances, got %d", len(left))
	}
	if err := svc.Delete(ctx, gone.ID, false); !errors.Is(err, models.ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
}

func TestTaskServiceCalendarWindows(t *testing.T) {
	svc, _ := newTestTaskService(t)
	ctx := context.Background()
	owner := int64(1)
	d := func(day, hour, min int) time.Time { return time.Date(2024, time.March, day, hour, min, 0, 0, time.UTC) }

	lateEnd := d(11, 1, 0)
	doneEnd := d(10, 23, 30)
	mustCreate(t, svc, models.Task{Title: "sunday before", StartTime: d(10, 23, 0), EndTime: &doneEnd, Status: models.StatusCompleted, UserID: &owner})
	mustCreate(t, svc, models.Task{Title: "monday start", StartTime: d(11, 0, 0), EndTime: &lateEnd, UserID: &owner})
	mustCreate(t, svc, models.Task{Title: "today", StartTime: d(13, 15, 0), UserID: &owner})
	mustCreate(t, svc, models.Task{Title: "sunday night", StartTime: d(17, 23, 30), UserID: &owner})
	mustCreate(t, svc, models.Task{Title: "next monday", StartTime: d(18, 0, 0), UserID: &owner})
	mustCreate(t, svc, models.Task{Title: "month end", StartTime: d(31, 12, 0), UserID: &owner})
	mustCreate(t, svc, models.Task{Title: "april", StartTime: time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), UserID: &owner})

	check := func(name string, got []models.Task, err error, want int) {
		t.Helper()
		if err != nil {
			t.Fatalf("%s failed: %v", name, err)
		}
		if len(got) != want {
			t.Errorf("%s: expected %d tasks, got %d", name, want, len(got))
		}
	}

	today, err := svc.Today(ctx, &owner)
	check("Today", today, err, 1)
	week, err := svc.ThisWeek(ctx, &owner)
	check("ThisWeek", week, err, 3)
	month, err := svc.ThisMonth(ctx, &owner)
	check("ThisMonth", month, err, 6)
	upcoming, err := svc.Upcoming(ctx, &owner)
	check("Upcoming", upcoming, err, 1)
	overdue, err := svc.Overdue(ctx, &owner)
	check("Overdue", overdue, err, 1)
	if len(overdue) == 1 && overdue[0].Title != "monday start" {
		t.Errorf("Expected 'monday start' overdue, got %q", overdue[0].Title)
	}

	other := int64(2)
	none, err := svc.ThisMonth(ctx, &other)
	check("ThisMonth(other)", none, err, 0)

	if _, err := svc.InRange(ctx, &owner, d(20, 0, 0), d(10, 0, 0)); !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("Expected ErrInvalidDateRange, got %v", err)
	}
}

func TestTaskServiceStatusTransitions(t *testing.T) {
	svc, _ := newTestTaskService(t)
	ctx := context.Background()
	task := mustCreate(t, svc, models.Task{Title: "Ship", StartTime: fixedNow})

	done, err := svc.MarkCompleted(ctx, task.ID)
	if err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	if done.Status != models.StatusCompleted {
		t.Errorf("Expected COMPLETED, got %s", done.Status)
	}
	if _, err := svc.MarkCompleted(ctx, task.ID); err != nil {
		t.Errorf("Expected completing twice to be a no-op, got %v", err)
	}

	if _, err := svc.UpdateStatus(ctx, task.ID, models.StatusCancelled); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Expected ErrIllegalTransition, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, task.ID, "LATER"); !errors.Is(err, models.ErrInvalidStatus) {
		t.Errorf("Expected ErrInvalidStatus, got %v", err)
	}
	reopened, err := svc.UpdateStatus(ctx, task.ID, models.StatusPending)
	if err != nil || reopened.Status != models.StatusPending {
		t.Errorf("Expected reopen to PENDING, got %v (%v)", reopened, err)
	}
}

func TestTaskServiceUpdateCopiesFields(t *testing.T) {
	svc, _ := newTestTaskService(t)
	ctx := context.Background()
	task := mustCreate(t, svc, models.Task{Title: "Draft", StartTime: fixedNow, Category: "work"})

	end := fixedNow.Add(2 * time.Hour)
	updated, err := svc.Update(ctx, task.ID, &models.Task{
		Title:     "Final",
		StartTime: fixedNow.Add(time.Hour),
		EndTime:   &end,
		Priority:  models.PriorityUrgent,
		Status:    models.StatusInProgress,
		AllDay:    true,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Title != "Final" || updated.Category != "" || !updated.AllDay {
		t.Errorf("Expected full field copy, got %+v", updated)
	}
	if updated.Color != models.DefaultTaskColor {
		t.Errorf("Expected blank color to fall back to default, got %q", updated.Color)
	}

	got, _ := svc.GetByID(ctx, task.ID)
	if got.Priority != models.PriorityUrgent || got.EndTime == nil || !got.EndTime.Equal(end) {
		t.Errorf("Expected update persisted, got %+v", got)
	}

	if _, err := svc.Update(ctx, 999, &models.Task{Title: "x", StartTime: fixedNow}); !errors.Is(err, models.ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
}

func TestCanTransitionTask(t *testing.T) {
	cases := []struct {
		from, to models.TaskStatus
		want     bool
	}{
		{models.StatusPending, models.StatusInProgress, true},
		{models.StatusInProgress, models.StatusCompleted, true},
		{models.StatusCompleted, models.StatusPending, true},
		{models.StatusCompleted, models.StatusCancelled, false},
		{models.StatusCancelled, models.StatusCompleted, false},
		{models.StatusCancelled, models.StatusCancelled, true},
		{"", models.StatusCompleted, true},
	}
	for _, c := range cases {
		if got := CanTransitionTask(c.from, c.to); got != c.want {
			t.Errorf("%s -> %s: expected %v, got %v", c.from, c.to, c.want, got)
		}
	}
}

func TestTaskServiceUpdateRejectsIllegalTransition(t *testing.T) {
	svc, _ := newTestTaskService(t)
	ctx := context.Background()
	task := mustCreate(t, svc, models.Task{Title: "Gone", StartTime: fixedNow})
	if _, err := svc.UpdateStatus(ctx, task.ID, models.StatusCancelled); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	_, err := svc.Update(ctx, task.ID, &models.Task{Title: "Gone", StartTime: fixedNow, Status: models.StatusCompleted})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Expected ErrIllegalTransition, got %v", err)
	}
}

func TestTaskServiceUpdateKeepsInstanceNonRecurring(t *testing.T) {
	svc, _ := newTestTaskService(t)
	ctx := context.Background()
	origin := mustCreate(t, svc, models.Task{
		Title:      "Rent",
		StartTime:  time.Date(2024, time.January, 5, 9, 0, 0, 0, time.UTC),
		Recurrence: models.Recurrence{Type: models.RecurrenceMonthly, Interval: 1},
	})
	instances, err := svc.ExpandRecurrence(ctx, origin.ID, ExpandRequest{})
	if err != nil || len(instances) == 0 {
		t.Fatalf("ExpandRecurrence failed: %d instances, %v", len(instances), err)
	}
	inst := instances[0]

	_, err = svc.Update(ctx, inst.ID, &models.Task{
		Title:      inst.Title,
		StartTime:  inst.StartTime,
		Recurrence: models.Recurrence{Type: models.RecurrenceDaily, Interval: 1},
	})
	if !errors.Is(err, ErrNotExpandable) {
		t.Errorf("Expected ErrNotExpandable for a repeating rule on an instance, got %v", err)
	}
	got, _ := svc.GetByID(ctx, inst.ID)
	if got.Recurrence.Type != models.RecurrenceNone {
		t.Errorf("Expected stored instance to stay NONE, got %s", got.Recurrence.Type)
	}

	updated, err := svc.Update(ctx, inst.ID, &models.Task{Title: "Rent (paid)", StartTime: inst.StartTime})
	if err != nil {
		t.Fatalf("Update of instance failed: %v", err)
	}
	if updated.Recurrence.Type != models.RecurrenceNone || updated.Recurrence.Interval != 1 {
		t.Errorf("Expected NONE/1 recurrence on instance, got %+v", updated.Recurrence)
	}
	if updated.OriginTaskID == nil || *updated.OriginTaskID != origin.ID {
		t.Errorf("Expected instance to keep origin %d, got %v", origin.ID, updated.OriginTaskID)
	}
}

func TestTaskServiceRejectsNonPositiveInterval(t *testing.T) {
	svc, repo := newTestTaskService(t)
	ctx := context.Background()

	bad := &models.Task{
		Title:      "Standup",
		StartTime:  fixedNow,
		Recurrence: models.Recurrence{Type: models.RecurrenceDaily, Interval: -5},
	}
	if _, _, err := svc.Create(ctx, bad, false); !errors.Is(err, models.ErrInvalidInterval) {
		t.Errorf("Expected ErrInvalidInterval on create, got %v", err)
	}
	if all, _ := repo.FindAll(ctx, models.TaskFilter{}); len(all) != 0 {
		t.Errorf("Expected nothing stored, got %d tasks", len(all))
	}

	task := mustCreate(t, svc, models.Task{
		Title:      "Standup",
		StartTime:  fixedNow,
		Recurrence: models.Recurrence{Type: models.RecurrenceDaily, Interval: 1},
	})
	_, err := svc.Update(ctx, task.ID, &models.Task{
		Title:      "Standup",
		StartTime:  fixedNow,
		Recurrence: models.Recurrence{Type: models.RecurrenceWeekly, Interval: -1},
	})
	if !errors.Is(err, models.ErrInvalidInterval) {
		t.Errorf("Expected ErrInvalidInterval on update, got %v", err)
	}
	got, _ := svc.GetByID(ctx, task.ID)
	if got.Recurrence.Interval != 1 || got.Recurrence.Type != models.RecurrenceDaily {
		t.Errorf("Expected stored rule unchanged, got %+v", got.Recurrence)
	}

	zero := 0
	instances, err := svc.ExpandRecurrence(ctx, task.ID, ExpandRequest{Interval: &zero})
	if err != nil || len(instances) != 0 {
		t.Errorf("Expected zero interval override to be a no-op, got %d instances, %v", len(instances), err)
	}
}
