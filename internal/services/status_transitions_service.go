package services

import "calendartask/internal/models"

// Допустимые переходы статусов задач.
// Завершённую или отменённую задачу можно только переоткрыть.
var TaskTransitions = map[models.TaskStatus]map[models.TaskStatus]bool{
	models.StatusPending:    {models.StatusInProgress: true, models.StatusCompleted: true, models.StatusCancelled: true},
	models.StatusInProgress: {models.StatusPending: true, models.StatusCompleted: true, models.StatusCancelled: true},
	models.StatusCompleted:  {models.StatusPending: true, models.StatusInProgress: true},
	models.StatusCancelled:  {models.StatusPending: true},
}

func CanTransitionTask(current, to models.TaskStatus) bool {
	if current == "" || current == to {
		return true
	}
	return TaskTransitions[current][to]
}
