package authz

import "calendartask/internal/models"

// IsElevated reports whether the role may see other users' data.
func IsElevated(role models.UserRole) bool {
	return role == models.RoleAdmin || role == models.RoleModerator
}

// CanViewUser: сам пользователь или ADMIN/MODERATOR.
func CanViewUser(actorID int64, role models.UserRole, targetID int64) bool {
	return actorID == targetID || IsElevated(role)
}

// CanManageTask: owner only; tasks without owner are open to elevated roles.
func CanManageTask(actorID int64, role models.UserRole, task *models.Task) bool {
	if task.UserID != nil && *task.UserID == actorID {
		return true
	}
	return task.UserID == nil && IsElevated(role)
}
