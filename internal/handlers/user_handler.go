package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"calendartask/internal/authz"
	"calendartask/internal/models"
	"calendartask/internal/services"
)

type UserHandler struct {
	service services.UserService
	log     *zap.SugaredLogger
}

func NewUserHandler(service services.UserService, log *zap.SugaredLogger) *UserHandler {
	return &UserHandler{service: service, log: nopIfNil(log)}
}

// @Summary      Current user
// @Tags         Users
// @Produce      json
// @Success      200  {object}  models.User
// @Security     BearerAuth
// @Router       /api/users/me [get]
func (h *UserHandler) Me(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	user, err := h.service.GetByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, "[user][me]", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// @Summary      Update profile
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        profile  body  models.ProfileUpdate  true  "Fields to change"
// @Success      200  {object}  models.User
// @Security     BearerAuth
// @Router       /api/users/me [put]
func (h *UserHandler) UpdateMe(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	var upd models.ProfileUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.service.UpdateProfile(c.Request.Context(), userID, upd)
	if err != nil {
		respondError(c, h.log, "[user][update]", err)
		return
	}
	h.log.Infow("[user][update][ok]", "user_id", userID)
	c.JSON(http.StatusOK, user)
}

// DELETE /api/users/me (soft delete)
func (h *UserHandler) DeleteMe(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	if err := h.service.Delete(c.Request.Context(), userID); err != nil {
		respondError(c, h.log, "[user][delete]", err)
		return
	}
	h.log.Infow("[user][delete][ok]", "user_id", userID)
	c.Status(http.StatusNoContent)
}

// GET /api/users/:id (сам пользователь или ADMIN/MODERATOR)
func (h *UserHandler) GetByID(c *gin.Context) {
	userID, role := getUserAndRole(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if !authz.CanViewUser(userID, role, id) {
		h.log.Warnw("[user][get][deny]", "user_id", userID, "target", id)
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	user, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, "[user][get]", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// GET /api/users/stats (ADMIN)
func (h *UserHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.log, "[user][stats]", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GET /api/users/check-username/:username
func (h *UserHandler) CheckUsername(c *gin.Context) {
	username := strings.TrimSpace(c.Param("username"))
	ok, err := h.service.IsUsernameAvailable(c.Request.Context(), username)
	if err != nil {
		respondError(c, h.log, "[user][check_username]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": username, "available": ok})
}

// GET /api/users/check-email/:email
func (h *UserHandler) CheckEmail(c *gin.Context) {
	email := strings.TrimSpace(c.Param("email"))
	ok, err := h.service.IsEmailAvailable(c.Request.Context(), email)
	if err != nil {
		respondError(c, h.log, "[user][check_email]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": email, "available": ok})
}
