package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"calendartask/internal/models"
	"calendartask/internal/services"
)

type AuthHandler struct {
	userService services.UserService
	log         *zap.SugaredLogger
}

func NewAuthHandler(userService services.UserService, log *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{userService: userService, log: nopIfNil(log)}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// @Summary      Регистрация
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        user  body      models.RegisterRequest  true  "New account"
// @Success      201   {object}  models.User
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/users/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnw("[auth][register][bind][err]", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.userService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, "[auth][register]", err)
		return
	}
	h.log.Infow("[auth][register][ok]", "user_id", user.ID, "username", user.Username)
	c.JSON(http.StatusCreated, user)
}

// @Summary      Вход в систему
// @Description  Аутентифицирует пользователя (username или email) и возвращает токены доступа
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        login  body      models.LoginRequest  true  "Данные для входа"
// @Success      200    {object}  map[string]interface{}
// @Failure      400    {object}  map[string]string
// @Failure      401    {object}  map[string]string
// @Router       /api/users/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnw("[auth][login][bind][err]", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	login := strings.TrimSpace(req.UsernameOrEmail)
	h.log.Infow("[auth][login] attempt", "login", login)

	user, tokens, err := h.userService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, "[auth][login]", err)
		return
	}
	h.log.Infow("[auth][login][ok]", "user_id", user.ID)
	c.JSON(http.StatusOK, gin.H{
		"user":               user,
		"access_token":       tokens.AccessToken,
		"access_expires_at":  tokens.AccessExpiresAt,
		"refresh_token":      tokens.RefreshToken,
		"refresh_expires_at": tokens.RefreshExpiresAt,
		"token_type":         "Bearer",
	})
}

// @Summary      Обновить токены
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  true  "Refresh token"
// @Success      200   {object}  services.TokenPair
// @Failure      401   {object}  map[string]string
// @Router       /api/users/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := h.userService.Refresh(c.Request.Context(), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		respondError(c, h.log, "[auth][refresh]", err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// POST /api/users/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	if err := h.userService.Logout(c.Request.Context(), userID); err != nil {
		respondError(c, h.log, "[auth][logout]", err)
		return
	}
	h.log.Infow("[auth][logout][ok]", "user_id", userID)
	c.Status(http.StatusNoContent)
}
