package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"calendartask/internal/middleware"
	"calendartask/internal/models"
	"calendartask/internal/recurrence"
	"calendartask/internal/services"
)

// DateTimeLayout is the query/body format used by the calendar endpoints.
// RFC3339 and plain dates are accepted as well.
const DateTimeLayout = "2006-01-02 15:04:05"

var timeLayouts = []string{DateTimeLayout, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func parseOptionalTime(s *string, loc *time.Location) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := parseTime(*s, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// более устойчиво к типам (int / int64 / float64 / string)
func getInt64FromCtx(c *gin.Context, key string) (int64, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func getUserAndRole(c *gin.Context) (userID int64, role models.UserRole) {
	if id, ok := getInt64FromCtx(c, middleware.CtxUserID); ok {
		userID = id
	}
	if v, ok := c.Get(middleware.CtxRole); ok {
		if s, ok := v.(string); ok {
			role = models.UserRole(s)
		}
	}
	return
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrTaskNotFound), errors.Is(err, models.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrTitleRequired),
		errors.Is(err, models.ErrStartTimeRequired),
		errors.Is(err, models.ErrInvalidTimeRange),
		errors.Is(err, models.ErrInvalidPriority),
		errors.Is(err, models.ErrInvalidStatus),
		errors.Is(err, models.ErrFieldTooLong),
		errors.Is(err, models.ErrInvalidRecurrence),
		errors.Is(err, models.ErrInvalidInterval),
		errors.Is(err, recurrence.ErrMissingStartTime),
		errors.Is(err, services.ErrInvalidDateRange),
		errors.Is(err, services.ErrInvalidTimezone):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrIllegalTransition),
		errors.Is(err, services.ErrNotExpandable),
		errors.Is(err, services.ErrExpansionInProgress),
		errors.Is(err, models.ErrUsernameTaken),
		errors.Is(err, models.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidCredentials),
		errors.Is(err, services.ErrInvalidRefreshToken),
		errors.Is(err, services.ErrRefreshExpired):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrUserInactive):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// respondError logs err under tag and writes the mapped status. Internal
// errors are not echoed to the client.
func respondError(c *gin.Context, log *zap.SugaredLogger, tag string, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		log.Errorw(tag+"[err]", "error", err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	log.Warnw(tag+"[fail]", "status", status, "error", err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func queryBool(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(c.Query(key))
	return err == nil && v
}

func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil && v >= 0 {
		return v
	}
	return def
}

func nopIfNil(log *zap.SugaredLogger) *zap.SugaredLogger {
	if log == nil {
		return zap.NewNop().Sugar()
	}
	return log
}
