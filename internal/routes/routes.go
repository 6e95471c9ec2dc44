package routes

import (
	"github.com/gin-gonic/gin"

	"calendartask/internal/handlers"
	"calendartask/internal/middleware"
	"calendartask/internal/models"
)

func SetupRoutes(
	r *gin.Engine,
	tokens middleware.TokenParser,
	healthHandler *handlers.HealthHandler,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	taskHandler *handlers.TaskHandler,
	calendarSync bool, // POST /:id/calendar-sync только при настроенном Google Calendar
) *gin.Engine {

	// ---- public
	r.GET("/health", healthHandler.Health)
	r.GET("/api/health", healthHandler.Health)

	public := r.Group("/api/users")
	{
		public.POST("/register", authHandler.Register)
		public.POST("/login", authHandler.Login)
		public.POST("/refresh", authHandler.Refresh)
		public.GET("/check-username/:username", userHandler.CheckUsername)
		public.GET("/check-email/:email", userHandler.CheckEmail)
	}

	// ---- protected
	api := r.Group("/api", middleware.AuthMiddleware(tokens))

	// USERS
	users := api.Group("/users")
	{
		users.GET("/me", userHandler.Me)
		users.PUT("/me", userHandler.UpdateMe)
		users.DELETE("/me", userHandler.DeleteMe)
		users.POST("/logout", authHandler.Logout)
		users.GET("/stats", middleware.RequireRoles(models.RoleAdmin), userHandler.Stats)
		users.GET("/:id", userHandler.GetByID)
	}

	// TASKS
	tasks := api.Group("/tasks")
	{
		tasks.GET("", taskHandler.List)
		tasks.POST("", taskHandler.Create)

		tasks.GET("/status/:status", taskHandler.ByStatus)
		tasks.GET("/priority/:priority", taskHandler.ByPriority)
		tasks.GET("/category/:category", taskHandler.ByCategory)
		tasks.GET("/date-range", taskHandler.DateRange)
		tasks.GET("/today", taskHandler.Today)
		tasks.GET("/this-week", taskHandler.ThisWeek)
		tasks.GET("/this-month", taskHandler.ThisMonth)
		tasks.GET("/search", taskHandler.Search)
		tasks.GET("/upcoming", taskHandler.Upcoming)
		tasks.GET("/overdue", taskHandler.Overdue)
		tasks.GET("/agenda.pdf", taskHandler.AgendaPDF)

		tasks.GET("/:id", taskHandler.GetByID)
		tasks.PUT("/:id", taskHandler.Update)
		tasks.DELETE("/:id", taskHandler.Delete)
		tasks.PATCH("/:id/complete", taskHandler.MarkCompleted)
		tasks.PATCH("/:id/status", taskHandler.UpdateStatus)

		// RECURRENCE
		tasks.POST("/:id/recurrence/expand", taskHandler.ExpandRecurrence)
		tasks.GET("/:id/instances", taskHandler.Instances)
		tasks.DELETE("/:id/instances", taskHandler.DeleteInstances)

		if calendarSync {
			tasks.POST("/:id/calendar-sync", taskHandler.CalendarSync)
		}
	}

	return r
}
