package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "calendartask/docs"
	"calendartask/internal/config"
	"calendartask/internal/gcal"
	"calendartask/internal/handlers"
	"calendartask/internal/lock"
	"calendartask/internal/middleware"
	"calendartask/internal/pdf"
	"calendartask/internal/repositories"
	"calendartask/internal/routes"
	"calendartask/internal/services"
)

// App owns the HTTP server and its background workers.
type App struct {
	cfg      *config.Config
	log      *zap.SugaredLogger
	store    *repositories.Store
	redis    *redis.Client
	router   *gin.Engine
	server   *http.Server
	reminder *services.ReminderWorker
}

// OpenStore connects to the configured database and migrates the schema.
func OpenStore(ctx context.Context, cfg *config.Config) (*repositories.Store, error) {
	store, err := repositories.Open(ctx, cfg.Database.Driver, cfg.DatabaseURL())
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return store, nil
}

// NewTaskService builds the task service with the expansion lock: Redis when
// configured, otherwise an in-process lock. The returned client may be nil.
func NewTaskService(ctx context.Context, cfg *config.Config, store *repositories.Store, log *zap.SugaredLogger) (services.TaskService, *redis.Client, error) {
	var (
		locker lock.Locker = lock.NewMemoryLocker()
		client *redis.Client
	)
	if cfg.Redis.Addr != "" {
		c, err := lock.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		client = c
		locker = lock.NewRedisLocker(c, "calendartask:", log)
		log.Infow("[app][redis][ok]", "addr", cfg.Redis.Addr)
	}
	svc := services.NewTaskService(store.Tasks, log,
		services.WithLocker(locker, cfg.Redis.LockTTL),
		services.WithExpandOnCreate(cfg.Recurrence.ExpandOnCreate),
	)
	return svc, client, nil
}

func New(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger, version string) (*App, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	gin.SetMode(cfg.Server.Mode)

	// === DB ===
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, log: log, store: store}

	// === Services ===
	taskService, redisClient, err := NewTaskService(ctx, cfg, store, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.redis = redisClient

	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	var emailService services.EmailService
	if cfg.Email.SMTPHost != "" {
		emailService = services.NewEmailService(
			cfg.Email.SMTPHost,
			cfg.Email.SMTPPort,
			cfg.Email.SMTPUser,
			cfg.Email.SMTPPassword,
			cfg.Email.FromEmail,
		)
	}
	userService := services.NewUserService(store.Users, emailService, authService, log)

	// Telegram: напоминания только при заданном токене
	if cfg.Telegram.BotToken != "" {
		tg, err := services.NewTelegramService(cfg.Telegram.BotToken, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.reminder = services.NewReminderWorker(store.Tasks, store.Users, tg,
			cfg.Telegram.ReminderWindow, cfg.Telegram.PollInterval, log)
	}

	var syncer gcal.Syncer
	if cfg.Google.CredentialsFile != "" {
		client, err := gcal.NewClient(ctx, cfg.Google.CredentialsFile, cfg.Google.CalendarID, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		syncer = client
	}

	loc, err := time.LoadLocation(cfg.PDF.Timezone)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid pdf.timezone %q: %w", cfg.PDF.Timezone, err)
	}
	agenda := pdf.NewAgendaGenerator(cfg.PDF.FontPath, loc)

	// === Handlers ===
	healthHandler := handlers.NewHealthHandler(store, version)
	authHandler := handlers.NewAuthHandler(userService, log)
	userHandler := handlers.NewUserHandler(userService, log)
	taskHandler := handlers.NewTaskHandler(taskService, agenda, syncer, log)

	// === Gin ===
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}))

	// Swagger
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	routes.SetupRoutes(router, authService, healthHandler, authHandler, userHandler, taskHandler, syncer != nil)

	a.router = router
	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

func (a *App) Router() http.Handler {
	return a.router
}

// Run serves HTTP and runs the reminder worker until ctx is cancelled,
// then shuts the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.reminder != nil {
		go a.reminder.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infow("[app][http][listen]", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Infow("[app][http][shutdown]", "timeout", a.cfg.Server.ShutdownTimeout)
	shutdownCtx, stop := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer stop()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warnw("[app][redis][close][err]", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warnw("[app][db][close][err]", "error", err)
		}
	}
}
