package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	_ "github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"calendartask/internal/models"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store bundles the repositories of one backend.
type Store struct {
	Tasks TaskRepository
	Users UserRepository

	migrate func(ctx context.Context) error
	ping    func(ctx context.Context) error
	close   func() error
}

// Open connects to the backend named by driver. For sqlite, dsn is a file path.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverPostgres:
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return &Store{
			Tasks:   NewTaskRepository(db),
			Users:   NewUserRepository(db),
			migrate: func(ctx context.Context) error { return MigratePostgres(ctx, db) },
			ping:    db.PingContext,
			close:   db.Close,
		}, nil
	case DriverSQLite, "":
		db, err := OpenGorm(dsn)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

// OpenGorm opens (and creates if needed) the sqlite database at path.
func OpenGorm(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// NewGormStore wraps an open gorm connection.
func NewGormStore(db *gorm.DB) *Store {
	return &Store{
		Tasks: NewGormTaskRepository(db),
		Users: NewGormUserRepository(db),
		migrate: func(ctx context.Context) error {
			return db.WithContext(ctx).AutoMigrate(&models.User{}, &models.Task{})
		},
		ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		close: func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	}
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	return s.migrate(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
