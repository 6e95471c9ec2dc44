package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                    BIGSERIAL PRIMARY KEY,
		username              VARCHAR(50)  NOT NULL UNIQUE,
		email                 VARCHAR(100) NOT NULL UNIQUE,
		password_hash         TEXT         NOT NULL,
		display_name          VARCHAR(100) NOT NULL DEFAULT '',
		avatar                VARCHAR(500) NOT NULL DEFAULT '',
		role                  VARCHAR(16)  NOT NULL DEFAULT 'USER',
		status                VARCHAR(16)  NOT NULL DEFAULT 'ACTIVE',
		timezone              VARCHAR(20)  NOT NULL DEFAULT 'Asia/Taipei',
		language              VARCHAR(10)  NOT NULL DEFAULT 'zh-TW',
		telegram_chat_id      BIGINT       NOT NULL DEFAULT 0,
		notify_tasks_telegram BOOLEAN      NOT NULL DEFAULT FALSE,
		refresh_token         TEXT,
		refresh_expires_at    TIMESTAMPTZ,
		refresh_revoked       BOOLEAN      NOT NULL DEFAULT FALSE,
		last_login_at         TIMESTAMPTZ,
		created_at            TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
		updated_at            TIMESTAMPTZ  NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_refresh_token ON users(refresh_token)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id              BIGSERIAL PRIMARY KEY,
		user_id         BIGINT REFERENCES users(id) ON DELETE CASCADE,
		title           VARCHAR(255)  NOT NULL,
		description     VARCHAR(1000) NOT NULL DEFAULT '',
		start_time      TIMESTAMPTZ   NOT NULL,
		end_time        TIMESTAMPTZ,
		priority        VARCHAR(16)   NOT NULL DEFAULT 'MEDIUM',
		status          VARCHAR(16)   NOT NULL DEFAULT 'PENDING',
		category        VARCHAR(50)   NOT NULL DEFAULT '',
		color           VARCHAR(20)   NOT NULL DEFAULT '#FFE4B5',
		all_day         BOOLEAN       NOT NULL DEFAULT FALSE,
		repeat_type     VARCHAR(16)   NOT NULL DEFAULT 'NONE',
		repeat_interval INTEGER       NOT NULL DEFAULT 1,
		repeat_end_date TIMESTAMPTZ,
		origin_task_id  BIGINT,
		reminded_at     TIMESTAMPTZ,
		created_at      TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ   NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_user_start ON tasks(user_id, start_time)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_origin ON tasks(origin_task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_category ON tasks(category)`,
}

// MigratePostgres creates the tables and indexes if they do not exist.
// origin_task_id carries no foreign key; instances outlive their origin.
func MigratePostgres(ctx context.Context, db *sql.DB) error {
	for i, stmt := range postgresSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
