package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"calendartask/internal/models"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsernameOrEmail(ctx context.Context, login string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]models.User, error)
	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context, status models.UserStatus) (int64, error)

	// refresh helpers
	UpdateRefresh(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	GetByRefreshToken(ctx context.Context, token string) (*models.User, error)
	RotateRefresh(ctx context.Context, oldToken, newToken string, newExpiresAt time.Time) (*models.User, error)
	ClearRefresh(ctx context.Context, userID int64) error

	TouchLogin(ctx context.Context, userID int64, at time.Time) error
}

type userRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{DB: db}
}

const userColumns = `id, username, email, password_hash, display_name, avatar, role, status,
       timezone, language, COALESCE(telegram_chat_id,0), COALESCE(notify_tasks_telegram,FALSE),
       refresh_token, refresh_expires_at, refresh_revoked, last_login_at, created_at, updated_at`

func scanUser(s rowScanner) (*models.User, error) {
	u := &models.User{}
	var (
		rt        sql.NullString
		rte       sql.NullTime
		rr        sql.NullBool
		lastLogin sql.NullTime
	)
	err := s.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.DisplayName, &u.Avatar, &u.Role, &u.Status,
		&u.Timezone, &u.Language, &u.TelegramChatID, &u.NotifyTasksTelegram,
		&rt, &rte, &rr, &lastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, err
	}
	if rt.Valid {
		s := rt.String
		u.RefreshToken = &s
	}
	if rte.Valid {
		t := rte.Time
		u.RefreshExpiresAt = &t
	}
	if rr.Valid {
		u.RefreshRevoked = rr.Bool
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	const q = `
		INSERT INTO users (
			username, email, password_hash, display_name, avatar, role, status,
			timezone, language, telegram_chat_id, notify_tasks_telegram,
			refresh_token, refresh_expires_at, refresh_revoked
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NULL,NULL,FALSE)
		RETURNING id, created_at, updated_at
	`
	return r.DB.QueryRowContext(ctx, q,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.DisplayName,
		user.Avatar,
		user.Role,
		user.Status,
		user.Timezone,
		user.Language,
		user.TelegramChatID,
		user.NotifyTasksTelegram,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *userRepository) GetByUsernameOrEmail(ctx context.Context, login string) (*models.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE username = $1 OR email = $1 LIMIT 1`
	return scanUser(r.DB.QueryRowContext(ctx, q, login))
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	const q = `
		UPDATE users
		SET
			email=$1,
			password_hash=$2,
			display_name=$3,
			avatar=$4,
			role=$5,
			status=$6,
			timezone=$7,
			language=$8,
			telegram_chat_id=$9,
			notify_tasks_telegram=$10,
			updated_at=NOW()
		WHERE id=$11
		RETURNING updated_at
	`
	err := r.DB.QueryRowContext(ctx, q,
		user.Email,
		user.PasswordHash,
		user.DisplayName,
		user.Avatar,
		user.Role,
		user.Status,
		user.Timezone,
		user.Language,
		user.TelegramChatID,
		user.NotifyTasksTelegram,
		user.ID,
	).Scan(&user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrUserNotFound
	}
	return err
}

func (r *userRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var ok bool
	err := r.DB.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username).Scan(&ok)
	return ok, err
}

func (r *userRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var ok bool
	err := r.DB.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email).Scan(&ok)
	return ok, err
}

func (r *userRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	var c int64
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&c)
	return c, err
}

func (r *userRepository) CountByStatus(ctx context.Context, status models.UserStatus) (int64, error) {
	var c int64
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE status = $1`, status).Scan(&c)
	return c, err
}

// ===== refresh helpers =====

func (r *userRepository) UpdateRefresh(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	const q = `
		UPDATE users
		SET refresh_token=$1, refresh_expires_at=$2, refresh_revoked=FALSE
		WHERE id=$3
	`
	_, err := r.DB.ExecContext(ctx, q, token, expiresAt, userID)
	return err
}

func (r *userRepository) GetByRefreshToken(ctx context.Context, token string) (*models.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE refresh_token = $1`, token))
}

func (r *userRepository) RotateRefresh(ctx context.Context, oldToken, newToken string, newExpiresAt time.Time) (*models.User, error) {
	const q = `
		UPDATE users
		SET refresh_token=$1, refresh_expires_at=$2, refresh_revoked=FALSE
		WHERE refresh_token=$3
		RETURNING ` + userColumns
	return scanUser(r.DB.QueryRowContext(ctx, q, newToken, newExpiresAt, oldToken))
}

func (r *userRepository) ClearRefresh(ctx context.Context, userID int64) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE users
		SET refresh_token=NULL, refresh_expires_at=NULL, refresh_revoked=TRUE
		WHERE id=$1
	`, userID)
	return err
}

func (r *userRepository) TouchLogin(ctx context.Context, userID int64, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE users SET last_login_at=$1 WHERE id=$2`, at, userID)
	return err
}
