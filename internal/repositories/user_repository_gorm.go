package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"calendartask/internal/models"
)

type gormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

func (r *gormUserRepository) first(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where(query, args...).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *gormUserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.ID = 0
	user.CreatedAt, user.UpdatedAt = now, now
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *gormUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *gormUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.first(ctx, "username = ?", username)
}

func (r *gormUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *gormUserRepository) GetByUsernameOrEmail(ctx context.Context, login string) (*models.User, error) {
	return r.first(ctx, "username = ? OR email = ?", login, login)
}

func (r *gormUserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(user).
		Select("email", "password_hash", "display_name", "avatar", "role", "status",
			"timezone", "language", "telegram_chat_id", "notify_tasks_telegram", "updated_at").
		Updates(user)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (r *gormUserRepository) exists(ctx context.Context, column, value string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where(column+" = ?", value).Count(&n).Error
	return n > 0, err
}

func (r *gormUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "username", username)
}

func (r *gormUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email", email)
}

func (r *gormUserRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	users := []models.User{}
	err := r.db.WithContext(ctx).Order("id").Limit(limit).Offset(offset).Find(&users).Error
	return users, err
}

func (r *gormUserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Count(&n).Error
	return n, err
}

func (r *gormUserRepository) CountByStatus(ctx context.Context, status models.UserStatus) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

func (r *gormUserRepository) UpdateRefresh(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.User{ID: userID}).Updates(map[string]interface{}{
		"refresh_token":      token,
		"refresh_expires_at": expiresAt.UTC(),
		"refresh_revoked":    false,
	}).Error
}

func (r *gormUserRepository) GetByRefreshToken(ctx context.Context, token string) (*models.User, error) {
	return r.first(ctx, "refresh_token = ?", token)
}

func (r *gormUserRepository) RotateRefresh(ctx context.Context, oldToken, newToken string, newExpiresAt time.Time) (*models.User, error) {
	var out *models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("refresh_token = ?", oldToken).Updates(map[string]interface{}{
			"refresh_token":      newToken,
			"refresh_expires_at": newExpiresAt.UTC(),
			"refresh_revoked":    false,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrUserNotFound
		}
		var u models.User
		if err := tx.Where("refresh_token = ?", newToken).First(&u).Error; err != nil {
			return err
		}
		out = &u
		return nil
	})
	return out, err
}

func (r *gormUserRepository) ClearRefresh(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).Model(&models.User{ID: userID}).Updates(map[string]interface{}{
		"refresh_token":      nil,
		"refresh_expires_at": nil,
		"refresh_revoked":    true,
	}).Error
}

func (r *gormUserRepository) TouchLogin(ctx context.Context, userID int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.User{ID: userID}).UpdateColumn("last_login_at", at.UTC()).Error
}
