package models

import (
	"errors"
	"time"
)

type UserRole string

const (
	RoleUser      UserRole = "USER"
	RoleAdmin     UserRole = "ADMIN"
	RoleModerator UserRole = "MODERATOR"
)

type UserStatus string

const (
	UserActive    UserStatus = "ACTIVE"
	UserInactive  UserStatus = "INACTIVE"
	UserSuspended UserStatus = "SUSPENDED"
	UserDeleted   UserStatus = "DELETED"
)

const (
	DefaultTimezone = "Asia/Taipei"
	DefaultLanguage = "zh-TW"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrEmailTaken         = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid username/email or password")
	ErrUserInactive       = errors.New("user is not active")
)

type User struct {
	ID           int64      `json:"id" gorm:"primaryKey"`
	Username     string     `json:"username" gorm:"size:50;uniqueIndex;not null"`
	Email        string     `json:"email" gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string     `json:"-" gorm:"not null"` // не отдаём наружу
	DisplayName  string     `json:"display_name" gorm:"size:100"`
	Avatar       string     `json:"avatar" gorm:"size:500"`
	Role         UserRole   `json:"role" gorm:"size:16;not null;default:USER"`
	Status       UserStatus `json:"status" gorm:"size:16;not null;default:ACTIVE"`
	Timezone     string     `json:"timezone" gorm:"size:20"`
	Language     string     `json:"language" gorm:"size:10"`

	TelegramChatID      int64 `json:"telegram_chat_id,omitempty"`
	NotifyTasksTelegram bool  `json:"notify_tasks_telegram"`

	// refresh-хранение в БД
	RefreshToken     *string    `json:"-" gorm:"index"`
	RefreshExpiresAt *time.Time `json:"-"`
	RefreshRevoked   bool       `json:"-"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (u *User) IsActive() bool {
	return u.Status == UserActive
}

func (u *User) ApplyDefaults() {
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.Status == "" {
		u.Status = UserActive
	}
	if u.Timezone == "" {
		u.Timezone = DefaultTimezone
	}
	if u.Language == "" {
		u.Language = DefaultLanguage
	}
}

type RegisterRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=50"`
	Email       string `json:"email" binding:"required,email,max=100"`
	Password    string `json:"password" binding:"required,min=6"`
	DisplayName string `json:"display_name" binding:"max=100"`
}

type LoginRequest struct {
	UsernameOrEmail string `json:"username_or_email" binding:"required"`
	Password        string `json:"password" binding:"required"`
}

// ProfileUpdate holds the fields a user may change on their own profile.
type ProfileUpdate struct {
	DisplayName         *string `json:"display_name"`
	Avatar              *string `json:"avatar"`
	Timezone            *string `json:"timezone"`
	Language            *string `json:"language"`
	TelegramChatID      *int64  `json:"telegram_chat_id"`
	NotifyTasksTelegram *bool   `json:"notify_tasks_telegram"`
}

type UserStats struct {
	TotalUsers  int64 `json:"total_users"`
	ActiveUsers int64 `json:"active_users"`
}
