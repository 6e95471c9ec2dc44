package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"calendartask/internal/models"
	"calendartask/internal/repositories"
)

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshExpired      = errors.New("refresh token expired")
	ErrInvalidTimezone     = errors.New("unknown timezone")
)

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type UserService interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.User, *TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, userID int64) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	UpdateProfile(ctx context.Context, id int64, upd models.ProfileUpdate) (*models.User, error)
	Delete(ctx context.Context, id int64) error
	IsUsernameAvailable(ctx context.Context, username string) (bool, error)
	IsEmailAvailable(ctx context.Context, email string) (bool, error)
	Stats(ctx context.Context) (*models.UserStats, error)
}

type userService struct {
	repo         repositories.UserRepository
	emailService EmailService
	authService  AuthService
	log          *zap.SugaredLogger
	now          func() time.Time
}

// NewUserService wires the user store; emailService may be nil.
func NewUserService(repo repositories.UserRepository, emailService EmailService, authService AuthService, log *zap.SugaredLogger) UserService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &userService{
		repo:         repo,
		emailService: emailService,
		authService:  authService,
		log:          log,
		now:          time.Now,
	}
}

func (s *userService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if taken, err := s.repo.ExistsByUsername(ctx, username); err != nil {
		return nil, err
	} else if taken {
		return nil, models.ErrUsernameTaken
	}
	if taken, err := s.repo.ExistsByEmail(ctx, email); err != nil {
		return nil, err
	} else if taken {
		return nil, models.ErrEmailTaken
	}

	hash, err := s.authService.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(req.DisplayName),
	}
	if user.DisplayName == "" {
		user.DisplayName = username
	}
	user.ApplyDefaults()

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	s.log.Infow("[user][register][ok]", "id", user.ID, "username", user.Username)

	if s.emailService != nil {
		if err := s.emailService.SendWelcomeEmail(user.Email, user.DisplayName); err != nil {
			// warn but do not fail registration
			s.log.Warnw("[user][register][mail] welcome email failed", "email", user.Email, "error", err)
		}
	}
	return user, nil
}

func (s *userService) Login(ctx context.Context, req models.LoginRequest) (*models.User, *TokenPair, error) {
	login := strings.TrimSpace(req.UsernameOrEmail)
	if strings.Contains(login, "@") {
		login = strings.ToLower(login) // emails are stored lowercased
	}
	user, err := s.repo.GetByUsernameOrEmail(ctx, login)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, nil, models.ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !s.authService.CheckPassword(user.PasswordHash, req.Password) {
		s.log.Infow("[user][login][deny] password mismatch", "id", user.ID)
		return nil, nil, models.ErrInvalidCredentials
	}
	if !user.IsActive() {
		return nil, nil, models.ErrUserInactive
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	if err := s.repo.TouchLogin(ctx, user.ID, now); err != nil {
		return nil, nil, err
	}
	user.LastLoginAt = &now
	s.log.Infow("[user][login][ok]", "id", user.ID)
	return user, tokens, nil
}

func (s *userService) issueTokens(ctx context.Context, user *models.User) (*TokenPair, error) {
	access, accessExp, err := s.authService.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	rt, rtExp, err := s.authService.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRefresh(ctx, user.ID, rt, rtExp); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, AccessExpiresAt: accessExp, RefreshToken: rt, RefreshExpiresAt: rtExp}, nil
}

// Refresh rotates the refresh token and issues a new access token.
func (s *userService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	old := strings.TrimSpace(refreshToken)
	user, err := s.repo.GetByRefreshToken(ctx, old)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if user.RefreshRevoked || user.RefreshExpiresAt == nil {
		return nil, ErrInvalidRefreshToken
	}
	if s.now().After(*user.RefreshExpiresAt) {
		return nil, ErrRefreshExpired
	}
	if !user.IsActive() {
		return nil, models.ErrUserInactive
	}

	newRT, newExp, err := s.authService.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	rotated, err := s.repo.RotateRefresh(ctx, old, newRT, newExp)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	access, accessExp, err := s.authService.IssueAccessToken(rotated)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, AccessExpiresAt: accessExp, RefreshToken: newRT, RefreshExpiresAt: newExp}, nil
}

func (s *userService) Logout(ctx context.Context, userID int64) error {
	return s.repo.ClearRefresh(ctx, userID)
}

func (s *userService) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *userService) UpdateProfile(ctx context.Context, id int64, upd models.ProfileUpdate) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.DisplayName != nil {
		user.DisplayName = strings.TrimSpace(*upd.DisplayName)
	}
	if upd.Avatar != nil {
		user.Avatar = strings.TrimSpace(*upd.Avatar)
	}
	if upd.Timezone != nil {
		if _, err := time.LoadLocation(*upd.Timezone); err != nil {
			return nil, ErrInvalidTimezone
		}
		user.Timezone = *upd.Timezone
	}
	if upd.Language != nil {
		user.Language = *upd.Language
	}
	if upd.TelegramChatID != nil {
		user.TelegramChatID = *upd.TelegramChatID
	}
	if upd.NotifyTasksTelegram != nil {
		user.NotifyTasksTelegram = *upd.NotifyTasksTelegram
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Delete is a soft delete: the account is marked DELETED and its refresh token revoked.
func (s *userService) Delete(ctx context.Context, id int64) error {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	user.Status = models.UserDeleted
	if err := s.repo.Update(ctx, user); err != nil {
		return err
	}
	return s.repo.ClearRefresh(ctx, id)
}

func (s *userService) IsUsernameAvailable(ctx context.Context, username string) (bool, error) {
	taken, err := s.repo.ExistsByUsername(ctx, strings.TrimSpace(username))
	return !taken, err
}

func (s *userService) IsEmailAvailable(ctx context.Context, email string) (bool, error) {
	taken, err := s.repo.ExistsByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	return !taken, err
}

func (s *userService) Stats(ctx context.Context) (*models.UserStats, error) {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, err
	}
	active, err := s.repo.CountByStatus(ctx, models.UserActive)
	if err != nil {
		return nil, err
	}
	return &models.UserStats{TotalUsers: total, ActiveUsers: active}, nil
}
