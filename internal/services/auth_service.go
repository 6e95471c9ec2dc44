package services

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"calendartask/internal/models"
	"calendartask/internal/utils"
)

type AuthService interface {
	HashPassword(password string) (string, error)
	CheckPassword(hash, password string) bool
	IssueAccessToken(user *models.User) (string, time.Time, error)
	ParseAccessToken(token string) (*utils.Claims, error)
	NewRefreshToken() (string, time.Time, error)
}

type authService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewAuthService(secret string, accessTTL, refreshTTL time.Duration) AuthService {
	return &authService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (s *authService) HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (s *authService) CheckPassword(hash, password string) bool {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (s *authService) IssueAccessToken(user *models.User) (string, time.Time, error) {
	exp := s.now().Add(s.accessTTL)
	tok, err := utils.NewAccessToken(s.secret, user.ID, string(user.Role), exp)
	return tok, exp, err
}

func (s *authService) ParseAccessToken(token string) (*utils.Claims, error) {
	return utils.ParseAccessToken(s.secret, token, 2*time.Minute)
}

// NewRefreshToken returns an opaque token to be stored with the user.
func (s *authService) NewRefreshToken() (string, time.Time, error) {
	rt, err := utils.NewRefreshToken(32)
	if err != nil {
		return "", time.Time{}, err
	}
	return rt, s.now().Add(s.refreshTTL), nil
}
