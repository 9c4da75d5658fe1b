package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Token is a signed bearer token and its expiry.
type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserID    string    `json:"userId"`
}

type Service struct {
	users     UserStore
	secret    string
	expiresIn time.Duration
	cost      int
	logger    *slog.Logger
}

func NewService(users UserStore, secret string, expiresIn time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:     users,
		secret:    secret,
		expiresIn: expiresIn,
		cost:      bcrypt.DefaultCost,
		logger:    logger.With(slog.String("service", "auth")),
	}
}

func (s *Service) Register(ctx context.Context, username, email, password string) (Token, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Token{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.users.CreateUser(ctx, User{
		Username:     strings.TrimSpace(username),
		Email:        strings.TrimSpace(email),
		PasswordHash: string(hashed),
	})
	if err != nil {
		return Token{}, err
	}
	s.logger.Info("user registered", slog.String("user_id", user.ID))
	return s.issue(user.ID)
}

func (s *Service) Login(ctx context.Context, email, password string) (Token, error) {
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return Token{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Token{}, ErrInvalidCredentials
	}
	return s.issue(user.ID)
}

func (s *Service) issue(userID string) (Token, error) {
	signed, expiresAt, err := GenerateToken(userID, s.secret, s.expiresIn)
	if err != nil {
		return Token{}, err
	}
	return Token{Token: signed, ExpiresAt: expiresAt, UserID: userID}, nil
}
