package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/storage"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/validation"
)

const DefaultTokenTTL = time.Hour

var (
	ErrUserExists         = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type registration struct {
	Username string `validate:"required,min=3,max=30,username" label:"Username"`
	Password string `validate:"required,min=8,password" label:"Password"`
}

type credentials struct {
	Username string `validate:"required,min=3,max=30,username" label:"Username"`
	Password string `validate:"required" label:"Password"`
}

type Service struct {
	users   storage.UserRepository
	secret  []byte
	ttl     time.Duration
	log     *zap.Logger
	timeNow func() time.Time
}

func NewService(users storage.UserRepository, secret string, ttl time.Duration, log *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{
		users:   users,
		secret:  []byte(secret),
		ttl:     ttl,
		log:     log,
		timeNow: time.Now,
	}
}

func (s *Service) Register(ctx context.Context, username, password string) (*repository.User, error) {
	if err := validation.Struct(registration{Username: username, Password: password}, s.timeNow()); err != nil {
		return nil, err
	}

	user, err := s.users.CreateUser(ctx, username, password)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	s.log.Info("user registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// Login checks the credentials and issues a signed token. Unknown users and
// wrong passwords are reported identically.
func (s *Service) Login(ctx context.Context, username, password string) (string, *repository.User, error) {
	if err := validation.Struct(credentials{Username: username, Password: password}, s.timeNow()); err != nil {
		return "", nil, err
	}

	user, err := s.users.ValidateUser(ctx, username, password)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) || errors.Is(err, repository.ErrInvalidPassword) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("login: %w", err)
	}

	token, err := GenerateToken(user.ID, user.Username, s.secret, s.timeNow(), s.ttl)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, user, nil
}

func (s *Service) VerifyToken(token string) (int64, error) {
	claims, err := ParseToken(token, s.secret, s.timeNow())
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

// EnsureUser creates the account unless a user with that name already exists.
func (s *Service) EnsureUser(ctx context.Context, username, password string) error {
	_, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrObjectNotFound) {
		return fmt.Errorf("failed to look up %q: %w", username, err)
	}

	user, err := s.users.CreateUser(ctx, username, password)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil
		}
		return fmt.Errorf("failed to create %q: %w", username, err)
	}

	s.log.Info("seed user created", zap.Int64("user_id", user.ID), zap.String("username", username))
	return nil
}
