package postgresql

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
)

const userColumns = "id, username, password_hash, created_at"

type UserRepo struct {
	db   db.DB
	cost int
}

func NewUserRepo(db db.DB) *UserRepo {
	return &UserRepo{db: db, cost: bcrypt.DefaultCost}
}

func (r *UserRepo) CreateUser(ctx context.Context, username, password string) (*repository.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), r.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var user repository.User
	err = r.db.Get(ctx, &user,
		"INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING "+userColumns,
		username, string(hashedPassword))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*repository.User, error) {
	var user repository.User
	err := r.db.Get(ctx, &user, "SELECT "+userColumns+" FROM users WHERE username = $1", username)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *UserRepo) ValidateUser(ctx context.Context, username, password string) (*repository.User, error) {
	user, err := r.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, repository.ErrInvalidPassword
		}
		return nil, fmt.Errorf("failed to compare password: %w", err)
	}
	return user, nil
}
