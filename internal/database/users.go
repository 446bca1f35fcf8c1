// internal/database/users.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bufordeeds/phase10/internal/models"
)

// ErrUserNotFound is returned when a user lookup matches no row.
var ErrUserNotFound = errors.New("user not found")

// CreateUser inserts a new user row.
func CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	u := &models.User{ID: uuid.New(), Username: username, Email: email, PasswordHash: passwordHash}
	const q = `
		INSERT INTO users (id, username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING created_at`
	if err := DB.QueryRow(ctx, q, u.ID, u.Username, u.Email, u.PasswordHash).Scan(&u.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// GetUserByUsername fetches a user row by username.
func GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	const q = `
		SELECT id, username, email, password_hash, created_at
		FROM users WHERE username = $1`
	u := &models.User{}
	err := DB.QueryRow(ctx, q, username).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

// GetUserByID fetches a user row by id.
func GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const q = `
		SELECT id, username, email, password_hash, created_at
		FROM users WHERE id = $1`
	u := &models.User{}
	err := DB.QueryRow(ctx, q, id).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}
