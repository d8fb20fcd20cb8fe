// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"game-night-bot/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrGameNotFound      = errors.New("game not found")
	ErrSessionNotFound   = errors.New("session not found")
	ErrPollNotFound      = errors.New("poll not found")
	ErrExpansionNotFound = errors.New("expansion not found")
)

// UserRepository handles user data persistence.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Upsert creates or refreshes a user record. The display name is
// updated on every interaction so renames propagate.
func (r *UserRepository) Upsert(ctx context.Context, telegramID int64, name string) (*model.User, error) {
	const query = `
		INSERT INTO users (telegram_id, telegram_name, is_guest)
		VALUES ($1, $2, FALSE)
		ON CONFLICT (telegram_id) DO UPDATE SET telegram_name = EXCLUDED.telegram_name
		RETURNING telegram_id, telegram_name, bgg_username, is_guest, added_by
	`

	var user model.User
	err := r.pool.QueryRow(ctx, query, telegramID, name).Scan(
		&user.TelegramID,
		&user.TelegramName,
		&user.BGGUsername,
		&user.IsGuest,
		&user.AddedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return &user, nil
}

// GetByID retrieves a user by their Telegram ID.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, telegramID int64) (*model.User, error) {
	const query = `
		SELECT telegram_id, telegram_name, bgg_username, is_guest, added_by
		FROM users
		WHERE telegram_id = $1
	`

	var user model.User
	err := r.pool.QueryRow(ctx, query, telegramID).Scan(
		&user.TelegramID,
		&user.TelegramName,
		&user.BGGUsername,
		&user.IsGuest,
		&user.AddedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// SetBGGUsername links a BGG account to the user.
func (r *UserRepository) SetBGGUsername(ctx context.Context, telegramID int64, bggUsername string) error {
	const query = `
		UPDATE users SET bgg_username = $2 WHERE telegram_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, telegramID, bggUsername)
	if err != nil {
		return fmt.Errorf("failed to set bgg username: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateGuest creates an ephemeral guest user owned by the adding user.
// Guests carry negative synthetic Telegram IDs.
func (r *UserRepository) CreateGuest(ctx context.Context, guestID int64, name string, addedBy int64) (*model.User, error) {
	const query = `
		INSERT INTO users (telegram_id, telegram_name, is_guest, added_by)
		VALUES ($1, $2, TRUE, $3)
		RETURNING telegram_id, telegram_name, bgg_username, is_guest, added_by
	`

	var user model.User
	err := r.pool.QueryRow(ctx, query, guestID, name, addedBy).Scan(
		&user.TelegramID,
		&user.TelegramName,
		&user.BGGUsername,
		&user.IsGuest,
		&user.AddedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create guest: %w", err)
	}

	return &user, nil
}

// DeleteGuest removes a guest user. The caller is responsible for
// purging the guest's collection and lobby membership first.
func (r *UserRepository) DeleteGuest(ctx context.Context, guestID int64) error {
	const query = `
		DELETE FROM users WHERE telegram_id = $1 AND is_guest
	`

	tag, err := r.pool.Exec(ctx, query, guestID)
	if err != nil {
		return fmt.Errorf("failed to delete guest: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// MinGuestID returns the lowest guest ID in use, or zero when no
// guests exist. New guest IDs are minted below it.
func (r *UserRepository) MinGuestID(ctx context.Context) (int64, error) {
	const query = `
		SELECT COALESCE(MIN(telegram_id), 0) FROM users WHERE is_guest
	`

	var id int64
	if err := r.pool.QueryRow(ctx, query).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get min guest id: %w", err)
	}
	return id, nil
}

func scanUsers(rows pgx.Rows) ([]*model.User, error) {
	var users []*model.User
	for rows.Next() {
		var user model.User
		if err := rows.Scan(
			&user.TelegramID,
			&user.TelegramName,
			&user.BGGUsername,
			&user.IsGuest,
			&user.AddedBy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}
