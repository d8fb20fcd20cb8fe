package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"game-night-bot/internal/model"
)

// SessionRepository handles game night sessions and lobby membership.
// Sessions are keyed by chat ID, one per chat.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `chat_id, is_active, weighted, poll_mode, hide_voters,
		vote_limit, message_id, created_at`

// Create starts a fresh session for a chat, replacing any prior one.
// The sessions row is upserted in place, so lobby membership from the
// old session is deleted explicitly, in the same transaction.
func (r *SessionRepository) Create(ctx context.Context, chatID int64) (*model.Session, error) {
	const clearPlayers = `
		DELETE FROM session_players WHERE chat_id = $1
	`
	const query = `
		INSERT INTO sessions (chat_id, is_active, weighted, poll_mode, hide_voters, vote_limit, created_at)
		VALUES ($1, TRUE, FALSE, $2, FALSE, $3, NOW())
		ON CONFLICT (chat_id) DO UPDATE SET
			is_active = TRUE,
			weighted = FALSE,
			poll_mode = $2,
			hide_voters = FALSE,
			vote_limit = $3,
			message_id = NULL,
			created_at = NOW()
		RETURNING ` + sessionColumns

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin session reset: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, clearPlayers, chatID); err != nil {
		return nil, fmt.Errorf("failed to clear lobby: %w", err)
	}

	var s model.Session
	err = tx.QueryRow(ctx, query, chatID, model.PollModeCustom, model.VoteLimitAuto).Scan(
		&s.ChatID, &s.IsActive, &s.Weighted, &s.PollMode, &s.HideVoters,
		&s.VoteLimit, &s.MessageID, &s.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit session reset: %w", err)
	}
	return &s, nil
}

// Get retrieves the session for a chat.
// Returns ErrSessionNotFound if none exists.
func (r *SessionRepository) Get(ctx context.Context, chatID int64) (*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE chat_id = $1`

	var s model.Session
	err := r.pool.QueryRow(ctx, query, chatID).Scan(
		&s.ChatID, &s.IsActive, &s.Weighted, &s.PollMode, &s.HideVoters,
		&s.VoteLimit, &s.MessageID, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

// GetActive retrieves the session for a chat only if it is active.
func (r *SessionRepository) GetActive(ctx context.Context, chatID int64) (*model.Session, error) {
	s, err := r.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !s.IsActive {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// SetActive flips a session's active flag.
func (r *SessionRepository) SetActive(ctx context.Context, chatID int64, active bool) error {
	const query = `
		UPDATE sessions SET is_active = $2 WHERE chat_id = $1
	`
	return r.execSession(ctx, query, chatID, active)
}

// SetMessageID records the lobby message a session is rendered on.
// Interactions referencing an older message are stale and rejected.
func (r *SessionRepository) SetMessageID(ctx context.Context, chatID int64, messageID int) error {
	const query = `
		UPDATE sessions SET message_id = $2 WHERE chat_id = $1
	`
	return r.execSession(ctx, query, chatID, messageID)
}

// SetWeighted toggles weighted voting.
func (r *SessionRepository) SetWeighted(ctx context.Context, chatID int64, weighted bool) error {
	const query = `
		UPDATE sessions SET weighted = $2 WHERE chat_id = $1
	`
	return r.execSession(ctx, query, chatID, weighted)
}

// SetPollMode switches between custom and native polls.
func (r *SessionRepository) SetPollMode(ctx context.Context, chatID int64, mode model.PollMode) error {
	const query = `
		UPDATE sessions SET poll_mode = $2 WHERE chat_id = $1
	`
	return r.execSession(ctx, query, chatID, mode)
}

// SetHideVoters toggles voter name display on custom polls.
func (r *SessionRepository) SetHideVoters(ctx context.Context, chatID int64, hide bool) error {
	const query = `
		UPDATE sessions SET hide_voters = $2 WHERE chat_id = $1
	`
	return r.execSession(ctx, query, chatID, hide)
}

// SetVoteLimit stores the configured per-voter vote cap.
func (r *SessionRepository) SetVoteLimit(ctx context.Context, chatID int64, limit int) error {
	const query = `
		UPDATE sessions SET vote_limit = $2 WHERE chat_id = $1
	`
	return r.execSession(ctx, query, chatID, limit)
}

func (r *SessionRepository) execSession(ctx context.Context, query string, chatID int64, arg any) error {
	tag, err := r.pool.Exec(ctx, query, chatID, arg)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// AddPlayer joins a user to the lobby. Joining twice is a no-op.
func (r *SessionRepository) AddPlayer(ctx context.Context, chatID, userID int64) error {
	const query = `
		INSERT INTO session_players (chat_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (chat_id, user_id) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, chatID, userID); err != nil {
		return fmt.Errorf("failed to add player: %w", err)
	}
	return nil
}

// RemovePlayer drops a user from the lobby.
func (r *SessionRepository) RemovePlayer(ctx context.Context, chatID, userID int64) error {
	const query = `
		DELETE FROM session_players WHERE chat_id = $1 AND user_id = $2
	`

	if _, err := r.pool.Exec(ctx, query, chatID, userID); err != nil {
		return fmt.Errorf("failed to remove player: %w", err)
	}
	return nil
}

// ClearPlayers empties the lobby.
func (r *SessionRepository) ClearPlayers(ctx context.Context, chatID int64) error {
	const query = `
		DELETE FROM session_players WHERE chat_id = $1
	`

	if _, err := r.pool.Exec(ctx, query, chatID); err != nil {
		return fmt.Errorf("failed to clear players: %w", err)
	}
	return nil
}

// Players lists lobby members joined with their user records,
// name-sorted for display.
func (r *SessionRepository) Players(ctx context.Context, chatID int64) ([]*model.User, error) {
	const query = `
		SELECT u.telegram_id, u.telegram_name, u.bgg_username, u.is_guest, u.added_by
		FROM session_players sp
		JOIN users u ON u.telegram_id = sp.user_id
		WHERE sp.chat_id = $1
		ORDER BY u.telegram_name
	`

	rows, err := r.pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

// PlayerCount returns the lobby size.
func (r *SessionRepository) PlayerCount(ctx context.Context, chatID int64) (int, error) {
	const query = `
		SELECT COUNT(*) FROM session_players WHERE chat_id = $1
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, chatID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count players: %w", err)
	}
	return count, nil
}
