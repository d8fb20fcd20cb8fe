package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"game-night-bot/internal/model"
)

// PollRepository handles active polls and their votes.
type PollRepository struct {
	pool *pgxpool.Pool
}

// NewPollRepository creates a new PollRepository instance.
func NewPollRepository(pool *pgxpool.Pool) *PollRepository {
	return &PollRepository{pool: pool}
}

// Create records a poll message for a chat. Native mode creates one
// row per Telegram poll; custom mode creates a single row keyed by a
// synthetic poll ID.
func (r *PollRepository) Create(ctx context.Context, poll *model.Poll) error {
	const query = `
		INSERT INTO polls (poll_id, chat_id, message_id)
		VALUES ($1, $2, $3)
	`

	if _, err := r.pool.Exec(ctx, query, poll.PollID, poll.ChatID, poll.MessageID); err != nil {
		return fmt.Errorf("failed to create poll: %w", err)
	}
	return nil
}

// GetByPollID retrieves a poll by its Telegram (or synthetic) poll ID.
func (r *PollRepository) GetByPollID(ctx context.Context, pollID string) (*model.Poll, error) {
	const query = `
		SELECT poll_id, chat_id, message_id FROM polls WHERE poll_id = $1
	`

	var p model.Poll
	err := r.pool.QueryRow(ctx, query, pollID).Scan(&p.PollID, &p.ChatID, &p.MessageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPollNotFound
		}
		return nil, fmt.Errorf("failed to get poll: %w", err)
	}
	return &p, nil
}

// ListByChat lists all open polls for a chat.
func (r *PollRepository) ListByChat(ctx context.Context, chatID int64) ([]*model.Poll, error) {
	const query = `
		SELECT poll_id, chat_id, message_id FROM polls WHERE chat_id = $1
	`

	rows, err := r.pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list polls: %w", err)
	}
	defer rows.Close()

	var polls []*model.Poll
	for rows.Next() {
		var p model.Poll
		if err := rows.Scan(&p.PollID, &p.ChatID, &p.MessageID); err != nil {
			return nil, fmt.Errorf("failed to scan poll: %w", err)
		}
		polls = append(polls, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate polls: %w", err)
	}
	return polls, nil
}

// Delete removes a poll and its votes.
func (r *PollRepository) Delete(ctx context.Context, pollID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin poll delete: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM poll_votes WHERE poll_id = $1`, pollID); err != nil {
		return fmt.Errorf("failed to delete poll votes: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM polls WHERE poll_id = $1`, pollID); err != nil {
		return fmt.Errorf("failed to delete poll: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit poll delete: %w", err)
	}
	return nil
}

// DeleteByChat removes all polls and votes for a chat.
func (r *PollRepository) DeleteByChat(ctx context.Context, chatID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin chat poll delete: %w", err)
	}
	defer tx.Rollback(ctx)

	const votesQuery = `
		DELETE FROM poll_votes
		WHERE poll_id IN (SELECT poll_id FROM polls WHERE chat_id = $1)
	`
	if _, err := tx.Exec(ctx, votesQuery, chatID); err != nil {
		return fmt.Errorf("failed to delete chat poll votes: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM polls WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("failed to delete chat polls: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit chat poll delete: %w", err)
	}
	return nil
}

// AddVote records a vote. Duplicate (poll, user, target) rows are
// ignored so double taps stay idempotent.
func (r *PollRepository) AddVote(ctx context.Context, vote *model.Vote) error {
	const query = `
		INSERT INTO poll_votes (poll_id, user_id, target, user_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (poll_id, user_id, target) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, vote.PollID, vote.UserID, vote.Target, vote.UserName); err != nil {
		return fmt.Errorf("failed to add vote: %w", err)
	}
	return nil
}

// RemoveVote deletes one (poll, user, target) vote. Returns whether a
// row was actually removed.
func (r *PollRepository) RemoveVote(ctx context.Context, pollID string, userID, target int64) (bool, error) {
	const query = `
		DELETE FROM poll_votes WHERE poll_id = $1 AND user_id = $2 AND target = $3
	`

	tag, err := r.pool.Exec(ctx, query, pollID, userID, target)
	if err != nil {
		return false, fmt.Errorf("failed to remove vote: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RemoveVotesForUser deletes all of a user's votes in one poll, used
// when a native poll answer is retracted.
func (r *PollRepository) RemoveVotesForUser(ctx context.Context, pollID string, userID int64) error {
	const query = `
		DELETE FROM poll_votes WHERE poll_id = $1 AND user_id = $2
	`

	if _, err := r.pool.Exec(ctx, query, pollID, userID); err != nil {
		return fmt.Errorf("failed to remove user votes: %w", err)
	}
	return nil
}

// VotesForPoll lists all votes in one poll.
func (r *PollRepository) VotesForPoll(ctx context.Context, pollID string) ([]*model.Vote, error) {
	const query = `
		SELECT poll_id, user_id, target, user_name
		FROM poll_votes
		WHERE poll_id = $1
	`

	rows, err := r.pool.Query(ctx, query, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to list poll votes: %w", err)
	}
	defer rows.Close()

	return scanVotes(rows)
}

// VotesForChat lists every vote across all of a chat's open polls.
func (r *PollRepository) VotesForChat(ctx context.Context, chatID int64) ([]*model.Vote, error) {
	const query = `
		SELECT v.poll_id, v.user_id, v.target, v.user_name
		FROM poll_votes v
		JOIN polls p ON p.poll_id = v.poll_id
		WHERE p.chat_id = $1
	`

	rows, err := r.pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat votes: %w", err)
	}
	defer rows.Close()

	return scanVotes(rows)
}

// CountUserVotes counts a user's votes in one poll, for limit checks.
func (r *PollRepository) CountUserVotes(ctx context.Context, pollID string, userID int64) (int, error) {
	const query = `
		SELECT COUNT(*) FROM poll_votes WHERE poll_id = $1 AND user_id = $2
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, pollID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count user votes: %w", err)
	}
	return count, nil
}

// DistinctVotersForPoll counts the users who have voted on one poll,
// which drives that poll's auto-close check. Split native polls run
// side by side, so voters on sibling polls must not count.
func (r *PollRepository) DistinctVotersForPoll(ctx context.Context, pollID string) (int, error) {
	const query = `
		SELECT COUNT(DISTINCT user_id)
		FROM poll_votes
		WHERE poll_id = $1
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, pollID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count distinct voters: %w", err)
	}
	return count, nil
}

func scanVotes(rows pgx.Rows) ([]*model.Vote, error) {
	var votes []*model.Vote
	for rows.Next() {
		var v model.Vote
		if err := rows.Scan(&v.PollID, &v.UserID, &v.Target, &v.UserName); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		votes = append(votes, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate votes: %w", err)
	}
	return votes, nil
}
