package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"game-night-bot/internal/model"
)

// ExpansionRepository handles catalog expansions and ownership.
type ExpansionRepository struct {
	pool *pgxpool.Pool
}

// NewExpansionRepository creates a new ExpansionRepository instance.
func NewExpansionRepository(pool *pgxpool.Pool) *ExpansionRepository {
	return &ExpansionRepository{pool: pool}
}

// Upsert inserts or refreshes an expansion record.
func (r *ExpansionRepository) Upsert(ctx context.Context, e *model.Expansion) error {
	const query = `
		INSERT INTO expansions (id, name, base_game_id, new_max_players, complexity_delta)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			base_game_id = EXCLUDED.base_game_id,
			new_max_players = EXCLUDED.new_max_players,
			complexity_delta = EXCLUDED.complexity_delta
	`

	if _, err := r.pool.Exec(ctx, query, e.ID, e.Name, e.BaseGameID, e.NewMaxPlayers, e.ComplexityDelta); err != nil {
		return fmt.Errorf("failed to upsert expansion: %w", err)
	}
	return nil
}

// SetOwned records that a user owns an expansion.
func (r *ExpansionRepository) SetOwned(ctx context.Context, userID, expansionID int64) error {
	const query = `
		INSERT INTO user_expansions (user_id, expansion_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, expansion_id) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, userID, expansionID); err != nil {
		return fmt.Errorf("failed to set owned expansion: %w", err)
	}
	return nil
}

// OwnedForBaseGames returns the expansions a user owns, keyed by base
// game ID, for games in the user's collection.
func (r *ExpansionRepository) OwnedForBaseGames(ctx context.Context, userID int64) (map[int64][]*model.Expansion, error) {
	const query = `
		SELECT e.id, e.name, e.base_game_id, e.new_max_players, e.complexity_delta
		FROM user_expansions ue
		JOIN expansions e ON e.id = ue.expansion_id
		WHERE ue.user_id = $1
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned expansions: %w", err)
	}
	defer rows.Close()

	byBase := make(map[int64][]*model.Expansion)
	for rows.Next() {
		var e model.Expansion
		if err := rows.Scan(&e.ID, &e.Name, &e.BaseGameID, &e.NewMaxPlayers, &e.ComplexityDelta); err != nil {
			return nil, fmt.Errorf("failed to scan expansion: %w", err)
		}
		byBase[e.BaseGameID] = append(byBase[e.BaseGameID], &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expansions: %w", err)
	}
	return byBase, nil
}

// GetByID fetches a cataloged expansion, letting sync skip a detail
// fetch for expansions seen before.
func (r *ExpansionRepository) GetByID(ctx context.Context, expansionID int64) (*model.Expansion, error) {
	const query = `
		SELECT id, name, base_game_id, new_max_players, complexity_delta
		FROM expansions
		WHERE id = $1
	`

	var e model.Expansion
	err := r.pool.QueryRow(ctx, query, expansionID).
		Scan(&e.ID, &e.Name, &e.BaseGameID, &e.NewMaxPlayers, &e.ComplexityDelta)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExpansionNotFound
		}
		return nil, fmt.Errorf("failed to get expansion: %w", err)
	}
	return &e, nil
}

// DeleteOwnedForUser removes a user's expansion ownership records.
func (r *ExpansionRepository) DeleteOwnedForUser(ctx context.Context, userID int64) error {
	const query = `
		DELETE FROM user_expansions WHERE user_id = $1
	`

	if _, err := r.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to delete owned expansions: %w", err)
	}
	return nil
}
