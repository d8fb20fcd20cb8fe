package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"game-night-bot/internal/model"
)

// GameRepository handles the shared game catalog.
type GameRepository struct {
	pool *pgxpool.Pool
}

// NewGameRepository creates a new GameRepository instance.
func NewGameRepository(pool *pgxpool.Pool) *GameRepository {
	return &GameRepository{pool: pool}
}

const gameColumns = `id, name, min_players, max_players, playing_time,
		min_playing_time, max_playing_time, complexity, thumbnail`

// Upsert inserts or refreshes a catalog game.
func (r *GameRepository) Upsert(ctx context.Context, game *model.Game) error {
	const query = `
		INSERT INTO games (id, name, min_players, max_players, playing_time,
			min_playing_time, max_playing_time, complexity, thumbnail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			min_players = EXCLUDED.min_players,
			max_players = EXCLUDED.max_players,
			playing_time = EXCLUDED.playing_time,
			min_playing_time = EXCLUDED.min_playing_time,
			max_playing_time = EXCLUDED.max_playing_time,
			complexity = EXCLUDED.complexity,
			thumbnail = EXCLUDED.thumbnail
	`

	_, err := r.pool.Exec(ctx, query,
		game.ID, game.Name, game.MinPlayers, game.MaxPlayers, game.PlayingTime,
		game.MinPlayingTime, game.MaxPlayingTime, game.Complexity, game.Thumbnail,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert game: %w", err)
	}
	return nil
}

// GetByID retrieves a game by its catalog ID.
// Returns ErrGameNotFound if the game does not exist.
func (r *GameRepository) GetByID(ctx context.Context, id int64) (*model.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE id = $1`

	var game model.Game
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&game.ID,
		&game.Name,
		&game.MinPlayers,
		&game.MaxPlayers,
		&game.PlayingTime,
		&game.MinPlayingTime,
		&game.MaxPlayingTime,
		&game.Complexity,
		&game.Thumbnail,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	return &game, nil
}

// GetByIDs retrieves multiple games keyed by ID. Missing IDs are
// silently absent from the result.
func (r *GameRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.Game, error) {
	if len(ids) == 0 {
		return map[int64]*model.Game{}, nil
	}

	query := `SELECT ` + gameColumns + ` FROM games WHERE id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get games: %w", err)
	}
	defer rows.Close()

	games := make(map[int64]*model.Game, len(ids))
	for rows.Next() {
		var game model.Game
		if err := rows.Scan(
			&game.ID,
			&game.Name,
			&game.MinPlayers,
			&game.MaxPlayers,
			&game.PlayingTime,
			&game.MinPlayingTime,
			&game.MaxPlayingTime,
			&game.Complexity,
			&game.Thumbnail,
		); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games[game.ID] = &game
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate games: %w", err)
	}
	return games, nil
}

// GetByName finds a game by exact name, case-insensitive. When several
// games share the name, catalog games win over manually minted ones.
// Returns ErrGameNotFound if no game matches.
func (r *GameRepository) GetByName(ctx context.Context, name string) (*model.Game, error) {
	query := `
		SELECT ` + gameColumns + `
		FROM games
		WHERE lower(name) = lower($1)
		ORDER BY (id > 0) DESC, id
		LIMIT 1`

	var game model.Game
	err := r.pool.QueryRow(ctx, query, name).Scan(
		&game.ID,
		&game.Name,
		&game.MinPlayers,
		&game.MaxPlayers,
		&game.PlayingTime,
		&game.MinPlayingTime,
		&game.MaxPlayingTime,
		&game.Complexity,
		&game.Thumbnail,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game by name: %w", err)
	}

	return &game, nil
}

// UpdateComplexity backfills the weight of a game that arrived from a
// collection export without one.
func (r *GameRepository) UpdateComplexity(ctx context.Context, id int64, complexity float64) error {
	const query = `
		UPDATE games SET complexity = $2 WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, complexity)
	if err != nil {
		return fmt.Errorf("failed to update complexity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGameNotFound
	}
	return nil
}
