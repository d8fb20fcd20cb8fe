package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"game-night-bot/internal/model"
)

// CollectionRepository handles per-user game ownership and availability
// state.
type CollectionRepository struct {
	pool *pgxpool.Pool
}

// NewCollectionRepository creates a new CollectionRepository instance.
func NewCollectionRepository(pool *pgxpool.Pool) *CollectionRepository {
	return &CollectionRepository{pool: pool}
}

// GameIDs returns the IDs of every game in a user's collection.
func (r *CollectionRepository) GameIDs(ctx context.Context, userID int64) ([]int64, error) {
	const query = `
		SELECT game_id FROM collection WHERE user_id = $1
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list collection game ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan collection game id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Sync reconciles a user's collection with a fresh export: new games
// are added with the given initial state, games no longer owned are
// removed, and the state of surviving entries is preserved.
func (r *CollectionRepository) Sync(ctx context.Context, userID int64, gameIDs []int64, newState model.GameState) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin collection sync: %w", err)
	}
	defer tx.Rollback(ctx)

	const deleteQuery = `
		DELETE FROM collection WHERE user_id = $1 AND game_id != ALL($2)
	`
	if _, err := tx.Exec(ctx, deleteQuery, userID, gameIDs); err != nil {
		return fmt.Errorf("failed to prune collection: %w", err)
	}

	const insertQuery = `
		INSERT INTO collection (user_id, game_id, state)
		SELECT $1, unnest($2::bigint[]), $3
		ON CONFLICT (user_id, game_id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, insertQuery, userID, gameIDs, newState); err != nil {
		return fmt.Errorf("failed to insert collection entries: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit collection sync: %w", err)
	}
	return nil
}

// Add inserts a single entry, used for manual games.
func (r *CollectionRepository) Add(ctx context.Context, userID, gameID int64, state model.GameState) error {
	const query = `
		INSERT INTO collection (user_id, game_id, state)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, game_id) DO UPDATE SET state = EXCLUDED.state
	`

	if _, err := r.pool.Exec(ctx, query, userID, gameID, state); err != nil {
		return fmt.Errorf("failed to add collection entry: %w", err)
	}
	return nil
}

// SetState updates the availability state of one entry.
func (r *CollectionRepository) SetState(ctx context.Context, userID, gameID int64, state model.GameState) error {
	const query = `
		UPDATE collection SET state = $3 WHERE user_id = $1 AND game_id = $2
	`

	tag, err := r.pool.Exec(ctx, query, userID, gameID, state)
	if err != nil {
		return fmt.Errorf("failed to set collection state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGameNotFound
	}
	return nil
}

// GetEntry retrieves one collection entry.
func (r *CollectionRepository) GetEntry(ctx context.Context, userID, gameID int64) (*model.CollectionEntry, error) {
	const query = `
		SELECT user_id, game_id, state, effective_max_players, effective_complexity
		FROM collection
		WHERE user_id = $1 AND game_id = $2
	`

	var entry model.CollectionEntry
	err := r.pool.QueryRow(ctx, query, userID, gameID).Scan(
		&entry.UserID,
		&entry.GameID,
		&entry.State,
		&entry.EffectiveMaxPlayers,
		&entry.EffectiveComplexity,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get collection entry: %w", err)
	}
	return &entry, nil
}

// OwnedGame is a game joined with the owner's availability state.
type OwnedGame struct {
	Game  model.Game
	Entry model.CollectionEntry
}

// ListPage returns one page of a user's collection, name-sorted, plus
// the total entry count for pagination.
func (r *CollectionRepository) ListPage(ctx context.Context, userID int64, limit, offset int) ([]OwnedGame, int, error) {
	const countQuery = `
		SELECT COUNT(*) FROM collection WHERE user_id = $1
	`
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count collection: %w", err)
	}

	const query = `
		SELECT g.id, g.name, g.min_players, g.max_players, g.playing_time,
			g.min_playing_time, g.max_playing_time, g.complexity, g.thumbnail,
			c.user_id, c.game_id, c.state, c.effective_max_players, c.effective_complexity
		FROM collection c
		JOIN games g ON g.id = c.game_id
		WHERE c.user_id = $1
		ORDER BY lower(g.name)
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list collection page: %w", err)
	}
	defer rows.Close()

	owned, err := scanOwnedGames(rows)
	if err != nil {
		return nil, 0, err
	}
	return owned, total, nil
}

// ListAvailable returns the non-excluded games owned by any of the
// given users, deduplicated and joined with their catalog rows.
// Starring by one owner wins over plain inclusion by another.
func (r *CollectionRepository) ListAvailable(ctx context.Context, userIDs []int64) ([]OwnedGame, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	const query = `
		SELECT DISTINCT ON (g.id)
			g.id, g.name, g.min_players, g.max_players, g.playing_time,
			g.min_playing_time, g.max_playing_time, g.complexity, g.thumbnail,
			c.user_id, c.game_id, c.state, c.effective_max_players, c.effective_complexity
		FROM collection c
		JOIN games g ON g.id = c.game_id
		WHERE c.user_id = ANY($1) AND c.state != $2
		ORDER BY g.id, c.state DESC, c.effective_max_players DESC NULLS LAST
	`

	rows, err := r.pool.Query(ctx, query, userIDs, model.StateExcluded)
	if err != nil {
		return nil, fmt.Errorf("failed to list available games: %w", err)
	}
	defer rows.Close()

	return scanOwnedGames(rows)
}

// StarredBy maps each game to the users among userIDs who starred it.
func (r *CollectionRepository) StarredBy(ctx context.Context, userIDs []int64) (map[int64][]int64, error) {
	if len(userIDs) == 0 {
		return map[int64][]int64{}, nil
	}

	const query = `
		SELECT game_id, user_id FROM collection
		WHERE user_id = ANY($1) AND state = $2
	`

	rows, err := r.pool.Query(ctx, query, userIDs, model.StateStarred)
	if err != nil {
		return nil, fmt.Errorf("failed to list starred games: %w", err)
	}
	defer rows.Close()

	starred := make(map[int64][]int64)
	for rows.Next() {
		var gameID, userID int64
		if err := rows.Scan(&gameID, &userID); err != nil {
			return nil, fmt.Errorf("failed to scan starred row: %w", err)
		}
		starred[gameID] = append(starred[gameID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate starred rows: %w", err)
	}
	return starred, nil
}

// SetEffective stores expansion-derived overrides on an entry. Nil
// values clear the override.
func (r *CollectionRepository) SetEffective(ctx context.Context, userID, gameID int64, maxPlayers *int, complexity *float64) error {
	const query = `
		UPDATE collection
		SET effective_max_players = $3, effective_complexity = $4
		WHERE user_id = $1 AND game_id = $2
	`

	if _, err := r.pool.Exec(ctx, query, userID, gameID, maxPlayers, complexity); err != nil {
		return fmt.Errorf("failed to set effective values: %w", err)
	}
	return nil
}

// DeleteForUser removes a user's entire collection.
func (r *CollectionRepository) DeleteForUser(ctx context.Context, userID int64) error {
	const query = `
		DELETE FROM collection WHERE user_id = $1
	`

	if _, err := r.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

func scanOwnedGames(rows pgx.Rows) ([]OwnedGame, error) {
	var owned []OwnedGame
	for rows.Next() {
		var og OwnedGame
		if err := rows.Scan(
			&og.Game.ID,
			&og.Game.Name,
			&og.Game.MinPlayers,
			&og.Game.MaxPlayers,
			&og.Game.PlayingTime,
			&og.Game.MinPlayingTime,
			&og.Game.MaxPlayingTime,
			&og.Game.Complexity,
			&og.Game.Thumbnail,
			&og.Entry.UserID,
			&og.Entry.GameID,
			&og.Entry.State,
			&og.Entry.EffectiveMaxPlayers,
			&og.Entry.EffectiveComplexity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan owned game: %w", err)
		}
		owned = append(owned, og)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate owned games: %w", err)
	}
	return owned, nil
}
