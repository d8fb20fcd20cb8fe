// Package repository provides data access layer implementations.
// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"game-night-bot/internal/model"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool
// Skips the test if Docker is not available
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	err = runMigrations(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// runMigrations applies the database schema
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			telegram_id BIGINT PRIMARY KEY,
			telegram_name VARCHAR(255) NOT NULL,
			bgg_username VARCHAR(255),
			is_guest BOOLEAN NOT NULL DEFAULT FALSE,
			added_by BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS games (
			id BIGINT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			min_players INT NOT NULL DEFAULT 1,
			max_players INT NOT NULL DEFAULT 1,
			playing_time INT NOT NULL DEFAULT 0,
			min_playing_time INT,
			max_playing_time INT,
			complexity DOUBLE PRECISION NOT NULL DEFAULT 0,
			thumbnail TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS collection (
			user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
			game_id BIGINT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			state SMALLINT NOT NULL DEFAULT 0,
			effective_max_players INT,
			effective_complexity DOUBLE PRECISION,
			PRIMARY KEY (user_id, game_id)
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			chat_id BIGINT PRIMARY KEY,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			weighted BOOLEAN NOT NULL DEFAULT FALSE,
			poll_mode SMALLINT NOT NULL DEFAULT 0,
			hide_voters BOOLEAN NOT NULL DEFAULT FALSE,
			vote_limit INT NOT NULL DEFAULT -1,
			message_id INT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS session_players (
			chat_id BIGINT NOT NULL REFERENCES sessions(chat_id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
			PRIMARY KEY (chat_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS polls (
			poll_id VARCHAR(255) PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			message_id INT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS poll_votes (
			poll_id VARCHAR(255) NOT NULL REFERENCES polls(poll_id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL,
			target BIGINT NOT NULL,
			user_name VARCHAR(255) NOT NULL DEFAULT '',
			PRIMARY KEY (poll_id, user_id, target)
		)`,
		`CREATE TABLE IF NOT EXISTS expansions (
			id BIGINT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			base_game_id BIGINT NOT NULL,
			new_max_players INT,
			complexity_delta DOUBLE PRECISION
		)`,
		`CREATE TABLE IF NOT EXISTS user_expansions (
			user_id BIGINT NOT NULL,
			expansion_id BIGINT NOT NULL REFERENCES expansions(id) ON DELETE CASCADE,
			PRIMARY KEY (user_id, expansion_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func TestUserRepository(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewUserRepository(pool)

	t.Run("upsert creates and renames", func(t *testing.T) {
		user, err := repo.Upsert(ctx, 100, "Alice")
		require.NoError(t, err)
		assert.Equal(t, "Alice", user.TelegramName)
		assert.False(t, user.IsGuest)

		user, err = repo.Upsert(ctx, 100, "Alice B")
		require.NoError(t, err)
		assert.Equal(t, "Alice B", user.TelegramName)
	})

	t.Run("get missing user", func(t *testing.T) {
		_, err := repo.GetByID(ctx, 99999)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("set bgg username", func(t *testing.T) {
		require.NoError(t, repo.SetBGGUsername(ctx, 100, "alice_bgg"))
		user, err := repo.GetByID(ctx, 100)
		require.NoError(t, err)
		require.NotNil(t, user.BGGUsername)
		assert.Equal(t, "alice_bgg", *user.BGGUsername)

		assert.ErrorIs(t, repo.SetBGGUsername(ctx, 99999, "x"), ErrUserNotFound)
	})

	t.Run("guest lifecycle", func(t *testing.T) {
		minID, err := repo.MinGuestID(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), minID)

		guest, err := repo.CreateGuest(ctx, -1000001, "Bob (guest)", 100)
		require.NoError(t, err)
		assert.True(t, guest.IsGuest)
		require.NotNil(t, guest.AddedBy)
		assert.Equal(t, int64(100), *guest.AddedBy)

		minID, err = repo.MinGuestID(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(-1000001), minID)

		require.NoError(t, repo.DeleteGuest(ctx, guest.TelegramID))
		assert.ErrorIs(t, repo.DeleteGuest(ctx, guest.TelegramID), ErrUserNotFound)

		// Non-guests cannot be deleted through the guest path.
		assert.ErrorIs(t, repo.DeleteGuest(ctx, 100), ErrUserNotFound)
	})
}

func TestGameRepository(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewGameRepository(pool)

	catan := &model.Game{ID: 13, Name: "Catan", MinPlayers: 3, MaxPlayers: 4, PlayingTime: 120, Complexity: 2.29}

	t.Run("upsert and get", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, catan))

		got, err := repo.GetByID(ctx, 13)
		require.NoError(t, err)
		assert.Equal(t, "Catan", got.Name)
		assert.InDelta(t, 2.29, got.Complexity, 0.001)

		catan.MaxPlayers = 6
		require.NoError(t, repo.Upsert(ctx, catan))
		got, err = repo.GetByID(ctx, 13)
		require.NoError(t, err)
		assert.Equal(t, 6, got.MaxPlayers)
	})

	t.Run("get missing game", func(t *testing.T) {
		_, err := repo.GetByID(ctx, 404404)
		assert.ErrorIs(t, err, ErrGameNotFound)
	})

	t.Run("get by ids", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, &model.Game{ID: 9209, Name: "Ticket to Ride"}))

		games, err := repo.GetByIDs(ctx, []int64{13, 9209, 404404})
		require.NoError(t, err)
		assert.Len(t, games, 2)
		assert.Contains(t, games, int64(13))
		assert.Contains(t, games, int64(9209))
	})

	t.Run("complexity backfill", func(t *testing.T) {
		require.NoError(t, repo.UpdateComplexity(ctx, 9209, 1.84))
		got, err := repo.GetByID(ctx, 9209)
		require.NoError(t, err)
		assert.InDelta(t, 1.84, got.Complexity, 0.001)

		assert.ErrorIs(t, repo.UpdateComplexity(ctx, 404404, 2.0), ErrGameNotFound)
	})
}

func TestCollectionRepository(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	users := NewUserRepository(pool)
	games := NewGameRepository(pool)
	repo := NewCollectionRepository(pool)

	_, err := users.Upsert(ctx, 100, "Alice")
	require.NoError(t, err)
	_, err = users.Upsert(ctx, 200, "Bob")
	require.NoError(t, err)

	for _, g := range []*model.Game{
		{ID: 1, Name: "Azul", Complexity: 1.8, MaxPlayers: 4},
		{ID: 2, Name: "Catan", Complexity: 2.3, MaxPlayers: 4},
		{ID: 3, Name: "Brass", Complexity: 3.9, MaxPlayers: 4},
	} {
		require.NoError(t, games.Upsert(ctx, g))
	}

	t.Run("sync preserves state and prunes", func(t *testing.T) {
		require.NoError(t, repo.Sync(ctx, 100, []int64{1, 2}, model.StateIncluded))
		require.NoError(t, repo.SetState(ctx, 100, 1, model.StateStarred))

		// Re-sync: game 2 gone, game 3 new, game 1 keeps its star.
		require.NoError(t, repo.Sync(ctx, 100, []int64{1, 3}, model.StateIncluded))

		ids, err := repo.GameIDs(ctx, 100)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{1, 3}, ids)

		entry, err := repo.GetEntry(ctx, 100, 1)
		require.NoError(t, err)
		assert.Equal(t, model.StateStarred, entry.State)

		_, err = repo.GetEntry(ctx, 100, 2)
		assert.ErrorIs(t, err, ErrGameNotFound)

		entry, err = repo.GetEntry(ctx, 100, 3)
		require.NoError(t, err)
		assert.Equal(t, model.StateIncluded, entry.State)
	})

	t.Run("list page sorted with total", func(t *testing.T) {
		owned, total, err := repo.ListPage(ctx, 100, 1, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, owned, 1)
		assert.Equal(t, "Azul", owned[0].Game.Name)

		owned, _, err = repo.ListPage(ctx, 100, 1, 1)
		require.NoError(t, err)
		require.Len(t, owned, 1)
		assert.Equal(t, "Brass", owned[0].Game.Name)
	})

	t.Run("available dedups across owners and drops excluded", func(t *testing.T) {
		require.NoError(t, repo.Sync(ctx, 200, []int64{1, 2}, model.StateIncluded))
		require.NoError(t, repo.SetState(ctx, 200, 2, model.StateExcluded))

		owned, err := repo.ListAvailable(ctx, []int64{100, 200})
		require.NoError(t, err)

		names := make(map[string]model.GameState)
		for _, og := range owned {
			names[og.Game.Name] = og.Entry.State
		}
		// Azul appears once even though both users own it, carrying
		// Alice's star. Catan is excluded by its only non-pruned owner.
		assert.Len(t, owned, 2)
		assert.Equal(t, model.StateStarred, names["Azul"])
		assert.Contains(t, names, "Brass")
		assert.NotContains(t, names, "Catan")
	})

	t.Run("starred by", func(t *testing.T) {
		starred, err := repo.StarredBy(ctx, []int64{100, 200})
		require.NoError(t, err)
		assert.Equal(t, map[int64][]int64{1: {100}}, starred)
	})

	t.Run("effective overrides", func(t *testing.T) {
		six := 6
		heavier := 2.1
		require.NoError(t, repo.SetEffective(ctx, 100, 1, &six, &heavier))

		entry, err := repo.GetEntry(ctx, 100, 1)
		require.NoError(t, err)
		require.NotNil(t, entry.EffectiveMaxPlayers)
		assert.Equal(t, 6, *entry.EffectiveMaxPlayers)
		require.NotNil(t, entry.EffectiveComplexity)
		assert.InDelta(t, 2.1, *entry.EffectiveComplexity, 0.001)
	})

	t.Run("delete for user", func(t *testing.T) {
		require.NoError(t, repo.DeleteForUser(ctx, 200))
		_, total, err := repo.ListPage(ctx, 200, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, total)
	})
}

func TestSessionRepository(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	users := NewUserRepository(pool)
	repo := NewSessionRepository(pool)

	_, err := users.Upsert(ctx, 100, "Alice")
	require.NoError(t, err)
	_, err = users.Upsert(ctx, 200, "Bob")
	require.NoError(t, err)

	const chatID = int64(-500)

	t.Run("create resets settings", func(t *testing.T) {
		s, err := repo.Create(ctx, chatID)
		require.NoError(t, err)
		assert.True(t, s.IsActive)
		assert.False(t, s.Weighted)
		assert.Equal(t, model.VoteLimitAuto, s.VoteLimit)
		assert.Nil(t, s.MessageID)

		require.NoError(t, repo.SetWeighted(ctx, chatID, true))

		s, err = repo.Create(ctx, chatID)
		require.NoError(t, err)
		assert.False(t, s.Weighted)
	})

	t.Run("settings round trip", func(t *testing.T) {
		require.NoError(t, repo.SetWeighted(ctx, chatID, true))
		require.NoError(t, repo.SetPollMode(ctx, chatID, model.PollModeNative))
		require.NoError(t, repo.SetHideVoters(ctx, chatID, true))
		require.NoError(t, repo.SetVoteLimit(ctx, chatID, 5))
		require.NoError(t, repo.SetMessageID(ctx, chatID, 42))

		s, err := repo.Get(ctx, chatID)
		require.NoError(t, err)
		assert.True(t, s.Weighted)
		assert.Equal(t, model.PollModeNative, s.PollMode)
		assert.True(t, s.HideVoters)
		assert.Equal(t, 5, s.VoteLimit)
		require.NotNil(t, s.MessageID)
		assert.Equal(t, 42, *s.MessageID)
	})

	t.Run("active flag", func(t *testing.T) {
		require.NoError(t, repo.SetActive(ctx, chatID, false))
		_, err := repo.GetActive(ctx, chatID)
		assert.ErrorIs(t, err, ErrSessionNotFound)

		require.NoError(t, repo.SetActive(ctx, chatID, true))
		_, err = repo.GetActive(ctx, chatID)
		assert.NoError(t, err)
	})

	t.Run("missing session", func(t *testing.T) {
		_, err := repo.Get(ctx, -999999)
		assert.ErrorIs(t, err, ErrSessionNotFound)
		assert.ErrorIs(t, repo.SetWeighted(ctx, -999999, true), ErrSessionNotFound)
	})

	t.Run("lobby membership", func(t *testing.T) {
		require.NoError(t, repo.AddPlayer(ctx, chatID, 100))
		require.NoError(t, repo.AddPlayer(ctx, chatID, 100)) // idempotent
		require.NoError(t, repo.AddPlayer(ctx, chatID, 200))

		players, err := repo.Players(ctx, chatID)
		require.NoError(t, err)
		require.Len(t, players, 2)
		assert.Equal(t, "Alice", players[0].TelegramName)
		assert.Equal(t, "Bob", players[1].TelegramName)

		require.NoError(t, repo.RemovePlayer(ctx, chatID, 100))
		count, err := repo.PlayerCount(ctx, chatID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		require.NoError(t, repo.ClearPlayers(ctx, chatID))
		count, err = repo.PlayerCount(ctx, chatID)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("recreate empties lobby", func(t *testing.T) {
		_, err := repo.Create(ctx, chatID)
		require.NoError(t, err)
		require.NoError(t, repo.AddPlayer(ctx, chatID, 100))

		count, err := repo.PlayerCount(ctx, chatID)
		require.NoError(t, err)
		require.Equal(t, 1, count)

		// Starting over reuses the sessions row, so the old roster has
		// to be cleared explicitly rather than by cascade.
		_, err = repo.Create(ctx, chatID)
		require.NoError(t, err)

		count, err = repo.PlayerCount(ctx, chatID)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestPollRepository(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewPollRepository(pool)

	const chatID = int64(-500)

	t.Run("create and list", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, &model.Poll{PollID: "p1", ChatID: chatID, MessageID: 10}))
		require.NoError(t, repo.Create(ctx, &model.Poll{PollID: "p2", ChatID: chatID, MessageID: 11}))

		polls, err := repo.ListByChat(ctx, chatID)
		require.NoError(t, err)
		assert.Len(t, polls, 2)

		p, err := repo.GetByPollID(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, chatID, p.ChatID)

		_, err = repo.GetByPollID(ctx, "missing")
		assert.ErrorIs(t, err, ErrPollNotFound)
	})

	t.Run("votes and limits", func(t *testing.T) {
		require.NoError(t, repo.AddVote(ctx, &model.Vote{PollID: "p1", UserID: 100, Target: 13, UserName: "Alice"}))
		require.NoError(t, repo.AddVote(ctx, &model.Vote{PollID: "p1", UserID: 100, Target: 13, UserName: "Alice"})) // idempotent
		require.NoError(t, repo.AddVote(ctx, &model.Vote{PollID: "p1", UserID: 100, Target: -2, UserName: "Alice"}))
		require.NoError(t, repo.AddVote(ctx, &model.Vote{PollID: "p2", UserID: 200, Target: 13, UserName: "Bob"}))

		count, err := repo.CountUserVotes(ctx, "p1", 100)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		votes, err := repo.VotesForPoll(ctx, "p1")
		require.NoError(t, err)
		assert.Len(t, votes, 2)

		votes, err = repo.VotesForChat(ctx, chatID)
		require.NoError(t, err)
		assert.Len(t, votes, 3)

		// Voters are counted per poll, not per chat. A voter on a
		// sibling poll must not advance another poll's close check.
		voters, err := repo.DistinctVotersForPoll(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 1, voters)

		voters, err = repo.DistinctVotersForPoll(ctx, "p2")
		require.NoError(t, err)
		assert.Equal(t, 1, voters)
	})

	t.Run("remove vote", func(t *testing.T) {
		removed, err := repo.RemoveVote(ctx, "p1", 100, -2)
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = repo.RemoveVote(ctx, "p1", 100, -2)
		require.NoError(t, err)
		assert.False(t, removed)

		require.NoError(t, repo.RemoveVotesForUser(ctx, "p1", 100))
		count, err := repo.CountUserVotes(ctx, "p1", 100)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("delete by chat", func(t *testing.T) {
		require.NoError(t, repo.DeleteByChat(ctx, chatID))
		polls, err := repo.ListByChat(ctx, chatID)
		require.NoError(t, err)
		assert.Empty(t, polls)

		votes, err := repo.VotesForChat(ctx, chatID)
		require.NoError(t, err)
		assert.Empty(t, votes)
	})
}

func TestExpansionRepository(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewExpansionRepository(pool)

	six := 6
	seafarers := &model.Expansion{ID: 926, Name: "Catan: Seafarers", BaseGameID: 13, NewMaxPlayers: &six}

	t.Run("upsert and ownership", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, seafarers))
		require.NoError(t, repo.SetOwned(ctx, 100, 926))
		require.NoError(t, repo.SetOwned(ctx, 100, 926)) // idempotent

		cached, err := repo.GetByID(ctx, 926)
		require.NoError(t, err)
		assert.Equal(t, "Catan: Seafarers", cached.Name)
		require.NotNil(t, cached.NewMaxPlayers)
		assert.Equal(t, 6, *cached.NewMaxPlayers)

		_, err = repo.GetByID(ctx, 404)
		assert.ErrorIs(t, err, ErrExpansionNotFound)

		byBase, err := repo.OwnedForBaseGames(ctx, 100)
		require.NoError(t, err)
		require.Len(t, byBase[13], 1)
		assert.Equal(t, "Catan: Seafarers", byBase[13][0].Name)
	})

	t.Run("delete owned", func(t *testing.T) {
		require.NoError(t, repo.DeleteOwnedForUser(ctx, 100))
		byBase, err := repo.OwnedForBaseGames(ctx, 100)
		require.NoError(t, err)
		assert.Empty(t, byBase)
	})
}
