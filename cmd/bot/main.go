// Package main is the entry point for the Game Night bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"game-night-bot/internal/bgg"
	"game-night-bot/internal/bot"
	"game-night-bot/internal/config"
	"game-night-bot/internal/pkg/db"
	"game-night-bot/internal/pkg/lock"
	"game-night-bot/internal/repository"
	"game-night-bot/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	gameRepo := repository.NewGameRepository(dbPool.Pool)
	collectionRepo := repository.NewCollectionRepository(dbPool.Pool)
	expansionRepo := repository.NewExpansionRepository(dbPool.Pool)
	sessionRepo := repository.NewSessionRepository(dbPool.Pool)
	pollRepo := repository.NewPollRepository(dbPool.Pool)

	// Initialize BGG API client. The token is optional; anonymous
	// requests work at a lower rate limit.
	bggClient := bgg.NewClient(&cfg.BGG, os.Getenv("BGG_API_TOKEN"))

	// Initialize services
	chatLocks := lock.NewChatLock()

	sessionService := service.NewSessionService(
		sessionRepo,
		userRepo,
		pollRepo,
		cfg.Session.EndNightOnClose,
	)

	pollService := service.NewPollService(
		sessionRepo,
		pollRepo,
		collectionRepo,
		chatLocks,
		cfg.Poll.MaxOptions,
	)

	collectionService := service.NewCollectionService(
		userRepo,
		gameRepo,
		collectionRepo,
		expansionRepo,
		sessionRepo,
		bggClient,
	)

	// Create bot dependencies
	deps := &bot.Dependencies{
		Config:            cfg,
		SessionService:    sessionService,
		PollService:       pollService,
		CollectionService: collectionService,
	}

	// Initialize bot
	telegramBot, err := bot.New(deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in a goroutine
	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	telegramBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: users (Telegram users and ephemeral guests)
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			telegram_id BIGINT PRIMARY KEY,
			telegram_name VARCHAR(255) NOT NULL,
			bgg_username VARCHAR(255),
			is_guest BOOLEAN NOT NULL DEFAULT FALSE,
			added_by BIGINT
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: users table created")

	// Migration 2: games catalog (positive IDs from BGG, negative
	// ones minted for manual entries)
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS games (
			id BIGINT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			min_players INT NOT NULL DEFAULT 1,
			max_players INT NOT NULL DEFAULT 1,
			playing_time INT NOT NULL DEFAULT 0,
			min_playing_time INT,
			max_playing_time INT,
			complexity DOUBLE PRECISION NOT NULL DEFAULT 0,
			thumbnail TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_games_name ON games(lower(name));
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: games table created")

	// Migration 3: per-user collections with inclusion state and
	// expansion-derived effective overrides
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS collection (
			user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
			game_id BIGINT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			state SMALLINT NOT NULL DEFAULT 0,
			effective_max_players INT,
			effective_complexity DOUBLE PRECISION,
			PRIMARY KEY (user_id, game_id)
		);
		CREATE INDEX IF NOT EXISTS idx_collection_game ON collection(game_id);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: collection table created")

	// Migration 4: game night sessions and lobby membership
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			chat_id BIGINT PRIMARY KEY,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			weighted BOOLEAN NOT NULL DEFAULT FALSE,
			poll_mode SMALLINT NOT NULL DEFAULT 0,
			hide_voters BOOLEAN NOT NULL DEFAULT FALSE,
			vote_limit INT NOT NULL DEFAULT -1,
			message_id INT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS session_players (
			chat_id BIGINT NOT NULL REFERENCES sessions(chat_id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
			PRIMARY KEY (chat_id, user_id)
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: session tables created")

	// Migration 5: open polls and their votes
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS polls (
			poll_id VARCHAR(255) PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			message_id INT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_polls_chat ON polls(chat_id);
		CREATE TABLE IF NOT EXISTS poll_votes (
			poll_id VARCHAR(255) NOT NULL REFERENCES polls(poll_id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL,
			target BIGINT NOT NULL,
			user_name VARCHAR(255) NOT NULL DEFAULT '',
			PRIMARY KEY (poll_id, user_id, target)
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: poll tables created")

	// Migration 6: expansion catalog and ownership
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS expansions (
			id BIGINT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			base_game_id BIGINT NOT NULL,
			new_max_players INT,
			complexity_delta DOUBLE PRECISION
		);
		CREATE INDEX IF NOT EXISTS idx_expansions_base ON expansions(base_game_id);
		CREATE TABLE IF NOT EXISTS user_expansions (
			user_id BIGINT NOT NULL,
			expansion_id BIGINT NOT NULL REFERENCES expansions(id) ON DELETE CASCADE,
			PRIMARY KEY (user_id, expansion_id)
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 6: expansion tables created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
