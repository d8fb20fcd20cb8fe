// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"game-night-bot/internal/config"
	"game-night-bot/internal/handler"
	"game-night-bot/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	sessionService    *service.SessionService
	pollService       *service.PollService
	collectionService *service.CollectionService

	// Handlers
	lobbyHandler      *handler.LobbyHandler
	pollHandler       *handler.PollHandler
	collectionHandler *handler.CollectionHandler
	guestHandler      *handler.GuestHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config            *config.Config
	SessionService    *service.SessionService
	PollService       *service.PollService
	CollectionService *service.CollectionService
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:               teleBot,
		cfg:               deps.Config,
		sessionService:    deps.SessionService,
		pollService:       deps.PollService,
		collectionService: deps.CollectionService,
	}

	// Initialize handlers. The lobby handler needs the poll handler
	// so join/leave can refresh an open custom poll.
	b.pollHandler = handler.NewPollHandler(deps.SessionService, deps.CollectionService, deps.PollService)
	b.lobbyHandler = handler.NewLobbyHandler(deps.SessionService, deps.CollectionService, b.pollHandler)
	b.collectionHandler = handler.NewCollectionHandler(deps.CollectionService)
	b.guestHandler = handler.NewGuestHandler(deps.SessionService, deps.CollectionService)

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command and callback handlers.
func (b *Bot) registerHandlers() {
	// General
	b.bot.Handle("/start", b.lobbyHandler.HandleStart)
	b.bot.Handle("/help", b.lobbyHandler.HandleHelp)

	// Collection handlers
	b.bot.Handle("/setbgg", b.collectionHandler.HandleSetBGG)
	b.bot.Handle("/addgame", b.collectionHandler.HandleAddGame)
	b.bot.Handle("/manage", b.collectionHandler.HandleManage)

	// Session handlers
	b.bot.Handle("/gamenight", b.lobbyHandler.HandleGameNight)
	b.bot.Handle("/cancelnight", b.lobbyHandler.HandleCancelNight)

	// Guest handlers
	b.bot.Handle("/addguest", b.guestHandler.HandleAddGuest)
	b.bot.Handle("/guestgame", b.guestHandler.HandleGuestGame)

	// Poll handlers
	b.bot.Handle("/poll", b.pollHandler.HandlePoll)
	b.bot.Handle(tele.OnPollAnswer, b.pollHandler.HandlePollAnswer)

	// Inline button callbacks
	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// handleCallback routes inline button callbacks to the right handler.
func (b *Bot) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}

	action, args := handler.DecodeCallback(callback.Data)
	log.Debug().Str("action", action).Strs("args", args).Msg("Callback received")

	switch action {
	case handler.CallbackJoin:
		return b.lobbyHandler.HandleJoin(c)
	case handler.CallbackLeave:
		return b.lobbyHandler.HandleLeave(c)
	case handler.CallbackResume:
		return b.lobbyHandler.HandleResume(c)
	case handler.CallbackRestart:
		return b.lobbyHandler.HandleRestart(c)
	case handler.CallbackCancel:
		return b.lobbyHandler.HandleCancel(c)
	case handler.CallbackSettings:
		return b.lobbyHandler.HandleSettings(c)
	case handler.CallbackToggleMode:
		return b.lobbyHandler.HandleToggleMode(c)
	case handler.CallbackToggleWeigh:
		return b.lobbyHandler.HandleToggleWeights(c)
	case handler.CallbackToggleHide:
		return b.lobbyHandler.HandleToggleHideVoters(c)
	case handler.CallbackCycleLimit:
		return b.lobbyHandler.HandleCycleVoteLimit(c)
	case handler.CallbackStartPoll:
		return b.pollHandler.HandleStartPollButton(c)
	case handler.PrefixVote:
		return b.pollHandler.HandleVote(c, args)
	case handler.PrefixCategoryVote:
		return b.pollHandler.HandleCategoryVote(c, args)
	case handler.PrefixRefresh:
		return b.pollHandler.HandleRefresh(c, args)
	case handler.PrefixClose:
		return b.pollHandler.HandleClose(c, args)
	case handler.PrefixManage:
		return b.collectionHandler.HandleManageCallback(c, args)
	}

	log.Debug().Str("action", action).Msg("Unknown callback action")
	return c.Respond()
}

// Start starts the bot polling.
func (b *Bot) Start() {
	log.Info().Str("username", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// GetBot returns the underlying telebot instance.
func (b *Bot) GetBot() *tele.Bot {
	return b.bot
}
