package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"game-night-bot/internal/gamenight"
	"game-night-bot/internal/model"
	"game-night-bot/internal/service"
)

const staleSessionAlert = "This session is expired. Please use the active Game Night message."

// LobbyHandler handles the game night lobby: lifecycle commands, the
// join/leave buttons, and the poll settings panel.
type LobbyHandler struct {
	sessions    *service.SessionService
	collections *service.CollectionService
	polls       *PollHandler
}

// NewLobbyHandler creates a new LobbyHandler.
func NewLobbyHandler(
	sessions *service.SessionService,
	collections *service.CollectionService,
	polls *PollHandler,
) *LobbyHandler {
	return &LobbyHandler{
		sessions:    sessions,
		collections: collections,
		polls:       polls,
	}
}

// lobbyKeyboard is the standard lobby button layout.
func lobbyKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{
			{
				{Text: "Join", Data: CallbackJoin},
				{Text: "Leave", Data: CallbackLeave},
			},
			{{Text: "📊 Poll", Data: CallbackStartPoll}},
			{{Text: "⚙️ Poll Settings", Data: CallbackSettings}},
			{{Text: "❌ Cancel", Data: CallbackCancel}},
		},
	}
}

// playerNames renders the roster, guests marked.
func playerNames(players []*model.User) []string {
	names := make([]string, 0, len(players))
	for _, p := range players {
		name := p.DisplayName()
		if p.IsGuest {
			name += " 👤"
		}
		names = append(names, name)
	}
	return names
}

func lobbyText(headline string, players []*model.User) string {
	if len(players) == 0 {
		return headline + "\n\nWho is in?"
	}
	names := playerNames(players)
	return fmt.Sprintf("%s\n\n*Joined (%d):*\n- %s", headline, len(names), strings.Join(names, "\n- "))
}

// HandleStart handles the /start command.
func (h *LobbyHandler) HandleStart(c tele.Context) error {
	return c.Reply(
		"🎲 *Welcome to Game Night Decider!*\n\n"+
			"I'm here to solve the _\"What should we play?\"_ dilemma.\n\n"+
			"*Quick Start:*\n"+
			"1️⃣ /setbgg `<username>` - Sync your collection\n"+
			"2️⃣ /gamenight - Open a lobby for friends to join\n"+
			"3️⃣ /poll - Let democracy decide!\n\n"+
			"*Other Commands:*\n"+
			"• /addgame `<name>` - Search BGG and add game\n"+
			"• /manage - Toggle game availability (⬜→🌟→❌)\n"+
			"• /help - Show all available commands\n\n"+
			"_Add me to a group chat for the best experience!_",
		tele.ModeMarkdown,
	)
}

// HandleHelp handles the /help command.
func (h *LobbyHandler) HandleHelp(c tele.Context) error {
	return c.Reply(
		"📚 *Game Night Decider - Command List*\n\n"+
			"*Setup & Profile:*\n"+
			"• /setbgg `<username>` - Link your BoardGameGeek account\n"+
			"• /addgame `<name>` - Add a game to your collection (searches BGG)\n"+
			"• /manage - Manage collection (⬜ Included → 🌟 Starred → ❌ Excluded)\n\n"+
			"*Game Night:*\n"+
			"• /gamenight - Start a new game night lobby\n"+
			"• /poll - Create a poll from joined players' collections\n"+
			"• /addguest `<name>` - Add a guest player\n"+
			"• /guestgame `<name> <game>` - Add game to guest's list\n\n"+
			"*Other:*\n"+
			"• /help - Show this message\n"+
			"• /start - Show welcome message",
		tele.ModeMarkdown,
	)
}

// HandleGameNight handles the /gamenight command.
func (h *LobbyHandler) HandleGameNight(c tele.Context) error {
	ctx := context.Background()
	chatID := c.Chat().ID

	_, outcome, err := h.sessions.Start(ctx, chatID)
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to start game night")
		return c.Reply("Something went wrong, please try again.")
	}

	if outcome == service.NeedsConfirmation {
		players, err := h.sessions.Players(ctx, chatID)
		if err != nil {
			return err
		}
		names := playerNames(players)
		markup := &tele.ReplyMarkup{
			InlineKeyboard: [][]tele.InlineButton{
				{
					{Text: "Resume", Data: CallbackResume},
					{Text: "End & Start New", Data: CallbackRestart},
				},
			},
		}
		return c.Reply(
			fmt.Sprintf(
				"⚠️ *Game Night Already Running!*\n\n*Current players (%d):*\n- %s\n\nResume or start a new one?",
				len(names), strings.Join(names, "\n- "),
			),
			markup, tele.ModeMarkdown,
		)
	}

	msg, err := c.Bot().Send(c.Chat(), lobbyText("🎲 *Game Night Started!*", nil), lobbyKeyboard(), tele.ModeMarkdown)
	if err != nil {
		return err
	}
	return h.sessions.BindMessage(ctx, chatID, msg.ID)
}

// HandleCancelNight handles the /cancelnight command.
func (h *LobbyHandler) HandleCancelNight(c tele.Context) error {
	ctx := context.Background()
	chatID := c.Chat().ID

	if err := h.endNight(ctx, chatID); err != nil {
		if errors.Is(err, service.ErrNoActiveSession) {
			return c.Reply("No active game night to cancel! Use /gamenight to start one.")
		}
		return err
	}
	return c.Reply("🎲 *Game Night Cancelled.*\n\nUse /gamenight to start a new one!", tele.ModeMarkdown)
}

// endNight purges guest players and closes the session.
func (h *LobbyHandler) endNight(ctx context.Context, chatID int64) error {
	return endNight(ctx, h.sessions, h.collections, chatID)
}

// validate resolves the session for a lobby callback, answering the
// stale alert itself when the button belongs to a superseded message.
func (h *LobbyHandler) validate(c tele.Context, ctx context.Context) (*model.Session, bool, error) {
	session, err := h.sessions.Validate(ctx, c.Chat().ID, c.Message().ID)
	if err != nil {
		if errors.Is(err, service.ErrStaleMessage) || errors.Is(err, service.ErrNoActiveSession) {
			return nil, false, c.Respond(&tele.CallbackResponse{Text: staleSessionAlert, ShowAlert: true})
		}
		return nil, false, err
	}
	return session, true, nil
}

// HandleJoin handles the Join lobby button.
func (h *LobbyHandler) HandleJoin(c tele.Context) error {
	ctx := context.Background()
	chatID := c.Chat().ID
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	session, ok, err := h.validate(c, ctx)
	if !ok {
		return err
	}

	players, err := h.sessions.Players(ctx, chatID)
	if err != nil {
		return err
	}
	member := false
	for _, p := range players {
		if p.TelegramID == sender.ID {
			member = true
			break
		}
	}

	if !member {
		if err := h.sessions.Join(ctx, chatID, sender.ID, sender.FirstName); err != nil {
			return err
		}
		if _, err := c.Bot().Send(c.Chat(),
			fmt.Sprintf("👋 *%s* joined the game night!", sender.FirstName),
			tele.ModeMarkdown,
		); err != nil {
			log.Warn().Err(err).Msg("Failed to send join notification")
		}
		players, err = h.sessions.Players(ctx, chatID)
		if err != nil {
			return err
		}
	}

	if err := c.Respond(); err != nil {
		return err
	}
	if err := c.Edit(lobbyText("🎲 *Game Night Started!*", players), lobbyKeyboard(), tele.ModeMarkdown); err != nil {
		log.Debug().Err(err).Msg("Lobby edit skipped")
	}

	// A lobby change shifts the playable game set, so re-render any
	// open custom poll.
	if session.PollMode == model.PollModeCustom {
		h.polls.RefreshActive(c, session)
	}
	return nil
}

// HandleLeave handles the Leave lobby button.
func (h *LobbyHandler) HandleLeave(c tele.Context) error {
	ctx := context.Background()
	chatID := c.Chat().ID
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	session, ok, err := h.validate(c, ctx)
	if !ok {
		return err
	}

	players, err := h.sessions.Players(ctx, chatID)
	if err != nil {
		return err
	}
	var member *model.User
	for _, p := range players {
		if p.TelegramID == sender.ID {
			member = p
			break
		}
	}
	if err := c.Respond(); err != nil {
		return err
	}
	if member == nil {
		_, err := c.Bot().Send(c.Chat(), fmt.Sprintf("❌ %s, you are not in this game night!", sender.FirstName))
		return err
	}

	if err := h.sessions.Leave(ctx, chatID, sender.ID); err != nil {
		return err
	}
	if member.IsGuest {
		if err := h.collections.PurgeGuest(ctx, sender.ID); err != nil {
			log.Warn().Err(err).Int64("guest_id", sender.ID).Msg("Failed to purge guest")
		}
	}

	if _, err := c.Bot().Send(c.Chat(), fmt.Sprintf("👋 %s has left the game night.", sender.FirstName)); err != nil {
		log.Warn().Err(err).Msg("Failed to send leave notification")
	}

	players, err = h.sessions.Players(ctx, chatID)
	if err != nil {
		return err
	}
	if err := c.Edit(lobbyText("🎲 *Game Night Started!*", players), lobbyKeyboard(), tele.ModeMarkdown); err != nil {
		log.Debug().Err(err).Msg("Lobby edit skipped")
	}

	if session.PollMode == model.PollModeCustom {
		h.polls.RefreshActive(c, session)
	}
	return nil
}

// HandleResume handles the Resume button: the lobby moves to the
// message the button lives on and is re-rendered there.
func (h *LobbyHandler) HandleResume(c tele.Context) error {
	ctx := context.Background()
	chatID := c.Chat().ID

	if err := c.Respond(); err != nil {
		return err
	}

	if _, err := h.sessions.Resume(ctx, chatID); err != nil {
		if errors.Is(err, service.ErrNoActiveSession) {
			return c.Edit("No active game night. Use /gamenight to start one!")
		}
		return err
	}
	if err := h.sessions.BindMessage(ctx, chatID, c.Message().ID); err != nil {
		return err
	}

	players, err := h.sessions.Players(ctx, chatID)
	if err != nil {
		return err
	}
	headline := "🎲 *Game Night Started!*"
	if len(players) > 0 {
		headline = "🎲 *Game Night Resumed!*"
	}
	return c.Edit(lobbyText(headline, players), lobbyKeyboard(), tele.ModeMarkdown)
}

// HandleRestart handles the End & Start New button.
func (h *LobbyHandler) HandleRestart(c tele.Context) error {
	ctx := context.Background()
	chatID := c.Chat().ID

	if err := c.Respond(); err != nil {
		return err
	}

	// Retire the old lobby message so its buttons stop working.
	if old, err := h.sessions.Resume(ctx, chatID); err == nil {
		if old.MessageID != nil && *old.MessageID != c.Message().ID {
			editStored(c, chatID, *old.MessageID, "🎲 *Game Night Cancelled* (A new one was started)")
		}
	}

	h.polls.CloseOpenPolls(c, chatID, "Game Night Restarted")

	players, err := h.sessions.Players(ctx, chatID)
	if err != nil {
		return err
	}
	for _, p := range players {
		if p.IsGuest {
			if err := h.collections.PurgeGuest(ctx, p.TelegramID); err != nil {
				log.Warn().Err(err).Int64("guest_id", p.TelegramID).Msg("Failed to purge guest")
			}
		}
	}

	if _, err := h.sessions.Restart(ctx, chatID); err != nil {
		return err
	}
	if err := c.Edit(lobbyText("🎲 *Game Night Started!*", nil), lobbyKeyboard(), tele.ModeMarkdown); err != nil {
		return err
	}
	return h.sessions.BindMessage(ctx, chatID, c.Message().ID)
}

// HandleCancel handles the Cancel lobby button.
func (h *LobbyHandler) HandleCancel(c tele.Context) error {
	ctx := context.Background()

	_, ok, err := h.validate(c, ctx)
	if !ok {
		return err
	}
	if err := c.Respond(); err != nil {
		return err
	}
	if err := h.endNight(ctx, c.Chat().ID); err != nil {
		return err
	}
	return c.Edit("🎲 *Game Night Cancelled.*\n\nUse /gamenight to start a new one!", tele.ModeMarkdown)
}

const settingsText = "*Poll Settings*\n\n" +
	"• *Custom (Single)*: One message with buttons. Good for large lists.\n" +
	"• *Native (Multiple)*: Standard Telegram polls. Split if >10 games.\n" +
	"• *Weights*: Starred games get +0.5 votes.\n" +
	"• *Vote Limit*: Max votes per player (Auto scales with game count)."

func settingsKeyboard(session *model.Session) *tele.ReplyMarkup {
	mode := "Native (Multiple)"
	if session.PollMode == model.PollModeCustom {
		mode = "Custom (Single)"
	}
	weights := "❌"
	if session.Weighted {
		weights = "✅"
	}
	hide := "❌"
	if session.HideVoters {
		hide = "✅"
	}
	limit := gamenight.VoteLimitLabel(session.VoteLimit)

	return &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{
			{{Text: "Mode: " + mode, Data: CallbackToggleMode}},
			{{Text: "Weights: " + weights, Data: CallbackToggleWeigh}},
			{{Text: "Anonymous Voting: " + hide, Data: CallbackToggleHide}},
			{{Text: "Vote Limit: " + limit, Data: CallbackCycleLimit}},
			{{Text: "🔙 Back to Lobby", Data: CallbackResume}},
		},
	}
}

// HandleSettings shows the poll settings panel.
func (h *LobbyHandler) HandleSettings(c tele.Context) error {
	ctx := context.Background()

	session, ok, err := h.validate(c, ctx)
	if !ok {
		return err
	}
	if err := c.Respond(); err != nil {
		return err
	}
	return c.Edit(settingsText, settingsKeyboard(session), tele.ModeMarkdown)
}

// HandleToggleMode flips the poll mode setting.
func (h *LobbyHandler) HandleToggleMode(c tele.Context) error {
	return h.changeSetting(c, func(ctx context.Context, session *model.Session) error {
		_, err := h.sessions.TogglePollMode(ctx, session)
		return err
	})
}

// HandleToggleWeights flips weighted voting.
func (h *LobbyHandler) HandleToggleWeights(c tele.Context) error {
	return h.changeSetting(c, func(ctx context.Context, session *model.Session) error {
		_, err := h.sessions.ToggleWeighted(ctx, session)
		return err
	})
}

// HandleToggleHideVoters flips anonymous voting.
func (h *LobbyHandler) HandleToggleHideVoters(c tele.Context) error {
	return h.changeSetting(c, func(ctx context.Context, session *model.Session) error {
		_, err := h.sessions.ToggleHideVoters(ctx, session)
		return err
	})
}

// HandleCycleVoteLimit advances the vote limit one step.
func (h *LobbyHandler) HandleCycleVoteLimit(c tele.Context) error {
	return h.changeSetting(c, func(ctx context.Context, session *model.Session) error {
		return h.sessions.CycleVoteLimit(ctx, session, gamenight.NextVoteLimit(session.VoteLimit))
	})
}

func (h *LobbyHandler) changeSetting(c tele.Context, apply func(context.Context, *model.Session) error) error {
	ctx := context.Background()

	session, ok, err := h.validate(c, ctx)
	if !ok {
		return err
	}
	if err := c.Respond(); err != nil {
		return err
	}
	if err := apply(ctx, session); err != nil {
		return err
	}
	return c.Edit(settingsText, settingsKeyboard(session), tele.ModeMarkdown)
}
