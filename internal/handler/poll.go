package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"game-night-bot/internal/gamenight"
	"game-night-bot/internal/model"
	"game-night-bot/internal/repository"
	"game-night-bot/internal/service"
)

// pollButtonLabelMax caps custom poll button text length.
const pollButtonLabelMax = 30

// PollHandler handles poll creation, voting, and closing.
type PollHandler struct {
	sessions    *service.SessionService
	collections *service.CollectionService
	polls       *service.PollService
}

// NewPollHandler creates a new PollHandler.
func NewPollHandler(
	sessions *service.SessionService,
	collections *service.CollectionService,
	polls *service.PollService,
) *PollHandler {
	return &PollHandler{
		sessions:    sessions,
		collections: collections,
		polls:       polls,
	}
}

// storedMessage adapts a poll record to an editable Telegram message.
func storedMessage(chatID int64, messageID int) tele.StoredMessage {
	return tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
}

// editStored edits a message the bot sent earlier. "Not modified"
// errors are routine during rapid re-renders and are ignored.
func editStored(c tele.Context, chatID int64, messageID int, text string, opts ...interface{}) {
	args := append([]interface{}{tele.ModeMarkdown}, opts...)
	if _, err := c.Bot().Edit(storedMessage(chatID, messageID), text, args...); err != nil {
		if !strings.Contains(err.Error(), "not modified") {
			log.Warn().Err(err).Int64("chat_id", chatID).Int("message_id", messageID).Msg("Failed to edit message")
		}
	}
}

// endNight purges guest players and closes the chat's session.
func endNight(ctx context.Context, sessions *service.SessionService, collections *service.CollectionService, chatID int64) error {
	players, err := sessions.Players(ctx, chatID)
	if err != nil {
		return err
	}
	for _, p := range players {
		if !p.IsGuest {
			continue
		}
		if err := collections.PurgeGuest(ctx, p.TelegramID); err != nil {
			log.Warn().Err(err).Int64("guest_id", p.TelegramID).Msg("Failed to purge guest")
		}
	}
	return sessions.End(ctx, chatID)
}

// HandlePoll handles the /poll command.
func (h *PollHandler) HandlePoll(c tele.Context) error {
	return h.createPolls(c)
}

// HandleStartPollButton handles the lobby's Poll button.
func (h *PollHandler) HandleStartPollButton(c tele.Context) error {
	ctx := context.Background()

	if _, err := h.sessions.Validate(ctx, c.Chat().ID, c.Message().ID); err != nil {
		if errors.Is(err, service.ErrStaleMessage) || errors.Is(err, service.ErrNoActiveSession) {
			return c.Respond(&tele.CallbackResponse{Text: staleSessionAlert, ShowAlert: true})
		}
		return err
	}
	if err := c.Respond(); err != nil {
		return err
	}
	return h.createPolls(c)
}

func (h *PollHandler) createPolls(c tele.Context) error {
	ctx := context.Background()
	chatID := c.Chat().ID

	players, err := h.sessions.Players(ctx, chatID)
	if err != nil {
		return err
	}
	if len(players) == 0 {
		_, err := c.Bot().Send(c.Chat(), "No players in lobby! Use /gamenight first.")
		return err
	}
	if len(players) < 2 {
		_, err := c.Bot().Send(c.Chat(), "Need at least 2 players to start a poll!")
		return err
	}

	session, err := h.sessions.Resume(ctx, chatID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveSession) {
			_, err := c.Bot().Send(c.Chat(), "No active game night! Use /gamenight first.")
			return err
		}
		return err
	}

	h.CloseOpenPolls(c, chatID, "New poll started")

	candidates, playerIDs, ownedTotal, err := h.polls.Candidates(ctx, chatID)
	if err != nil {
		return err
	}
	if ownedTotal == 0 {
		_, err := c.Bot().Send(c.Chat(),
			"No games in any player's collection! Use /setbgg or /addgame to add games first.")
		return err
	}
	if len(candidates) == 0 {
		_, err := c.Bot().Send(c.Chat(),
			fmt.Sprintf("No games found matching %d players.", len(players)))
		return err
	}

	if session.PollMode == model.PollModeCustom {
		return h.createCustomPoll(c, session)
	}
	return h.createNativePolls(c, session, candidates, playerIDs)
}

func (h *PollHandler) createNativePolls(c tele.Context, session *model.Session, candidates []*model.Game, playerIDs []int64) error {
	ctx := context.Background()

	starredBy, err := h.polls.StarredBy(ctx, playerIDs)
	if err != nil {
		return err
	}

	for _, group := range h.polls.SplitForNativePolls(candidates) {
		options := make([]string, 0, len(group.Games))
		for _, g := range group.Games {
			name := g.Name
			if len(starredBy[g.ID]) > 0 {
				name = "⭐ " + name
			}
			options = append(options, name)
		}

		// Telegram polls need at least two options.
		if len(options) < 2 {
			if len(options) == 1 {
				if _, err := c.Bot().Send(c.Chat(),
					fmt.Sprintf("📋 %s: %s (only 1 game - no poll needed)", group.Label, options[0]),
				); err != nil {
					return err
				}
			}
			continue
		}
		if len(options) > h.polls.MaxOptions() {
			options = options[:h.polls.MaxOptions()]
		}

		poll := &tele.Poll{
			Type:            tele.PollRegular,
			Question:        "Vote: " + group.Label,
			Anonymous:       false,
			MultipleAnswers: true,
		}
		poll.AddOptions(options...)

		msg, err := c.Bot().Send(c.Chat(), poll)
		if err != nil {
			return err
		}
		if err := h.polls.Register(ctx, msg.Poll.ID, session.ChatID, msg.ID); err != nil {
			return err
		}
	}
	return nil
}

func (h *PollHandler) createCustomPoll(c tele.Context, session *model.Session) error {
	ctx := context.Background()
	chatID := session.ChatID

	pollID := fmt.Sprintf("poll_%d_%d", chatID, time.Now().Unix())

	msg, err := c.Bot().Send(c.Chat(), "📊 *Initializing Poll...*", tele.ModeMarkdown)
	if err != nil {
		return err
	}
	if err := h.polls.Register(ctx, pollID, chatID, msg.ID); err != nil {
		return err
	}

	h.renderCustomPoll(c, session, &model.Poll{PollID: pollID, ChatID: chatID, MessageID: msg.ID})
	return nil
}

// RefreshActive re-renders the chat's open custom poll, if any.
func (h *PollHandler) RefreshActive(c tele.Context, session *model.Session) {
	ctx := context.Background()

	poll, err := h.polls.ActivePoll(ctx, session.ChatID)
	if err != nil {
		if !errors.Is(err, repository.ErrPollNotFound) {
			log.Warn().Err(err).Int64("chat_id", session.ChatID).Msg("Failed to look up active poll")
		}
		return
	}
	h.renderCustomPoll(c, session, poll)
}

// CloseOpenPolls stops or retires any open poll messages for the chat
// and drops their records. Native polls are stopped; custom polls are
// plain messages and get edited instead.
func (h *PollHandler) CloseOpenPolls(c tele.Context, chatID int64, reason string) {
	ctx := context.Background()

	priors, err := h.polls.PriorPolls(ctx, chatID)
	if err != nil {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to collect open polls")
		return
	}
	for _, p := range priors {
		if _, err := c.Bot().StopPoll(storedMessage(chatID, p.MessageID)); err != nil {
			editStored(c, chatID, p.MessageID, fmt.Sprintf("🛑 *Poll Closed* (%s)", reason))
		}
	}
}

func levelDisplay(level int) string {
	if level == 0 {
		return "Unrated"
	}
	return strconv.Itoa(level)
}

// buildPollMessage renders the custom poll text and keyboard from the
// aggregated vote state.
func buildPollMessage(view *service.PollView) (string, *tele.ReplyMarkup) {
	lines := []string{
		"📊 *Poll Active*",
		fmt.Sprintf("👥 %d voters • %d votes • 🗳️ Limit: %s\n", view.UniqueVoters, view.TotalVotes, view.LimitLabel),
	}

	groups := gamenight.GroupByLevel(view.Games)
	levels := gamenight.Levels(groups)

	hasVotes := false
	for _, level := range levels {
		sorted := view.SortForDisplay(groups[level])

		if catCount := view.CategoryVote[level]; catCount > 0 {
			voters := strings.Join(view.CategoryBy[level], ", ")
			if view.HideVoters {
				voters = fmt.Sprintf("%d voters", catCount)
			}
			lines = append(lines,
				fmt.Sprintf("*%d* - 🎲 Category %s", catCount, levelDisplay(level)),
				fmt.Sprintf("   └ _%s_", voters),
			)
			hasVotes = true
		}

		for _, g := range sorted {
			count := view.VoteCounts[g.ID]
			if count == 0 {
				continue
			}
			star := ""
			if view.StarredIDs[g.ID] {
				star = "⭐ "
			}
			voters := strings.Join(view.VotersByGame[g.ID], ", ")
			if view.HideVoters {
				voters = fmt.Sprintf("%d voters", len(view.VotersByGame[g.ID]))
			}
			lines = append(lines,
				fmt.Sprintf("*%d* - %s%s", count, star, g.Name),
				fmt.Sprintf("   └ _%s_", voters),
			)
			hasVotes = true
		}
	}
	if !hasVotes {
		lines = append(lines, "_No votes yet! Tap buttons below._")
	}

	var keyboard [][]tele.InlineButton
	for _, level := range levels {
		sorted := view.SortForDisplay(groups[level])

		header := fmt.Sprintf("--- %s ---", levelDisplay(level))
		if catCount := view.CategoryVote[level]; catCount > 0 {
			header = fmt.Sprintf("--- %s (%d) ---", levelDisplay(level), catCount)
		}
		keyboard = append(keyboard, []tele.InlineButton{{
			Text: header,
			Data: EncodeCallback(PrefixCategoryVote, view.PollID, strconv.Itoa(level)),
		}})

		var row []tele.InlineButton
		for _, g := range sorted {
			label := ""
			if view.StarredIDs[g.ID] {
				label = "⭐ "
			}
			label += g.Name
			if count := view.VoteCounts[g.ID]; count > 0 {
				label += fmt.Sprintf(" (%d)", count)
			}
			if runes := []rune(label); len(runes) > pollButtonLabelMax {
				label = string(runes[:pollButtonLabelMax-3]) + "..."
			}

			row = append(row, tele.InlineButton{
				Text: label,
				Data: EncodeCallback(PrefixVote, view.PollID, strconv.FormatInt(g.ID, 10)),
			})
			if len(row) == 2 {
				keyboard = append(keyboard, row)
				row = nil
			}
		}
		if len(row) > 0 {
			keyboard = append(keyboard, row)
		}
	}
	keyboard = append(keyboard, []tele.InlineButton{
		{Text: "🔄 Refresh", Data: EncodeCallback(PrefixRefresh, view.PollID)},
		{Text: "🛑 Close", Data: EncodeCallback(PrefixClose, view.PollID)},
	})

	return strings.Join(lines, "\n"), &tele.ReplyMarkup{InlineKeyboard: keyboard}
}

func (h *PollHandler) renderCustomPoll(c tele.Context, session *model.Session, poll *model.Poll) {
	ctx := context.Background()

	view, err := h.polls.View(ctx, session, poll.PollID)
	if err != nil {
		log.Warn().Err(err).Str("poll_id", poll.PollID).Msg("Failed to build poll view")
		return
	}
	if len(view.Games) == 0 {
		return
	}

	text, markup := buildPollMessage(view)
	editStored(c, poll.ChatID, poll.MessageID, text, markup)
}

// lookupPoll resolves a vote callback's poll record and session,
// answering the callback itself when the poll is gone.
func (h *PollHandler) lookupPoll(c tele.Context, ctx context.Context, pollID string) (*model.Poll, *model.Session, error) {
	poll, err := h.polls.Lookup(ctx, pollID)
	if err != nil {
		if errors.Is(err, repository.ErrPollNotFound) {
			return nil, nil, c.Respond(&tele.CallbackResponse{Text: "Poll not found"})
		}
		return nil, nil, err
	}
	session, err := h.sessions.Resume(ctx, poll.ChatID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveSession) {
			return nil, nil, c.Respond(&tele.CallbackResponse{Text: "This poll is no longer active."})
		}
		return nil, nil, err
	}
	return poll, session, nil
}

// HandleVote handles a game vote button on a custom poll.
func (h *PollHandler) HandleVote(c tele.Context, args []string) error {
	if len(args) < 2 {
		return c.Respond(&tele.CallbackResponse{Text: "Invalid vote data"})
	}
	gameID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Invalid vote data"})
	}

	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	poll, session, err := h.lookupPoll(c, ctx, args[0])
	if poll == nil {
		return err
	}

	outcome, err := h.polls.ToggleVote(ctx, session, poll.PollID, sender.ID, sender.FirstName, gamenight.GameTarget(gameID))
	if err != nil {
		if errors.Is(err, service.ErrVoteLimitReached) {
			return c.Respond(&tele.CallbackResponse{
				Text:      fmt.Sprintf("Vote limit reached (%d/%d). Remove a vote first!", outcome.Count, outcome.Limit),
				ShowAlert: true,
			})
		}
		return err
	}

	answer := "Vote removed"
	if outcome.Added {
		answer = "Vote recorded"
	}
	if err := c.Respond(&tele.CallbackResponse{Text: answer}); err != nil {
		return err
	}

	h.renderCustomPoll(c, session, poll)
	return nil
}

// HandleCategoryVote handles a category header button: a vote for the
// whole complexity group, resolved to one of its games at close time.
func (h *PollHandler) HandleCategoryVote(c tele.Context, args []string) error {
	if len(args) < 2 {
		return c.Respond(&tele.CallbackResponse{Text: "Invalid vote data"})
	}
	level, err := strconv.Atoi(args[1])
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Invalid vote data"})
	}

	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	poll, session, err := h.lookupPoll(c, ctx, args[0])
	if poll == nil {
		return err
	}

	candidates, _, _, err := h.polls.Candidates(ctx, session.ChatID)
	if err != nil {
		return err
	}
	if len(gamenight.GroupByLevel(candidates)[level]) == 0 {
		return c.Respond(&tele.CallbackResponse{Text: "No games in this group!"})
	}

	outcome, err := h.polls.ToggleVote(ctx, session, poll.PollID, sender.ID, sender.FirstName, gamenight.CategoryTarget(level))
	if err != nil {
		if errors.Is(err, service.ErrVoteLimitReached) {
			return c.Respond(&tele.CallbackResponse{
				Text:      fmt.Sprintf("Vote limit reached (%d/%d). Remove a vote first!", outcome.Count, outcome.Limit),
				ShowAlert: true,
			})
		}
		return err
	}

	answer := fmt.Sprintf("Category %d vote removed", level)
	if outcome.Added {
		answer = fmt.Sprintf("🎲 Voted on Category %d!", level)
	}
	if err := c.Respond(&tele.CallbackResponse{Text: answer}); err != nil {
		return err
	}

	h.renderCustomPoll(c, session, poll)
	return nil
}

// HandleRefresh re-renders a custom poll on demand.
func (h *PollHandler) HandleRefresh(c tele.Context, args []string) error {
	if len(args) < 1 {
		return c.Respond(&tele.CallbackResponse{Text: "Invalid data"})
	}
	ctx := context.Background()

	poll, session, err := h.lookupPoll(c, ctx, args[0])
	if poll == nil {
		return err
	}
	if err := c.Respond(&tele.CallbackResponse{Text: "Refreshing..."}); err != nil {
		return err
	}
	h.renderCustomPoll(c, session, poll)
	return nil
}

// HandleClose closes a custom poll and announces the winner.
func (h *PollHandler) HandleClose(c tele.Context, args []string) error {
	if len(args) < 1 {
		return c.Respond(&tele.CallbackResponse{Text: "Invalid data"})
	}
	ctx := context.Background()

	poll, session, err := h.lookupPoll(c, ctx, args[0])
	if poll == nil {
		return err
	}
	if err := c.Respond(&tele.CallbackResponse{Text: "Closing poll..."}); err != nil {
		return err
	}

	result, err := h.polls.CloseCustom(ctx, session, poll.PollID)
	if err != nil {
		return err
	}

	editStored(c, poll.ChatID, poll.MessageID, closedPollText(result))

	if err := h.polls.Forget(ctx, poll.ChatID); err != nil {
		return err
	}
	if h.sessions.EndNightOnClose() {
		return endNight(ctx, h.sessions, h.collections, poll.ChatID)
	}
	return nil
}

// closedPollText announces the winner set and the top standings.
func closedPollText(result *gamenight.Result) string {
	text := "🗳️ *Poll Closed!*\n\n"
	switch {
	case len(result.Winners) == 1:
		text += fmt.Sprintf("🏆 The winner is: *%s*! 🎉", result.Winners[0])
	case len(result.Winners) > 1:
		text += "It's a tie between:\n• " + strings.Join(result.Winners, "\n• ")
	default:
		return text + "No votes cast?"
	}

	standings := result.Leaderboard(5)
	if len(standings) > 1 {
		text += "\n\n*Top 5:*"
		for _, s := range standings {
			text += fmt.Sprintf("\n%s %s: %.1f pts", s.Medal, s.Name, s.Score)
		}
	}
	return text
}

// HandlePollAnswer tracks native poll answers and auto-closes the poll
// once every lobby member has voted.
func (h *PollHandler) HandlePollAnswer(c tele.Context) error {
	pa := c.PollAnswer()
	if pa == nil || pa.Sender == nil {
		return nil
	}
	ctx := context.Background()

	poll, err := h.polls.Lookup(ctx, pa.PollID)
	if err != nil {
		if errors.Is(err, repository.ErrPollNotFound) {
			return nil
		}
		return err
	}

	retracted := len(pa.Options) == 0
	shouldClose, err := h.polls.RecordNativeAnswer(ctx, poll, pa.Sender.ID, pa.Sender.FirstName, retracted)
	if err != nil {
		return err
	}
	if !shouldClose {
		return nil
	}

	weighted := false
	if session, err := h.sessions.Resume(ctx, poll.ChatID); err == nil {
		weighted = session.Weighted
	}

	stopped, err := c.Bot().StopPoll(storedMessage(poll.ChatID, poll.MessageID))
	if err != nil {
		log.Error().Err(err).Str("poll_id", poll.PollID).Msg("Failed to auto-close poll")
		return nil
	}

	options := make([]service.NativeOption, 0, len(stopped.Options))
	for _, opt := range stopped.Options {
		options = append(options, service.NativeOption{Text: opt.Text, VoterCount: opt.VoterCount})
	}

	result, err := h.polls.ScoreNative(ctx, poll.ChatID, weighted, options)
	if err != nil {
		return err
	}

	text := "🗳️ *Poll Closed!*\n\n"
	switch {
	case len(result.Winners) == 1:
		text += fmt.Sprintf("🏆 The winner is: *%s*! 🎉", result.Winners[0])
	case len(result.Winners) > 1:
		text += "It's a tie between:\n• " + strings.Join(result.Winners, "\n• ")
	default:
		text += "No votes cast?"
	}
	if len(result.Winners) > 0 && len(result.Modifiers) > 0 {
		text += fmt.Sprintf("\n_%s_", strings.Join(result.Modifiers, ", "))
	}

	chat := &tele.Chat{ID: poll.ChatID}
	if _, err := c.Bot().Send(chat, text, tele.ModeMarkdown); err != nil {
		log.Warn().Err(err).Int64("chat_id", poll.ChatID).Msg("Failed to announce poll result")
	}

	if err := h.polls.Forget(ctx, poll.ChatID); err != nil {
		return err
	}
	if h.sessions.EndNightOnClose() {
		return endNight(ctx, h.sessions, h.collections, poll.ChatID)
	}
	return nil
}
