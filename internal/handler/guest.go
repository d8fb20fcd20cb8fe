package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"game-night-bot/internal/service"
)

// Defaults for guest games added without explicit stats.
const (
	guestDefaultMinPlayers = 2
	guestDefaultMaxPlayers = 6
	guestDefaultComplexity = 2.5
)

// GuestHandler handles guest players: people at the table without a
// Telegram account.
type GuestHandler struct {
	sessions    *service.SessionService
	collections *service.CollectionService
}

// NewGuestHandler creates a new GuestHandler.
func NewGuestHandler(sessions *service.SessionService, collections *service.CollectionService) *GuestHandler {
	return &GuestHandler{sessions: sessions, collections: collections}
}

// HandleAddGuest handles the /addguest command.
func (h *GuestHandler) HandleAddGuest(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	args := c.Args()
	if len(args) == 0 {
		return c.Reply("Usage: /addguest <name>")
	}

	name := strings.Join(args, " ")
	ctx := context.Background()

	guest, err := h.sessions.AddGuest(ctx, c.Chat().ID, name, sender.ID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveSession) {
			return c.Reply("No active game night! Use /gamenight first.")
		}
		log.Error().Err(err).Str("guest", name).Msg("Failed to add guest")
		return c.Reply("Something went wrong, please try again.")
	}

	return c.Reply(
		fmt.Sprintf(
			"👤 Guest *%s* added!\n\nUse `/guestgame %s <game>` to add their games.",
			guest.TelegramName, guest.TelegramName,
		),
		tele.ModeMarkdown,
	)
}

// HandleGuestGame handles the /guestgame command: add a game to a
// guest's collection. Both the guest name and the game name may span
// several words, and up to three trailing numbers give min players,
// max players, and complexity.
func (h *GuestHandler) HandleGuestGame(c tele.Context) error {
	args := c.Args()
	if len(args) < 2 {
		return c.Reply(
			"Usage: /guestgame <guest_name> <game_name> [min] [max] [complexity]\n" +
				"Example: /guestgame John Doe Catan 3 4 2.3")
	}

	words := append([]string(nil), args...)
	var numbers []float64
	for len(words) > 0 && len(numbers) < 3 {
		v, err := strconv.ParseFloat(words[len(words)-1], 64)
		if err != nil {
			break
		}
		numbers = append([]float64{v}, numbers...)
		words = words[:len(words)-1]
	}

	minPlayers := guestDefaultMinPlayers
	maxPlayers := guestDefaultMaxPlayers
	complexity := guestDefaultComplexity
	if len(numbers) >= 1 {
		minPlayers = int(numbers[0])
	}
	if len(numbers) >= 2 {
		maxPlayers = int(numbers[1])
	}
	if len(numbers) >= 3 {
		complexity = numbers[2]
	}

	if len(words) == 0 {
		return c.Reply("Please provide guest name and game name.")
	}
	text := strings.Join(words, " ")
	ctx := context.Background()

	guest, game, err := h.collections.GuestGame(ctx, c.Chat().ID, text, minPlayers, maxPlayers, complexity)
	switch {
	case errors.Is(err, service.ErrNoGuests):
		return c.Reply("No guests found in this session.")
	case errors.Is(err, service.ErrGuestNotFound):
		names := h.guestNames(ctx, c.Chat().ID)
		return c.Reply(
			fmt.Sprintf("Could not find a matching guest in: %s.\nActive guests: %s",
				text, strings.Join(names, ", ")))
	case errors.Is(err, service.ErrMissingGameName):
		return c.Reply(
			fmt.Sprintf("Found guest '%s' but no game name provided.", guest.TelegramName))
	case err != nil:
		log.Error().Err(err).Str("text", text).Msg("Failed to add guest game")
		return c.Reply("Something went wrong, please try again.")
	}

	return c.Reply(
		fmt.Sprintf("Added '%s' to %s's collection!", game.Name, guest.TelegramName))
}

func (h *GuestHandler) guestNames(ctx context.Context, chatID int64) []string {
	players, err := h.sessions.Players(ctx, chatID)
	if err != nil {
		return nil
	}
	var names []string
	for _, p := range players {
		if p.IsGuest {
			names = append(names, p.TelegramName)
		}
	}
	return names
}
