package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"game-night-bot/internal/bgg"
	"game-night-bot/internal/service"
)

// manageNameMax caps game names on manage view buttons.
const manageNameMax = 26

// CollectionHandler handles collection commands: BGG sync, manual
// adds, and the manage view.
type CollectionHandler struct {
	collections *service.CollectionService
}

// NewCollectionHandler creates a new CollectionHandler.
func NewCollectionHandler(collections *service.CollectionService) *CollectionHandler {
	return &CollectionHandler{collections: collections}
}

// HandleSetBGG handles the /setbgg command: link a BGG account and
// sync the collection, with progress feedback on a status message.
func (h *CollectionHandler) HandleSetBGG(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	args := c.Args()
	if len(args) == 0 {
		return c.Reply(
			"Usage: /setbgg <username> [force]\n\n" +
				"Add 'force' to update existing games with fresh data from BGG.")
	}

	username := strings.TrimSpace(args[0])
	force := len(args) > 1 && strings.EqualFold(args[1], "force")

	modeText := ""
	if force {
		modeText = " (force update)"
	}
	status, err := c.Bot().Send(c.Chat(),
		fmt.Sprintf("⏳ Linked BGG account: %s. Syncing collection%s...", username, modeText))
	if err != nil {
		return err
	}

	setStatus := func(text string) {
		if _, err := c.Bot().Edit(status, text); err != nil {
			log.Debug().Err(err).Msg("Status edit skipped")
		}
	}
	progress := func(stage service.SyncStage, count int) {
		switch stage {
		case service.StageComplexity:
			setStatus(fmt.Sprintf("⏳ Linked BGG account: %s\n• Fetching computed complexity for %d games...", username, count))
		case service.StageExpansions:
			setStatus(fmt.Sprintf("⏳ Linked BGG account: %s\n• Syncing expansions...", username))
		}
	}

	ctx := context.Background()
	report, err := h.collections.Sync(ctx, sender.ID, sender.FirstName, username, force, progress)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSyncInProgress):
			setStatus("A sync is already running for you. Please wait for it to finish.")
		case errors.Is(err, bgg.ErrUserNotFound):
			setStatus(fmt.Sprintf("❌ BGG user '%s' not found.\n\nPlease check the username and try again.", username))
		default:
			log.Error().Err(err).Str("bgg_username", username).Msg("Collection sync failed")
			setStatus("Failed to fetch collection from BGG. " +
				"The service might be temporarily unavailable. Please try again later.")
		}
		return nil
	}

	if _, err := c.Bot().Edit(status, report.Summary(), tele.ModeMarkdown); err != nil {
		return c.Reply(report.Summary(), tele.ModeMarkdown)
	}
	return nil
}

// HandleAddGame handles the /addgame command. With a bare name it
// searches the BGG catalog; with trailing numbers it records a manual
// entry.
func (h *CollectionHandler) HandleAddGame(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	args := c.Args()
	if len(args) == 0 {
		return c.Reply(
			"Usage:\n" +
				"• /addgame <name> - Search BGG and add\n" +
				"• /addgame <name> <min> <max> <complexity> - Add manually\n\n" +
				"Example: /addgame Catan\n" +
				"Example: /addgame MyGame 2 6 2.5")
	}

	ctx := context.Background()

	// Trailing numbers mean a manual entry; a bigger arg list with a
	// non-numeric second token is a multi-word search query.
	if len(args) >= 3 {
		if minPlayers, err := strconv.Atoi(args[1]); err == nil {
			name := args[0]
			maxPlayers := 6
			if v, err := strconv.Atoi(args[2]); err == nil {
				maxPlayers = v
			}
			complexity := 2.5
			if len(args) > 3 {
				if v, err := strconv.ParseFloat(args[3], 64); err == nil {
					complexity = v
				}
			}

			if _, err := h.collections.AddManual(ctx, sender.ID, sender.FirstName, name, minPlayers, maxPlayers, complexity); err != nil {
				log.Error().Err(err).Str("game", name).Msg("Manual add failed")
				return c.Reply("Something went wrong, please try again.")
			}
			return c.Reply(fmt.Sprintf("Added '%s' to your collection (manual entry).", name))
		}
	}

	query := strings.Join(args, " ")
	if err := c.Reply(fmt.Sprintf("🔍 Searching BGG for '%s'...", query)); err != nil {
		return err
	}

	outcome, err := h.collections.AddFromBGG(ctx, sender.ID, sender.FirstName, query)
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("BGG search add failed")
		return c.Reply(fmt.Sprintf("Error searching BGG. Try manual entry:\n/addgame %s 2 6 2.5", args[0]))
	}

	switch {
	case outcome.Game != nil:
		g := outcome.Game
		return c.Reply(
			fmt.Sprintf(
				"✅ Added '%s' to your collection!\n\n"+
					"📊 *Details from BGG:*\n"+
					"• Players: %d-%d\n"+
					"• Complexity: %.2f/5\n"+
					"• Play time: %d min",
				g.Name, g.MinPlayers, g.MaxPlayers, g.Complexity, g.PlayingTime,
			),
			tele.ModeMarkdown,
		)
	case len(outcome.Suggestions) > 0:
		return c.Reply(
			fmt.Sprintf(
				"Found similar games, but no exact match for '%s'.\nDid you mean:\n• %s\n\nPlease use the exact name.",
				query, strings.Join(outcome.Suggestions, "\n• "),
			))
	default:
		return c.Reply(
			fmt.Sprintf("Could not find '%s' on BGG.\nTry manual entry: /addgame %s 2 6 2.5", query, args[0]))
	}
}

func manageText(total int) string {
	return fmt.Sprintf(
		"📚 *Your Collection* (%d games)\n"+
			"Tap a game to cycle its state:\n"+
			"⬜ Included → 🌟 Starred → ❌ Excluded", total)
}

func manageKeyboard(view *service.ManageView) *tele.ReplyMarkup {
	page := strconv.Itoa(view.Page)

	var keyboard [][]tele.InlineButton
	for _, item := range view.Items {
		name := item.Game.Name
		if runes := []rune(name); len(runes) > manageNameMax {
			name = string(runes[:manageNameMax-1]) + "…"
		}
		keyboard = append(keyboard, []tele.InlineButton{{
			Text: item.Entry.State.Icon() + " " + name,
			Data: EncodeCallback(PrefixManage, "toggle", strconv.FormatInt(item.Game.ID, 10), page),
		}})
	}

	var nav []tele.InlineButton
	if view.Page > 0 {
		nav = append(nav, tele.InlineButton{
			Text: "◀️ Prev",
			Data: EncodeCallback(PrefixManage, "page", strconv.Itoa(view.Page-1)),
		})
	}
	if view.Page < view.TotalPages-1 {
		nav = append(nav, tele.InlineButton{
			Text: "Next ▶️",
			Data: EncodeCallback(PrefixManage, "page", strconv.Itoa(view.Page+1)),
		})
	}
	if len(nav) > 0 {
		keyboard = append(keyboard, nav)
	}
	if view.TotalPages > 1 {
		keyboard = append(keyboard, []tele.InlineButton{{
			Text: fmt.Sprintf("Page %d/%d", view.Page+1, view.TotalPages),
			Data: EncodeCallback(PrefixManage, "noop"),
		}})
	}

	return &tele.ReplyMarkup{InlineKeyboard: keyboard}
}

// HandleManage handles the /manage command. In groups the view goes
// out as a DM so nobody leaks their shelf.
func (h *CollectionHandler) HandleManage(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx := context.Background()

	view, err := h.collections.ManagePage(ctx, sender.ID, 0)
	if err != nil {
		return err
	}
	if view.Total == 0 {
		return c.Reply(
			"Your collection is empty!\n\n" +
				"Use /setbgg <username> to sync from BGG, or /addgame <name> to add games.")
	}

	text := manageText(view.Total)
	markup := manageKeyboard(view)

	chat := c.Chat()
	if chat != nil && (chat.Type == tele.ChatGroup || chat.Type == tele.ChatSuperGroup) {
		if _, err := c.Bot().Send(&tele.User{ID: sender.ID}, text, markup, tele.ModeMarkdown); err != nil {
			return c.Reply(
				fmt.Sprintf(
					"🙈 Oops %s, I can't DM you yet!\n\nStart a private chat with me first: @%s\nThen try `/manage` again!",
					sender.FirstName, c.Bot().Me.Username,
				),
				tele.ModeMarkdown,
			)
		}
		return c.Reply(
			fmt.Sprintf(
				"🤫 Psst, %s! Your collection is *top secret* stuff.\n"+
					"I've slid into your DMs with the details. Check your private chat with me! 📬",
				sender.FirstName,
			),
			tele.ModeMarkdown,
		)
	}
	return c.Reply(text, markup, tele.ModeMarkdown)
}

// HandleManageCallback handles manage view buttons: state toggles and
// page navigation.
func (h *CollectionHandler) HandleManageCallback(c tele.Context, args []string) error {
	sender := c.Sender()
	if sender == nil || len(args) == 0 {
		return nil
	}
	ctx := context.Background()

	if err := c.Respond(); err != nil {
		return err
	}

	page := 0
	switch args[0] {
	case "noop":
		return nil
	case "page":
		if len(args) < 2 {
			return nil
		}
		page, _ = strconv.Atoi(args[1])
	case "toggle":
		if len(args) < 2 {
			return nil
		}
		gameID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return nil
		}
		if len(args) > 2 {
			page, _ = strconv.Atoi(args[2])
		}
		if _, err := h.collections.ToggleState(ctx, sender.ID, gameID); err != nil {
			log.Warn().Err(err).Int64("game_id", gameID).Msg("State toggle failed")
		}
	default:
		return nil
	}

	view, err := h.collections.ManagePage(ctx, sender.ID, page)
	if err != nil {
		return err
	}
	if view.Total == 0 {
		return c.Edit("Your collection is now empty!")
	}
	return c.Edit(manageText(view.Total), manageKeyboard(view), tele.ModeMarkdown)
}
