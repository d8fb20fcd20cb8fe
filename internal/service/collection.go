package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"game-night-bot/internal/bgg"
	"game-night-bot/internal/model"
	"game-night-bot/internal/pkg/lock"
	"game-night-bot/internal/repository"
)

// Errors for collection operations.
var (
	// ErrSyncInProgress means the user already has a running sync.
	ErrSyncInProgress = errors.New("collection sync already in progress")
	// ErrNoGuests means the session has no guest players.
	ErrNoGuests = errors.New("no guests in session")
	// ErrGuestNotFound means no session guest matched the given text.
	ErrGuestNotFound = errors.New("no matching guest")
	// ErrMissingGameName means a guest was matched but nothing followed
	// their name.
	ErrMissingGameName = errors.New("no game name provided")
)

// GamesPerPage is the page size of the collection manage view.
const GamesPerPage = 8

// manualIDOffset keeps minted game IDs well clear of the negative
// range reserved for category vote targets.
const manualIDOffset = 1 << 20

// Pauses between consecutive catalog lookups during a sync. BGG rate
// limits aggressively.
const (
	complexityFetchDelay = 500 * time.Millisecond
	expansionFetchDelay  = 300 * time.Millisecond
)

// manualGameID mints a stable negative catalog ID for a manually added
// game. The same name always maps to the same ID, so repeated adds by
// different users converge on one record.
func manualGameID(name string) int64 {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(name))))
	return -(int64(h.Sum32()) + manualIDOffset)
}

// CollectionService manages game collections: BGG synchronization,
// manual entries, availability states, and guest collections.
type CollectionService struct {
	users      *repository.UserRepository
	games      *repository.GameRepository
	collection *repository.CollectionRepository
	expansions *repository.ExpansionRepository
	sessions   *repository.SessionRepository
	client     *bgg.Client

	// syncLocks serializes syncs per user.
	syncLocks *lock.ChatLock
}

// NewCollectionService creates a new CollectionService instance.
func NewCollectionService(
	users *repository.UserRepository,
	games *repository.GameRepository,
	collection *repository.CollectionRepository,
	expansions *repository.ExpansionRepository,
	sessions *repository.SessionRepository,
	client *bgg.Client,
) *CollectionService {
	return &CollectionService{
		users:      users,
		games:      games,
		collection: collection,
		expansions: expansions,
		sessions:   sessions,
		client:     client,
		syncLocks:  lock.NewChatLock(),
	}
}

// SyncStage identifies the phase a running sync is in, for progress
// feedback on the status message.
type SyncStage int

const (
	// StageComplexity means computed weights are being backfilled.
	StageComplexity SyncStage = iota
	// StageExpansions means owned expansions are being synced.
	StageExpansions
)

// SyncReport summarizes what a collection sync changed.
type SyncReport struct {
	Username           string
	Total              int
	Added              int
	Removed            int
	Updated            int
	ComplexityFilled   int
	ExpansionsSynced   int
	PlayerCountUpdates int
}

// Summary renders the sync report for the final status message.
func (r *SyncReport) Summary() string {
	var details []string
	if r.Added > 0 {
		details = append(details, fmt.Sprintf("%d new", r.Added))
	}
	if r.Removed > 0 {
		details = append(details, fmt.Sprintf("%d removed", r.Removed))
	}
	if r.Updated > 0 {
		details = append(details, fmt.Sprintf("%d updated", r.Updated))
	}

	lines := []string{"✅ *Sync Complete!*"}
	line := fmt.Sprintf("• *Collection:* %d games", r.Total)
	if len(details) > 0 {
		line += fmt.Sprintf(" (%s)", strings.Join(details, ", "))
	}
	lines = append(lines, line)

	if r.ComplexityFilled > 0 {
		lines = append(lines, fmt.Sprintf("• *Complexity:* Updated for %d games", r.ComplexityFilled))
	}
	if r.ExpansionsSynced > 0 {
		line := fmt.Sprintf("• *Expansions:* %d synced", r.ExpansionsSynced)
		if r.PlayerCountUpdates > 0 {
			line += fmt.Sprintf(" (%d player count updates)", r.PlayerCountUpdates)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// Sync links a BGG account to a user and reconciles their collection
// with the BGG export. Force refreshes catalog data for games already
// known. New games are auto-starred on incremental syncs so fresh
// acquisitions surface in the next poll; first and forced syncs add
// them as plain included. The progress callback, if non-nil, is
// invoked as long-running phases begin.
func (s *CollectionService) Sync(
	ctx context.Context,
	userID int64,
	userName, bggUsername string,
	force bool,
	progress func(stage SyncStage, count int),
) (*SyncReport, error) {
	if !s.syncLocks.TryLock(userID) {
		return nil, ErrSyncInProgress
	}
	defer s.syncLocks.Unlock(userID)

	if _, err := s.users.Upsert(ctx, userID, userName); err != nil {
		return nil, err
	}
	if err := s.users.SetBGGUsername(ctx, userID, bggUsername); err != nil {
		return nil, err
	}

	fetched, err := s.client.FetchCollection(ctx, bggUsername)
	if err != nil {
		return nil, err
	}

	currentIDs, err := s.collection.GameIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	current := make(map[int64]bool, len(currentIDs))
	for _, id := range currentIDs {
		current[id] = true
	}

	report := &SyncReport{Username: bggUsername, Total: len(fetched)}

	fetchedIDs := make([]int64, 0, len(fetched))
	for _, g := range fetched {
		fetchedIDs = append(fetchedIDs, g.ID)
		if !current[g.ID] {
			report.Added++
		}
	}
	fetchedSet := make(map[int64]bool, len(fetchedIDs))
	for _, id := range fetchedIDs {
		fetchedSet[id] = true
	}
	for _, id := range currentIDs {
		if !fetchedSet[id] {
			report.Removed++
		}
	}

	// Auto-star only on incremental syncs. A first sync would star the
	// whole collection and a forced one is a repair, not an addition.
	initialState := model.StateIncluded
	if len(currentIDs) > 0 && !force {
		initialState = model.StateStarred
	}

	for _, g := range fetched {
		existing, err := s.games.GetByID(ctx, g.ID)
		switch {
		case errors.Is(err, repository.ErrGameNotFound):
			if err := s.games.Upsert(ctx, g); err != nil {
				return nil, err
			}
		case err != nil:
			return nil, err
		case force:
			// Keep the known weight when the export carries none. The
			// collection endpoint omits weights for some games that the
			// thing endpoint has already filled in.
			refreshed := *g
			if !refreshed.Rated() {
				refreshed.Complexity = existing.Complexity
			}
			if err := s.games.Upsert(ctx, &refreshed); err != nil {
				return nil, err
			}
			report.Updated++
		}
	}

	if err := s.collection.Sync(ctx, userID, fetchedIDs, initialState); err != nil {
		return nil, err
	}

	if err := s.backfillComplexity(ctx, fetchedIDs, report, progress); err != nil {
		return nil, err
	}

	// Expansion sync is best-effort. A flaky expansion endpoint must
	// not fail a sync that already landed.
	if err := s.syncExpansions(ctx, userID, bggUsername, report, progress); err != nil {
		log.Warn().Err(err).Str("bgg_username", bggUsername).Msg("Expansion sync failed")
	}

	log.Info().
		Int64("user_id", userID).
		Str("bgg_username", bggUsername).
		Int("total", report.Total).
		Int("added", report.Added).
		Int("removed", report.Removed).
		Msg("Collection synced")
	return report, nil
}

// backfillComplexity fetches computed weights for synced games that
// arrived without one.
func (s *CollectionService) backfillComplexity(
	ctx context.Context,
	gameIDs []int64,
	report *SyncReport,
	progress func(stage SyncStage, count int),
) error {
	stored, err := s.games.GetByIDs(ctx, gameIDs)
	if err != nil {
		return err
	}

	var missing []int64
	for _, id := range gameIDs {
		if g, ok := stored[id]; ok && !g.Rated() {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if progress != nil {
		progress(StageComplexity, len(missing))
	}

	for _, id := range missing {
		details, err := s.client.GameDetails(ctx, id)
		if err != nil {
			log.Warn().Err(err).Int64("game_id", id).Msg("Failed to fetch game weight")
			continue
		}
		if details != nil && details.Rated() {
			if err := s.games.UpdateComplexity(ctx, id, details.Complexity); err != nil {
				return err
			}
			report.ComplexityFilled++
		}
		if err := sleep(ctx, complexityFetchDelay); err != nil {
			return err
		}
	}
	return nil
}

// syncExpansions fetches the user's owned expansions, records them,
// and raises effective player counts on base games they extend.
func (s *CollectionService) syncExpansions(
	ctx context.Context,
	userID int64,
	bggUsername string,
	report *SyncReport,
	progress func(stage SyncStage, count int),
) error {
	owned, err := s.client.FetchOwnedExpansions(ctx, bggUsername)
	if err != nil {
		return err
	}
	if len(owned) == 0 {
		return nil
	}
	if progress != nil {
		progress(StageExpansions, len(owned))
	}

	for _, exp := range owned {
		record, err := s.expansions.GetByID(ctx, exp.ID)
		if err != nil && !errors.Is(err, repository.ErrExpansionNotFound) {
			return err
		}
		if record == nil {
			// Not seen before; fetch details and catalog them.
			info, err := s.client.GetExpansionInfo(ctx, exp.ID)
			if err != nil {
				log.Warn().Err(err).Int64("expansion_id", exp.ID).Msg("Failed to fetch expansion info")
				continue
			}
			if err := sleep(ctx, expansionFetchDelay); err != nil {
				return err
			}
			if info == nil || info.BaseGameID == nil {
				continue
			}
			record = &model.Expansion{
				ID:            info.ID,
				Name:          info.Name,
				BaseGameID:    *info.BaseGameID,
				NewMaxPlayers: info.NewMaxPlayers,
			}
			if err := s.expansions.Upsert(ctx, record); err != nil {
				return err
			}
		}

		base, err := s.games.GetByID(ctx, record.BaseGameID)
		if errors.Is(err, repository.ErrGameNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		if err := s.expansions.SetOwned(ctx, userID, record.ID); err != nil {
			return err
		}
		report.ExpansionsSynced++

		if record.NewMaxPlayers == nil || *record.NewMaxPlayers <= base.MaxPlayers {
			continue
		}
		entry, err := s.collection.GetEntry(ctx, userID, base.ID)
		if errors.Is(err, repository.ErrGameNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		effective := base.MaxPlayers
		if entry.EffectiveMaxPlayers != nil {
			effective = *entry.EffectiveMaxPlayers
		}
		if *record.NewMaxPlayers > effective {
			err := s.collection.SetEffective(ctx, userID, base.ID, record.NewMaxPlayers, entry.EffectiveComplexity)
			if err != nil {
				return err
			}
			report.PlayerCountUpdates++
		}
	}
	return nil
}

// AddManual adds a game with user-supplied stats. The game gets a
// minted negative catalog ID and lands starred in the collection.
func (s *CollectionService) AddManual(
	ctx context.Context,
	userID int64,
	userName, name string,
	minPlayers, maxPlayers int,
	complexity float64,
) (*model.Game, error) {
	if _, err := s.users.Upsert(ctx, userID, userName); err != nil {
		return nil, err
	}

	gameID := manualGameID(name)
	game, err := s.games.GetByID(ctx, gameID)
	if errors.Is(err, repository.ErrGameNotFound) {
		game = &model.Game{
			ID:          gameID,
			Name:        name,
			MinPlayers:  minPlayers,
			MaxPlayers:  maxPlayers,
			PlayingTime: 60,
			Complexity:  complexity,
		}
		if err := s.games.Upsert(ctx, game); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if err := s.collection.Add(ctx, userID, game.ID, model.StateStarred); err != nil {
		return nil, err
	}
	return game, nil
}

var nameNormalizer = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// normalizeName strips punctuation and collapses whitespace so that
// "Ticket to Ride: Europe" matches "ticket to ride europe".
func normalizeName(name string) string {
	cleaned := nameNormalizer.ReplaceAllString(name, "")
	return strings.Join(strings.Fields(strings.ToLower(cleaned)), " ")
}

// AddOutcome is the result of a BGG search add. Exactly one of Game
// and Suggestions is set: a game was added, or the search found only
// near misses the user must pick from by exact name.
type AddOutcome struct {
	Game        *model.Game
	Suggestions []string
}

// AddFromBGG searches the BGG catalog for a game by name and adds it
// on an exact match. Near misses are returned as suggestions rather
// than guessed at.
func (s *CollectionService) AddFromBGG(
	ctx context.Context,
	userID int64,
	userName, query string,
) (*AddOutcome, error) {
	results, err := s.client.Search(ctx, query, 10)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &AddOutcome{}, nil
	}

	want := normalizeName(query)
	var matched *bgg.SearchResult
	for i := range results {
		if normalizeName(results[i].Name) == want {
			matched = &results[i]
			break
		}
	}
	if matched == nil {
		n := len(results)
		if n > 5 {
			n = 5
		}
		suggestions := make([]string, 0, n)
		for _, r := range results[:n] {
			suggestions = append(suggestions, r.Name)
		}
		return &AddOutcome{Suggestions: suggestions}, nil
	}

	// The catalog cache spares a thing lookup for games another user
	// already pulled in.
	game, err := s.games.GetByID(ctx, matched.ID)
	if errors.Is(err, repository.ErrGameNotFound) {
		game, err = s.client.GameDetails(ctx, matched.ID)
		if err != nil {
			return nil, err
		}
		if game == nil {
			return &AddOutcome{}, nil
		}
		if err := s.games.Upsert(ctx, game); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if _, err := s.users.Upsert(ctx, userID, userName); err != nil {
		return nil, err
	}
	if err := s.collection.Add(ctx, userID, game.ID, model.StateStarred); err != nil {
		return nil, err
	}
	return &AddOutcome{Game: game}, nil
}

// ManageView is one page of the collection manage listing.
type ManageView struct {
	Items      []repository.OwnedGame
	Page       int
	TotalPages int
	Total      int
}

// ManagePage returns a page of the user's collection, name-sorted.
// Out-of-range pages are clamped.
func (s *CollectionService) ManagePage(ctx context.Context, userID int64, page int) (*ManageView, error) {
	_, total, err := s.collection.ListPage(ctx, userID, 1, 0)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return &ManageView{}, nil
	}

	totalPages := (total + GamesPerPage - 1) / GamesPerPage
	if page < 0 {
		page = 0
	}
	if page > totalPages-1 {
		page = totalPages - 1
	}

	items, _, err := s.collection.ListPage(ctx, userID, GamesPerPage, page*GamesPerPage)
	if err != nil {
		return nil, err
	}
	return &ManageView{Items: items, Page: page, TotalPages: totalPages, Total: total}, nil
}

// ToggleState advances a collection entry one step in the
// included -> starred -> excluded cycle and returns the new state.
func (s *CollectionService) ToggleState(ctx context.Context, userID, gameID int64) (model.GameState, error) {
	entry, err := s.collection.GetEntry(ctx, userID, gameID)
	if err != nil {
		return 0, err
	}
	next := entry.State.Next()
	if err := s.collection.SetState(ctx, userID, gameID, next); err != nil {
		return 0, err
	}
	return next, nil
}

// GuestGame parses "<guest name> <game name>" out of free text and
// adds the game to the matched guest's collection. Guest names may
// contain spaces, so the longest session guest whose name prefixes the
// text wins. Unknown games become manual entries with the given stats.
func (s *CollectionService) GuestGame(
	ctx context.Context,
	chatID int64,
	text string,
	minPlayers, maxPlayers int,
	complexity float64,
) (*model.User, *model.Game, error) {
	players, err := s.sessions.Players(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}
	var guests []*model.User
	for _, p := range players {
		if p.IsGuest {
			guests = append(guests, p)
		}
	}
	if len(guests) == 0 {
		return nil, nil, ErrNoGuests
	}

	sort.Slice(guests, func(i, j int) bool {
		return len(guests[i].TelegramName) > len(guests[j].TelegramName)
	})

	var guest *model.User
	var gameName string
	lowered := strings.ToLower(text)
	for _, g := range guests {
		name := strings.ToLower(g.TelegramName)
		if !strings.HasPrefix(lowered, name) {
			continue
		}
		rest := text[len(g.TelegramName):]
		if rest != "" && !strings.HasPrefix(rest, " ") {
			continue
		}
		guest = g
		gameName = strings.TrimSpace(rest)
		break
	}
	if guest == nil {
		return nil, nil, ErrGuestNotFound
	}
	if gameName == "" {
		return guest, nil, ErrMissingGameName
	}

	game, err := s.games.GetByName(ctx, gameName)
	if errors.Is(err, repository.ErrGameNotFound) {
		game = &model.Game{
			ID:          manualGameID(gameName),
			Name:        gameName,
			MinPlayers:  minPlayers,
			MaxPlayers:  maxPlayers,
			PlayingTime: 60,
			Complexity:  complexity,
		}
		if err := s.games.Upsert(ctx, game); err != nil {
			return nil, nil, err
		}
	} else if err != nil {
		return nil, nil, err
	}

	if err := s.collection.Add(ctx, guest.TelegramID, game.ID, model.StateIncluded); err != nil {
		return nil, nil, err
	}
	return guest, game, nil
}

// PurgeGuest deletes a guest user along with their collection and
// expansion ownership. Guests are ephemeral; their data does not
// survive the session.
func (s *CollectionService) PurgeGuest(ctx context.Context, guestID int64) error {
	if err := s.collection.DeleteForUser(ctx, guestID); err != nil {
		return err
	}
	if err := s.expansions.DeleteOwnedForUser(ctx, guestID); err != nil {
		return err
	}
	if err := s.users.DeleteGuest(ctx, guestID); err != nil {
		return err
	}
	log.Info().Int64("guest_id", guestID).Msg("Guest purged")
	return nil
}

// sleep waits for d or returns early when ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
