package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"game-night-bot/internal/gamenight"
	"game-night-bot/internal/model"
	"game-night-bot/internal/pkg/lock"
	"game-night-bot/internal/repository"
)

// Poll-related errors.
var (
	// ErrNoCandidates means no game in the joined collections can host
	// the current lobby.
	ErrNoCandidates = errors.New("no playable games for this group")
	// ErrVoteLimitReached means the voter has spent their vote budget.
	ErrVoteLimitReached = errors.New("vote limit reached")
)

// VoteOutcome tells the handler how a vote toggle resolved.
type VoteOutcome struct {
	Added bool
	// Count and Limit are set when the toggle was rejected by the
	// vote limit, for the alert text.
	Count int
	Limit int
}

// PollService handles poll lifecycle, voting, and winner resolution.
type PollService struct {
	sessions   *repository.SessionRepository
	polls      *repository.PollRepository
	collection *repository.CollectionRepository
	locks      *lock.ChatLock
	maxOptions int

	// newRand builds the source used for category draws. Swappable in
	// tests for deterministic resolution.
	newRand func() *rand.Rand
}

// NewPollService creates a new PollService instance.
func NewPollService(
	sessions *repository.SessionRepository,
	polls *repository.PollRepository,
	collection *repository.CollectionRepository,
	locks *lock.ChatLock,
	maxOptions int,
) *PollService {
	return &PollService{
		sessions:   sessions,
		polls:      polls,
		collection: collection,
		locks:      locks,
		maxOptions: maxOptions,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
}

// MaxOptions returns the per-poll option ceiling.
func (s *PollService) MaxOptions() int {
	return s.maxOptions
}

// Candidates computes the playable game set for a chat: the union of
// the lobby's non-excluded collections, restricted to games whose
// player range covers the lobby size. Expansion-derived effective
// values override the catalog ones. The third result is the owned
// count before the player filter, so callers can tell an empty
// collection apart from a mismatched one.
func (s *PollService) Candidates(ctx context.Context, chatID int64) ([]*model.Game, []int64, int, error) {
	players, err := s.sessions.Players(ctx, chatID)
	if err != nil {
		return nil, nil, 0, err
	}
	if len(players) == 0 {
		return nil, nil, 0, nil
	}

	playerIDs := make([]int64, len(players))
	for i, p := range players {
		playerIDs[i] = p.TelegramID
	}

	owned, err := s.collection.ListAvailable(ctx, playerIDs)
	if err != nil {
		return nil, nil, 0, err
	}

	playerCount := len(players)
	var candidates []*model.Game
	for _, og := range owned {
		game := og.Game
		maxPlayers := game.MaxPlayers
		if og.Entry.EffectiveMaxPlayers != nil {
			maxPlayers = *og.Entry.EffectiveMaxPlayers
		}
		if game.MinPlayers > playerCount || maxPlayers < playerCount {
			continue
		}
		if og.Entry.EffectiveComplexity != nil {
			game.Complexity = *og.Entry.EffectiveComplexity
		}
		candidates = append(candidates, &game)
	}
	return candidates, playerIDs, len(owned), nil
}

// StarredBy maps candidate games to the lobby members who starred them.
func (s *PollService) StarredBy(ctx context.Context, playerIDs []int64) (map[int64][]int64, error) {
	return s.collection.StarredBy(ctx, playerIDs)
}

// SplitForNativePolls partitions candidates into labeled poll pages.
func (s *PollService) SplitForNativePolls(games []*model.Game) []gamenight.Group {
	return gamenight.SplitGames(games, s.maxOptions)
}

// PriorPolls returns the chat's open poll records and forgets them.
// The handler stops or edits the underlying Telegram messages; a new
// poll must never coexist with an old one.
func (s *PollService) PriorPolls(ctx context.Context, chatID int64) ([]*model.Poll, error) {
	polls, err := s.polls.ListByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if len(polls) == 0 {
		return nil, nil
	}
	if err := s.polls.DeleteByChat(ctx, chatID); err != nil {
		return nil, err
	}
	return polls, nil
}

// ActivePoll returns the chat's open poll record, if any. Unlike
// PriorPolls the record is kept.
func (s *PollService) ActivePoll(ctx context.Context, chatID int64) (*model.Poll, error) {
	polls, err := s.polls.ListByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if len(polls) == 0 {
		return nil, repository.ErrPollNotFound
	}
	return polls[0], nil
}

// Register records a sent poll message.
func (s *PollService) Register(ctx context.Context, pollID string, chatID int64, messageID int) error {
	return s.polls.Create(ctx, &model.Poll{PollID: pollID, ChatID: chatID, MessageID: messageID})
}

// Forget drops all poll records for a chat.
func (s *PollService) Forget(ctx context.Context, chatID int64) error {
	return s.polls.DeleteByChat(ctx, chatID)
}

// Lookup finds the poll record for a Telegram poll ID. Polls the bot
// did not create resolve to repository.ErrPollNotFound.
func (s *PollService) Lookup(ctx context.Context, pollID string) (*model.Poll, error) {
	return s.polls.GetByPollID(ctx, pollID)
}

// ToggleVote adds or removes a vote on a custom poll. Removals are
// always allowed; additions are checked against the effective vote
// limit recomputed from the live candidate set.
func (s *PollService) ToggleVote(ctx context.Context, session *model.Session, pollID string, userID int64, userName string, target gamenight.VoteTarget) (VoteOutcome, error) {
	var outcome VoteOutcome
	err := s.locks.WithLock(session.ChatID, func() error {
		stored := target.Encode()

		removed, err := s.polls.RemoveVote(ctx, pollID, userID, stored)
		if err != nil {
			return err
		}
		if removed {
			outcome = VoteOutcome{Added: false}
			return nil
		}

		candidates, _, _, err := s.Candidates(ctx, session.ChatID)
		if err != nil {
			return err
		}
		limit := gamenight.EffectiveLimit(session.VoteLimit, len(candidates))
		if limit != model.VoteLimitUnlimited {
			count, err := s.polls.CountUserVotes(ctx, pollID, userID)
			if err != nil {
				return err
			}
			if count >= limit {
				outcome = VoteOutcome{Count: count, Limit: limit}
				return ErrVoteLimitReached
			}
		}

		if err := s.polls.AddVote(ctx, &model.Vote{
			PollID:   pollID,
			UserID:   userID,
			Target:   stored,
			UserName: userName,
		}); err != nil {
			return err
		}
		outcome = VoteOutcome{Added: true}
		return nil
	})
	return outcome, err
}

// RecordNativeAnswer tracks that a user answered (or retracted) a
// native poll, then reports whether the chat should auto-close: every
// lobby member has voted. An empty lobby never auto-closes.
func (s *PollService) RecordNativeAnswer(ctx context.Context, poll *model.Poll, userID int64, userName string, retracted bool) (bool, error) {
	shouldClose := false
	err := s.locks.WithLock(poll.ChatID, func() error {
		if retracted {
			if err := s.polls.RemoveVotesForUser(ctx, poll.PollID, userID); err != nil {
				return err
			}
		} else {
			// Native option tallies live in Telegram; record only the
			// fact that this user voted.
			if err := s.polls.AddVote(ctx, &model.Vote{
				PollID:   poll.PollID,
				UserID:   userID,
				Target:   0,
				UserName: userName,
			}); err != nil {
				return err
			}
		}

		voters, err := s.polls.DistinctVotersForPoll(ctx, poll.PollID)
		if err != nil {
			return err
		}
		players, err := s.sessions.PlayerCount(ctx, poll.ChatID)
		if err != nil {
			return err
		}
		if players == 0 {
			return nil
		}
		shouldClose = voters >= players
		return nil
	})
	return shouldClose, err
}

// CloseCustom resolves a custom poll: category votes get one random
// draw per level, scores include star boosts when weighting is on, and
// the tie-aware winner set comes back with the full leaderboard.
func (s *PollService) CloseCustom(ctx context.Context, session *model.Session, pollID string) (*gamenight.Result, error) {
	var result gamenight.Result
	err := s.locks.WithLock(session.ChatID, func() error {
		candidates, playerIDs, _, err := s.Candidates(ctx, session.ChatID)
		if err != nil {
			return err
		}

		votes, err := s.polls.VotesForPoll(ctx, pollID)
		if err != nil {
			return err
		}

		cast := make([]gamenight.CastVote, 0, len(votes))
		for _, v := range votes {
			cast = append(cast, gamenight.CastVote{
				Target: gamenight.DecodeTarget(v.Target),
				UserID: v.UserID,
			})
		}

		var starredBy map[int64][]int64
		if session.Weighted {
			starredBy, err = s.collection.StarredBy(ctx, playerIDs)
			if err != nil {
				return err
			}
		}

		result = gamenight.ClosePoll(candidates, cast, starredBy, session.Weighted, s.newRand())
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("chat_id", session.ChatID).
		Strs("winners", result.Winners).
		Msg("Poll closed")
	return &result, nil
}

// NativeOption is one stopped-poll option as reported by Telegram.
type NativeOption struct {
	Text       string
	VoterCount int
}

// ScoreNative scores stopped native polls. Option texts carry the star
// marker, so the boost counts lobby members who starred the game.
func (s *PollService) ScoreNative(ctx context.Context, chatID int64, weighted bool, options []NativeOption) (*gamenight.Result, error) {
	candidates, playerIDs, _, err := s.Candidates(ctx, chatID)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*model.Game, len(candidates))
	for _, g := range candidates {
		byName[g.Name] = g
	}

	var starredBy map[int64][]int64
	if weighted {
		starredBy, err = s.collection.StarredBy(ctx, playerIDs)
		if err != nil {
			return nil, err
		}
	}

	scores := make(map[string]float64, len(options))
	var modifiers []string
	for _, opt := range options {
		name := strings.TrimPrefix(opt.Text, "⭐ ")
		score := float64(opt.VoterCount)

		if weighted && name != opt.Text {
			if g, ok := byName[name]; ok {
				if n := len(starredBy[g.ID]); n > 0 {
					boost := gamenight.StarBoost * float64(n)
					score += boost
					modifiers = append(modifiers, fmt.Sprintf("%s: +%.1f (starred)", name, boost))
				}
			}
		}
		scores[name] = score
	}

	maxScore := 0.0
	for _, v := range scores {
		if v > maxScore {
			maxScore = v
		}
	}
	var winners []string
	if maxScore > 0 {
		for name, v := range scores {
			if v == maxScore {
				winners = append(winners, name)
			}
		}
		sort.Strings(winners)
	}

	return &gamenight.Result{Winners: winners, Scores: scores, Modifiers: modifiers}, nil
}

// PollView is everything the handler needs to render the custom poll
// message and keyboard.
type PollView struct {
	PollID       string
	Games        []*model.Game
	VoteCounts   map[int64]int
	VotersByGame map[int64][]string
	CategoryVote map[int]int
	CategoryBy   map[int][]string
	StarredIDs   map[int64]bool
	TotalVotes   int
	UniqueVoters int
	HideVoters   bool
	LimitLabel   string
}

// View aggregates the current vote state of a custom poll.
func (s *PollService) View(ctx context.Context, session *model.Session, pollID string) (*PollView, error) {
	candidates, playerIDs, _, err := s.Candidates(ctx, session.ChatID)
	if err != nil {
		return nil, err
	}

	starredBy, err := s.collection.StarredBy(ctx, playerIDs)
	if err != nil {
		return nil, err
	}
	starred := make(map[int64]bool, len(starredBy))
	for gameID := range starredBy {
		starred[gameID] = true
	}

	votes, err := s.polls.VotesForPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}

	view := &PollView{
		PollID:       pollID,
		Games:        candidates,
		VoteCounts:   make(map[int64]int),
		VotersByGame: make(map[int64][]string),
		CategoryVote: make(map[int]int),
		CategoryBy:   make(map[int][]string),
		StarredIDs:   starred,
		HideVoters:   session.HideVoters,
	}

	known := make(map[int64]bool, len(candidates))
	for _, g := range candidates {
		known[g.ID] = true
	}

	voters := make(map[int64]bool)
	for _, v := range votes {
		target := gamenight.DecodeTarget(v.Target)
		if target.IsCategory() {
			level := target.Level()
			view.CategoryVote[level]++
			view.CategoryBy[level] = append(view.CategoryBy[level], v.UserName)
		} else if known[target.GameID()] {
			view.VoteCounts[target.GameID()]++
			view.VotersByGame[target.GameID()] = append(view.VotersByGame[target.GameID()], v.UserName)
		} else {
			continue
		}
		view.TotalVotes++
		voters[v.UserID] = true
	}
	view.UniqueVoters = len(voters)

	limit := gamenight.VoteLimitLabel(session.VoteLimit)
	if session.VoteLimit == model.VoteLimitAuto {
		limit = fmt.Sprintf("Auto (%d)", gamenight.EffectiveLimit(session.VoteLimit, len(candidates)))
	}
	view.LimitLabel = limit

	return view, nil
}

// SortForDisplay orders games starred first, then by votes, then name.
func (v *PollView) SortForDisplay(games []*model.Game) []*model.Game {
	sorted := make([]*model.Game, len(games))
	copy(sorted, games)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := v.StarredIDs[sorted[i].ID], v.StarredIDs[sorted[j].ID]
		if si != sj {
			return si
		}
		vi, vj := v.VoteCounts[sorted[i].ID], v.VoteCounts[sorted[j].ID]
		if vi != vj {
			return vi > vj
		}
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}
