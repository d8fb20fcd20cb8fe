package gamenight

import (
	"fmt"
	"math/rand"
	"sort"

	"game-night-bot/internal/model"
)

// StarBoost is added to a game's score for every voter who both voted
// for the game and personally starred it, when weighted voting is on.
const StarBoost = 0.5

// ResolvedVote is a vote after category resolution: always a concrete
// game.
type ResolvedVote struct {
	GameID int64
	UserID int64
}

// CastVote is one recorded vote, category or concrete.
type CastVote struct {
	Target VoteTarget
	UserID int64
}

// Result is the outcome of closing a poll.
type Result struct {
	// Winners holds the names of all games sharing the maximum score.
	// Empty when no votes were cast.
	Winners []string
	// Scores maps game name to final score for every candidate.
	Scores map[string]float64
	// Modifiers describes boosts applied, for the announcement.
	Modifiers []string
	// CategoryPicks records which concrete game each category level
	// resolved to.
	CategoryPicks map[int]*model.Game
}

// ResolveCategories performs the first phase of closing: one uniform
// random draw per distinct category level present in the votes, reused
// for every vote on that level. Votes for categories with no candidate
// games are dropped.
func ResolveCategories(games []*model.Game, votes []CastVote, rng *rand.Rand) ([]ResolvedVote, map[int]*model.Game) {
	groups := GroupByLevel(games)
	picks := make(map[int]*model.Game)

	resolved := make([]ResolvedVote, 0, len(votes))
	for _, v := range votes {
		if !v.Target.IsCategory() {
			resolved = append(resolved, ResolvedVote{GameID: v.Target.GameID(), UserID: v.UserID})
			continue
		}
		level := v.Target.Level()
		pick, ok := picks[level]
		if !ok {
			candidates := groups[level]
			if len(candidates) == 0 {
				continue
			}
			pick = candidates[rng.Intn(len(candidates))]
			picks[level] = pick
		}
		resolved = append(resolved, ResolvedVote{GameID: pick.ID, UserID: v.UserID})
	}
	return resolved, picks
}

// ComputeWinner scores resolved votes against the candidate set and
// returns the tie-aware winner list. starredBy maps game ID to the set
// of users who starred it; it is consulted only when weighted is true.
func ComputeWinner(games []*model.Game, votes []ResolvedVote, starredBy map[int64][]int64, weighted bool) Result {
	scores := make(map[string]float64, len(games))
	byID := make(map[int64]*model.Game, len(games))
	for _, g := range games {
		scores[g.Name] = 0
		byID[g.ID] = g
	}

	boosts := make(map[string]float64)
	for _, v := range votes {
		g, ok := byID[v.GameID]
		if !ok {
			continue
		}
		scores[g.Name]++
		if weighted && starredUser(starredBy[g.ID], v.UserID) {
			scores[g.Name] += StarBoost
			boosts[g.Name] += StarBoost
		}
	}

	var modifiers []string
	if weighted && len(boosts) > 0 {
		names := make([]string, 0, len(boosts))
		for name := range boosts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			modifiers = append(modifiers, fmt.Sprintf("%s: +%.1f (starred)", name, boosts[name]))
		}
	}

	maxScore := 0.0
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}

	var winners []string
	if maxScore > 0 {
		for name, s := range scores {
			if s == maxScore {
				winners = append(winners, name)
			}
		}
		sort.Strings(winners)
	}

	return Result{Winners: winners, Scores: scores, Modifiers: modifiers}
}

// ClosePoll runs both phases: category resolution then scoring.
func ClosePoll(games []*model.Game, votes []CastVote, starredBy map[int64][]int64, weighted bool, rng *rand.Rand) Result {
	resolved, picks := ResolveCategories(games, votes, rng)
	result := ComputeWinner(games, resolved, starredBy, weighted)
	result.CategoryPicks = picks
	return result
}

func starredUser(users []int64, userID int64) bool {
	for _, u := range users {
		if u == userID {
			return true
		}
	}
	return false
}

// Standing is one leaderboard row.
type Standing struct {
	Name  string
	Score float64
	Medal string
}

// Leaderboard returns the top n games by score, medals on the first
// three ranks.
func (r Result) Leaderboard(n int) []Standing {
	type entry struct {
		name  string
		score float64
	}
	entries := make([]entry, 0, len(r.Scores))
	for name, score := range r.Scores {
		entries = append(entries, entry{name, score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].name < entries[j].name
	})
	if n > len(entries) {
		n = len(entries)
	}

	medals := []string{"🥇", "🥈", "🥉"}
	standings := make([]Standing, 0, n)
	for i := 0; i < n; i++ {
		medal := ""
		if i < len(medals) {
			medal = medals[i]
		}
		standings = append(standings, Standing{Name: entries[i].name, Score: entries[i].score, Medal: medal})
	}
	return standings
}
