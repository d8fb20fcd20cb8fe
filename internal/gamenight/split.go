package gamenight

import (
	"fmt"
	"sort"
	"strings"

	"game-night-bot/internal/model"
)

const (
	// DefaultMaxPerPoll matches the Telegram native poll option ceiling.
	DefaultMaxPerPoll = 10

	// minGroupSize is the smallest group the splitter will ever emit.
	// Single-option polls are meaningless, and Telegram rejects them.
	minGroupSize = 2

	// edgePenalty is subtracted from complexity gaps whose split point
	// would leave fewer than 3 games on either side, steering splits
	// toward groups of 3+.
	edgePenalty = 0.2
)

// Group is one labeled page of poll options.
type Group struct {
	Label string
	Games []*model.Game
}

// complexityLabel names a complexity range by the band its midpoint
// falls into.
func complexityLabel(minC, maxC float64) string {
	avg := (minC + maxC) / 2
	switch {
	case avg < 2.0:
		return "Light / Party Games"
	case avg < 3.0:
		return "Medium Weight Games"
	default:
		return "Heavy Strategy Games"
	}
}

// findBestSplit locates the index to split a complexity-sorted game
// list at, using gap analysis with edge penalties. Returns -1 when no
// split leaves minGroupSize games on both sides.
func findBestSplit(games []*model.Game) int {
	n := len(games)
	if n < minGroupSize*2 {
		return -1
	}

	best := -1
	bestGap := 0.0
	for i := 0; i < n-1; i++ {
		gap := games[i+1].Complexity - games[i].Complexity

		leftSize := i + 1
		rightSize := n - leftSize
		if leftSize < 3 || rightSize < 3 {
			gap -= edgePenalty
		}
		if leftSize < minGroupSize || rightSize < minGroupSize {
			continue
		}
		if best == -1 || gap > bestGap {
			best = leftSize
			bestGap = gap
		}
	}
	return best
}

// sortByComplexity orders games by (complexity, name).
func sortByComplexity(games []*model.Game) {
	sort.SliceStable(games, func(i, j int) bool {
		if games[i].Complexity != games[j].Complexity {
			return games[i].Complexity < games[j].Complexity
		}
		return strings.ToLower(games[i].Name) < strings.ToLower(games[j].Name)
	})
}

// chunk splits games into pages of at most maxPerPoll, merging a
// dangling final page of one game into its predecessor.
func chunk(games []*model.Game, maxPerPoll int) [][]*model.Game {
	var chunks [][]*model.Game
	for i := 0; i < len(games); i += maxPerPoll {
		end := i + maxPerPoll
		if end > len(games) {
			end = len(games)
		}
		chunks = append(chunks, games[i:end])
	}
	if len(chunks) > 1 && len(chunks[len(chunks)-1]) == 1 {
		last := chunks[len(chunks)-1]
		chunks[len(chunks)-2] = append(chunks[len(chunks)-2], last[0])
		chunks = chunks[:len(chunks)-1]
	}
	return chunks
}

// SplitGames partitions candidate games into labeled poll-sized groups
// using complexity gap analysis. Rated games are sorted by complexity
// and split recursively at the largest adjusted gap; unrated games form
// their own name-sorted pages. No returned group ever holds exactly one
// game.
func SplitGames(games []*model.Game, maxPerPoll int) []Group {
	if maxPerPoll <= 0 {
		maxPerPoll = DefaultMaxPerPoll
	}

	var valid []*model.Game
	for _, g := range games {
		if g != nil && g.Name != "" {
			valid = append(valid, g)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	var rated, unrated []*model.Game
	for _, g := range valid {
		if g.Rated() {
			rated = append(rated, g)
		} else {
			unrated = append(unrated, g)
		}
	}

	var result []Group
	if len(rated) > 0 {
		result = append(result, splitRated(rated, len(valid), maxPerPoll)...)
	}

	if len(unrated) > 0 {
		sort.SliceStable(unrated, func(i, j int) bool {
			return strings.ToLower(unrated[i].Name) < strings.ToLower(unrated[j].Name)
		})
		chunks := chunk(unrated, maxPerPoll)
		for i, c := range chunks {
			label := "Unrated Games"
			if len(chunks) > 1 {
				label = fmt.Sprintf("Unrated Games (%d/%d)", i+1, len(chunks))
			}
			result = append(result, Group{Label: label, Games: c})
		}
	}

	return result
}

// splitRated recursively partitions rated games. totalValid is the full
// candidate count, used to label a group that covers everything.
func splitRated(group []*model.Game, totalValid, maxPerPoll int) []Group {
	sortByComplexity(group)

	if len(group) <= maxPerPoll {
		var label string
		if len(group) == totalValid {
			label = "Games"
		} else {
			label = complexityLabel(group[0].Complexity, group[len(group)-1].Complexity)
		}
		return []Group{{Label: label, Games: group}}
	}

	if split := findBestSplit(group); split != -1 {
		left := splitRated(group[:split], totalValid, maxPerPoll)
		right := splitRated(group[split:], totalValid, maxPerPoll)
		return append(left, right...)
	}

	// No edge-safe gap exists: fall back to straight chunking.
	chunks := chunk(group, maxPerPoll)
	result := make([]Group, 0, len(chunks))
	for i, c := range chunks {
		label := complexityLabel(c[0].Complexity, c[len(c)-1].Complexity)
		if len(chunks) > 1 {
			label = fmt.Sprintf("%s (%d/%d)", label, i+1, len(chunks))
		}
		result = append(result, Group{Label: label, Games: c})
	}
	return result
}
