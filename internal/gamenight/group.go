package gamenight

import (
	"sort"

	"game-night-bot/internal/model"
)

// LevelFor returns the complexity category level for a game: the
// integer part of its weight (4.5 -> 4), or 0 for unrated games.
func LevelFor(g *model.Game) int {
	if g.Complexity <= 0 {
		return 0
	}
	level := int(g.Complexity)
	if level > maxCategoryLevel {
		level = maxCategoryLevel
	}
	return level
}

// GroupByLevel buckets games into complexity category levels. The
// custom poll UI renders one header row per level, and category votes
// reference these levels.
func GroupByLevel(games []*model.Game) map[int][]*model.Game {
	groups := make(map[int][]*model.Game)
	for _, g := range games {
		level := LevelFor(g)
		groups[level] = append(groups[level], g)
	}
	return groups
}

// Levels returns the group keys in descending order, heaviest first,
// which is the display order of the custom poll.
func Levels(groups map[int][]*model.Game) []int {
	levels := make([]int, 0, len(groups))
	for level := range groups {
		levels = append(levels, level)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(levels)))
	return levels
}
