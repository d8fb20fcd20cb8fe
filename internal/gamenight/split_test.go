package gamenight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-night-bot/internal/model"
)

func rated(name string, complexity float64) *model.Game {
	return &model.Game{Name: name, Complexity: complexity}
}

func unrated(name string) *model.Game {
	return &model.Game{Name: name}
}

func groupNames(g Group) []string {
	names := make([]string, 0, len(g.Games))
	for _, game := range g.Games {
		names = append(names, game.Name)
	}
	return names
}

func TestSplitGamesEmpty(t *testing.T) {
	assert.Empty(t, SplitGames(nil, DefaultMaxPerPoll))
	assert.Empty(t, SplitGames([]*model.Game{}, DefaultMaxPerPoll))
}

func TestSplitGamesSingleGroupFits(t *testing.T) {
	games := []*model.Game{
		rated("Azul", 1.8),
		rated("Catan", 2.3),
		rated("Wingspan", 2.4),
	}
	groups := SplitGames(games, 10)
	require.Len(t, groups, 1)
	assert.Equal(t, "Games", groups[0].Label)
	assert.Len(t, groups[0].Games, 3)
}

func TestSplitGamesBandLabels(t *testing.T) {
	tests := []struct {
		name       string
		complexity []float64
		label      string
	}{
		{"light band", []float64{1.2, 1.5, 1.8}, "Light / Party Games"},
		{"medium band", []float64{2.0, 2.4, 2.8}, "Medium Weight Games"},
		{"heavy band", []float64{3.5, 4.0, 4.5}, "Heavy Strategy Games"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Mix in an unrated game so the rated group is not the
			// entire valid set and gets a band label.
			games := []*model.Game{unrated("Mystery")}
			for i, c := range tt.complexity {
				games = append(games, rated(string(rune('A'+i)), c))
			}
			groups := SplitGames(games, 10)
			require.Len(t, groups, 2)
			assert.Equal(t, tt.label, groups[0].Label)
			assert.Equal(t, "Unrated Games", groups[1].Label)
		})
	}
}

func TestSplitGamesLargestGap(t *testing.T) {
	// A clear gap between 2.0 and 3.4 should split the list there.
	games := []*model.Game{
		rated("A", 1.3), rated("B", 1.5), rated("C", 1.8), rated("D", 2.0),
		rated("E", 3.4), rated("F", 3.6), rated("G", 3.9), rated("H", 4.1),
	}
	groups := SplitGames(games, 4)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"A", "B", "C", "D"}, groupNames(groups[0]))
	assert.Equal(t, []string{"E", "F", "G", "H"}, groupNames(groups[1]))
}

func TestSplitGamesEdgePenalty(t *testing.T) {
	// The raw largest gap (0.5 before "C") would strand a group of
	// two; the penalty steers the split to the interior gap of 0.4.
	games := []*model.Game{
		rated("A", 1.0), rated("B", 1.1),
		rated("C", 1.6), rated("D", 1.7),
		rated("E", 2.1), rated("F", 2.2), rated("G", 2.3), rated("H", 2.4),
	}
	groups := SplitGames(games, 4)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"A", "B", "C", "D"}, groupNames(groups[0]))
	assert.Equal(t, []string{"E", "F", "G", "H"}, groupNames(groups[1]))
}

func TestSplitGamesIdenticalComplexitySplits(t *testing.T) {
	// Eleven identical complexities: a zero gap is still the best
	// valid split, so the group breaks at the earliest non-penalized
	// point instead of chunking.
	var games []*model.Game
	for i := 0; i < 11; i++ {
		games = append(games, rated(string(rune('A'+i)), 2.5))
	}
	groups := SplitGames(games, 10)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0].Games, 3)
	assert.Len(t, groups[1].Games, 8)
	for _, g := range groups {
		assert.Equal(t, "Medium Weight Games", g.Label)
	}
}

func TestSplitGamesUnratedChunkSuffixes(t *testing.T) {
	var games []*model.Game
	for i := 0; i < 24; i++ {
		games = append(games, unrated(string(rune('A'+i))))
	}
	groups := SplitGames(games, 10)
	require.Len(t, groups, 3)
	assert.Equal(t, "Unrated Games (1/3)", groups[0].Label)
	assert.Equal(t, "Unrated Games (2/3)", groups[1].Label)
	assert.Equal(t, "Unrated Games (3/3)", groups[2].Label)
	assert.Len(t, groups[2].Games, 4)
}

func TestSplitGamesUnratedChunkMergesSingleton(t *testing.T) {
	var games []*model.Game
	for i := 0; i < 21; i++ {
		games = append(games, unrated(string(rune('A'+i))))
	}
	groups := SplitGames(games, 10)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0].Games, 10)
	assert.Len(t, groups[1].Games, 11)
}

func TestSplitGamesUnratedSeparate(t *testing.T) {
	games := []*model.Game{
		rated("Catan", 2.3),
		unrated("Zombie Dice"),
		rated("Brass", 3.9),
		unrated("Apples"),
	}
	groups := SplitGames(games, 10)
	require.Len(t, groups, 2)
	assert.ElementsMatch(t, []string{"Catan", "Brass"}, groupNames(groups[0]))
	assert.Equal(t, "Unrated Games", groups[1].Label)
	assert.Equal(t, []string{"Apples", "Zombie Dice"}, groupNames(groups[1]))
}

func TestSplitGamesSkipsInvalidEntries(t *testing.T) {
	games := []*model.Game{
		nil,
		{Name: "", Complexity: 2.0},
		rated("Catan", 2.3),
	}
	groups := SplitGames(games, 10)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"Catan"}, groupNames(groups[0]))
}

func TestFindBestSplitNoneBelowMinimum(t *testing.T) {
	games := []*model.Game{rated("A", 1.0), rated("B", 4.0), rated("C", 4.1)}
	assert.Equal(t, -1, findBestSplit(games))
}

func TestSortByComplexityTieBreaksOnName(t *testing.T) {
	games := []*model.Game{
		rated("zebra", 2.0),
		rated("Alpha", 2.0),
		rated("mango", 2.0),
	}
	sortByComplexity(games)
	assert.Equal(t, "Alpha", games[0].Name)
	assert.Equal(t, "mango", games[1].Name)
	assert.Equal(t, "zebra", games[2].Name)
}
