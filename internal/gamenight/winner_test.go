package gamenight

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-night-bot/internal/model"
)

func testRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

func TestComputeWinnerNoVotes(t *testing.T) {
	games := []*model.Game{
		{ID: 1, Name: "Catan", Complexity: 2.3},
		{ID: 2, Name: "Brass", Complexity: 3.9},
	}
	result := ComputeWinner(games, nil, nil, false)
	assert.Empty(t, result.Winners)
	assert.Equal(t, 0.0, result.Scores["Catan"])
	assert.Equal(t, 0.0, result.Scores["Brass"])
	assert.Empty(t, result.Modifiers)
}

func TestComputeWinnerSimpleMajority(t *testing.T) {
	games := []*model.Game{
		{ID: 1, Name: "Catan"},
		{ID: 2, Name: "Brass"},
	}
	votes := []ResolvedVote{
		{GameID: 1, UserID: 100},
		{GameID: 1, UserID: 200},
		{GameID: 2, UserID: 300},
	}
	result := ComputeWinner(games, votes, nil, false)
	assert.Equal(t, []string{"Catan"}, result.Winners)
	assert.Equal(t, 2.0, result.Scores["Catan"])
	assert.Equal(t, 1.0, result.Scores["Brass"])
}

func TestComputeWinnerTieReturnsAll(t *testing.T) {
	games := []*model.Game{
		{ID: 1, Name: "Catan"},
		{ID: 2, Name: "Brass"},
		{ID: 3, Name: "Azul"},
	}
	votes := []ResolvedVote{
		{GameID: 1, UserID: 100},
		{GameID: 2, UserID: 200},
	}
	result := ComputeWinner(games, votes, nil, false)
	assert.Equal(t, []string{"Brass", "Catan"}, result.Winners)
}

func TestComputeWinnerStarBoost(t *testing.T) {
	games := []*model.Game{
		{ID: 1, Name: "Catan"},
		{ID: 2, Name: "Brass"},
	}
	votes := []ResolvedVote{
		{GameID: 1, UserID: 100},
		{GameID: 2, UserID: 100},
		{GameID: 2, UserID: 200},
	}
	// User 100 starred Catan, so their Catan vote counts 1.5 while
	// their Brass vote stays 1.0.
	starred := map[int64][]int64{1: {100}}

	result := ComputeWinner(games, votes, starred, true)
	assert.Equal(t, 1.5, result.Scores["Catan"])
	assert.Equal(t, 2.0, result.Scores["Brass"])
	assert.Equal(t, []string{"Brass"}, result.Winners)
	require.Len(t, result.Modifiers, 1)
	assert.Contains(t, result.Modifiers[0], "Catan")
}

func TestComputeWinnerStarBoostAccumulates(t *testing.T) {
	games := []*model.Game{{ID: 1, Name: "Catan"}, {ID: 2, Name: "Brass"}}
	votes := []ResolvedVote{
		{GameID: 1, UserID: 100},
		{GameID: 1, UserID: 200},
	}
	starred := map[int64][]int64{1: {100, 200}}

	result := ComputeWinner(games, votes, starred, true)
	assert.Equal(t, 3.0, result.Scores["Catan"])
}

func TestComputeWinnerBoostIgnoredWhenUnweighted(t *testing.T) {
	games := []*model.Game{{ID: 1, Name: "Catan"}}
	votes := []ResolvedVote{{GameID: 1, UserID: 100}}
	starred := map[int64][]int64{1: {100}}

	result := ComputeWinner(games, votes, starred, false)
	assert.Equal(t, 1.0, result.Scores["Catan"])
	assert.Empty(t, result.Modifiers)
}

func TestComputeWinnerStarWithoutVoteNoBoost(t *testing.T) {
	games := []*model.Game{{ID: 1, Name: "Catan"}, {ID: 2, Name: "Brass"}}
	votes := []ResolvedVote{{GameID: 2, UserID: 100}}
	// Starring alone never scores; the star only amplifies a cast vote.
	starred := map[int64][]int64{1: {100}}

	result := ComputeWinner(games, votes, starred, true)
	assert.Equal(t, 0.0, result.Scores["Catan"])
	assert.Equal(t, 1.0, result.Scores["Brass"])
}

func TestComputeWinnerIgnoresUnknownGame(t *testing.T) {
	games := []*model.Game{{ID: 1, Name: "Catan"}}
	votes := []ResolvedVote{
		{GameID: 1, UserID: 100},
		{GameID: 99, UserID: 100},
	}
	result := ComputeWinner(games, votes, nil, false)
	assert.Equal(t, 1.0, result.Scores["Catan"])
	assert.Len(t, result.Scores, 1)
}

func TestResolveCategoriesSingleDrawPerLevel(t *testing.T) {
	games := []*model.Game{
		{ID: 1, Name: "Catan", Complexity: 2.3},
		{ID: 2, Name: "Wingspan", Complexity: 2.4},
		{ID: 3, Name: "Brass", Complexity: 3.9},
	}
	votes := []CastVote{
		{Target: CategoryTarget(2), UserID: 100},
		{Target: CategoryTarget(2), UserID: 200},
		{Target: CategoryTarget(2), UserID: 300},
	}
	resolved, picks := ResolveCategories(games, votes, testRand())
	require.Len(t, resolved, 3)
	require.Contains(t, picks, 2)

	// Every level 2 vote resolves to the same drawn game.
	for _, v := range resolved {
		assert.Equal(t, picks[2].ID, v.GameID)
	}
	assert.Contains(t, []int64{1, 2}, picks[2].ID)
}

func TestResolveCategoriesEmptyLevelDropped(t *testing.T) {
	games := []*model.Game{{ID: 1, Name: "Catan", Complexity: 2.3}}
	votes := []CastVote{
		{Target: CategoryTarget(4), UserID: 100},
		{Target: GameTarget(1), UserID: 200},
	}
	resolved, picks := ResolveCategories(games, votes, testRand())
	require.Len(t, resolved, 1)
	assert.Equal(t, int64(1), resolved[0].GameID)
	assert.NotContains(t, picks, 4)
}

func TestResolveCategoriesPassesGameVotesThrough(t *testing.T) {
	games := []*model.Game{{ID: 1, Name: "Catan", Complexity: 2.3}}
	votes := []CastVote{{Target: GameTarget(1), UserID: 100}}
	resolved, picks := ResolveCategories(games, votes, testRand())
	require.Len(t, resolved, 1)
	assert.Equal(t, ResolvedVote{GameID: 1, UserID: 100}, resolved[0])
	assert.Empty(t, picks)
}

func TestClosePollCategoryVotesCount(t *testing.T) {
	games := []*model.Game{
		{ID: 1, Name: "Catan", Complexity: 2.3},
		{ID: 2, Name: "Brass", Complexity: 3.9},
	}
	votes := []CastVote{
		{Target: CategoryTarget(2), UserID: 100},
		{Target: CategoryTarget(2), UserID: 200},
		{Target: GameTarget(2), UserID: 300},
	}
	result := ClosePoll(games, votes, nil, false, testRand())
	// Level 2 has a single candidate, so both category votes land on
	// Catan and it wins outright.
	assert.Equal(t, []string{"Catan"}, result.Winners)
	assert.Equal(t, 2.0, result.Scores["Catan"])
	assert.Equal(t, 1.0, result.Scores["Brass"])
	require.Contains(t, result.CategoryPicks, 2)
	assert.Equal(t, "Catan", result.CategoryPicks[2].Name)
}

func TestLeaderboardTopFiveWithMedals(t *testing.T) {
	result := Result{Scores: map[string]float64{
		"A": 5, "B": 4, "C": 3, "D": 2, "E": 1, "F": 0.5,
	}}
	standings := result.Leaderboard(5)
	require.Len(t, standings, 5)
	assert.Equal(t, "A", standings[0].Name)
	assert.Equal(t, "🥇", standings[0].Medal)
	assert.Equal(t, "🥈", standings[1].Medal)
	assert.Equal(t, "🥉", standings[2].Medal)
	assert.Equal(t, "", standings[3].Medal)
	assert.Equal(t, "E", standings[4].Name)
}

func TestLeaderboardFewerThanRequested(t *testing.T) {
	result := Result{Scores: map[string]float64{"A": 1, "B": 2}}
	standings := result.Leaderboard(5)
	require.Len(t, standings, 2)
	assert.Equal(t, "B", standings[0].Name)
}
