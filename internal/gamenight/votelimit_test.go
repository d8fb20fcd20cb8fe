package gamenight

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"game-night-bot/internal/model"
)

func TestAutoVoteLimit(t *testing.T) {
	tests := []struct {
		games    int
		expected int
	}{
		{0, 3},
		{1, 3},
		{8, 3},
		{9, 4},
		{16, 4},
		{17, 5},
		{32, 5},
		{33, 6},
	}
	for _, tt := range tests {
		got := AutoVoteLimit(tt.games)
		if got != tt.expected {
			t.Errorf("AutoVoteLimit(%d) = %d, want %d", tt.games, got, tt.expected)
		}
	}
}

func TestEffectiveLimit(t *testing.T) {
	assert.Equal(t, 4, EffectiveLimit(model.VoteLimitAuto, 12))
	assert.Equal(t, 3, EffectiveLimit(model.VoteLimitAuto, 2))
	assert.Equal(t, 7, EffectiveLimit(7, 100))
	assert.Equal(t, model.VoteLimitUnlimited, EffectiveLimit(model.VoteLimitUnlimited, 100))
}

func TestNextVoteLimitCycle(t *testing.T) {
	order := []int{model.VoteLimitAuto, 3, 5, 7, 10, model.VoteLimitUnlimited}
	current := model.VoteLimitAuto
	for i := 1; i <= len(order); i++ {
		current = NextVoteLimit(current)
		assert.Equal(t, order[i%len(order)], current)
	}
}

func TestNextVoteLimitUnknownResetsToAuto(t *testing.T) {
	assert.Equal(t, model.VoteLimitAuto, NextVoteLimit(42))
}

func TestVoteLimitLabel(t *testing.T) {
	assert.Equal(t, "Auto", VoteLimitLabel(model.VoteLimitAuto))
	assert.Equal(t, "Unlimited", VoteLimitLabel(model.VoteLimitUnlimited))
	assert.Equal(t, "7", VoteLimitLabel(7))
}
