package gamenight

import (
	"fmt"
	"math"

	"game-night-bot/internal/model"
)

// AutoVoteLimit derives a per-voter vote cap from the candidate count:
// ceil(log2(n)) with a floor of 3. A single-game poll still allows 3
// so category buttons stay usable.
func AutoVoteLimit(gameCount int) int {
	if gameCount < 2 {
		return 3
	}
	limit := int(math.Ceil(math.Log2(float64(gameCount))))
	if limit < 3 {
		limit = 3
	}
	return limit
}

// EffectiveLimit resolves a session's configured limit against the
// live candidate count. Zero means unlimited.
func EffectiveLimit(configured, gameCount int) int {
	if configured == model.VoteLimitAuto {
		return AutoVoteLimit(gameCount)
	}
	return configured
}

// voteLimitCycle is the order the settings button walks through.
var voteLimitCycle = []int{model.VoteLimitAuto, 3, 5, 7, 10, model.VoteLimitUnlimited}

// NextVoteLimit returns the setting following current in the cycle.
// Unknown values reset to auto.
func NextVoteLimit(current int) int {
	for i, v := range voteLimitCycle {
		if v == current {
			return voteLimitCycle[(i+1)%len(voteLimitCycle)]
		}
	}
	return model.VoteLimitAuto
}

// VoteLimitLabel renders a configured limit for the settings keyboard.
func VoteLimitLabel(configured int) string {
	switch configured {
	case model.VoteLimitAuto:
		return "Auto"
	case model.VoteLimitUnlimited:
		return "Unlimited"
	default:
		return fmt.Sprintf("%d", configured)
	}
}
