// Package gamenight implements the poll engine: complexity grouping and
// splitting of candidate game lists, vote target encoding, vote limits,
// and winner resolution.
package gamenight

import "fmt"

// VoteTarget is what a single vote points at: either a concrete game or
// an entire complexity category, resolved to a concrete game only when
// the poll closes.
type VoteTarget struct {
	gameID   int64
	level    int
	category bool
}

// GameTarget returns a target for a concrete game.
func GameTarget(gameID int64) VoteTarget {
	return VoteTarget{gameID: gameID}
}

// CategoryTarget returns a target for a complexity category level.
// Level 0 is the unrated group.
func CategoryTarget(level int) VoteTarget {
	return VoteTarget{level: level, category: true}
}

// IsCategory reports whether the target is a category vote.
func (t VoteTarget) IsCategory() bool {
	return t.category
}

// GameID returns the concrete game ID. Only meaningful when IsCategory
// is false.
func (t VoteTarget) GameID() int64 {
	return t.gameID
}

// Level returns the category level. Only meaningful when IsCategory is
// true.
func (t VoteTarget) Level() int {
	return t.level
}

// Encode converts the target to its storage form: game IDs as-is for
// concrete votes, -(level+1) for category votes. The shift keeps the
// unrated category (level 0) off the zero value, which would otherwise
// read back as a concrete game. The sign overload lives only here and
// in DecodeTarget.
func (t VoteTarget) Encode() int64 {
	if t.category {
		return -int64(t.level + 1)
	}
	return t.gameID
}

// DecodeTarget reconstructs a target from its storage form. Category
// encodings occupy [-(maxCategoryLevel+1), -1]; everything else is a
// concrete game ID. (Manual games use negative IDs in the games table
// but are minted well below this range, so they never collide.)
func DecodeTarget(stored int64) VoteTarget {
	if stored < 0 && stored >= -(maxCategoryLevel+1) {
		return CategoryTarget(int(-stored) - 1)
	}
	return GameTarget(stored)
}

// maxCategoryLevel bounds the category sentinel range. BGG weights run
// 1-5, so floor levels never exceed 5; level 0 is the unrated group.
const maxCategoryLevel = 5

func (t VoteTarget) String() string {
	if t.category {
		return fmt.Sprintf("category(%d)", t.level)
	}
	return fmt.Sprintf("game(%d)", t.gameID)
}
