// Package model defines the data models for the game night bot.
package model

import "time"

// Game is a board game cached from the BGG catalog. Manually entered
// games carry a locally minted negative ID so they never collide with
// catalog IDs.
type Game struct {
	ID             int64   `db:"id"`
	Name           string  `db:"name"`
	MinPlayers     int     `db:"min_players"`
	MaxPlayers     int     `db:"max_players"`
	PlayingTime    int     `db:"playing_time"`
	MinPlayingTime *int    `db:"min_playing_time"`
	MaxPlayingTime *int    `db:"max_playing_time"`
	Complexity     float64 `db:"complexity"` // BGG weight 1-5, 0 = unrated
	Thumbnail      *string `db:"thumbnail"`
}

// Rated reports whether the game has a usable complexity rating.
func (g *Game) Rated() bool {
	return g.Complexity > 0
}

// User is a Telegram user (or an ephemeral guest) known to the bot.
type User struct {
	TelegramID   int64   `db:"telegram_id"`
	TelegramName string  `db:"telegram_name"`
	BGGUsername  *string `db:"bgg_username"`
	IsGuest      bool    `db:"is_guest"`
	AddedBy      *int64  `db:"added_by"`
}

// DisplayName returns the best available name for rendering.
func (u *User) DisplayName() string {
	if u.TelegramName != "" {
		return u.TelegramName
	}
	if u.BGGUsername != nil && *u.BGGUsername != "" {
		return *u.BGGUsername
	}
	return "Unknown"
}

// GameState is the three-state availability flag on a collection entry.
// State transitions cycle Included -> Starred -> Excluded -> Included.
type GameState int

const (
	StateIncluded GameState = 0 // available for polls
	StateStarred  GameState = 1 // available, weighted-vote boost
	StateExcluded GameState = 2 // removed from poll candidacy
)

// Next returns the following state in the three-state cycle.
func (s GameState) Next() GameState {
	return (s + 1) % 3
}

// Icon returns the emoji shown for this state in the manage view.
func (s GameState) Icon() string {
	switch s {
	case StateStarred:
		return "🌟"
	case StateExcluded:
		return "❌"
	default:
		return "⬜"
	}
}

// CollectionEntry links a user to a game they own, with availability
// state and effective values contributed by owned expansions.
type CollectionEntry struct {
	UserID              int64     `db:"user_id"`
	GameID              int64     `db:"game_id"`
	State               GameState `db:"state"`
	EffectiveMaxPlayers *int      `db:"effective_max_players"`
	EffectiveComplexity *float64  `db:"effective_complexity"`
}

// PollMode selects how a session's polls are rendered.
type PollMode int

const (
	PollModeCustom PollMode = 0 // single interactive message with buttons
	PollModeNative PollMode = 1 // standard Telegram polls, split if needed
)

// Vote limit sentinels. Positive values are static limits.
const (
	VoteLimitAuto      = -1 // max(3, ceil(log2(game_count)))
	VoteLimitUnlimited = 0
)

// Session is a game night lobby, one per chat.
type Session struct {
	ChatID     int64     `db:"chat_id"`
	IsActive   bool      `db:"is_active"`
	Weighted   bool      `db:"weighted"`
	PollMode   PollMode  `db:"poll_mode"`
	HideVoters bool      `db:"hide_voters"`
	VoteLimit  int       `db:"vote_limit"`
	MessageID  *int      `db:"message_id"`
	CreatedAt  time.Time `db:"created_at"`
}

// SessionPlayer is a lobby membership record. Sessions are keyed by
// chat, one active session per chat.
type SessionPlayer struct {
	ChatID int64 `db:"chat_id"`
	UserID int64 `db:"user_id"`
}

// Poll tracks one active voting round for a session.
type Poll struct {
	PollID    string `db:"poll_id"`
	ChatID    int64  `db:"chat_id"`
	MessageID int    `db:"message_id"`
}

// Vote is one (poll, user, target) record. Target is the storage
// encoding of a vote target: a positive game ID, a negative category
// level, or zero for native-poll "voted" markers where the chosen
// option is tracked by Telegram itself.
type Vote struct {
	PollID   string `db:"poll_id"`
	UserID   int64  `db:"user_id"`
	Target   int64  `db:"target"`
	UserName string `db:"user_name"`
}

// Expansion is a catalog expansion and its modifiers to a base game.
type Expansion struct {
	ID              int64    `db:"id"`
	Name            string   `db:"name"`
	BaseGameID      int64    `db:"base_game_id"`
	NewMaxPlayers   *int     `db:"new_max_players"`
	ComplexityDelta *float64 `db:"complexity_delta"`
}

// UserExpansion records ownership of an expansion.
type UserExpansion struct {
	UserID      int64 `db:"user_id"`
	ExpansionID int64 `db:"expansion_id"`
}
