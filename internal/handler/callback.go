// Package handler provides Telegram bot command and callback handlers.
package handler

import (
	"strings"
)

// Lobby and settings callback actions. These carry no arguments; the
// chat and message come from the callback itself.
const (
	CallbackJoin        = "join_lobby"
	CallbackLeave       = "leave_lobby"
	CallbackStartPoll   = "start_poll"
	CallbackSettings    = "poll_settings"
	CallbackCancel      = "cancel_night"
	CallbackResume      = "resume_night"
	CallbackRestart     = "restart_night"
	CallbackToggleMode  = "toggle_poll_mode"
	CallbackToggleWeigh = "toggle_weights"
	CallbackToggleHide  = "toggle_hide_voters"
	CallbackCycleLimit  = "cycle_vote_limit"
)

// Prefixes for callbacks that carry arguments.
const (
	PrefixVote         = "vote"
	PrefixCategoryVote = "poll_random_vote"
	PrefixRefresh      = "poll_refresh"
	PrefixClose        = "poll_close"
	PrefixManage       = "manage"
)

const callbackSep = ":"

// EncodeCallback joins an action and its arguments into callback data.
func EncodeCallback(action string, args ...string) string {
	if len(args) == 0 {
		return action
	}
	return action + callbackSep + strings.Join(args, callbackSep)
}

// DecodeCallback splits callback data into action and arguments.
// Telebot may prefix callback data with \f.
func DecodeCallback(data string) (action string, args []string) {
	data = strings.TrimPrefix(data, "\f")
	parts := strings.Split(data, callbackSep)
	return parts[0], parts[1:]
}
