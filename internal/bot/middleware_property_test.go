// Package bot provides middleware for the Telegram bot.
// Property-based tests for middleware functions.
package bot

import (
	"testing"

	"pgregory.net/rapid"

	"game-night-bot/internal/config"
)

// TestWhitelistEnforcementProperty tests the chat whitelist check.
// For any group chat update:
// - If the whitelist is empty, every chat SHALL be allowed
// - Otherwise a chat SHALL be allowed if and only if its ID is listed
func TestWhitelistEnforcementProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numChats := rapid.IntRange(0, 10).Draw(t, "numChats")
		chatIDs := make([]int64, numChats)
		for i := 0; i < numChats; i++ {
			chatIDs[i] = rapid.Int64Range(-1000000000, -1).Draw(t, "chatID")
		}

		cfg := &config.Config{
			Whitelist: config.WhitelistConfig{
				Chats: chatIDs,
			},
		}

		testChatID := rapid.Int64Range(-1000000000, -1).Draw(t, "testChatID")

		allowed := cfg.IsChatAllowed(testChatID)

		expected := numChats == 0
		for _, id := range chatIDs {
			if id == testChatID {
				expected = true
				break
			}
		}

		if allowed != expected {
			t.Fatalf("Whitelist check mismatch: chatID=%d, whitelist=%v, expected=%v, got=%v",
				testChatID, chatIDs, expected, allowed)
		}
	})
}

// TestWhitelistKnownChatProperty tests that listed chats are always allowed.
func TestWhitelistKnownChatProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numChats := rapid.IntRange(1, 10).Draw(t, "numChats")
		chatIDs := make([]int64, numChats)
		for i := 0; i < numChats; i++ {
			chatIDs[i] = rapid.Int64Range(-1000000000, -1).Draw(t, "chatID")
		}

		cfg := &config.Config{
			Whitelist: config.WhitelistConfig{
				Chats: chatIDs,
			},
		}

		chatIndex := rapid.IntRange(0, numChats-1).Draw(t, "chatIndex")
		knownChatID := chatIDs[chatIndex]

		if !cfg.IsChatAllowed(knownChatID) {
			t.Fatalf("Whitelisted chat %d was not allowed (whitelist=%v)", knownChatID, chatIDs)
		}
	})
}

// TestPrivateUserCacheProperty tests the private chat access cache.
// A user SHALL be allowed in private chat if and only if they were
// previously marked allowed.
func TestPrivateUserCacheProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")
		otherID := rapid.Int64Range(1000000001, 2000000000).Draw(t, "otherID")

		AllowPrivateUser(userID)

		if !IsPrivateUserAllowed(userID) {
			t.Fatalf("User %d was marked allowed but check failed", userID)
		}
		if IsPrivateUserAllowed(otherID) {
			t.Fatalf("User %d was never marked allowed but check passed", otherID)
		}
	})
}
