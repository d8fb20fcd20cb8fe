// Property-based tests for chat-level lock serialization.
package lock

import (
	"sync"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"
)

// TestConcurrentVoteSerializationProperty verifies that concurrent vote
// mutations on the same chat, each a read-modify-write of the tally,
// produce the same result as sequential execution.
func TestConcurrentVoteSerializationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chatID := rapid.Int64Range(1, 1000000).Draw(t, "chatID")
		numOps := rapid.IntRange(2, 30).Draw(t, "numOps")

		deltas := make([]int, numOps)
		expected := 0
		for i := range deltas {
			// Votes toggle on and off, so deltas go both ways.
			deltas[i] = rapid.IntRange(-1, 1).Draw(t, "delta")
			expected += deltas[i]
		}

		cl := NewChatLock()
		tally := 0

		var wg sync.WaitGroup
		wg.Add(numOps)
		for _, d := range deltas {
			go func(delta int) {
				defer wg.Done()
				cl.Lock(chatID)
				defer cl.Unlock(chatID)
				tally += delta
			}(d)
		}
		wg.Wait()

		if tally != expected {
			t.Fatalf("tally mismatch: expected %d, got %d", expected, tally)
		}
	})
}

// TestWithLockSerializationProperty verifies WithLock gives the same
// guarantee through the closure form.
func TestWithLockSerializationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chatID := rapid.Int64Range(1, 1000000).Draw(t, "chatID")
		numOps := rapid.IntRange(5, 30).Draw(t, "numOps")

		cl := NewChatLock()
		voters := 0

		var wg sync.WaitGroup
		wg.Add(numOps)
		for i := 0; i < numOps; i++ {
			go func() {
				defer wg.Done()
				_ = cl.WithLock(chatID, func() error {
					voters++
					return nil
				})
			}()
		}
		wg.Wait()

		if voters != numOps {
			t.Fatalf("expected %d voters, got %d", numOps, voters)
		}
	})
}

// TestChatsLockIndependentlyProperty verifies locks for different chats
// never serialize against each other incorrectly.
func TestChatsLockIndependentlyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numChats := rapid.IntRange(2, 8).Draw(t, "numChats")
		opsPerChat := rapid.IntRange(5, 20).Draw(t, "opsPerChat")

		cl := NewChatLock()
		tallies := make([]int, numChats)

		var wg sync.WaitGroup
		wg.Add(numChats * opsPerChat)
		for c := 0; c < numChats; c++ {
			for i := 0; i < opsPerChat; i++ {
				go func(chat int) {
					defer wg.Done()
					cl.Lock(int64(chat + 1))
					defer cl.Unlock(int64(chat + 1))
					tallies[chat]++
				}(c)
			}
		}
		wg.Wait()

		for c := 0; c < numChats; c++ {
			if tallies[c] != opsPerChat {
				t.Fatalf("chat %d tally mismatch: expected %d, got %d", c+1, opsPerChat, tallies[c])
			}
		}
	})
}

// TestTryLockExclusivityProperty verifies TryLock admits at least one
// caller and leaves the lock free afterwards.
func TestTryLockExclusivityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chatID := rapid.Int64Range(1, 1000000).Draw(t, "chatID")
		numAttempts := rapid.IntRange(5, 20).Draw(t, "numAttempts")

		cl := NewChatLock()

		var successes atomic.Int32
		var wg sync.WaitGroup
		wg.Add(numAttempts)
		start := make(chan struct{})

		for i := 0; i < numAttempts; i++ {
			go func() {
				defer wg.Done()
				<-start
				if cl.TryLock(chatID) {
					successes.Add(1)
					cl.Unlock(chatID)
				}
			}()
		}
		close(start)
		wg.Wait()

		if successes.Load() < 1 {
			t.Fatalf("at least one TryLock should succeed, got %d", successes.Load())
		}
		if !cl.TryLock(chatID) {
			t.Fatal("lock should be free after all attempts complete")
		}
		cl.Unlock(chatID)
	})
}

// TestLockUnlockSymmetryProperty verifies repeated lock/unlock cycles
// leave the lock acquirable.
func TestLockUnlockSymmetryProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chatID := rapid.Int64Range(1, 1000000).Draw(t, "chatID")
		numCycles := rapid.IntRange(1, 50).Draw(t, "numCycles")

		cl := NewChatLock()
		for i := 0; i < numCycles; i++ {
			cl.Lock(chatID)
			cl.Unlock(chatID)
		}
		if !cl.TryLock(chatID) {
			t.Fatal("lock should be free after symmetric cycles")
		}
		cl.Unlock(chatID)
	})
}
