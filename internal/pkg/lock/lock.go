// Package lock provides chat-level locking so vote handling, auto-close
// checks, and poll teardown for the same chat never interleave.
package lock

import (
	"context"
	"sync"
	"time"
)

// chatMutex wraps a mutex with reference counting for reuse.
type chatMutex struct {
	mu       sync.Mutex
	refCount int
}

// ChatLock provides per-chat locking. All session mutations for a chat
// go through its lock, so a vote and its auto-close check form one
// critical section.
type ChatLock struct {
	locks sync.Map // map[int64]*chatMutex
	pool  sync.Pool
}

// NewChatLock creates a new ChatLock instance.
func NewChatLock() *ChatLock {
	return &ChatLock{
		pool: sync.Pool{
			New: func() any {
				return &chatMutex{}
			},
		},
	}
}

func (cl *ChatLock) getLock(chatID int64) *chatMutex {
	if v, ok := cl.locks.Load(chatID); ok {
		return v.(*chatMutex)
	}

	newLock := cl.pool.Get().(*chatMutex)
	newLock.refCount = 0

	actual, loaded := cl.locks.LoadOrStore(chatID, newLock)
	if loaded {
		cl.pool.Put(newLock)
	}
	return actual.(*chatMutex)
}

// Lock acquires the lock for a chat.
func (cl *ChatLock) Lock(chatID int64) {
	lock := cl.getLock(chatID)
	lock.mu.Lock()
	lock.refCount++
}

// Unlock releases the lock for a chat.
func (cl *ChatLock) Unlock(chatID int64) {
	if v, ok := cl.locks.Load(chatID); ok {
		lock := v.(*chatMutex)
		lock.refCount--
		lock.mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
func (cl *ChatLock) TryLock(chatID int64) bool {
	lock := cl.getLock(chatID)
	if lock.mu.TryLock() {
		lock.refCount++
		return true
	}
	return false
}

// LockWithTimeout attempts to acquire the lock, giving up after the
// timeout or when ctx is cancelled.
func (cl *ChatLock) LockWithTimeout(ctx context.Context, chatID int64, timeout time.Duration) bool {
	lock := cl.getLock(chatID)

	done := make(chan struct{})
	go func() {
		lock.mu.Lock()
		close(done)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		lock.refCount++
		return true
	case <-timeoutCtx.Done():
		// The waiting goroutine will eventually acquire the mutex;
		// release it immediately once it does.
		go func() {
			<-done
			lock.mu.Unlock()
		}()
		return false
	}
}

// WithLock runs fn while holding the chat's lock.
func (cl *ChatLock) WithLock(chatID int64, fn func() error) error {
	cl.Lock(chatID)
	defer cl.Unlock(chatID)
	return fn()
}

// WithLockContext runs fn while holding the chat's lock, failing with
// ErrLockTimeout when the lock cannot be acquired in time.
func (cl *ChatLock) WithLockContext(ctx context.Context, chatID int64, timeout time.Duration, fn func() error) error {
	if !cl.LockWithTimeout(ctx, chatID, timeout) {
		return ErrLockTimeout
	}
	defer cl.Unlock(chatID)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}

// IsLocked reports whether a chat's lock is currently held. The answer
// is a point-in-time snapshot.
func (cl *ChatLock) IsLocked(chatID int64) bool {
	if v, ok := cl.locks.Load(chatID); ok {
		lock := v.(*chatMutex)
		if lock.mu.TryLock() {
			lock.mu.Unlock()
			return false
		}
		return true
	}
	return false
}
