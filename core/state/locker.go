package state

import "sync"

type refLock struct {
	mu   sync.Mutex
	refs int
}

// Locker hands out one mutex per key. Entries are dropped once no goroutine holds or waits on them.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

// NewLocker constructs an empty Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*refLock)}
}

// Lock blocks until key is free and returns the matching unlock function.
func (l *Locker) Lock(key string) func() {
	l.mu.Lock()
	rl, ok := l.locks[key]
	if !ok {
		rl = &refLock{}
		l.locks[key] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			rl.mu.Unlock()
			l.mu.Lock()
			rl.refs--
			if rl.refs == 0 {
				delete(l.locks, key)
			}
			l.mu.Unlock()
		})
	}
}

// LockTurn serializes turns touching the same conversation or user.
// The conversation key is always taken before the user key.
func (l *Locker) LockTurn(conversationID, userID string) func() {
	unlockConv := l.Lock(ConversationLockKey(conversationID))
	if userID == "" {
		return unlockConv
	}
	unlockUser := l.Lock("user:" + userID)
	return func() {
		unlockUser()
		unlockConv()
	}
}

// ConversationLockKey returns the lock key guarding a conversation's frames.
func ConversationLockKey(conversationID string) string {
	return "conversation:" + conversationID
}

// Len reports how many keys currently have holders or waiters.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
