package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLockerSerializesSameKey(t *testing.T) {
	l := NewLocker()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.LockTurn("c1", "u1")
			defer unlock()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 1, maxSeen)
	require.Zero(t, l.Len())
}

func TestLockerDifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocker()
	unlock := l.Lock(ConversationLockKey("a"))
	defer unlock()

	done := make(chan struct{})
	go func() {
		l.Lock(ConversationLockKey("b"))()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestLockerUnlockTwiceIsSafe(t *testing.T) {
	l := NewLocker()
	unlock := l.Lock("k")
	unlock()
	unlock()
	require.Zero(t, l.Len())

	// the key is usable again
	l.Lock("k")()
}
