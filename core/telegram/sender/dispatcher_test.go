package sender

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestDispatcherKeepsPerKeyOrder(t *testing.T) {
	d := NewDispatcher(Options{Workers: 4, QueueSize: 256})

	var (
		mu   sync.Mutex
		seen = map[string][]int{}
	)
	keys := []string{"100", "200", "300", "400", "500"}
	for i := 0; i < 40; i++ {
		for _, k := range keys {
			require.NoError(t, d.Enqueue(context.Background(), k, "send.text", "sendMessage", func() error {
				mu.Lock()
				seen[k] = append(seen[k], i)
				mu.Unlock()
				return nil
			}))
		}
	}
	d.Close()

	for _, k := range keys {
		require.Len(t, seen[k], 40)
		for i, v := range seen[k] {
			require.Equal(t, i, v, "key %s", k)
		}
	}
	require.EqualValues(t, 200, d.SentCount())
	require.Zero(t, d.ErrorCount())
}

func TestDispatcherShardIsStable(t *testing.T) {
	d := NewDispatcher(Options{Workers: 8})
	defer d.Close()
	for i := 0; i < 100; i++ {
		k := fmt.Sprint(i)
		require.Equal(t, d.Shard(k), d.Shard(k))
		require.GreaterOrEqual(t, d.Shard(k), 0)
		require.Less(t, d.Shard(k), 8)
	}
}

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "c1", "send.text", "sendMessage", func() error {
		if calls.Add(1) < 3 {
			return &tele.Error{Code: 502, Description: "bad gateway"}
		}
		return nil
	}))
	d.Close()
	require.EqualValues(t, 3, calls.Load())
	require.EqualValues(t, 1, d.SentCount())
}

func TestDispatcherDoesNotRetryPermanentErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "c1", "send.text", "sendMessage", func() error {
		calls.Add(1)
		return errors.New("chat not found")
	}))
	d.Close()
	require.EqualValues(t, 1, calls.Load())
	require.EqualValues(t, 1, d.ErrorCount())
}

func TestDispatcherClosed(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Close()
	d.Close()
	err := d.Enqueue(context.Background(), "c1", "a", "e", func() error { return nil })
	require.ErrorIs(t, err, ErrQueueClosed)
	require.Error(t, d.Enqueue(context.Background(), "c1", "a", "e", nil))
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1, EnqueueWait: 10 * time.Millisecond})
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, d.Enqueue(context.Background(), "k", "a", "e", func() error {
		close(started)
		<-release
		return nil
	}))
	<-started
	require.NoError(t, d.Enqueue(context.Background(), "k", "a", "e", func() error { return nil }))
	require.ErrorIs(t, d.Enqueue(context.Background(), "k", "a", "e", func() error { return nil }), ErrQueueFull)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, d.Enqueue(ctx, "k", "a", "e", func() error { return nil }), context.Canceled)
	close(release)
	d.Close()
}

func TestDispatcherFullShardKeepsOrder(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1, EnqueueWait: 5 * time.Second})
	release := make(chan struct{})
	started := make(chan struct{})

	var (
		mu    sync.Mutex
		order []int
	)
	record := func(n int) func() error {
		return func() error {
			if n == 1 {
				close(started)
				<-release
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			return nil
		}
	}

	require.NoError(t, d.Enqueue(context.Background(), "chat", "send.text", "sendMessage", record(1)))
	<-started
	require.NoError(t, d.Enqueue(context.Background(), "chat", "send.text", "sendMessage", record(2)))

	// the shard is full: the third send waits for a slot instead of overtaking
	done := make(chan error, 1)
	go func() {
		done <- d.Enqueue(context.Background(), "chat", "send.text", "sendMessage", record(3))
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	require.NoError(t, <-done)
	d.Close()

	require.Equal(t, []int{1, 2, 3}, order)
	require.EqualValues(t, 3, d.SentCount())
}

func TestDispatcherGivesUpAtDeadline(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 10, RetryBackoff: 50 * time.Millisecond, MaxDuration: 20 * time.Millisecond})
	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "c1", "send.text", "sendMessage", func() error {
		calls.Add(1)
		return &tele.Error{Code: 503, Description: "unavailable"}
	}))
	d.Close()
	require.EqualValues(t, 1, calls.Load())
	require.EqualValues(t, 1, d.ErrorCount())
	require.Zero(t, d.SentCount())
}
