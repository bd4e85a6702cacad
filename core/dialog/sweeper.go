package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/airbot/core/logger"
	"github.com/m3rciful/airbot/core/state"
)

// DefaultSweepInterval is used when no interval is configured.
const DefaultSweepInterval = time.Minute

// Sweeper periodically pops dialog frames that have waited for a reply longer than ttl.
// Expired frames are dropped silently; the user is not notified.
type Sweeper struct {
	storage  state.Storage
	lister   state.Lister
	locker   *state.Locker
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewSweeper requires a backend that can enumerate conversation keys.
// locker must be the one used by the bot controller.
func NewSweeper(storage state.Storage, locker *state.Locker, ttl, interval time.Duration) (*Sweeper, error) {
	lister, ok := storage.(state.Lister)
	if !ok {
		return nil, errors.New("dialog: state backend cannot list keys")
	}
	if ttl <= 0 {
		return nil, errors.New("dialog: sweeper ttl must be positive")
	}
	if locker == nil {
		return nil, errors.New("dialog: sweeper locker must not be nil")
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		storage:  storage,
		lister:   lister,
		locker:   locker,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
	}, nil
}

// Start launches the sweep loop. Calling Start on a running sweeper does nothing.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.loop(loopCtx)
}

// Stop cancels the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Sweeper) loop(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.running = false
		close(s.done)
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				logger.Warn(ctx, "dialog", "dialog.sweep",
					slog.String("status", "fail"),
					slog.String("err", err.Error()),
				)
			}
		}
	}
}

// Sweep runs one pass and returns how many frames expired.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	keys, err := s.lister.Keys(ctx, state.ScopeConversation)
	if err != nil {
		return 0, fmt.Errorf("dialog: list conversations: %w", err)
	}

	cutoff := s.now().Add(-s.ttl)
	expired := 0
	var errs []error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		ok, err := s.expire(ctx, key, cutoff)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			expired++
		}
	}

	logger.Debug(ctx, "dialog", "dialog.sweep",
		slog.String("status", logger.Status(errors.Join(errs...))),
		slog.Int("count", len(keys)),
		slog.Int("expired", expired),
		slog.Duration("duration", logger.Took(start)),
	)
	return expired, errors.Join(errs...)
}

func (s *Sweeper) expire(ctx context.Context, conversationID string, cutoff time.Time) (bool, error) {
	unlock := s.locker.Lock(state.ConversationLockKey(conversationID))
	defer unlock()

	tr := state.NewTurn(s.storage, conversationID, "")
	frame, ok, err := Expire(ctx, tr, cutoff)
	if err != nil || !ok {
		return false, err
	}
	if err := tr.Flush(ctx, state.ScopeConversation); err != nil {
		return false, err
	}
	logger.Info(ctx, "dialog", "dialog.expire",
		slog.String("status", "expired"),
		slog.String("conversation_id", conversationID),
		slog.String("dialog_id", frame.DialogID),
		slog.Int("step_index", frame.StepIndex),
		slog.Duration("duration", logger.RoundMS(s.now().Sub(frame.LastActivity))),
	)
	return true, nil
}
