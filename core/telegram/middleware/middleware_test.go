package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/airbot/core/config"
	"github.com/m3rciful/airbot/core/logger"
	tghelpers "github.com/m3rciful/airbot/core/telegram/helpers"
)

type fakeContext struct {
	tele.Context
	upd   tele.Update
	store map[string]any
}

func newFakeContext(upd tele.Update) *fakeContext {
	return &fakeContext{upd: upd, store: map[string]any{}}
}

func (f *fakeContext) Update() tele.Update { return f.upd }

func (f *fakeContext) Sender() *tele.User {
	if f.upd.Callback != nil {
		return f.upd.Callback.Sender
	}
	if f.upd.Message != nil {
		return f.upd.Message.Sender
	}
	return nil
}

func (f *fakeContext) Chat() *tele.Chat {
	if f.upd.Message != nil {
		return f.upd.Message.Chat
	}
	return nil
}

func (f *fakeContext) Text() string {
	if f.upd.Message != nil {
		return f.upd.Message.Text
	}
	return ""
}

func (f *fakeContext) Get(key string) interface{} { return f.store[key] }

func (f *fakeContext) Set(key string, val interface{}) { f.store[key] = val }

func message(userID int64, text string) tele.Update {
	return tele.Update{
		ID: int(userID),
		Message: &tele.Message{
			Text:   text,
			Chat:   &tele.Chat{ID: 100},
			Sender: &tele.User{ID: userID},
		},
	}
}

func TestUpdateKind(t *testing.T) {
	require.Equal(t, config.UpdateMessage, UpdateKind(message(1, "hi")))
	require.Equal(t, config.UpdateCallback, UpdateKind(tele.Update{Callback: &tele.Callback{}}))

	joined := message(1, "")
	joined.Message.UsersJoined = []tele.User{{ID: 2}}
	require.Equal(t, config.UpdateMember, UpdateKind(joined))
	require.Equal(t, "other", UpdateKind(tele.Update{}))
}

func TestRateLimitMiddleware(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limited := 0
	mw := RateLimit(RateLimitOptions{
		Interval:  time.Second,
		Exclude:   []string{config.UpdateCallback},
		OnLimited: func(tele.Context) error { limited++; return nil },
		now:       func() time.Time { return now },
	})
	handled := 0
	h := mw(func(tele.Context) error { handled++; return nil })

	require.NoError(t, h(newFakeContext(message(1, "a"))))
	require.NoError(t, h(newFakeContext(message(1, "b"))))
	require.NoError(t, h(newFakeContext(message(2, "c"))))
	require.Equal(t, 2, handled)
	require.Equal(t, 1, limited)

	// callbacks bypass the limit
	cb := tele.Update{Callback: &tele.Callback{Sender: &tele.User{ID: 1}}}
	require.NoError(t, h(newFakeContext(cb)))
	require.Equal(t, 3, handled)

	now = now.Add(2 * time.Second)
	require.NoError(t, h(newFakeContext(message(1, "d"))))
	require.Equal(t, 4, handled)
}

func TestReceiptBindsContext(t *testing.T) {
	c := newFakeContext(message(7, "hi"))
	var (
		rid  string
		conv string
	)
	h := Receipt(func(c tele.Context) error {
		rid, _ = c.Get("rid").(string)
		conv = logger.ConversationIDFrom(tghelpers.Ctx(c))
		return nil
	})
	require.NoError(t, h(c))
	require.Equal(t, "7:100:7", rid)
	require.Equal(t, "100", conv)
}

func TestSeenUpdates(t *testing.T) {
	s := &seenUpdates{ttl: time.Second, at: map[int]time.Time{}}
	now := time.Unix(100, 0)
	require.True(t, s.first(1, now))
	require.False(t, s.first(1, now.Add(500*time.Millisecond)))
	require.True(t, s.first(2, now))
	require.True(t, s.first(1, now.Add(3*time.Second)))
}

func TestLimiterPrunes(t *testing.T) {
	l := &limiter{interval: time.Second, last: map[int64]time.Time{}}
	start := time.Unix(0, 0)
	for i := int64(0); i < 4096; i++ {
		require.True(t, l.allow(i, start))
	}
	require.True(t, l.allow(99999, start.Add(2*time.Second)))
	require.Len(t, l.last, 1)
}

func TestRecover(t *testing.T) {
	h := Recover(func(tele.Context) error { panic("boom") })
	require.NotPanics(t, func() {
		require.NoError(t, h(newFakeContext(message(1, "x"))))
	})
}
