package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/airbot/core/turn"
)

// fakeContext implements the tele.Context methods the channel touches.
type fakeContext struct {
	tele.Context
	upd       tele.Update
	store     map[string]any
	responded int
}

func newFakeContext(upd tele.Update) *fakeContext {
	return &fakeContext{upd: upd, store: map[string]any{}}
}

func (f *fakeContext) Update() tele.Update { return f.upd }

func (f *fakeContext) Message() *tele.Message {
	if f.upd.Message != nil {
		return f.upd.Message
	}
	if f.upd.Callback != nil {
		return f.upd.Callback.Message
	}
	return nil
}

func (f *fakeContext) Callback() *tele.Callback { return f.upd.Callback }

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
	if m := f.Message(); m != nil {
		return m.Chat
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

func (f *fakeContext) Respond(...*tele.CallbackResponse) error {
	f.responded++
	return nil
}

type recordingHandler struct {
	acts      []turn.Activity
	cancelled []turn.Activity
	res       turn.Result
	err       error
}

func (r *recordingHandler) OnTurn(_ context.Context, act turn.Activity) (turn.Result, error) {
	r.acts = append(r.acts, act)
	return r.res, r.err
}

func (r *recordingHandler) Cancel(_ context.Context, act turn.Activity) (turn.Result, error) {
	r.cancelled = append(r.cancelled, act)
	return r.res, r.err
}

func newTestChannel(t *testing.T, h turn.Handler) (*Channel, *[]Outbound) {
	t.Helper()
	ch, err := New(h, &tele.User{ID: 999, Username: "airbot"})
	require.NoError(t, err)
	var sent []Outbound
	ch.send = func(_ tele.Context, o Outbound) error {
		sent = append(sent, o)
		return nil
	}
	return ch, &sent
}

func textUpdate(text string) tele.Update {
	return tele.Update{
		ID: 42,
		Message: &tele.Message{
			Text:   text,
			Chat:   &tele.Chat{ID: 100, Type: tele.ChatPrivate},
			Sender: &tele.User{ID: 7, FirstName: "Ann", LastName: "Lee"},
		},
	}
}

func TestOnTextBuildsMessageActivity(t *testing.T) {
	h := &recordingHandler{res: turn.Result{Messages: []turn.Message{turn.Text("hi"), turn.Text("there")}}}
	ch, sent := newTestChannel(t, h)

	c := newFakeContext(textUpdate("NYC"))
	require.NoError(t, ch.OnText(c))

	require.Len(t, h.acts, 1)
	act := h.acts[0]
	require.Equal(t, turn.TypeMessage, act.Type)
	require.Equal(t, "42", act.ID)
	require.Equal(t, "telegram", act.Channel)
	require.Equal(t, "100", act.ConversationID)
	require.Equal(t, turn.Account{ID: "7", Name: "Ann Lee"}, act.From)
	require.Equal(t, turn.Account{ID: "999", Name: "airbot"}, act.Recipient)
	require.Equal(t, "NYC", act.Text)

	require.Len(t, *sent, 2)
	require.Equal(t, "hi", (*sent)[0].What)
	require.Equal(t, "there", (*sent)[1].What)
	require.Equal(t, 2, c.Get(MessagesKey))
}

func TestOnStartIsMemberAdded(t *testing.T) {
	h := &recordingHandler{}
	ch, _ := newTestChannel(t, h)

	require.NoError(t, ch.OnStart(newFakeContext(textUpdate("/start"))))
	require.Len(t, h.acts, 1)
	require.Equal(t, turn.TypeMemberAdded, h.acts[0].Type)
	require.Equal(t, []turn.Account{{ID: "7", Name: "Ann Lee"}}, h.acts[0].MembersAdded)
}

func TestOnUserJoinedListsEveryMember(t *testing.T) {
	h := &recordingHandler{}
	ch, _ := newTestChannel(t, h)

	upd := textUpdate("")
	upd.Message.UsersJoined = []tele.User{{ID: 999, Username: "airbot"}, {ID: 8, Username: "bob"}}
	require.NoError(t, ch.OnUserJoined(newFakeContext(upd)))

	require.Equal(t, []turn.Account{{ID: "999", Name: "airbot"}, {ID: "8", Name: "bob"}}, h.acts[0].MembersAdded)
}

func TestOnActionReplaysButtonLabel(t *testing.T) {
	h := &recordingHandler{}
	ch, _ := newTestChannel(t, h)

	c := newFakeContext(tele.Update{
		ID: 43,
		Callback: &tele.Callback{
			Data:    "\fact|Get the weather forecast",
			Sender:  &tele.User{ID: 7},
			Message: &tele.Message{Chat: &tele.Chat{ID: 100}},
		},
	})
	require.NoError(t, ch.OnAction(c))
	require.Equal(t, 1, c.responded)
	require.Len(t, h.acts, 1)
	require.Equal(t, "Get the weather forecast", h.acts[0].Text)
	require.Equal(t, "100", h.acts[0].ConversationID)

	// unique already split off by telebot
	c = newFakeContext(tele.Update{Callback: &tele.Callback{
		Unique:  "act",
		Data:    "Book a flight",
		Sender:  &tele.User{ID: 7},
		Message: &tele.Message{Chat: &tele.Chat{ID: 100}},
	}})
	require.NoError(t, ch.OnAction(c))
	require.Equal(t, "Book a flight", h.acts[1].Text)
}

func TestOnCancelUsesCancel(t *testing.T) {
	h := &recordingHandler{}
	ch, _ := newTestChannel(t, h)
	require.NoError(t, ch.OnCancel(newFakeContext(textUpdate("/cancel"))))
	require.Len(t, h.cancelled, 1)
	require.Empty(t, h.acts)
}

func TestTurnErrorStillDelivers(t *testing.T) {
	boom := errors.New("flush failed")
	h := &recordingHandler{res: turn.Result{Messages: []turn.Message{turn.Text("hi")}}, err: boom}
	ch, sent := newTestChannel(t, h)

	err := ch.OnText(newFakeContext(textUpdate("x")))
	require.ErrorIs(t, err, boom)
	require.Len(t, *sent, 1)
}

func TestNewRejectsNilHandler(t *testing.T) {
	_, err := New(nil, nil)
	require.Error(t, err)
}
