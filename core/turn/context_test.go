package turn

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/airbot/core/state"
)

func TestContextKeepsSendOrder(t *testing.T) {
	tc := NewContext(Activity{Type: TypeMessage, ConversationID: "c1", From: Account{ID: "u1"}}, state.NewMemoryStore())

	tc.SendText("one")
	tc.Send(Message{Text: "two", SuggestedActions: []string{"a"}})
	tc.SendText("three")

	out := tc.Outbox()
	require.Len(t, out, 3)
	require.Equal(t, "one", out[0].Text)
	require.Equal(t, []string{"a"}, out[1].SuggestedActions)
	require.Equal(t, "three", out[2].Text)

	out[0].Text = "changed"
	require.Equal(t, "one", tc.Outbox()[0].Text)
}

func TestContextStateKeys(t *testing.T) {
	tc := NewContext(Activity{ConversationID: "c1", From: Account{ID: "u1"}}, state.NewMemoryStore())
	require.Equal(t, "c1", tc.State.Key(state.ScopeConversation))
	require.Equal(t, "u1", tc.State.Key(state.ScopeUser))

	require.NoError(t, tc.State.Set(context.Background(), state.ScopeUser, "x", 1))

	tg := NewContext(Activity{Channel: "telegram", ConversationID: "42", From: Account{ID: "42"}}, state.NewMemoryStore())
	require.Equal(t, "telegram:42", tg.State.Key(state.ScopeConversation))
	require.Equal(t, "telegram:42", tg.State.Key(state.ScopeUser))

	empty := NewContext(Activity{Channel: "web"}, state.NewMemoryStore())
	require.Empty(t, empty.State.Key(state.ScopeConversation))
}

func TestActivityJSON(t *testing.T) {
	raw := `{"type":"memberAdded","conversation_id":"c1","from":{"id":"u1"},"recipient":{"id":"bot"},"members_added":[{"id":"u1","name":"Ann"}]}`
	var a Activity
	require.NoError(t, json.Unmarshal([]byte(raw), &a))
	require.Equal(t, TypeMemberAdded, a.Type)
	require.Equal(t, "bot", a.Recipient.ID)
	require.Len(t, a.MembersAdded, 1)
	require.Equal(t, "Ann", a.MembersAdded[0].Name)

	data, err := json.Marshal(Message{Text: "hi"})
	require.NoError(t, err)
	require.JSONEq(t, `{"text":"hi"}`, string(data))
}
