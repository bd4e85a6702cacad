package turn

import (
	"github.com/m3rciful/airbot/core/state"
)

// Context carries everything a turn handler needs: the inbound activity,
// the turn's state view and the ordered outbound queue.
// It is created per activity and is not shared between goroutines.
type Context struct {
	Activity Activity
	State    *state.Turn

	outbox []Message
}

// NewContext binds an activity to storage. State keys are the conversation
// and sender ids prefixed with the activity channel.
func NewContext(activity Activity, storage state.Storage) *Context {
	return &Context{
		Activity: activity,
		State: state.NewTurn(storage,
			state.ChannelKey(activity.Channel, activity.ConversationID),
			state.ChannelKey(activity.Channel, activity.From.ID),
		),
	}
}

// Send queues msg for delivery after the turn.
func (c *Context) Send(msg Message) {
	c.outbox = append(c.outbox, msg)
}

// SendText queues a plain text message.
func (c *Context) SendText(text string) {
	c.Send(Text(text))
}

// Outbox returns a copy of the queued messages in send order.
func (c *Context) Outbox() []Message {
	out := make([]Message, len(c.outbox))
	copy(out, c.outbox)
	return out
}
