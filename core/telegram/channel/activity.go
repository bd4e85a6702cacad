package channel

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/airbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/airbot/core/telegram/helpers"
	"github.com/m3rciful/airbot/core/turn"
)

// account maps a Telegram user to an activity account.
func account(u *tele.User) turn.Account {
	if u == nil {
		return turn.Account{}
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return turn.Account{ID: strconv.FormatInt(u.ID, 10), Name: name}
}

func (ch *Channel) base(c tele.Context, kind string) turn.Activity {
	ids := tghelpers.IDsOf(c)
	return turn.Activity{
		Type:           kind,
		ID:             ids.Update,
		Channel:        tghelpers.Channel,
		ConversationID: ids.Conversation,
		From:           account(c.Sender()),
		Recipient:      ch.bot,
	}
}

// MessageActivity builds a message activity from a text update or an action button press.
func (ch *Channel) MessageActivity(c tele.Context) turn.Activity {
	act := ch.base(c, turn.TypeMessage)
	if cb := c.Callback(); cb != nil {
		act.Text = callbacks.Payload(cb)
		return act
	}
	act.Text = c.Text()
	return act
}

// JoinActivity builds a memberAdded activity. For /start the sender is the new member;
// for service messages every joined user is listed.
func (ch *Channel) JoinActivity(c tele.Context) turn.Activity {
	act := ch.base(c, turn.TypeMemberAdded)
	msg := c.Message()
	switch {
	case msg != nil && len(msg.UsersJoined) > 0:
		for i := range msg.UsersJoined {
			act.MembersAdded = append(act.MembersAdded, account(&msg.UsersJoined[i]))
		}
	case msg != nil && msg.UserJoined != nil:
		act.MembersAdded = []turn.Account{account(msg.UserJoined)}
	default:
		act.MembersAdded = []turn.Account{act.From}
	}
	return act
}
