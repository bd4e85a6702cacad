package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/m3rciful/airbot/core/turn"
)

// ErrBadActivity marks a request body that is not a usable activity.
var ErrBadActivity = errors.New("web: bad activity")

// DecodeActivity parses an activity and fills what a client may omit:
// the type defaults to message, the id to a random UUID and the recipient
// to the bot. The channel is always set to channel; clients cannot pick it.
func DecodeActivity(body []byte, channel, botID string) (turn.Activity, error) {
	var act turn.Activity
	if err := json.Unmarshal(body, &act); err != nil {
		return turn.Activity{}, fmt.Errorf("%w: %v", ErrBadActivity, err)
	}
	if strings.TrimSpace(act.ConversationID) == "" {
		return turn.Activity{}, fmt.Errorf("%w: conversation_id is required", ErrBadActivity)
	}
	if strings.TrimSpace(act.From.ID) == "" {
		return turn.Activity{}, fmt.Errorf("%w: from.id is required", ErrBadActivity)
	}
	if act.Type == "" {
		act.Type = turn.TypeMessage
	}
	if act.ID == "" {
		act.ID = uuid.NewString()
	}
	act.Channel = channel
	if act.Recipient.ID == "" {
		act.Recipient = turn.Account{ID: botID, Name: botID}
	}
	return act, nil
}

// Response is the JSON body returned for a turn.
type Response struct {
	Messages []turn.Message `json:"messages"`
	Error    string         `json:"error,omitempty"`
}

// NewResponse builds the body for a finished turn. Messages are always an array.
func NewResponse(res turn.Result, err error) Response {
	out := Response{Messages: res.Messages}
	if out.Messages == nil {
		out.Messages = []turn.Message{}
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}
