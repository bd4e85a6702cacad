// Package turn defines the channel-neutral activity and message types and the
// per-turn context handed to the bot controller and dialog steps.
package turn

import "context"

// Activity types understood by the bot.
const (
	TypeMessage     = "message"
	TypeMemberAdded = "memberAdded"
)

// Account identifies a user or a bot on a channel.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Activity is one inbound event from a channel.
type Activity struct {
	Type           string    `json:"type"`
	ID             string    `json:"id,omitempty"`
	Channel        string    `json:"channel,omitempty"`
	ConversationID string    `json:"conversation_id"`
	From           Account   `json:"from"`
	Recipient      Account   `json:"recipient"`
	Text           string    `json:"text,omitempty"`
	MembersAdded   []Account `json:"members_added,omitempty"`
}

// Card is a rich attachment rendered by the channel.
type Card struct {
	Title    string   `json:"title,omitempty"`
	Subtitle string   `json:"subtitle,omitempty"`
	Text     string   `json:"text,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	Buttons  []string `json:"buttons,omitempty"`
}

// Message is one outbound reply.
type Message struct {
	Text             string   `json:"text,omitempty"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
	Attachment       *Card    `json:"attachment,omitempty"`
}

// Text builds a plain text message.
func Text(text string) Message {
	return Message{Text: text}
}

// Result is returned by the controller for every turn.
type Result struct {
	Messages []Message `json:"messages"`
}

// Handler runs turns for inbound activities. Channels depend on it.
type Handler interface {
	OnTurn(ctx context.Context, act Activity) (Result, error)
	Cancel(ctx context.Context, act Activity) (Result, error)
}
