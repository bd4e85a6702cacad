package channel

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/airbot/core/telegram/callbacks"
	"github.com/m3rciful/airbot/core/telegram/format"
	"github.com/m3rciful/airbot/core/telegram/keyboard"
	"github.com/m3rciful/airbot/core/turn"
)

// Outbound is one Telegram API send.
type Outbound struct {
	Action   string
	Endpoint string
	What     any
	Opts     *tele.SendOptions
}

// Render converts a reply into Telegram sends: plain text with an optional reply keyboard,
// then the card if any. Cards with an image become photos with a caption.
func Render(m turn.Message) []Outbound {
	var out []Outbound
	if m.Text != "" {
		o := Outbound{Action: "send.text", Endpoint: "sendMessage", What: m.Text}
		if kb := keyboard.Reply(m.SuggestedActions); kb != nil {
			o.Opts = &tele.SendOptions{ReplyMarkup: kb}
		}
		out = append(out, o)
	}
	if m.Attachment != nil {
		out = append(out, renderCard(*m.Attachment))
	}
	return out
}

func renderCard(card turn.Card) Outbound {
	opts := &tele.SendOptions{
		ParseMode:   tele.ModeMarkdownV2,
		ReplyMarkup: keyboard.Inline(callbacks.ActionKey, card.Buttons),
	}
	body := CardMarkdown(card)
	if card.ImageURL != "" {
		return Outbound{
			Action:   "send.card",
			Endpoint: "sendPhoto",
			What:     &tele.Photo{File: tele.FromURL(card.ImageURL), Caption: body},
			Opts:     opts,
		}
	}
	return Outbound{Action: "send.card", Endpoint: "sendMessage", What: body, Opts: opts}
}

// CardMarkdown renders a card as MarkdownV2: bold title, italic subtitle, then the text.
func CardMarkdown(card turn.Card) string {
	var lines []string
	if card.Title != "" {
		lines = append(lines, format.Bold(card.Title))
	}
	if card.Subtitle != "" {
		lines = append(lines, format.Italic(card.Subtitle))
	}
	if card.Text != "" {
		lines = append(lines, format.EscapeV2(card.Text))
	}
	return strings.Join(lines, "\n")
}
