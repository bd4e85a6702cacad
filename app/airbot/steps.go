package airbot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/airbot/core/dialog"
	"github.com/m3rciful/airbot/core/turn"
)

// Dialog ids.
const (
	BookingDialog = "booking"
	WeatherDialog = "weather"
)

// Locals keys used by the booking dialog.
const (
	keyFrom      = "from"
	keyTo        = "to"
	keyPartySize = "party_size"
	keyConfirmed = "confirmed"
)

// BookingOptions toggles the optional parts of the booking script.
type BookingOptions struct {
	// Confirm inserts a yes/no question before the summary.
	Confirm bool
	// Card attaches a flight card to the summary.
	Card bool
}

// BookingSteps returns the booking script for opts.
func BookingSteps(opts BookingOptions) []dialog.Step {
	steps := []dialog.Step{FromStep(), ToStep(), PartySizeStep()}
	if opts.Confirm {
		steps = append(steps, ConfirmStep())
	}
	return append(steps, SummaryStep(opts.Card))
}

// WeatherSteps returns the one-step weather dialog.
func WeatherSteps() []dialog.Step {
	return []dialog.Step{{
		ID: "forecast",
		Run: func(_ context.Context, tc *turn.Context, _ dialog.Locals) error {
			tc.SendText(WeatherForecast)
			return nil
		},
	}}
}

// FromStep asks for the departure city.
func FromStep() dialog.Step {
	return cityStep("from", keyFrom, FromPrompt, func(p *Profile, city string) { p.From = city })
}

// ToStep asks for the destination city.
func ToStep() dialog.Step {
	return cityStep("to", keyTo, ToPrompt, func(p *Profile, city string) { p.To = city })
}

func cityStep(id, key, prompt string, set func(p *Profile, city string)) dialog.Step {
	return dialog.Step{
		ID:       id,
		Key:      key,
		Prompt:   func(dialog.Locals) turn.Message { return turn.Text(prompt) },
		Validate: validateCity,
		Commit: func(ctx context.Context, tc *turn.Context, value any, _ dialog.Locals) error {
			city, _ := value.(string)
			return updateProfile(ctx, tc, func(p *Profile) { set(p, city) })
		},
	}
}

// PartySizeStep asks for the number of travellers.
func PartySizeStep() dialog.Step {
	return dialog.Step{
		ID:       "party_size",
		Key:      keyPartySize,
		Prompt:   func(dialog.Locals) turn.Message { return turn.Text(PartySizePrompt) },
		Validate: validatePartySize,
		Commit: func(ctx context.Context, tc *turn.Context, value any, _ dialog.Locals) error {
			n, _ := value.(int)
			return updateProfile(ctx, tc, func(p *Profile) { p.PartySize = n })
		},
	}
}

// ConfirmStep asks the user to approve the booking.
func ConfirmStep() dialog.Step {
	return dialog.Step{
		ID:  "confirm",
		Key: keyConfirmed,
		Prompt: func(l dialog.Locals) turn.Message {
			n, _ := l.Int(keyPartySize)
			return turn.Message{
				Text:             fmt.Sprintf(ConfirmPrompt, l.String(keyFrom), l.String(keyTo), n),
				SuggestedActions: []string{"yes", "no"},
			}
		},
		Retry: func(dialog.Locals) turn.Message {
			return turn.Message{Text: ConfirmRetry, SuggestedActions: []string{"yes", "no"}}
		},
		Validate: validateYesNo,
	}
}

// SummaryStep confirms the booking from the stored profile and ends the dialog.
func SummaryStep(withCard bool) dialog.Step {
	return dialog.Step{
		ID: "summary",
		Run: func(ctx context.Context, tc *turn.Context, l dialog.Locals) error {
			if confirmed, asked := l.Bool(keyConfirmed); asked && !confirmed {
				tc.SendText(BookingCancelled)
				return nil
			}
			p, err := LoadProfile(ctx, tc)
			if err != nil {
				return err
			}
			tc.SendText(Summary(p))
			tc.SendText(ClosingMessage)
			if withCard {
				card := FlightCard(p)
				tc.Send(turn.Message{Attachment: &card})
			}
			return nil
		},
	}
}

// Summary renders the booking confirmation.
func Summary(p Profile) string {
	return fmt.Sprintf(SummaryTemplate, p.From, p.To, p.PartySize)
}

func validateCity(raw string) (any, error) {
	city := strings.TrimSpace(raw)
	if city == "" {
		return nil, dialog.Invalid("city is empty")
	}
	return city, nil
}

func validatePartySize(raw string) (any, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil, dialog.Invalid("party size is not a number")
	}
	if n <= 0 {
		return nil, dialog.Invalid("party size must be positive")
	}
	return n, nil
}

func validateYesNo(raw string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	default:
		return nil, dialog.Invalid("expected yes or no")
	}
}
