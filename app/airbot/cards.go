package airbot

import (
	"fmt"

	"github.com/m3rciful/airbot/core/turn"
)

// FlightCard builds the attachment sent with the booking summary.
func FlightCard(p Profile) turn.Card {
	travellers := "traveller"
	if p.PartySize != 1 {
		travellers = "travellers"
	}
	return turn.Card{
		Title:    CardTitle,
		Subtitle: fmt.Sprintf("%s → %s", p.From, p.To),
		Text:     fmt.Sprintf("%d %s", p.PartySize, travellers),
		Buttons:  []string{BookFlightAction, WeatherAction},
	}
}
