package airbot

// User-facing text. Channels and tests match these strings exactly.
const (
	WelcomeMessage    = "Welcome to AirBot! I am here to help you plan your trip."
	WhatCanIDoMessage = "Here is what I can do for you. Pick one of the options below."

	FirstWelcomeMessage    = "Hi there, nice to meet you! I am AirBot, your travel assistant."
	FirstWhatCanIDoMessage = "You can ask me to book a flight or to get the weather forecast at any time."

	BookFlightAction = "Book a flight"
	WeatherAction    = "Get the weather forecast"

	FromPrompt      = "Where do you want to start your journey?"
	ToPrompt        = "Where do you want to go to?"
	PartySizePrompt = "How many people?"
	ConfirmPrompt   = "Should I book a flight from %s to %s for %d? (yes/no)"

	ConfirmRetry     = "Please answer yes or no."
	SummaryTemplate  = "I booked your flight %s, going to %s for %d."
	ClosingMessage   = "Thank you for flying with AirBot. Have a nice trip!"
	BookingCancelled = "Okay, I did not book anything."
	DialogCancelled  = "Okay, let's start over."
	NothingToCancel  = "There is nothing to cancel."

	WeatherForecast = "The forecast for tomorrow: sunny with a few clouds and a high of 24°C."

	CardTitle = "Flight booked"
)

// MenuActions are offered as suggested actions after a member joins.
var MenuActions = []string{BookFlightAction, WeatherAction}
