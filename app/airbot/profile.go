package airbot

import (
	"context"

	"github.com/m3rciful/airbot/core/state"
	"github.com/m3rciful/airbot/core/turn"
)

// User state properties.
const (
	PropWelcome = "welcome"
	PropProfile = "profile"
)

// Welcome tracks whether the first-message greeting was sent to a user.
type Welcome struct {
	DidWelcome bool `json:"did_welcome"`
}

// Profile holds booking details collected from a user.
type Profile struct {
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	PartySize int    `json:"party_size,omitempty"`
}

// LoadProfile reads the user's profile, empty when never set.
func LoadProfile(ctx context.Context, tc *turn.Context) (Profile, error) {
	return state.GetOr(ctx, tc.State, state.ScopeUser, PropProfile, Profile{})
}

// updateProfile applies fn to the stored profile and buffers the result.
func updateProfile(ctx context.Context, tc *turn.Context, fn func(p *Profile)) error {
	p, err := LoadProfile(ctx, tc)
	if err != nil {
		return err
	}
	fn(&p)
	return tc.State.Set(ctx, state.ScopeUser, PropProfile, p)
}
