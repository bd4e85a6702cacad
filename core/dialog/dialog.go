// Package dialog runs ordered, multi-turn dialogs on top of conversation state.
//
// A Dialog is a fixed sequence of steps. Prompt steps ask the user for input
// and suspend the dialog until the next message; action steps run and advance
// immediately. The engine keeps at most one frame per conversation in the
// conversation-scoped "dialog_state" property.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/airbot/core/turn"
)

// Step is one unit of a dialog. Exactly one of Prompt or Run must be set.
type Step struct {
	// ID names the step in logs and validation errors.
	ID string
	// Key is the locals entry that receives the validated value. Optional.
	Key string

	// Prompt builds the question shown when the step is entered.
	Prompt func(locals Locals) turn.Message
	// Retry builds the message shown after invalid input; Prompt is reused when nil.
	Retry func(locals Locals) turn.Message
	// Validate converts raw user text to a value. Nil accepts the text as is.
	Validate func(raw string) (any, error)
	// Commit persists the validated value outside the dialog frame, e.g. into user state.
	Commit func(ctx context.Context, tc *turn.Context, value any, locals Locals) error

	// Run executes an action step.
	Run func(ctx context.Context, tc *turn.Context, locals Locals) error
}

// IsAction reports whether the step runs without waiting for input.
func (s Step) IsAction() bool {
	return s.Prompt == nil
}

func (s Step) retryMessage(locals Locals) turn.Message {
	if s.Retry != nil {
		return s.Retry(locals)
	}
	return s.Prompt(locals)
}

// Dialog is an ordered list of steps identified by ID.
type Dialog struct {
	ID    string
	Steps []Step
}

func (d Dialog) validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return errors.New("dialog: empty dialog id")
	}
	for i, s := range d.Steps {
		if (s.Prompt == nil) == (s.Run == nil) {
			return fmt.Errorf("dialog %s: step %d (%s) must set exactly one of Prompt or Run", d.ID, i, s.ID)
		}
	}
	return nil
}

// Set is a registry of dialogs. Registered dialogs are immutable.
type Set struct {
	mu      sync.RWMutex
	dialogs map[string]Dialog
}

// NewSet returns an empty registry.
func NewSet() *Set {
	return &Set{dialogs: make(map[string]Dialog)}
}

// Add registers d. Adding an id twice fails with ErrDuplicateDialog.
func (s *Set) Add(d Dialog) error {
	if err := d.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.dialogs[d.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateDialog, d.ID)
	}
	steps := make([]Step, len(d.Steps))
	copy(steps, d.Steps)
	s.dialogs[d.ID] = Dialog{ID: d.ID, Steps: steps}
	return nil
}

// Get looks up a dialog by id.
func (s *Set) Get(id string) (Dialog, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dialogs[id]
	return d, ok
}

// IDs lists registered dialog ids in sorted order.
func (s *Set) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.dialogs))
}
