package dialog

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/m3rciful/airbot/core/state"
)

// StateProperty is the conversation state property holding the dialog stack.
const StateProperty = "dialog_state"

// Locals holds values collected by the steps of one dialog run.
// Values round-trip through JSON, so numbers come back as float64.
type Locals map[string]any

// String returns the value under key formatted as a string.
func (l Locals) String(key string) string {
	switch v := l[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		data, _ := json.Marshal(v)
		return string(data)
	}
}

// Int returns the value under key as an int.
func (l Locals) Int(key string) (int, bool) {
	switch v := l[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

// Bool returns the value under key as a bool.
func (l Locals) Bool(key string) (bool, bool) {
	v, ok := l[key].(bool)
	return v, ok
}

// Frame is the persisted position of a running dialog.
type Frame struct {
	DialogID     string    `json:"dialog_id"`
	StepIndex    int       `json:"step_index"`
	Locals       Locals    `json:"locals"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Stack is the value stored under StateProperty.
type Stack struct {
	Frames []Frame `json:"stack"`
}

// Top returns the active frame.
func (s Stack) Top() (Frame, bool) {
	if len(s.Frames) == 0 {
		return Frame{}, false
	}
	return s.Frames[len(s.Frames)-1], true
}

// LoadStack reads the dialog stack from conversation state.
func LoadStack(ctx context.Context, tr *state.Turn) (Stack, error) {
	st, err := state.GetOr(ctx, tr, state.ScopeConversation, StateProperty, Stack{})
	if err != nil {
		return Stack{}, err
	}
	for i := range st.Frames {
		if st.Frames[i].Locals == nil {
			st.Frames[i].Locals = Locals{}
		}
	}
	return st, nil
}

func saveStack(ctx context.Context, tr *state.Turn, st Stack) error {
	if st.Frames == nil {
		st.Frames = []Frame{}
	}
	return tr.Set(ctx, state.ScopeConversation, StateProperty, st)
}

// Expire pops the active frame when its last activity is before cutoff.
// It returns the removed frame. Nothing is flushed.
func Expire(ctx context.Context, tr *state.Turn, cutoff time.Time) (Frame, bool, error) {
	st, err := LoadStack(ctx, tr)
	if err != nil {
		return Frame{}, false, err
	}
	top, ok := st.Top()
	if !ok || !top.LastActivity.Before(cutoff) {
		return Frame{}, false, nil
	}
	st.Frames = st.Frames[:len(st.Frames)-1]
	if err := saveStack(ctx, tr, st); err != nil {
		return Frame{}, false, err
	}
	return top, true, nil
}
