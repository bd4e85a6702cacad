package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/airbot/core/logger"
	"github.com/m3rciful/airbot/core/turn"
)

// Status is the outcome of driving a dialog.
type Status int

const (
	// StatusWaiting means a prompt was sent and the dialog awaits the next message.
	StatusWaiting Status = iota
	// StatusAdvance means an action step ran and the dialog moved to the next step.
	StatusAdvance
	// StatusComplete means the dialog ran past its last step and its frame was popped.
	StatusComplete
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusAdvance:
		return "advance"
	case StatusComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Result describes where a dialog stopped after Start or Continue.
type Result struct {
	Status    Status
	DialogID  string
	StepIndex int
	// Prompt is the message sent when Status is StatusWaiting.
	Prompt *turn.Message
}

// Engine drives registered dialogs for one conversation at a time.
// Callers serialize turns of the same conversation.
type Engine struct {
	dialogs *Set
	now     func() time.Time
}

// NewEngine builds an engine over the dialogs registered in set.
func NewEngine(set *Set) *Engine {
	return &Engine{dialogs: set, now: time.Now}
}

// Dialogs exposes the registry.
func (e *Engine) Dialogs() *Set {
	return e.dialogs
}

// Active returns the frame of the running dialog, if any.
func (e *Engine) Active(ctx context.Context, tc *turn.Context) (Frame, bool, error) {
	st, err := LoadStack(ctx, tc.State)
	if err != nil {
		return Frame{}, false, err
	}
	f, ok := st.Top()
	return f, ok, nil
}

// Start begins dialogID and runs it until the first prompt or completion.
// It fails with ErrAlreadyActive, leaving the existing frame untouched, when a dialog is running.
func (e *Engine) Start(ctx context.Context, tc *turn.Context, dialogID string) (Result, error) {
	st, err := LoadStack(ctx, tc.State)
	if err != nil {
		return Result{}, err
	}
	if top, ok := st.Top(); ok {
		return Result{}, fmt.Errorf("%w: %s at step %d", ErrAlreadyActive, top.DialogID, top.StepIndex)
	}
	d, ok := e.dialogs.Get(dialogID)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownDialog, dialogID)
	}

	now := e.now()
	frame := Frame{
		DialogID:     dialogID,
		Locals:       Locals{},
		StartedAt:    now,
		LastActivity: now,
	}
	logger.Info(ctx, "dialog", "dialog.start",
		slog.String("dialog_id", dialogID),
		slog.Int("count", len(d.Steps)),
	)
	return e.run(ctx, tc, d, frame)
}

// Continue feeds text to the step awaiting input.
// Invalid input re-sends the step prompt and keeps the step index.
func (e *Engine) Continue(ctx context.Context, tc *turn.Context, text string) (Result, error) {
	st, err := LoadStack(ctx, tc.State)
	if err != nil {
		return Result{}, err
	}
	frame, ok := st.Top()
	if !ok {
		return Result{}, ErrNoActiveDialog
	}
	d, ok := e.dialogs.Get(frame.DialogID)
	if !ok {
		// frame left over from a dialog that is no longer registered
		if err := saveStack(ctx, tc.State, Stack{}); err != nil {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownDialog, frame.DialogID)
	}
	if frame.StepIndex >= len(d.Steps) {
		return e.complete(ctx, tc, frame)
	}

	step := d.Steps[frame.StepIndex]
	if step.IsAction() {
		return e.run(ctx, tc, d, frame)
	}

	value, err := validate(step, text)
	if err != nil {
		var ve *ValidationError
		if !errors.As(err, &ve) {
			return Result{}, fmt.Errorf("dialog %s: validate step %s: %w", d.ID, step.ID, err)
		}
		msg := step.retryMessage(frame.Locals)
		tc.Send(msg)
		frame.LastActivity = e.now()
		if err := saveStack(ctx, tc.State, Stack{Frames: []Frame{frame}}); err != nil {
			return Result{}, err
		}
		logger.Debug(ctx, "dialog", "dialog.retry",
			slog.String("dialog_id", d.ID),
			slog.String("step", step.ID),
			slog.Int("step_index", frame.StepIndex),
			slog.String("cause", ve.Reason),
		)
		return Result{Status: StatusWaiting, DialogID: d.ID, StepIndex: frame.StepIndex, Prompt: &msg}, nil
	}

	if step.Commit != nil {
		if err := step.Commit(ctx, tc, value, frame.Locals); err != nil {
			return Result{}, fmt.Errorf("dialog %s: commit step %s: %w", d.ID, step.ID, err)
		}
	}
	if step.Key != "" {
		frame.Locals[step.Key] = value
	}
	frame.StepIndex++
	frame.LastActivity = e.now()
	return e.run(ctx, tc, d, frame)
}

// Cancel pops the running dialog. It reports whether a frame was removed.
func (e *Engine) Cancel(ctx context.Context, tc *turn.Context) (bool, error) {
	st, err := LoadStack(ctx, tc.State)
	if err != nil {
		return false, err
	}
	top, ok := st.Top()
	if !ok {
		return false, nil
	}
	if err := saveStack(ctx, tc.State, Stack{}); err != nil {
		return false, err
	}
	logger.Info(ctx, "dialog", "dialog.cancel",
		slog.String("dialog_id", top.DialogID),
		slog.Int("step_index", top.StepIndex),
	)
	return true, nil
}

// run executes steps from frame.StepIndex until a prompt is sent or the dialog ends.
func (e *Engine) run(ctx context.Context, tc *turn.Context, d Dialog, frame Frame) (Result, error) {
	for frame.StepIndex < len(d.Steps) {
		step := d.Steps[frame.StepIndex]

		if !step.IsAction() {
			msg := step.Prompt(frame.Locals)
			tc.Send(msg)
			if err := saveStack(ctx, tc.State, Stack{Frames: []Frame{frame}}); err != nil {
				return Result{}, err
			}
			logger.Debug(ctx, "dialog", "dialog.step",
				slog.String("dialog_id", d.ID),
				slog.String("step", step.ID),
				slog.Int("step_index", frame.StepIndex),
				slog.String("turn_status", StatusWaiting.String()),
			)
			return Result{Status: StatusWaiting, DialogID: d.ID, StepIndex: frame.StepIndex, Prompt: &msg}, nil
		}

		if err := step.Run(ctx, tc, frame.Locals); err != nil {
			// a failed action leaves the conversation idle rather than stuck on a step it cannot pass
			if saveErr := saveStack(ctx, tc.State, Stack{}); saveErr != nil {
				err = errors.Join(err, saveErr)
			}
			return Result{}, fmt.Errorf("dialog %s: run step %s: %w", d.ID, step.ID, err)
		}
		logger.Debug(ctx, "dialog", "dialog.step",
			slog.String("dialog_id", d.ID),
			slog.String("step", step.ID),
			slog.Int("step_index", frame.StepIndex),
			slog.String("turn_status", StatusAdvance.String()),
		)
		frame.StepIndex++
	}
	return e.complete(ctx, tc, frame)
}

func (e *Engine) complete(ctx context.Context, tc *turn.Context, frame Frame) (Result, error) {
	if err := saveStack(ctx, tc.State, Stack{}); err != nil {
		return Result{}, err
	}
	logger.Info(ctx, "dialog", "dialog.complete",
		slog.String("dialog_id", frame.DialogID),
		slog.String("turn_status", StatusComplete.String()),
		slog.Duration("duration", logger.RoundMS(e.now().Sub(frame.StartedAt))),
	)
	return Result{Status: StatusComplete, DialogID: frame.DialogID, StepIndex: frame.StepIndex}, nil
}

func validate(step Step, text string) (any, error) {
	if step.Validate == nil {
		return text, nil
	}
	value, err := step.Validate(text)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) && ve.Step == "" {
			ve.Step = step.ID
		}
		return nil, err
	}
	return value, nil
}
