// Package dialogtest provides a small fixture dialog exercising every state
// kind, for use by the runtime and worker tests.
package dialogtest

import (
	"context"
	"strconv"

	"converse/pkg/dialog"
)

// State names used by the fixture dialog.
const (
	StateStart    = "state_start"
	StateAge      = "state_age"
	StateProvince = "state_province"
	StateInfo     = "state_info"
	StateContact  = "state_contact"
	StateEnd      = "state_end"
	StateError    = "state_error"
	StateTimeout  = "state_timeout"
	StateExit     = "state_exit"
	StateStop     = "state_stop"
)

// LongProvinceLabel exceeds the 20-character transport cut-off on purpose.
const LongProvinceLabel = "KwaZulu-Natal Midlands Region"

// Fixture wires the injectable collaborator used by the preflight state.
type Fixture struct {
	// Lookup stands in for an external HTTP collaborator call made by
	// StateContact before it advances. Nil means success.
	Lookup func(ctx context.Context) error
}

// New builds the fixture dialog.
func New(f Fixture) *dialog.Dialog {
	d := dialog.New("wellness")
	d.StartState = StateStart
	d.ErrorState = StateError
	d.TimeoutState = StateTimeout
	d.Keywords = map[string]string{
		"menu":      StateExit,
		"0":         StateExit,
		"main menu": StateExit,
		"stop":      StateStop,
	}
	d.ResumeKeywords = []string{"continue"}

	d.Register(StateStart, func(ctx context.Context, a *dialog.App) (dialog.Step, error) {
		return dialog.Show(&dialog.State{
			Kind:     dialog.KindButtonChoice,
			Question: "Welcome to the wellness check.\nDo you want to continue?",
			Choices: []dialog.Choice{
				{Stub: "yes", Label: "Yes"},
				{Stub: "no", Label: "No"},
			},
			Error: "Please reply yes or no.",
			NextMap: map[string]string{
				"yes": StateAge,
				"no":  StateEnd,
			},
		}), nil
	})

	d.Register(StateAge, func(ctx context.Context, a *dialog.App) (dialog.Step, error) {
		return dialog.Show(&dialog.State{
			Kind:     dialog.KindFreeText,
			Question: "How old are you?",
			Check: func(input string) error {
				n, err := strconv.Atoi(input)
				if err != nil || n < 1 || n > 120 {
					return dialog.Validationf("Please reply with your age in years, e.g. 35.")
				}
				return nil
			},
			Next: StateProvince,
		}), nil
	})

	d.Register(StateProvince, func(ctx context.Context, a *dialog.App) (dialog.Step, error) {
		return dialog.Show(&dialog.State{
			Kind:     dialog.KindListChoice,
			Question: "Which province do you live in?",
			Choices: []dialog.Choice{
				{Stub: "wc", Label: "Western Cape"},
				{Stub: "ec", Label: "Eastern Cape"},
				{Stub: "kzn", Label: LongProvinceLabel},
			},
			Error: "Please choose a province from the list.",
			Next:  StateInfo,
		}), nil
	})

	d.Register(StateInfo, func(ctx context.Context, a *dialog.App) (dialog.Step, error) {
		a.Send(a.Inbound().Reply("Great, almost done.", true))
		return dialog.GoTo(StateContact), nil
	})

	d.Register(StateContact, func(ctx context.Context, a *dialog.App) (dialog.Step, error) {
		if f.Lookup != nil {
			if err := f.Lookup(ctx); err != nil {
				return dialog.Step{}, err
			}
		}
		return dialog.GoTo(StateEnd), nil
	})

	d.Register(StateEnd, func(ctx context.Context, a *dialog.App) (dialog.Step, error) {
		return dialog.Show(&dialog.State{
			Kind:     dialog.KindEnd,
			Question: "Thank you, you are all set.",
		}), nil
	})

	d.Register(StateError, func(ctx context.Context, a *dialog.App) (dialog.Step, error) {
		return dialog.Show(&dialog.State{
			Kind:     dialog.KindEnd,
			Question: "Something went wrong, please try again later.",
		}), nil
	})

	d.Register(StateTimeout, func(ctx context.Context, a *dialog.App) (dialog.Step, error) {
		return dialog.Show(&dialog.State{
			Kind:     dialog.KindEnd,
			Question: "We have not heard from you in a while. Goodbye.",
		}), nil
	})

	d.Register(StateExit, func(ctx context.Context, a *dialog.App) (dialog.Step, error) {
		return dialog.Show(&dialog.State{
			Kind:     dialog.KindEnd,
			Question: "Taking you back to the main menu.",
			Handoff:  true,
		}), nil
	})

	d.Register(StateStop, func(ctx context.Context, a *dialog.App) (dialog.Step, error) {
		return dialog.Show(&dialog.State{
			Kind:     dialog.KindEnd,
			Question: "You will not receive any more messages from us.",
		}), nil
	})

	return d
}
