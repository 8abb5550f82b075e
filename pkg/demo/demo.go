// Package demo ships a small registration dialog. It doubles as the default
// content for the worker binary and as a reference for dialog authors.
package demo

import (
	"context"
	"strconv"
	"strings"
	"time"

	"converse/pkg/clients"
	"converse/pkg/dialog"
)

// Survey is the event-store collection registrations are submitted to.
const Survey = "registration"

// reminderField is the contact field carrying the re-engagement timestamp.
const reminderField = "registration_reminder_at"

// infoTag selects the content-repository page shown by the info branch.
const infoTag = "registration_info"

// State names of the registration dialog.
const (
	StateStart    = "state_start"
	StateAlready  = "state_already"
	StateWelcome  = "state_welcome"
	StateInfo     = "state_info"
	StateName     = "state_name"
	StateAge      = "state_age"
	StateLanguage = "state_language"
	StateSubmit   = "state_submit"
	StateDone     = "state_done"
	StateDecline  = "state_decline"
	StateError    = "state_error"
	StateTimeout  = "state_timeout"
	StateExit     = "state_exit"
	StateStop     = "state_stop"
)

// Deps are the external collaborators the dialog calls. Nil fields disable
// the corresponding call, which keeps the dialog runnable without backends.
type Deps struct {
	Contacts    *clients.Contacts
	EventStore  *clients.EventStore
	ContentRepo *clients.ContentRepo
}

// New builds the registration dialog.
func New(deps Deps) *dialog.Dialog {
	d := dialog.New("registration")
	d.StartState = StateStart
	d.ErrorState = StateError
	d.TimeoutState = StateTimeout
	d.Keywords = map[string]string{
		"menu":      StateExit,
		"0":         StateExit,
		"main menu": StateExit,
		"help":      StateExit,
		"#":         StateExit,
		"stop":      StateStop,
	}
	d.ResumeKeywords = []string{"continue"}

	reminders := dialog.NewReminders(deps.Contacts)

	d.Register(StateStart, func(ctx context.Context, a *dialog.App) (dialog.Step, error) {
		if deps.EventStore != nil {
			done, err := deps.EventStore.Completed(ctx, Survey, a.Session().Address)
			if err != nil {
				return dialog.Step{}, err
			}
			if done {
				return dialog.GoTo(StateAlready), nil
			}
		}
		return dialog.GoTo(StateWelcome), nil
	})

	d.Register(StateAlready, func(ctx context.Context, a *dialog.App) (dialog.Step, error) {
		return dialog.Show(&dialog.State{
			Kind:     dialog.KindEnd,
			Question: "You have already registered. We will be in touch.",
		}), nil
	})

	d.Register(StateWelcome, func(ctx context.Context, a *dialog.App) (dialog.Step, error) {
		return dialog.Show(&dialog.State{
			Kind:     dialog.KindButtonChoice,
			Header:   "Registration",
			Question: "Welcome! Would you like to register?",
			Choices: []dialog.Choice{
				{Stub: "yes", Label: "Yes, register me"},
				{Stub: "info", Label: "Tell me more"},
				{Stub: "later", Label: "Remind me tomorrow"},
			},
			Error: "Please choose one of the options below.",
			NextMap: map[string]string{
				"yes":   StateName,
				"info":  StateInfo,
				"later": StateDecline,
			},
		}), nil
	})

	d.Register(StateInfo, func(ctx context.Context, a *dialog.App) (dialog.Step, error) {
		body := "We use your answers to send you health updates made for you. You can opt out at any time by replying STOP."
		if deps.ContentRepo != nil {
			pages, err := deps.ContentRepo.PagesByTag(ctx, infoTag)
			if err != nil {
				return dialog.Step{}, err
			}
			if len(pages) > 0 {
				page, err := deps.ContentRepo.Page(ctx, pages[0].ID, 1)
				if err != nil {
					return dialog.Step{}, err
				}
				body = page.Body
			}
		}
		a.Send(a.Inbound().Reply(body, true))
		return dialog.GoTo(StateWelcome), nil
	})

	d.Register(StateName, func(ctx context.Context, a *dialog.App) (dialog.Step, error) {
		return dialog.Show(&dialog.State{
			Kind:     dialog.KindFreeText,
			Question: "What should we call you?",
			Check: func(input string) error {
				if len(strings.TrimSpace(input)) < 2 {
					return dialog.Validationf("Please reply with your name.")
				}
				return nil
			},
			Next: StateAge,
		}), nil
	})

	d.Register(StateAge, func(ctx context.Context, a *dialog.App) (dialog.Step, error) {
		return dialog.Show(&dialog.State{
			Kind:     dialog.KindFreeText,
			Question: "How old are you?",
			Check: func(input string) error {
				n, err := strconv.Atoi(strings.TrimSpace(input))
				if err != nil || n < 16 || n > 120 {
					return dialog.Validationf("Please reply with your age in years. You must be 16 or older to register.")
				}
				return nil
			},
			Next: StateLanguage,
		}), nil
	})

	d.Register(StateLanguage, func(ctx context.Context, a *dialog.App) (dialog.Step, error) {
		return dialog.Show(&dialog.State{
			Kind:     dialog.KindListChoice,
			Question: "Which language should we message you in?",
			Choices: []dialog.Choice{
				{Stub: "en", Label: "English"},
				{Stub: "af", Label: "Afrikaans"},
				{Stub: "zu", Label: "isiZulu"},
			},
			Error: "Please pick a language from the list.",
			Next:  StateSubmit,
		}), nil
	})

	d.Register(StateSubmit, func(ctx context.Context, a *dialog.App) (dialog.Step, error) {
		sess := a.Session()

		if lang, ok := sess.Answer(StateLanguage); ok {
			if err := sess.SetLang(lang); err != nil {
				return dialog.Step{}, err
			}
		}

		if deps.EventStore != nil {
			name, _ := sess.Answer(StateName)
			age, _ := sess.Answer(StateAge)
			payload := map[string]any{
				"address":  sess.Address,
				"name":     name,
				"age":      age,
				"language": sess.Lang,
			}
			if err := deps.EventStore.Submit(ctx, Survey, payload); err != nil {
				return dialog.Step{}, err
			}
		}

		if deps.Contacts != nil {
			fields := map[string]any{"registered": true, reminderField: ""}
			if err := deps.Contacts.UpdateContact(ctx, sess.Address, fields); err != nil {
				return dialog.Step{}, err
			}
		}

		return dialog.GoTo(StateDone), nil
	})

	d.Register(StateDone, func(ctx context.Context, a *dialog.App) (dialog.Step, error) {
		return dialog.Show(&dialog.State{
			Kind:     dialog.KindEnd,
			Question: "All done, thank you! We will send your first update soon.",
		}), nil
	})

	d.Register(StateDecline, func(ctx context.Context, a *dialog.App) (dialog.Step, error) {
		if deps.Contacts != nil {
			at := time.Now().UTC().Add(24 * time.Hour)
			if err := reminders.Schedule(ctx, a.Session().Address, reminderField, at); err != nil {
				return dialog.Step{}, err
			}
		}
		a.SetResumeState(StateWelcome)

		return dialog.Show(&dialog.State{
			Kind:     dialog.KindEnd,
			Question: "No problem, we will check in with you tomorrow. Reply CONTINUE at any time to pick up where you left off.",
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
			Question: "We have not heard from you in a while, so we are closing this chat. Send any message to start again.",
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
		if deps.Contacts != nil {
			fields := map[string]any{"opted_out": true}
			if err := deps.Contacts.UpdateContact(ctx, a.Session().Address, fields); err != nil {
				return dialog.Step{}, err
			}
		}
		return dialog.Show(&dialog.State{
			Kind:     dialog.KindEnd,
			Question: "You are opted out and will not receive any more messages from us.",
		}), nil
	})

	return d
}
