// Package dialog is the state-machine runtime: a dialog is a registry of
// named state functions, each turn consumes one inbound message, advances at
// most one user-visible step, and accumulates outbound replies and answer
// events. Cross-turn data lives only in the session snapshot.
package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"converse/pkg/codec"
	"converse/pkg/session"
)

// ResetKeyword hard-resets the session before normal handling.
const ResetKeyword = "!reset"

// maxHops bounds same-turn transitions so a mis-wired dialog cannot spin.
const maxHops = 20

// metaResumeState is the session metadata key holding the state a
// re-engagement inbound should resume at.
const metaResumeState = "resume_state"

// StateFunc builds the descriptor for one state, or tail-calls another state
// in the same turn. It may call external collaborators before deciding.
type StateFunc func(ctx context.Context, a *App) (Step, error)

// Step is what a state function produces: either a descriptor to run, or a
// same-turn transition to another state.
type Step struct {
	state *State
	next  string
}

// Show presents a state descriptor for this turn.
func Show(s *State) Step { return Step{state: s} }

// GoTo transitions to another state inside the same turn without consuming a
// new inbound.
func GoTo(name string) Step { return Step{next: name} }

// Dialog is the static definition of one conversation graph.
type Dialog struct {
	Name string

	// StartState is resolved when the session carries no saved state.
	StartState string
	// ErrorState is the end state run after a programming error in a turn.
	ErrorState string
	// TimeoutState receives transport CLOSE events for the farewell turn.
	// When empty, CLOSE events are dropped.
	TimeoutState string

	// Keywords maps cleaned control tokens to target states, consulted
	// before the current state on every turn.
	Keywords map[string]string
	// ResumeKeywords route to the resume state saved in session metadata,
	// enabling "continue where you left off" after a reminder.
	ResumeKeywords []string

	states map[string]StateFunc
}

// New creates an empty dialog definition.
func New(name string) *Dialog {
	return &Dialog{
		Name:     name,
		Keywords: make(map[string]string),
		states:   make(map[string]StateFunc),
	}
}

// Register adds a named state function. The registry is the single source of
// truth for which state names are valid.
func (d *Dialog) Register(name string, fn StateFunc) {
	d.states[name] = fn
}

// Has reports whether a state name is registered.
func (d *Dialog) Has(name string) bool {
	_, ok := d.states[name]
	return ok
}

// keywordTarget consults the control-keyword table for the inbound content.
func (d *Dialog) keywordTarget(content string, sess *session.Session) (string, bool) {
	token := CleanInput(content)
	if token == "" && content == "" {
		return "", false
	}

	for _, kw := range d.ResumeKeywords {
		if token == CleanInput(kw) || content == kw {
			if resume, ok := sess.Meta(metaResumeState).(string); ok && resume != "" {
				return resume, true
			}
		}
	}

	if target, ok := d.Keywords[content]; ok {
		return target, true
	}
	if target, ok := d.Keywords[token]; ok && token != "" {
		return target, true
	}

	return "", false
}

// App is one turn of one dialog bound to a loaded session and an inbound.
type App struct {
	dialog  *Dialog
	session *session.Session
	inbound codec.Inbound
	log     *slog.Logger
	now     func() time.Time

	onStateChange func(from, to string)

	outbound []codec.Outbound
	answers  []codec.AnswerEvent
}

// Option customises an App.
type Option func(*App)

// WithLogger sets the turn logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// WithClock overrides the answer-event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// WithStateChangeHook observes every state.name mutation, for metrics.
func WithStateChangeHook(hook func(from, to string)) Option {
	return func(a *App) { a.onStateChange = hook }
}

// NewApp binds the dialog to a session and inbound for one turn.
func (d *Dialog) NewApp(sess *session.Session, in codec.Inbound, opts ...Option) *App {
	a := &App{
		dialog:  d,
		session: sess,
		inbound: in,
		log:     slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With("dialog", d.Name, "address", sess.Address)
	return a
}

// Session exposes the bound session to state functions.
func (a *App) Session() *session.Session { return a.session }

// Inbound exposes the bound inbound message to state functions.
func (a *App) Inbound() codec.Inbound { return a.inbound }

// Log exposes the turn logger to state functions.
func (a *App) Log() *slog.Logger { return a.log }

// Send enqueues an outbound reply for publication at the end of the turn.
func (a *App) Send(out codec.Outbound) {
	a.outbound = append(a.outbound, out)
}

// SaveAnswer stores an answer on the session and enqueues the matching
// answer event, stamped with the turn's session id.
func (a *App) SaveAnswer(question, response string) {
	a.session.SaveAnswer(question, response)
	a.answers = append(a.answers, codec.AnswerEvent{
		Question:  question,
		Response:  response,
		Address:   a.session.Address,
		SessionID: a.session.SessionID,
		Timestamp: a.now(),
	})
}

// SetResumeState records where a re-engagement inbound should pick up.
func (a *App) SetResumeState(name string) {
	a.session.SetMeta(metaResumeState, name)
}

func (a *App) setState(to string) {
	from := a.session.State.Name
	if from == to {
		return
	}
	a.session.State.Name = to
	if a.onStateChange != nil {
		a.onStateChange(from, to)
	}
}

// Run executes one turn and returns the accumulated outbound replies and
// answer events. Programming errors inside states are contained via the
// dialog's error state; the returned error is reserved for failures of the
// error path itself, which the worker converts into a redelivery.
func (a *App) Run(ctx context.Context) ([]codec.Outbound, []codec.AnswerEvent, error) {
	d := a.dialog
	content := a.inbound.Text()

	if content == ResetKeyword {
		a.session.Reset()
		a.setState(d.StartState)
	}

	if a.inbound.SessionEvent == codec.SessionClose {
		if d.TimeoutState == "" {
			a.log.Debug("Dropping session close: dialog declares no timeout state")
			return nil, nil, nil
		}
		a.setState(d.TimeoutState)
	} else if target, ok := d.keywordTarget(content, a.session); ok {
		a.setState(target)
	}

	name := a.session.State.Name
	if name == "" {
		name = d.StartState
	}

	display := a.inbound.SessionEvent == codec.SessionNew || a.session.SessionID == ""
	if display {
		a.session.RotateID()
	}

	if err := a.loop(ctx, name, display); err != nil {
		a.log.Error("Turn failed, containing via error state", "state", a.session.State.Name, "error", err)
		if ferr := a.failTurn(ctx); ferr != nil {
			return nil, nil, fmt.Errorf("run error state after %q: %w", err, ferr)
		}
	}

	return a.outbound, a.answers, nil
}

// loop is the transition trampoline: resolve the current state function,
// run it, and follow same-turn transitions until a descriptor suspends the
// dialog or an end state finishes it.
func (a *App) loop(ctx context.Context, name string, display bool) error {
	for hops := 0; hops <= maxHops; hops++ {
		fn, ok := a.dialog.states[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownState, name)
		}
		a.setState(name)

		step, err := fn(ctx, a)
		if err != nil {
			return err
		}
		if step.next != "" {
			name = step.next
			display = true
			continue
		}
		if step.state == nil {
			return fmt.Errorf("state %q returned neither a descriptor nor a transition", name)
		}

		if display {
			step.state.display(a)
			return nil
		}

		next, err := step.state.processMessage(a)
		if err != nil {
			return err
		}
		if next == "" {
			return nil
		}
		name = next
		display = true
	}

	return fmt.Errorf("%w: gave up at %q", ErrTooManyHops, name)
}

// failTurn discards the partial turn output and runs the dialog's error
// state so the user gets exactly one apology message and a closed session.
func (a *App) failTurn(ctx context.Context) error {
	d := a.dialog
	if d.ErrorState == "" {
		return fmt.Errorf("%w: dialog %q has no error state", ErrUnknownState, d.Name)
	}

	// Outbounds from the failed turn are discarded; answer events queued
	// before the failure stay, matching the answers already saved on the
	// session snapshot.
	a.outbound = nil
	a.setState(d.ErrorState)

	fn, ok := d.states[d.ErrorState]
	if !ok {
		return fmt.Errorf("%w: error state %q", ErrUnknownState, d.ErrorState)
	}

	step, err := fn(ctx, a)
	if err != nil {
		return err
	}
	if step.state == nil {
		return fmt.Errorf("error state %q must return a descriptor", d.ErrorState)
	}

	if _, err := step.state.processMessage(a); err != nil {
		return err
	}

	// The snapshot records the failure position even though the end state
	// advanced past it; a later keyword or reset moves the user on.
	a.setState(d.ErrorState)
	return nil
}
