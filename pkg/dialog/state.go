package dialog

import (
	"fmt"
	"strconv"
	"strings"

	"converse/pkg/codec"
)

// Kind tags the closed set of state variants.
type Kind int

const (
	// KindChoice is a numbered-option prompt answered with plain text.
	KindChoice Kind = iota
	// KindListChoice renders choices as a WhatsApp list with tolerant
	// matching of truncated labels.
	KindListChoice
	// KindButtonChoice renders choices as reply buttons.
	KindButtonChoice
	// KindFreeText accepts any text, optionally gated by a Check validator.
	KindFreeText
	// KindMenu is a button choice with extra controls, attachments, and
	// pre-messages.
	KindMenu
	// KindEnd emits a final message, ends the session, and advances the
	// saved state to a declared follow-on.
	KindEnd
	// KindCustom is a list choice whose matching can be replaced wholesale.
	KindCustom
)

// truncatedLabelLimit is the transport's list/button label cut-off.
const truncatedLabelLimit = 20

// Choice is one selectable option: Stub is the internal stored value, Label
// the user-visible text, Accepts extra inputs treated as this choice.
type Choice struct {
	Stub    string
	Label   string
	Accepts []string
}

// NextFunc resolves the follow-on state from the chosen value.
type NextFunc func(value string) (string, error)

// State is the per-turn descriptor one state function returns. It holds no
// cross-turn data; anything that must survive the turn goes in the session.
type State struct {
	Kind     Kind
	Question string
	Header   string
	Footer   string
	Choices  []Choice

	// Error is the reprompt shown when input matches no choice.
	Error string
	// Check validates free-text input; a *ValidationError reprompts.
	Check func(input string) error
	// Match, when set on a Custom state, replaces the choice-table lookup.
	Match func(input string) (Choice, bool)

	// Exactly one of Next / NextMap / NextFn resolves the follow-on state.
	// For End states Next is the state to resume at after the session ends.
	Next    string
	NextMap map[string]string
	NextFn  NextFunc

	// OverrideAnswerName replaces the registry name as the answer save key.
	OverrideAnswerName string

	// Buttons are extra controls (e.g. Skip) appended after the choices.
	Buttons []Choice
	// PreMessages are sent as separate outbounds before the prompt.
	PreMessages []string
	Image       string
	Document    string
	// Handoff flags the outbound for host-automation takeover.
	Handoff bool
}

// display renders and enqueues the prompt. End states also end the session
// and advance the saved state to the declared follow-on.
func (s *State) display(a *App) {
	for _, pre := range s.PreMessages {
		a.Send(a.inbound.Reply(pre, true))
	}

	if s.Kind == KindEnd {
		out := a.inbound.Reply(s.render(), false)
		s.decorate(&out)
		a.Send(out)
		a.session.Close()
		a.setState(s.Next)
		return
	}

	out := a.inbound.Reply(s.render(), true)
	s.decorate(&out)
	a.Send(out)
}

// processMessage handles the user's reply. It returns the name of the state
// to continue the turn at, or "" when the turn is finished here (reprompt,
// free-text terminal save, or end state).
func (s *State) processMessage(a *App) (string, error) {
	switch s.Kind {
	case KindEnd:
		// An end state consumes the inbound without reading it.
		s.display(a)
		return "", nil

	case KindFreeText:
		input := strings.TrimSpace(a.inbound.Text())
		if s.Check != nil {
			if err := s.Check(input); err != nil {
				ve, ok := AsValidation(err)
				if !ok {
					return "", err
				}
				a.Send(a.inbound.Reply(ve.Reprompt, true))
				return "", nil
			}
		}
		a.SaveAnswer(s.answerKey(a), input)
		return s.resolveNext(input)

	default:
		choice, ok := s.match(a.inbound.Text())
		if !ok {
			a.Send(a.inbound.Reply(s.errorPrompt(), true))
			return "", nil
		}
		a.SaveAnswer(s.answerKey(a), choice.Stub)
		return s.resolveNext(choice.Stub)
	}
}

func (s *State) answerKey(a *App) string {
	if s.OverrideAnswerName != "" {
		return s.OverrideAnswerName
	}
	return a.session.State.Name
}

// match applies the normative lookup order: stub, case-insensitive label,
// alias, 1-based index, then truncated label on tolerant kinds.
func (s *State) match(input string) (Choice, bool) {
	if s.Kind == KindCustom && s.Match != nil {
		return s.Match(input)
	}

	cleaned := strings.TrimSpace(input)
	if cleaned == "" {
		return Choice{}, false
	}

	options := append(append([]Choice{}, s.Choices...), s.Buttons...)

	for _, c := range options {
		if cleaned == c.Stub {
			return c, true
		}
	}
	for _, c := range options {
		if strings.EqualFold(cleaned, c.Label) {
			return c, true
		}
	}
	for _, c := range options {
		for _, alias := range c.Accepts {
			if strings.EqualFold(cleaned, alias) {
				return c, true
			}
		}
	}
	if n, err := strconv.Atoi(cleaned); err == nil && n >= 1 && n <= len(s.Choices) {
		return s.Choices[n-1], true
	}
	if s.tolerant() {
		for _, c := range options {
			if strings.EqualFold(cleaned, truncate(c.Label, truncatedLabelLimit)) {
				return c, true
			}
		}
	}

	return Choice{}, false
}

func (s *State) tolerant() bool {
	switch s.Kind {
	case KindListChoice, KindButtonChoice, KindMenu, KindCustom:
		return true
	default:
		return false
	}
}

func (s *State) resolveNext(value string) (string, error) {
	switch {
	case s.NextFn != nil:
		return s.NextFn(value)
	case s.NextMap != nil:
		next, ok := s.NextMap[value]
		if !ok {
			return "", fmt.Errorf("no next state mapped for answer %q", value)
		}
		return next, nil
	default:
		return s.Next, nil
	}
}

// render assembles the prompt text: header, question, enumerated choices,
// footer, joined with blank lines. No length fragmentation; the copy is
// trusted to fit transport limits.
func (s *State) render() string {
	parts := make([]string, 0, 4)
	if s.Header != "" {
		parts = append(parts, s.Header)
	}
	if s.Question != "" {
		parts = append(parts, s.Question)
	}
	if len(s.Choices) > 0 && s.Kind != KindEnd {
		lines := make([]string, 0, len(s.Choices))
		for i, c := range s.Choices {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, c.Label))
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}
	if s.Footer != "" {
		parts = append(parts, s.Footer)
	}
	return strings.Join(parts, "\n\n")
}

// errorPrompt is the reprompt for unmatched input; a state without its own
// error copy falls back to re-rendering the prompt.
func (s *State) errorPrompt() string {
	if s.Error == "" {
		return s.render()
	}
	return s.Error
}

// decorate attaches transport rendering hints for the button-capable kinds.
func (s *State) decorate(out *codec.Outbound) {
	helper := codec.HelperMetadata{
		Header:           s.Header,
		Footer:           s.Footer,
		Image:            s.Image,
		Document:         s.Document,
		AutomationHandle: s.Handoff,
	}

	switch s.Kind {
	case KindListChoice, KindButtonChoice, KindMenu, KindCustom:
		for _, c := range s.Choices {
			helper.Buttons = append(helper.Buttons, codec.Button{Value: c.Stub, Label: truncate(c.Label, truncatedLabelLimit)})
		}
		for _, c := range s.Buttons {
			helper.Buttons = append(helper.Buttons, codec.Button{Value: c.Stub, Label: truncate(c.Label, truncatedLabelLimit)})
		}
	}

	if len(helper.Buttons) > 0 || helper.Header != "" || helper.Footer != "" ||
		helper.Image != "" || helper.Document != "" || helper.AutomationHandle {
		out.HelperMetadata = &helper
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
