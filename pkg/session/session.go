// Package session holds the per-user dialog snapshot persisted between turns
// and its Redis-backed store.
package session

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// State names the dialog state to resume at. An empty Name means the user has
// no saved position and the dialog starts from its entry state.
type State struct {
	Name string `json:"name,omitempty"`
}

// Session is the persisted per-user snapshot. Everything a dialog keeps
// between turns lives here; state descriptors themselves hold no cross-turn
// data.
type Session struct {
	Address   string         `json:"address"`
	State     State          `json:"state"`
	SessionID string         `json:"session_id,omitempty"`
	InSession bool           `json:"in_session"`
	Lang      string         `json:"lang,omitempty"`
	Answers   *Answers       `json:"answers"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// New creates an empty session for the given user address.
func New(address string) *Session {
	return &Session{
		Address:  address,
		Answers:  NewAnswers(),
		Metadata: make(map[string]any),
	}
}

// RotateID assigns a fresh random session id and marks the session open.
// Called exactly when the engine starts a new user session.
func (s *Session) RotateID() {
	s.SessionID = uuid.NewString()
	s.InSession = true
}

// Close clears the session id and marks the session ended. Called exactly
// when an end state fires.
func (s *Session) Close() {
	s.SessionID = ""
	s.InSession = false
}

// SaveAnswer records the answer for one question, preserving first-write
// order across the session.
func (s *Session) SaveAnswer(question, response string) {
	if s.Answers == nil {
		s.Answers = NewAnswers()
	}
	s.Answers.Set(question, response)
}

// Answer returns the stored answer for a question, if any.
func (s *Session) Answer(question string) (string, bool) {
	if s.Answers == nil {
		return "", false
	}
	return s.Answers.Get(question)
}

// Meta returns a metadata value, or nil when absent.
func (s *Session) Meta(key string) any {
	if s.Metadata == nil {
		return nil
	}
	return s.Metadata[key]
}

// SetMeta stores a scratch metadata value for the dialog.
func (s *Session) SetMeta(key string, value any) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}
	s.Metadata[key] = value
}

// SetLang validates and stores the user's language tag.
func (s *Session) SetLang(tag string) error {
	parsed, err := language.Parse(tag)
	if err != nil {
		return fmt.Errorf("parse language tag %q: %w", tag, err)
	}
	s.Lang = parsed.String()
	return nil
}

// Reset wipes accumulated answers, scratch metadata, and the session id.
// The caller repositions the state afterwards.
func (s *Session) Reset() {
	s.Answers = NewAnswers()
	s.Metadata = make(map[string]any)
	s.SessionID = ""
}
