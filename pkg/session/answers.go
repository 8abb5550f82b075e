package session

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Answers is an insertion-ordered map from question name to stored response.
// Order is irrelevant for correctness but preserved across the JSON round
// trip so operators can read snapshots in conversation order.
type Answers struct {
	keys   []string
	values map[string]string
}

// NewAnswers returns an empty answer map.
func NewAnswers() *Answers {
	return &Answers{values: make(map[string]string)}
}

// Set stores the response for a question. A repeated question keeps its
// original position.
func (a *Answers) Set(question, response string) {
	if _, seen := a.values[question]; !seen {
		a.keys = append(a.keys, question)
	}
	a.values[question] = response
}

// Get returns the stored response for a question.
func (a *Answers) Get(question string) (string, bool) {
	v, ok := a.values[question]
	return v, ok
}

// Len reports the number of answered questions.
func (a *Answers) Len() int {
	return len(a.keys)
}

// Keys returns the question names in first-write order.
func (a *Answers) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Map returns a plain copy of the answers.
func (a *Answers) Map() map[string]string {
	out := make(map[string]string, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}

// MarshalJSON emits a JSON object with keys in insertion order.
func (a *Answers) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range a.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(a.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping the key order it appears in.
func (a *Answers) UnmarshalJSON(data []byte) error {
	a.keys = nil
	a.values = make(map[string]string)

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("answers: expected object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("answers: expected string key, got %v", keyTok)
		}

		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("answers: value for %q: %w", key, err)
		}
		a.Set(key, value)
	}

	_, err = dec.Token() // closing brace
	return err
}
