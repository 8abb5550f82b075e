// Package codec parses and serialises the broker wire format: user inbounds,
// outbound replies, answer events, and transport lifecycle events, all JSON.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TransportType identifies the user-facing channel an inbound arrived on.
type TransportType string

const (
	TransportUSSD    TransportType = "ussd"
	TransportHTTPAPI TransportType = "http_api"
	TransportSMS     TransportType = "sms"
)

// SessionEvent carries the transport's view of the user session lifecycle.
type SessionEvent string

const (
	SessionNew    SessionEvent = "new"
	SessionResume SessionEvent = "resume"
	SessionClose  SessionEvent = "close"
	SessionNone   SessionEvent = "none"
)

// ErrMalformed marks a delivery that must be rejected without requeue.
var ErrMalformed = errors.New("malformed broker message")

// Inbound is one user message as delivered by the transport. Immutable.
type Inbound struct {
	ToAddr            string         `json:"to_addr"`
	FromAddr          string         `json:"from_addr"`
	Content           *string        `json:"content"`
	TransportName     string         `json:"transport_name"`
	TransportType     TransportType  `json:"transport_type"`
	SessionEvent      SessionEvent   `json:"session_event"`
	MessageID         string         `json:"message_id"`
	Timestamp         string         `json:"timestamp,omitempty"`
	TransportMetadata map[string]any `json:"transport_metadata,omitempty"`
}

// Text returns the message content, or the empty string when content is null.
func (m Inbound) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// Reply builds an outbound addressed back to the sender of m.
func (m Inbound) Reply(content string, continueSession bool) Outbound {
	return Outbound{
		ToAddr:          m.FromAddr,
		FromAddr:        m.ToAddr,
		Content:         content,
		ContinueSession: continueSession,
	}
}

// Button is one quick-reply option attached to an outbound.
type Button struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// HelperMetadata carries transport rendering hints for one outbound.
type HelperMetadata struct {
	Image            string   `json:"image,omitempty"`
	Document         string   `json:"document,omitempty"`
	Buttons          []Button `json:"buttons,omitempty"`
	Header           string   `json:"header,omitempty"`
	Footer           string   `json:"footer,omitempty"`
	AutomationHandle bool     `json:"automation_handle,omitempty"`
}

// Outbound is one reply to be published for delivery to the user. A false
// ContinueSession hints the transport to close the user-facing session.
type Outbound struct {
	ToAddr          string          `json:"to_addr"`
	FromAddr        string          `json:"from_addr"`
	Content         string          `json:"content"`
	ContinueSession bool            `json:"continue_session"`
	HelperMetadata  *HelperMetadata `json:"helper_metadata,omitempty"`
}

// AnswerEvent records that a user answered one dialog question. Published on
// the answer side channel for analytics.
type AnswerEvent struct {
	Question  string    `json:"question"`
	Response  string    `json:"response"`
	Address   string    `json:"address"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// TransportEvent is a delivery/ack notification from the transport. The core
// logs these without routing on them, so only identifying fields are typed.
type TransportEvent struct {
	EventType     string `json:"event_type"`
	UserMessageID string `json:"user_message_id,omitempty"`
	SentMessageID string `json:"sent_message_id,omitempty"`
	TransportName string `json:"transport_name,omitempty"`

	// Raw preserves the full decoded body for logging.
	Raw map[string]any `json:"-"`
}

// DecodeInbound parses one delivery from the inbound queue. Any failure wraps
// ErrMalformed so the caller can reject the delivery without requeue.
func DecodeInbound(body []byte) (Inbound, error) {
	var m Inbound
	if err := json.Unmarshal(body, &m); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if m.FromAddr == "" {
		return Inbound{}, fmt.Errorf("%w: missing from_addr", ErrMalformed)
	}
	if m.MessageID == "" {
		return Inbound{}, fmt.Errorf("%w: missing message_id", ErrMalformed)
	}

	switch m.SessionEvent {
	case SessionNew, SessionResume, SessionClose, SessionNone:
	case "":
		m.SessionEvent = SessionNone
	default:
		return Inbound{}, fmt.Errorf("%w: unknown session_event %q", ErrMalformed, m.SessionEvent)
	}

	switch m.TransportType {
	case TransportUSSD, TransportHTTPAPI, TransportSMS, "":
	default:
		return Inbound{}, fmt.Errorf("%w: unknown transport_type %q", ErrMalformed, m.TransportType)
	}

	return m, nil
}

// DecodeTransportEvent parses one delivery from the event queue. Only
// byte-level garbage is malformed: any valid JSON value decodes, with the
// typed fields filled on a best-effort basis and Raw preserving the body.
func DecodeTransportEvent(body []byte) (TransportEvent, error) {
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return TransportEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var ev TransportEvent
	raw, ok := value.(map[string]any)
	if !ok {
		raw = map[string]any{"body": value}
	} else if err := json.Unmarshal(body, &ev); err != nil {
		// Mistyped fields still log as an event; Raw carries the body.
		ev = TransportEvent{}
	}
	ev.Raw = raw

	return ev, nil
}

// EncodeOutbound serialises an outbound reply for publication.
func EncodeOutbound(m Outbound) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode outbound: %w", err)
	}
	return body, nil
}

// EncodeAnswer serialises an answer event for publication.
func EncodeAnswer(ev AnswerEvent) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode answer event: %w", err)
	}
	return body, nil
}
