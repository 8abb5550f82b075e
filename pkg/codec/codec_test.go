package codec

import (
	"encoding/json"
	"errors"
	"testing"
)

func strptr(s string) *string { return &s }

func TestDecodeInbound(t *testing.T) {
	body := []byte(`{
		"to_addr": "27820001002",
		"from_addr": "27820001003",
		"content": "hi",
		"transport_name": "whatsapp",
		"transport_type": "ussd",
		"session_event": "new",
		"message_id": "msg-1",
		"transport_metadata": {"locale": "en"}
	}`)

	m, err := DecodeInbound(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.FromAddr != "27820001003" {
		t.Fatalf("from_addr = %q", m.FromAddr)
	}
	if m.Text() != "hi" {
		t.Fatalf("content = %q", m.Text())
	}
	if m.SessionEvent != SessionNew {
		t.Fatalf("session_event = %q", m.SessionEvent)
	}
	if m.TransportMetadata["locale"] != "en" {
		t.Fatalf("transport_metadata = %v", m.TransportMetadata)
	}
}

func TestDecodeInboundNullContent(t *testing.T) {
	body := []byte(`{"from_addr":"27820001003","message_id":"m1","content":null}`)

	m, err := DecodeInbound(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Content != nil {
		t.Fatalf("content = %v, want nil", m.Content)
	}
	if m.Text() != "" {
		t.Fatalf("text = %q, want empty", m.Text())
	}
	if m.SessionEvent != SessionNone {
		t.Fatalf("session_event defaulted to %q, want none", m.SessionEvent)
	}
}

func TestDecodeInboundMalformed(t *testing.T) {
	cases := map[string][]byte{
		"bad bytes":          []byte("\xff\xfe not json"),
		"bad json":           []byte(`{"from_addr":`),
		"missing from_addr":  []byte(`{"message_id":"m1"}`),
		"missing message_id": []byte(`{"from_addr":"27820001003"}`),
		"wrong type":         []byte(`{"from_addr":42,"message_id":"m1"}`),
		"bad session_event":  []byte(`{"from_addr":"a","message_id":"m1","session_event":"paused"}`),
		"bad transport_type": []byte(`{"from_addr":"a","message_id":"m1","transport_type":"carrier_pigeon"}`),
	}

	for name, body := range cases {
		if _, err := DecodeInbound(body); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: err = %v, want ErrMalformed", name, err)
		}
	}
}

func TestReplySwapsAddresses(t *testing.T) {
	in := Inbound{ToAddr: "line", FromAddr: "user", Content: strptr("hi")}

	out := in.Reply("hello", true)
	if out.ToAddr != "user" || out.FromAddr != "line" {
		t.Fatalf("reply addressed %q -> %q", out.FromAddr, out.ToAddr)
	}
	if !out.ContinueSession {
		t.Fatal("expected continue_session")
	}
}

func TestEncodeOutboundHelperMetadata(t *testing.T) {
	out := Outbound{
		ToAddr:          "user",
		FromAddr:        "line",
		Content:         "pick one",
		ContinueSession: true,
		HelperMetadata: &HelperMetadata{
			Buttons: []Button{{Value: "yes", Label: "Yes"}},
			Header:  "Survey",
		},
	}

	body, err := EncodeOutbound(out)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	helper, ok := decoded["helper_metadata"].(map[string]any)
	if !ok {
		t.Fatalf("helper_metadata missing: %v", decoded)
	}
	if helper["header"] != "Survey" {
		t.Fatalf("header = %v", helper["header"])
	}
	if _, present := decoded["continue_session"]; !present {
		t.Fatal("continue_session must always be emitted")
	}
}

func TestDecodeTransportEventKeepsRaw(t *testing.T) {
	body := []byte(`{"event_type":"ack","user_message_id":"m1","custom":"x"}`)

	ev, err := DecodeTransportEvent(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.EventType != "ack" {
		t.Fatalf("event_type = %q", ev.EventType)
	}
	if ev.Raw["custom"] != "x" {
		t.Fatalf("raw = %v", ev.Raw)
	}
}

func TestDecodeTransportEventUnrecognisedKind(t *testing.T) {
	// Valid JSON without any known field still decodes; only garbage is rejected.
	if _, err := DecodeTransportEvent([]byte(`{"something":"else"}`)); err != nil {
		t.Fatalf("unrecognised kind should decode, got %v", err)
	}
	if _, err := DecodeTransportEvent([]byte(`not json`)); !errors.Is(err, ErrMalformed) {
		t.Fatal("garbage must be malformed")
	}
}

func TestDecodeTransportEventNonObjectBody(t *testing.T) {
	ev, err := DecodeTransportEvent([]byte(`[1, 2, 3]`))
	if err != nil {
		t.Fatalf("non-object body should decode, got %v", err)
	}
	body, ok := ev.Raw["body"].([]any)
	if !ok || len(body) != 3 {
		t.Fatalf("raw body = %v", ev.Raw)
	}

	ev, err = DecodeTransportEvent([]byte(`"delivered"`))
	if err != nil {
		t.Fatalf("string body should decode, got %v", err)
	}
	if ev.Raw["body"] != "delivered" {
		t.Fatalf("raw body = %v", ev.Raw)
	}
}
