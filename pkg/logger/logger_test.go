package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&buf, "info", "json")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	log.Info("turn complete", "address", "27820001003")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "turn complete" {
		t.Fatalf("msg = %v", entry["msg"])
	}
	if entry["address"] != "27820001003" {
		t.Fatalf("address = %v", entry["address"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	log.Info("dropped")
	log.Warn("kept")

	if strings.Contains(buf.String(), "dropped") {
		t.Fatal("info line leaked past warn level")
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Fatal("warn line missing")
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&buf, "info", "text")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	log.Info("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("text output missing message: %q", buf.String())
	}
}

func TestRejectsUnknownLevelAndFormat(t *testing.T) {
	if _, err := New("loud", "text"); err == nil {
		t.Fatal("unknown level accepted")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatal("unknown format accepted")
	}
}
