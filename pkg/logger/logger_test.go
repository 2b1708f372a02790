package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not json: %v; line=%s", err, buf.String())
	}
	return entry
}

func TestContextFieldsAccumulate(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Level: zerolog.DebugLevel, Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithCartID(ctx, "cart-9")
	ctx = log.WithFields(ctx, map[string]any{"order_number": "SF-1001", "attempt": 2})
	log.Error(ctx, "reserve failed", errors.New("insufficient stock"))

	entry := decodeLine(t, buf)
	want := map[string]any{
		"service":      "api",
		"request_id":   "req-123",
		"cart_id":      "cart-9",
		"order_number": "SF-1001",
		"error":        "insufficient stock",
		"message":      "reserve failed",
		"level":        "error",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Fatalf("field %s = %v, want %v; line=%s", k, entry[k], v, buf.String())
		}
	}
	if _, ok := entry["stack"]; !ok {
		t.Fatalf("errors should carry a stack")
	}
}

func TestParentContextUnchanged(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Output: buf})

	parent := log.WithRequestID(context.Background(), "req-1")
	_ = log.WithUserID(parent, "u-1")
	log.Info(parent, "parent")

	if entry := decodeLine(t, buf); entry["user_id"] != nil {
		t.Fatalf("child field leaked into parent: %v", entry)
	}
}

func TestFieldsBelongToTheirLogger(t *testing.T) {
	first := New(Options{ServiceName: "a", Output: &bytes.Buffer{}})
	buf := &bytes.Buffer{}
	second := New(Options{ServiceName: "b", Output: buf})

	ctx := first.WithOrderNumber(context.Background(), "SF-1")
	second.Info(ctx, "other logger")

	entry := decodeLine(t, buf)
	if entry["order_number"] != nil || entry["service"] != "b" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{Output: buf, WarnStack: true}).Warn(context.Background(), "slow")
	if !bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("expected stack when warn stack enabled")
	}

	buf.Reset()
	New(Options{Output: buf}).Warn(context.Background(), "slow")
	if bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("expected no stack when warn stack disabled")
	}
}

func TestLevelFilters(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{Level: ParseLevel("warn"), Output: buf})
	log.Info(context.Background(), "hidden")
	log.Debug(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info and debug to be filtered; got %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"invalid": zerolog.InfoLevel,
		" DEBUG ": zerolog.DebugLevel,
		"error":   zerolog.ErrorLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
