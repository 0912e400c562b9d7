package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithRequestID(ctx, "req-123")
	ctx = log.WithOperation(ctx, "cart.add")

	log.Error(ctx, "boom", errors.New("boom"))

	if !bytes.Contains(buf.Bytes(), []byte("\"request_id\"")) {
		t.Fatalf("expected request_id to be preserved; entry=%s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("\"operation\"")) {
		t.Fatalf("expected operation to be preserved; entry=%s", buf.String())
	}
}

func TestLoggerInfoRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: zerolog.WarnLevel, Output: buf})

	log.Info(context.Background(), "quiet")
	if buf.Len() != 0 {
		t.Fatalf("expected info below warn level to be dropped; entry=%s", buf.String())
	}
}

func TestParseLevelFallbacks(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected info level for empty input, got %v", lvl)
	}
	if lvl := ParseLevel("nonsense"); lvl != zerolog.InfoLevel {
		t.Fatalf("expected info level for invalid input, got %v", lvl)
	}
	if lvl := ParseLevel("debug"); lvl != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %v", lvl)
	}
}
