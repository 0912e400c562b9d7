package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalizeLimit(t *testing.T) {
	t.Parallel()

	if got := NormalizeLimit(0); got != DefaultLimit {
		t.Fatalf("expected default for zero, got %d", got)
	}
	if got := NormalizeLimit(-3); got != DefaultLimit {
		t.Fatalf("expected default for negative, got %d", got)
	}
	if got := NormalizeLimit(MaxLimit + 1); got != MaxLimit {
		t.Fatalf("expected cap at max, got %d", got)
	}
	if got := NormalizeLimit(10); got != 10 {
		t.Fatalf("expected passthrough, got %d", got)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	t.Parallel()

	in := Cursor{CreatedAt: time.Now().UTC().Truncate(time.Millisecond), ID: uuid.New()}
	out, err := ParseCursor(EncodeCursor(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out == nil || !out.CreatedAt.Equal(in.CreatedAt) || out.ID != in.ID {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func TestParseCursorEmpty(t *testing.T) {
	t.Parallel()

	cursor, err := ParseCursor("  ")
	if err != nil || cursor != nil {
		t.Fatalf("expected nil cursor for blank input, got %+v err=%v", cursor, err)
	}
}

func TestParseCursorGarbage(t *testing.T) {
	t.Parallel()

	if _, err := ParseCursor("not-base64!"); err == nil {
		t.Fatal("expected error for invalid cursor")
	}
}
