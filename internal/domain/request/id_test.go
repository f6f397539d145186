package request

import (
	"strings"
	"testing"
	"time"
)

func TestNewID(t *testing.T) {
	a := NewID()
	b := NewID()

	if a.String() == b.String() {
		t.Errorf("IDs should be unique, got %s twice", a)
	}

	parts := strings.Split(a.String(), "-")
	if len(parts) != 3 {
		t.Fatalf("ID format should be YYYYMMDD-HHMMSS-xxxxxxxx, got: %s", a)
	}
	if len(parts[0]) != 8 || len(parts[1]) != 6 || len(parts[2]) != 8 {
		t.Errorf("unexpected part lengths in %s", a)
	}
}

func TestNewIDAt(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	id := NewIDAt(ts)

	if !strings.HasPrefix(id.String(), "20260301-120005-") {
		t.Errorf("unexpected prefix: %s", id)
	}
}

func TestParseIDAndIsZero(t *testing.T) {
	var zero ID
	if !zero.IsZero() {
		t.Error("zero ID should report IsZero")
	}

	id := ParseID("20260301-120000-abcd1234")
	if id.IsZero() || id.String() != "20260301-120000-abcd1234" {
		t.Errorf("ParseID round trip failed: %q", id)
	}
}
