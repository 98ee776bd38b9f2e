package uuid

import (
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	id := New()

	if len(id) != 36 {
		t.Fatalf("expected canonical 36-char form, got %d chars: %q", len(id), id)
	}
	parts := strings.Split(id, "-")
	if len(parts) != 5 {
		t.Fatalf("expected 5 dash-separated groups, got %d: %q", len(parts), id)
	}
	if parts[2][0] != '4' {
		t.Errorf("expected version 4, got version nibble %q in %q", parts[2][0], id)
	}

	if New() == New() {
		t.Error("consecutive UUIDs should differ")
	}
}
