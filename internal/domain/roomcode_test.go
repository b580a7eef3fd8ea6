package domain

import (
	"strings"
	"testing"
)

func TestNewRoomCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code := NewRoomCode()
		if len(code) != RoomCodeLength {
			t.Fatalf("expected length %d, got %q", RoomCodeLength, code)
		}
		if !ValidRoomCode(code) {
			t.Fatalf("generated code %q failed validation", code)
		}
		for _, ambiguous := range "0O1I" {
			if strings.ContainsRune(code, ambiguous) {
				t.Fatalf("code %q contains ambiguous character %q", code, ambiguous)
			}
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Error("expected distinct codes across 50 draws")
	}
}

func TestNormalizeRoomCode(t *testing.T) {
	tests := []struct {
		in       string
		expected string
		valid    bool
	}{
		{in: " abqxz ", expected: "ABQXZ", valid: true},
		{in: "AB234", expected: "AB234", valid: true},
		{in: "abc", expected: "ABC", valid: false},
		{in: "AB0CD", expected: "AB0CD", valid: false},
		{in: "TOOLONG", expected: "TOOLONG", valid: false},
	}

	for _, tt := range tests {
		got := NormalizeRoomCode(tt.in)
		if got != tt.expected {
			t.Errorf("NormalizeRoomCode(%q): expected %q, got %q", tt.in, tt.expected, got)
		}
		if ValidRoomCode(got) != tt.valid {
			t.Errorf("ValidRoomCode(%q): expected %v", got, tt.valid)
		}
	}
}
