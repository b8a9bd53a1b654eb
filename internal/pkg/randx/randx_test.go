package randx

import (
	"strings"
	"testing"
)

func TestRoomCode(t *testing.T) {
	code, err := RoomCode()
	if err != nil {
		t.Fatalf("RoomCode: %v", err)
	}
	if !IsValidRoomCode(code) {
		t.Fatalf("generated code %q is not valid", code)
	}
}

func TestIsValidRoomCode(t *testing.T) {
	for _, bad := range []string{"", "abc", "abcdefg", "abc-de"} {
		if IsValidRoomCode(bad) {
			t.Errorf("IsValidRoomCode(%q) = true", bad)
		}
	}
}

func TestClientID(t *testing.T) {
	a, b := ClientID(), ClientID()
	if a == b {
		t.Fatal("ClientID returned the same id twice")
	}
	if !IsValidClientID(a) {
		t.Fatalf("ClientID %q does not parse", a)
	}
	if IsValidClientID("guest_123") {
		t.Fatal("non-uuid accepted")
	}
}

func TestNickname(t *testing.T) {
	n, err := Nickname()
	if err != nil {
		t.Fatalf("Nickname: %v", err)
	}
	if !strings.HasPrefix(n, NicknamePrefix) || len(n) != len(NicknamePrefix)+6 {
		t.Fatalf("unexpected nickname %q", n)
	}
}
