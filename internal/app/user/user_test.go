package user

import (
	"errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	const id = "9b2c3d4e-1f2a-4b3c-8d4e-5f6a7b8c9d0e"

	tests := []struct {
		name     string
		id, nick string
		want     error
	}{
		{"valid", id, "  Bob ", nil},
		{"bad id", "u1", "Bob", ErrInvalidID},
		{"empty nickname", id, "   ", ErrInvalidNickname},
		{"long nickname", id, strings.Repeat("x", MaxNicknameLength+1), ErrInvalidNickname},
		{"max length multibyte", id, strings.Repeat("é", MaxNicknameLength), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := New(tt.id, tt.nick)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if err == nil && u.Nickname != strings.TrimSpace(tt.nick) {
				t.Fatalf("nickname = %q", u.Nickname)
			}
		})
	}
}
