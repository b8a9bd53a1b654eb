/*
Package user defines the identity a participant carries into a room.

Identity is issued elsewhere (the client profile or an external session
provider); the relay only checks its shape before admitting a connection.
*/
package user

import (
	"errors"
	"strings"
	"unicode/utf8"

	"metaverse/internal/pkg/randx"
)

// MaxNicknameLength is the longest nickname, in runes, shown above an avatar.
const MaxNicknameLength = 24

var (
	ErrInvalidID       = errors.New("user id must be a UUID")
	ErrInvalidNickname = errors.New("nickname is empty or too long")
)

// User is a room participant.
type User struct {
	// ID is the stable client UUID.
	ID string `json:"id"`

	Nickname string `json:"nickname"`
}

// New validates and normalizes an identity received from a client.
func New(id, nickname string) (User, error) {
	if !randx.IsValidClientID(id) {
		return User{}, ErrInvalidID
	}

	nickname = strings.TrimSpace(nickname)
	if nickname == "" || utf8.RuneCountInString(nickname) > MaxNicknameLength {
		return User{}, ErrInvalidNickname
	}

	return User{ID: id, Nickname: nickname}, nil
}
