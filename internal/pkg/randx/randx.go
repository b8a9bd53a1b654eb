/*
Package randx generates identifiers: Base62 meeting room codes, UUID client ids,
whiteboard object ids and fallback nicknames.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars is the alphabet for room codes and nickname suffixes.
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is len(Base62Chars).
	Base62Len = int64(len(Base62Chars))

	// RoomCodeLength is the length of generated meeting room ids.
	RoomCodeLength = 6

	// NicknamePrefix prefixes generated nicknames.
	NicknamePrefix = "Guest_"
)

func base62(n int) (string, error) {
	result := make([]byte, n)

	for i := range n {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// RoomCode returns a random Base62 code of RoomCodeLength characters.
func RoomCode() (string, error) {
	return base62(RoomCodeLength)
}

// IsValidRoomCode reports whether code has the RoomCode shape.
func IsValidRoomCode(code string) bool {
	if len(code) != RoomCodeLength {
		return false
	}

	for _, char := range code {
		if !strings.ContainsRune(Base62Chars, char) {
			return false
		}
	}

	return true
}

// ClientID returns a new stable client identity (UUID v4).
func ClientID() string {
	return uuid.New().String()
}

// IsValidClientID reports whether id parses as a UUID.
func IsValidClientID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ObjectID returns a new whiteboard object id.
func ObjectID() string {
	return uuid.NewString()
}

// Nickname returns a random "Guest_xxxxxx" nickname.
func Nickname() (string, error) {
	suffix, err := base62(6)
	if err != nil {
		return "", err
	}
	return NicknamePrefix + suffix, nil
}
