package server

import (
	"errors"
	"math/rand/v2"
	"strings"
)

const (
	roomCodeLength   = 4
	roomCodeAttempts = 1000
)

var (
	ErrRoomCodesExhausted = errors.New("ROOM_CODES_EXHAUSTED: No free room code available")
	ErrInvalidRoomCode    = errors.New("INVALID_ROOM_CODE: Room code must be 4 letters A-Z")
)

// GenerateRoomCode picks a random four-letter code not marked as used.
func GenerateRoomCode(usedCodes map[string]bool) (string, error) {
	code := make([]byte, roomCodeLength)
	for range roomCodeAttempts {
		for i := range code {
			code[i] = 'A' + byte(rand.IntN(26))
		}
		if !usedCodes[string(code)] {
			return string(code), nil
		}
	}
	return "", ErrRoomCodesExhausted
}

func ValidateRoomCode(code string) error {
	if len(code) != roomCodeLength {
		return ErrInvalidRoomCode
	}
	for _, ch := range strings.ToUpper(code) {
		if ch < 'A' || ch > 'Z' {
			return ErrInvalidRoomCode
		}
	}
	return nil
}

func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
