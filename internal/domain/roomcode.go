package domain

import (
	crand "crypto/rand"
	"math/big"
	"math/rand"
	"strings"
)

// RoomCodeLength is the fixed length of a human-typed room code.
const RoomCodeLength = 5

// roomCodeChars excludes visually ambiguous characters (0/O, 1/I).
const roomCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewRoomCode creates a random room code.
func NewRoomCode() string {
	code := make([]byte, RoomCodeLength)
	for i := range code {
		n, err := crand.Int(crand.Reader, big.NewInt(int64(len(roomCodeChars))))
		if err != nil {
			// fallback to math/rand if crypto fails
			code[i] = roomCodeChars[rand.Intn(len(roomCodeChars))]
			continue
		}
		code[i] = roomCodeChars[n.Int64()]
	}
	return string(code)
}

// NormalizeRoomCode uppercases and trims a user-typed code.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidRoomCode reports whether a normalized code has the right length and
// alphabet.
func ValidRoomCode(code string) bool {
	if len(code) != RoomCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(roomCodeChars, rune(code[i])) {
			return false
		}
	}
	return true
}
