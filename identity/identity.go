// Package identity derives short public display tags from opaque session
// identifiers
package identity

import (
	"strconv"
	"unicode/utf16"

	"github.com/aquilax/tripcode"
)

const (
	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// Prefix of every derived tag
	Prefix = '!'

	// Number of symbols following the prefix
	Length = 4
)

// Derive maps a session identifier to a deterministic 5 character tag. Two
// sessions may collide.
func Derive(sessionID string) string {
	var h int32
	for _, u := range utf16.Encode([]rune(sessionID)) {
		h = h*31 + int32(u)
	}

	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	digits := strconv.FormatInt(abs, 10)

	digit := func(i int) int {
		if i >= len(digits) {
			return 0
		}
		return int(digits[i] - '0')
	}

	buf := make([]byte, 1, Length+1)
	buf[0] = Prefix
	for i := 0; i < Length; i++ {
		buf = append(buf, alphabet[(digit(i)+10*digit(i+1))%len(alphabet)])
	}
	return string(buf)
}

// DeriveSecure maps a session identifier to a tag of the same shape as Derive,
// but salted with a server secret, so tags can not be precomputed from
// guessed identifiers
func DeriveSecure(sessionID, salt string) string {
	trip := tripcode.SecureTripcode(sessionID, salt)

	buf := make([]byte, 1, Length+1)
	buf[0] = Prefix
	for i := 0; i < Length; i++ {
		var b byte
		if i < len(trip) {
			b = trip[i]
		}
		buf = append(buf, alphabet[int(b)%len(alphabet)])
	}
	return string(buf)
}

// Valid returns, if s has the shape of a derived tag
func Valid(s string) bool {
	if len(s) != Length+1 || s[0] != Prefix {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}
