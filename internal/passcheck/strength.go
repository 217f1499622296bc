// Package passcheck analyzes passwords: offline strength classification and
// an online have-i-been-pwned range query that never discloses more than a
// 5-character hash prefix.
package passcheck

import (
	"strings"
	"unicode"
)

// Strength classes, ordered weakest first.
const (
	StrengthWeak   = "weak"
	StrengthMedium = "medium"
	StrengthStrong = "strong"
)

// commonPatterns are substrings that immediately disqualify a password from
// medium or strong, regardless of length or character mix.
var commonPatterns = []string{
	"password", "passwort", "motdepasse",
	"123456", "12345", "qwerty", "azerty",
	"abc123", "letmein", "welcome", "admin",
	"iloveyou", "dragon", "monkey",
}

// Strength classifies a password as weak, medium, or strong. The scoring is
// deterministic and purely local: length, character-class diversity, and
// absence of well-known patterns.
func Strength(password string) string {
	if len(password) < 8 {
		return StrengthWeak
	}

	lowered := strings.ToLower(password)
	for _, p := range commonPatterns {
		if strings.Contains(lowered, p) {
			return StrengthWeak
		}
	}
	if isSingleRune(password) {
		return StrengthWeak
	}

	classes := characterClasses(password)
	switch {
	case len(password) >= 12 && classes >= 3:
		return StrengthStrong
	case classes >= 2:
		return StrengthMedium
	default:
		return StrengthWeak
	}
}

func characterClasses(password string) int {
	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}

	n := 0
	for _, set := range []bool{lower, upper, digit, symbol} {
		if set {
			n++
		}
	}
	return n
}

func isSingleRune(password string) bool {
	var first rune
	for i, r := range password {
		if i == 0 {
			first = r
			continue
		}
		if r != first {
			return false
		}
	}
	return true
}
