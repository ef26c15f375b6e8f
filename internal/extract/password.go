package extract

import (
	"strings"
	"unicode/utf8"
)

// Strength grades a password.
type Strength string

const (
	Weak   Strength = "weak"
	Strong Strength = "strong"
)

const (
	minPasswordLen  = 8
	passwordSymbols = "!@#$%^&*()"
)

// PasswordStrength returns Weak unless the password is at least eight
// characters long and mixes upper and lower case letters, digits and one
// of the symbols !@#$%^&*().
func PasswordStrength(password string) Strength {
	if utf8.RuneCountInString(password) < minPasswordLen {
		return Weak
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	symbol := strings.ContainsAny(password, passwordSymbols)
	if upper && lower && digit && symbol {
		return Strong
	}
	return Weak
}
