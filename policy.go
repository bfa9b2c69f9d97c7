package authvault

import (
	"strings"
	"unicode"
)

// checkPasswordStrength enforces the policy for new passwords: minimum
// length plus at least one upper-case letter, one lower-case letter, one
// digit, and one symbol.
func (e *Engine) checkPasswordStrength(password string) error {
	if len(password) < e.config.Password.MinLength {
		return ErrWeakPassword
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if !upper || !lower || !digit || !symbol {
		return ErrWeakPassword
	}
	return nil
}

// normalizeEmail canonicalizes an email for lookup and storage.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
