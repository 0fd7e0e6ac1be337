// Package validate holds the predicates applied to user supplied strings
// before they reach the ledger.
package validate

import "strings"

const (
	minAddressLength = 32
	maxAddressLength = 44

	// characters outside the base58 alphabet.
	excludedAddressChars = "0IOl"
)

// IsValidAddress reports whether s looks like a base58 encoded address.
// It checks shape only; it does not decode.
func IsValidAddress(s string) bool {
	if len(s) < minAddressLength || len(s) > maxAddressLength {
		return false
	}

	for i := 0; i < len(s); i++ {
		if !isAlphanumeric(s[i]) {
			return false
		}
	}

	return !strings.ContainsAny(s, excludedAddressChars)
}

// IsValidNumber reports whether s is an unsigned decimal literal with at
// most one period. A lone "." passes.
func IsValidNumber(s string) bool {
	if len(s) == 0 {
		return false
	}

	periodFound := false
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			if periodFound {
				return false
			}
			periodFound = true
			continue
		}
		if !isDigit(s[i]) {
			return false
		}
	}

	return true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlphanumeric(c byte) bool {
	return isDigit(c) || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
