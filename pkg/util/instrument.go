package util

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInstrument is wrapped by every NormalizeInstrument failure.
var ErrInvalidInstrument = errors.New("invalid instrument code")

var exchanges = map[string]struct{}{"sh": {}, "sz": {}, "bj": {}}

// NormalizeInstrument turns "000001.SZ" and "SZ.000001" into "sz.000001".
// Bare six digit codes get the exchange implied by their prefix.
func NormalizeInstrument(code string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(code))
	if c == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidInstrument)
	}
	parts := strings.Split(c, ".")
	switch len(parts) {
	case 1:
		ex, err := impliedExchange(parts[0])
		if err != nil {
			return "", err
		}
		return ex + "." + parts[0], nil
	case 2:
		if _, ok := exchanges[parts[0]]; ok && isDigits(parts[1]) {
			return parts[0] + "." + parts[1], nil
		}
		if _, ok := exchanges[parts[1]]; ok && isDigits(parts[0]) {
			return parts[1] + "." + parts[0], nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrInvalidInstrument, code)
}

// ExchangeCode converts "sz.000001" back to "000001.SZ".
func ExchangeCode(id string) string {
	parts := strings.Split(id, ".")
	if len(parts) != 2 {
		return strings.ToUpper(id)
	}
	return parts[1] + "." + strings.ToUpper(parts[0])
}

func impliedExchange(code string) (string, error) {
	if len(code) != 6 || !isDigits(code) {
		return "", fmt.Errorf("%w %q", ErrInvalidInstrument, code)
	}
	switch code[0] {
	case '6', '9', '5':
		return "sh", nil
	case '0', '2', '3', '1':
		return "sz", nil
	case '4', '8':
		return "bj", nil
	}
	return "", fmt.Errorf("%w %q", ErrInvalidInstrument, code)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
