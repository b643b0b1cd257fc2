// Package phone normalizes patient phone numbers so blacklist lookups and
// SMS delivery see one canonical form.
package phone

import (
	"errors"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

var ErrInvalidNumber = errors.New("invalid phone number")

// Normalize parses raw in the context of region and returns it in E.164.
// Numbers the library cannot validate fall back to their digits with a
// leading plus kept, as long as at least seven digits remain.
func Normalize(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidNumber
	}
	if region == "" {
		region = "PL"
	}

	num, err := phonenumbers.Parse(raw, region)
	if err == nil && phonenumbers.IsValidNumber(num) {
		return phonenumbers.Format(num, phonenumbers.E164), nil
	}

	digits := digitsOnly(raw)
	if len(digits) < 7 {
		return "", ErrInvalidNumber
	}
	if strings.HasPrefix(raw, "+") {
		return "+" + digits, nil
	}
	return digits, nil
}

// Equal reports whether two raw numbers normalize to the same value.
func Equal(a, b, region string) bool {
	na, errA := Normalize(a, region)
	nb, errB := Normalize(b, region)
	return errA == nil && errB == nil && na == nb
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
