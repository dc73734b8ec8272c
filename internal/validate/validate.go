// Package validate holds the pure field validators used by the registration
// flows. Each validator normalizes its input and reports validity with a
// message suitable for error payloads; none of them touch storage.
package validate

import (
	"regexp"
	"strings"
)

var (
	phonePattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	gstPattern   = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)
	upiPattern   = regexp.MustCompile(`^[a-zA-Z0-9._-]+@[a-zA-Z0-9]+$`)
	ifscPattern  = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	digitsOnly   = regexp.MustCompile(`[^0-9]`)
)

// Phone normalizes an Indian mobile number (strip non-digits, keep the last
// 10) and validates the 10-digit leading-6-to-9 form.
func Phone(raw string) (string, bool) {
	digits := digitsOnly.ReplaceAllString(raw, "")
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits, phonePattern.MatchString(digits)
}

// Email case-folds and validates an email address.
func Email(raw string) (string, bool) {
	e := strings.ToLower(strings.TrimSpace(raw))
	return e, emailPattern.MatchString(e)
}

// GST uppercases and validates a GST identification number.
func GST(raw string) (string, bool) {
	g := strings.ToUpper(strings.TrimSpace(raw))
	return g, gstPattern.MatchString(g)
}

// UPI lowercases and validates a UPI virtual payment address.
func UPI(raw string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	return v, upiPattern.MatchString(v)
}

// IFSC validates a bank IFSC code.
func IFSC(raw string) (string, bool) {
	c := strings.ToUpper(strings.TrimSpace(raw))
	return c, ifscPattern.MatchString(c)
}

// Name requires a trimmed length of at least 2 characters.
func Name(raw string) (string, bool) {
	n := strings.TrimSpace(raw)
	return n, len(n) >= 2
}
