package validate

import (
	"regexp"
	"strings"
)

var (
	reSKU      = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)
	reLocation = regexp.MustCompile(`^[A-Za-z0-9 ._:/-]{1,128}$`)
	reNumber   = regexp.MustCompile(`^[A-Za-z0-9._/-]{1,64}$`)
)

// Text trims s and accepts any non-empty value up to max bytes.
func Text(s string, max int) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > max {
		return "", false
	}
	return s, true
}

func SKU(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, reSKU.MatchString(s)
}

// Location validates a stock location name. Empty is rejected; callers that
// treat empty as "all locations" check for it first.
func Location(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, reLocation.MatchString(s)
}

func OrderNumber(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, reNumber.MatchString(s)
}

func Quantity(n int) bool {
	return n > 0
}

// Limit clamps an event list limit. Zero or negative means no limit.
func Limit(n, max int) int {
	if n <= 0 || n > max {
		return max
	}
	return n
}
