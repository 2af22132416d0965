package identity

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseSpan converts a human-readable duration span into a time.Duration.
// It accepts everything time.ParseDuration does plus a day unit ("1d",
// "7d"), which token lifetimes are commonly configured with.
func ParseSpan(span string) (time.Duration, error) {
	s := strings.TrimSpace(span)
	if s == "" {
		return 0, fmt.Errorf("empty duration span")
	}

	if strings.HasSuffix(s, "d") {
		days, err := strconv.ParseFloat(strings.TrimSuffix(s, "d"), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration span %q: %w", span, err)
		}
		return time.Duration(days * float64(24*time.Hour)), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration span %q: %w", span, err)
	}
	return d, nil
}

// SpanSeconds is ParseSpan truncated to whole seconds, the unit token
// expiry is reported in.
func SpanSeconds(span string) (int, error) {
	d, err := ParseSpan(span)
	if err != nil {
		return 0, err
	}
	return int(d / time.Second), nil
}
