package identity_test

import (
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpan(t *testing.T) {
	cases := []struct {
		span     string
		expected time.Duration
	}{
		{"15m", 15 * time.Minute},
		{"1h", time.Hour},
		{"90s", 90 * time.Second},
		{"1d", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"0.5d", 12 * time.Hour},
		{" 30m ", 30 * time.Minute},
	}

	for _, tc := range cases {
		got, err := identity.ParseSpan(tc.span)
		require.NoError(t, err, tc.span)
		assert.Equal(t, tc.expected, got, tc.span)
	}
}

func TestParseSpanRejectsGarbage(t *testing.T) {
	for _, span := range []string{"", "soon", "xd", "12", "5w"} {
		_, err := identity.ParseSpan(span)
		assert.Error(t, err, span)
	}
}

func TestSpanSeconds(t *testing.T) {
	got, err := identity.SpanSeconds("15m")
	require.NoError(t, err)
	assert.Equal(t, 900, got)

	got, err = identity.SpanSeconds("7d")
	require.NoError(t, err)
	assert.Equal(t, 7*24*60*60, got)

	_, err = identity.SpanSeconds("nope")
	assert.Error(t, err)
}
