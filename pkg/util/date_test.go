package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	require.True(t, ok)
	assert.Equal(t, s, got.UTC().Format(time.RFC3339))
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	require.True(t, ok)
	assert.Equal(t, ts, got.Unix())
}

func TestParseTimeProviderLayouts(t *testing.T) {
	want := time.Date(2024, 10, 10, 15, 30, 0, 0, time.UTC)

	tests := []string{"2024-10-10 15:30:00", "20241010T153000", "20241010T1530"}
	for _, s := range tests {
		got, ok := ParseTime(s)
		require.True(t, ok, s)
		assert.True(t, want.Equal(got), s)
	}

	got, ok := ParseTime("2024-10-10")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC), got)

	_, ok = ParseTime("yesterday")
	assert.False(t, ok)
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	assert.True(t, got.Equal(def))
}

func TestLastDaysAndWithin(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	from, to := LastDays(now, 7)

	assert.Equal(t, time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, now, to)
	assert.True(t, Within(time.Date(2024, 3, 3, 9, 0, 0, 0, time.UTC), from, to))
	assert.False(t, Within(time.Date(2024, 3, 2, 23, 0, 0, 0, time.UTC), from, to))
}

func TestParseNumber(t *testing.T) {
	v, ok := ParseNumber("0.5735%")
	require.True(t, ok)
	assert.InDelta(t, 0.5735, v, 1e-9)

	v, ok = ParseNumber("2,931,000,000")
	require.True(t, ok)
	assert.Equal(t, 2.931e9, v)

	for _, s := range []string{"None", "-", "", "abc"} {
		_, ok = ParseNumber(s)
		assert.False(t, ok, s)
	}
}
