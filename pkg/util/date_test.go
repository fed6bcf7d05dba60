package util

import (
	"encoding/json"
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

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	assert.True(t, ParseTimeDefault("", def).Equal(def))
	assert.True(t, ParseTimeDefault("yesterday", def).Equal(def))
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)
	cases := map[string]string{
		"millis":  strconv.FormatInt(want.UnixMilli(), 10),
		"seconds": strconv.FormatInt(want.Unix(), 10),
		"string":  `"2024-03-01T14:30:00Z"`,
		"float":   strconv.FormatInt(want.UnixMilli(), 10) + ".0",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			got, ok := ParseTimestamp(json.RawMessage(raw))
			require.True(t, ok)
			assert.True(t, want.Equal(got), got)
		})
	}

	_, ok := ParseTimestamp(json.RawMessage(`true`))
	assert.False(t, ok)
}

func TestBucket(t *testing.T) {
	ts := time.Date(2024, 3, 1, 14, 37, 12, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC), Bucket(ts, 10*time.Minute))
	assert.Equal(t, ts, Bucket(ts, 0))
}
