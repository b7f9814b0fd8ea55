package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrDefault(t *testing.T) {
	t.Setenv("AGORA_TEST_VALUE", "")
	assert.Equal(t, "fallback", GetOrDefault("AGORA_TEST_VALUE", "fallback"))

	t.Setenv("AGORA_TEST_VALUE", "set")
	assert.Equal(t, "set", GetOrDefault("AGORA_TEST_VALUE", "fallback"))
}

func TestGetBool(t *testing.T) {
	testCases := []struct {
		name     string
		value    string
		def      bool
		expected bool
	}{
		{name: "unset uses default", value: "", def: true, expected: true},
		{name: "false", value: "false", def: true, expected: false},
		{name: "one", value: "1", def: false, expected: true},
		{name: "garbage uses default", value: "maybe", def: true, expected: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("AGORA_TEST_BOOL", tc.value)
			assert.Equal(t, tc.expected, GetBool("AGORA_TEST_BOOL", tc.def))
		})
	}
}

func TestGetDuration(t *testing.T) {
	t.Setenv("AGORA_TEST_DURATION", "")
	d, err := GetDuration("AGORA_TEST_DURATION", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	t.Setenv("AGORA_TEST_DURATION", "7200")
	d, err = GetDuration("AGORA_TEST_DURATION", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, d)

	t.Setenv("AGORA_TEST_DURATION", "90s")
	d, err = GetDuration("AGORA_TEST_DURATION", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	t.Setenv("AGORA_TEST_DURATION", "soon")
	_, err = GetDuration("AGORA_TEST_DURATION", time.Minute)
	assert.Error(t, err)
}

func TestGetTrimsBlankValues(t *testing.T) {
	t.Setenv("AGORA_TEST_VALUE", "  secret\n")
	v, ok := Get("AGORA_TEST_VALUE")
	assert.True(t, ok)
	assert.Equal(t, "secret", v)

	t.Setenv("AGORA_TEST_VALUE", " \n")
	_, ok = Get("AGORA_TEST_VALUE")
	assert.False(t, ok)
}
