package env

import (
	"strconv"
	"strings"
	"time"
)

// present trims pasted secrets, which often carry a trailing newline.
func present(value string) (string, bool) {
	value = strings.TrimSpace(value)
	return value, value != ""
}

// GetOrDefault retrieves an environment variable with a default value
func GetOrDefault(key, defaultValue string) string {
	if value, ok := Get(key); ok {
		return value
	}
	return defaultValue
}

// GetBool parses a boolean variable. Unparseable values yield the default.
func GetBool(key string, defaultValue bool) bool {
	value, ok := Get(key)
	if !ok {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// GetDuration parses a time.Duration ("90s", "2h"). A bare integer is read
// as seconds, the unit the Aruba token lifetimes are documented in.
func GetDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := Get(key)
	if !ok {
		return defaultValue, nil
	}
	return ParseDuration(value)
}

// ParseDuration is the parser behind GetDuration.
func ParseDuration(value string) (time.Duration, error) {
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(value)
}
