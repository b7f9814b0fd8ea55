package auth

import (
	"errors"
	"fmt"
)

// RequestError is returned when a call reached the server but came back with
// an unexpected status code.
type RequestError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// FormatError is returned when a call succeeded but the response body lacks
// an expected field.
type FormatError struct {
	URL   string
	Field string
	Body  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: missing key %q in response: %s", e.URL, e.Field, e.Body)
}

// ValidationError is returned when a required credential could not be
// resolved. No network call has been made when it is returned.
type ValidationError struct {
	Provider string
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: invalid %s: %s", e.Provider, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: missing required setting %q", e.Provider, e.Field)
}

// AuthError wraps every failure of the authenticate, refresh and logout paths.
type AuthError struct {
	Provider string
	Op       string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Err
}

func wrap(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return err
	}
	return &AuthError{Provider: provider, Op: op, Err: err}
}

// IsRequestError reports whether err carries a RequestError.
func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}

// IsFormatError reports whether err carries a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
