//go:build !js || !wasm

package env

import "os"

// Get returns the value of an environment variable. Blank values count as
// unset.
func Get(key string) (string, bool) {
	return present(os.Getenv(key))
}
