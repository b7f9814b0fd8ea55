//go:build js && wasm

package env

import "github.com/syumai/workers/cloudflare"

// Get returns a Workers variable or secret binding. Blank values count as
// unset.
func Get(key string) (string, bool) {
	return present(cloudflare.Getenv(key))
}
