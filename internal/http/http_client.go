// Package http builds the HTTP clients used to talk to Aruba appliances.
package http

import "net/http"

// HTTPClient is the part of *http.Client the authenticators, the proxy and
// the CLI depend on.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
