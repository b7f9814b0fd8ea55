//go:build js && wasm

package http

import (
	"net/http"

	"github.com/syumai/workers/cloudflare/fetch"
)

// WorkersHTTPClient implements HTTPClient for Cloudflare Workers
type WorkersHTTPClient struct {
	client *fetch.Client
}

// NewHTTPClient creates a new HTTP client for Workers environment. The fetch
// API always verifies certificates, so insecureSkipVerify has no effect there.
func NewHTTPClient(insecureSkipVerify bool) HTTPClient {
	return &WorkersHTTPClient{
		client: fetch.NewClient(),
	}
}

// NewTransport adapts the fetch client to http.RoundTripper.
func NewTransport(insecureSkipVerify bool) http.RoundTripper {
	return roundTripper{c: &WorkersHTTPClient{client: fetch.NewClient()}}
}

type roundTripper struct {
	c *WorkersHTTPClient
}

func (r roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return r.c.Do(req)
}

// Do performs an HTTP request using Cloudflare Workers fetch
func (c *WorkersHTTPClient) Do(req *http.Request) (*http.Response, error) {
	fetchReq, err := fetch.NewRequest(req.Context(), req.Method, req.URL.String(), req.Body)
	if err != nil {
		return nil, err
	}

	for key, values := range req.Header {
		for _, value := range values {
			fetchReq.Header.Add(key, value)
		}
	}

	return c.client.Do(fetchReq, nil)
}
