//go:build !js || !wasm

package http

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// NewHTTPClient creates a new HTTP client for regular environments.
// Aruba appliances ship with self-signed certificates, so certificate
// verification can be switched off per client.
func NewHTTPClient(insecureSkipVerify bool) HTTPClient {
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: NewTransport(insecureSkipVerify),
	}
}

// NewTransport returns the tuned transport used by NewHTTPClient. It is
// exported for callers that wrap it, e.g. with an oauth2.Transport.
func NewTransport(insecureSkipVerify bool) *http.Transport {
	return &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: insecureSkipVerify, //nolint:gosec // self-signed appliance certificates
		},
		ForceAttemptHTTP2: true,
	}
}
