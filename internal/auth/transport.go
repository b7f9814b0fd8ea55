package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	agorahttp "github.com/ArubaIberia/agora/internal/http"
)

// call is one handshake request.
type call struct {
	method  string
	url     string
	body    io.Reader
	ctype   string
	headers map[string]string
	query   url.Values
	expect  int
}

func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("could not marshal request body: %w", err)
	}
	return bytes.NewReader(b), nil
}

// do executes c and returns the response body. A status other than c.expect
// yields a *RequestError.
func do(ctx context.Context, client agorahttp.HTTPClient, c call) ([]byte, error) {
	target := c.url
	if len(c.query) > 0 {
		target += "?" + c.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, c.method, target, c.body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	if c.ctype != "" {
		req.Header.Set("Content-Type", c.ctype)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request execution error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != c.expect {
		return nil, &RequestError{
			Method:     c.method,
			URL:        c.url,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}
	return body, nil
}

// decodeObject parses a JSON object body. Anything that is not an object is
// reported as missing the wanted field.
func decodeObject(endpoint, field string, body []byte) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		return nil, &FormatError{URL: endpoint, Field: field, Body: string(body)}
	}
	return obj, nil
}

// stringField extracts a non-empty string field from a JSON object body.
func stringField(endpoint, field string, body []byte) (string, error) {
	obj, err := decodeObject(endpoint, field, body)
	if err != nil {
		return "", err
	}
	var value string
	if raw, ok := obj[field]; !ok || json.Unmarshal(raw, &value) != nil || value == "" {
		return "", &FormatError{URL: endpoint, Field: field, Body: string(body)}
	}
	return value, nil
}
