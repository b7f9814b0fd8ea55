// Package clearpass calls the ClearPass REST endpoints used to quarantine an
// endpoint: threat attributes, accounting sessions and RADIUS CoA disconnects.
package clearpass

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/ArubaIberia/agora/internal/auth"
	agorahttp "github.com/ArubaIberia/agora/internal/http"
	"github.com/ArubaIberia/agora/internal/logger"
	"github.com/ArubaIberia/agora/internal/session"
)

// ErrNoSession is returned by LatestSession when ClearPass has no accounting
// record for the endpoint.
var ErrNoSession = errors.New("no accounting session found")

// Threat attribute values written by UpdateEndpointThreat.
const (
	SeverityCritical = "Critical"
	SeverityLow      = "Low"
	StatusInProgress = "In Progress"
	StatusResolved   = "Resolved"
)

// AccountingSession is one entry of GET /session.
type AccountingSession struct {
	ID               string `json:"id"`
	NASIPAddress     string `json:"nasipaddress"`
	CallingStationID string `json:"callingstationid"`
	Username         string `json:"username,omitempty"`
	AcctStartTime    int64  `json:"acctstarttime,omitempty"`
}

type sessionList struct {
	Embedded struct {
		Items []AccountingSession `json:"items"`
	} `json:"_embedded"`
}

// Client calls the ClearPass API with the bearer token of a live session.
// Refreshes of the session are picked up on the next request.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a client for a ClearPass session.
func NewClient(s *session.Session, insecureSkipVerify bool) *Client {
	return &Client{
		baseURL: s.BaseURL(),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &oauth2.Transport{
				Source: session.TokenSource(s),
				Base:   agorahttp.NewTransport(insecureSkipVerify),
			},
		},
		log: logger.For("clearpass").With().Str("session_id", s.ID()).Logger(),
	}
}

func threatAttributes(threat bool) map[string]string {
	if threat {
		return map[string]string{"Threat Severity": SeverityCritical, "Threat Status": StatusInProgress}
	}
	return map[string]string{"Threat Severity": SeverityLow, "Threat Status": StatusResolved}
}

// UpdateEndpointThreat marks the endpoint as an active threat, or as resolved.
func (c *Client) UpdateEndpointThreat(ctx context.Context, mac string, threat bool) error {
	update := map[string]any{"attributes": threatAttributes(threat)}
	path := "/endpoint/mac-address/" + url.PathEscape(mac)
	if err := c.do(ctx, http.MethodPatch, path, nil, update, nil); err != nil {
		return fmt.Errorf("failed to update endpoint %s: %w", mac, err)
	}
	c.log.Info().Str("mac", mac).Bool("threat", threat).Msg("Endpoint threat attributes updated")
	return nil
}

// LatestSession returns the most recent accounting session of the endpoint on
// the given NAS.
func (c *Client) LatestSession(ctx context.Context, mac, nasIP string) (*AccountingSession, error) {
	filter, err := json.Marshal(map[string]string{
		"callingstationid": mac,
		"nasipaddress":     nasIP,
	})
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("filter", string(filter))
	query.Set("sort", "-acctstarttime")
	query.Set("limit", "1")

	var list sessionList
	if err := c.do(ctx, http.MethodGet, "/session", query, nil, &list); err != nil {
		return nil, fmt.Errorf("failed to look up session of %s: %w", mac, err)
	}
	if len(list.Embedded.Items) == 0 {
		return nil, fmt.Errorf("%w for %s on %s", ErrNoSession, mac, nasIP)
	}
	return &list.Embedded.Items[0], nil
}

// Disconnect sends a RADIUS disconnect for the session, forcing the endpoint
// to re-authenticate.
func (c *Client) Disconnect(ctx context.Context, id string) error {
	confirm := map[string]bool{"confirm_disconnect": true}
	if err := c.do(ctx, http.MethodPost, "/session/"+url.PathEscape(id)+"/disconnect", nil, confirm, nil); err != nil {
		return fmt.Errorf("failed to disconnect session %s: %w", id, err)
	}
	c.log.Info().Str("accounting_session", id).Msg("Session disconnected")
	return nil
}

// do sends a JSON request and decodes the response into out. Any status but
// 200 is an *auth.RequestError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("could not marshal request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug().Str("method", method).Str("url", target).Msg("Calling ClearPass")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request execution error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &auth.RequestError{Method: method, URL: c.baseURL + path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &auth.FormatError{URL: c.baseURL + path, Field: "_embedded", Body: string(respBody)}
	}
	return nil
}
