package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ArubaIberia/agora/internal/auth"
	agorahttp "github.com/ArubaIberia/agora/internal/http"
	"github.com/ArubaIberia/agora/internal/session"
)

func newGetCommand() *cobra.Command {
	var query []string

	cmd := &cobra.Command{
		Use:   "get <provider> <path>",
		Short: "GET a path relative to the provider base URL and print the JSON response",
		Example: `  agora get controller /object/vlan_id -q config_path=/md
  agora get switch /vlans
  agora get clearpass /guest -q limit=10`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(cmd)
			if err != nil {
				return err
			}
			a, creds, err := rt.resolve(args[0])
			if err != nil {
				return err
			}

			extra := url.Values{}
			for _, kv := range query {
				k, v, _ := strings.Cut(kv, "=")
				extra.Add(k, v)
			}

			client := agorahttp.NewHTTPClient(rt.cfg.Insecure)
			saveToken := session.RefreshTokenSaver(rt.store, creds.RefreshToken)
			return session.With(cmd.Context(), a, creds, func(ctx context.Context, s *session.Session) error {
				defer saveToken(s)
				body, err := get(ctx, client, s, args[1], extra)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), body)
			}, rt.cfg.SessionOptions()...)
		},
	}
	cmd.Flags().StringArrayVarP(&query, "query", "q", nil, "Query parameter as key=value (repeatable)")
	return cmd
}

// get issues one authenticated GET. Non-2xx responses are *auth.RequestError.
func get(ctx context.Context, client agorahttp.HTTPClient, s *session.Session, path string, extra url.Values) ([]byte, error) {
	headers, params := s.Snapshot()
	for k, v := range params {
		extra.Set(k, v)
	}

	endpoint := strings.TrimSuffix(s.BaseURL(), "/") + "/" + strings.TrimPrefix(path, "/")
	target := endpoint
	if len(extra) > 0 {
		target += "?" + extra.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
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
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// the query may carry the session secret (UIDARUBA)
		return nil, &auth.RequestError{Method: http.MethodGet, URL: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// printJSON indents JSON bodies and prints anything else verbatim.
func printJSON(w io.Writer, body []byte) error {
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		out.Reset()
		out.Write(body)
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(w)
	return err
}
