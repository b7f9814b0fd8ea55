package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ArubaIberia/agora/internal/credentials"
	agorahttp "github.com/ArubaIberia/agora/internal/http"
)

// DefaultSwitchAPIVersion is used when neither the caller nor the store sets
// api_version.
const DefaultSwitchAPIVersion = "v4"

// Switch authenticates against the ArubaOS-Switch REST API.
type Switch struct {
	client agorahttp.HTTPClient
	log    zerolog.Logger
}

// NewSwitch creates the switch authenticator.
func NewSwitch(opts Options) *Switch {
	return &Switch{
		client: opts.client(),
		log:    opts.logger(credentials.SectionSwitch),
	}
}

// Provider implements Authenticator.
func (s *Switch) Provider() string { return credentials.SectionSwitch }

// Capabilities implements Authenticator. Switches allow only a handful of
// concurrent REST sessions, so logins are not repeated on a timer.
func (s *Switch) Capabilities() Capabilities {
	return Capabilities{Logout: true, Renew: false}
}

// BaseURL implements Authenticator.
func (s *Switch) BaseURL(creds Credentials) string {
	version := creds.APIVersion
	if version == "" {
		version = DefaultSwitchAPIVersion
	}
	return fmt.Sprintf("https://%s/rest/%s", creds.APIHost, version)
}

type loginSessionRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

// Authenticate implements Authenticator.
func (s *Switch) Authenticate(ctx context.Context, creds Credentials) (*Grant, error) {
	err := requireFields(s.Provider(),
		[2]string{credentials.KeyAPIHost, creds.APIHost},
		[2]string{credentials.KeyUsername, creds.Username},
		[2]string{credentials.KeyPassword, creds.Password},
	)
	if err != nil {
		return nil, wrap(s.Provider(), "authenticate", err)
	}

	body, err := jsonBody(loginSessionRequest{UserName: creds.Username, Password: creds.Password})
	if err != nil {
		return nil, wrap(s.Provider(), "authenticate", err)
	}

	loginURL := s.BaseURL(creds) + "/login-sessions"
	resp, err := do(ctx, s.client, call{
		method: http.MethodPost,
		url:    loginURL,
		body:   body,
		ctype:  "application/json",
		expect: http.StatusCreated,
	})
	if err != nil {
		return nil, wrap(s.Provider(), "authenticate", err)
	}

	cookie, err := stringField(loginURL, "cookie", resp)
	if err != nil {
		return nil, wrap(s.Provider(), "authenticate", err)
	}
	s.log.Debug().Str("host", creds.APIHost).Msg("Switch session opened")

	return &Grant{
		Secret:  cookie,
		Headers: map[string]string{"Cookie": cookie},
	}, nil
}

// Logout implements Logouter.
func (s *Switch) Logout(ctx context.Context, creds Credentials, secret string) error {
	_, err := do(ctx, s.client, call{
		method:  http.MethodDelete,
		url:     s.BaseURL(creds) + "/login-sessions",
		headers: map[string]string{"Cookie": secret},
		expect:  http.StatusNoContent,
	})
	if err != nil {
		return wrap(s.Provider(), "logout", err)
	}
	s.log.Debug().Str("host", creds.APIHost).Msg("Switch session closed")
	return nil
}
