package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ArubaIberia/agora/internal/credentials"
	agorahttp "github.com/ArubaIberia/agora/internal/http"
)

// controllerPort is the ArubaOS REST API port on Mobility Controllers and Masters.
const controllerPort = "4343"

// Controller authenticates against a Mobility Controller or Mobility Master
// and holds the UIDARUBA session id.
type Controller struct {
	client agorahttp.HTTPClient
	log    zerolog.Logger
}

// NewController creates the controller authenticator.
func NewController(opts Options) *Controller {
	return &Controller{
		client: opts.client(),
		log:    opts.logger(credentials.SectionController),
	}
}

// Provider implements Authenticator.
func (c *Controller) Provider() string { return credentials.SectionController }

// Capabilities implements Authenticator. Every login opens a new management
// session on the controller, so logins are not repeated on a timer.
func (c *Controller) Capabilities() Capabilities {
	return Capabilities{Logout: true, Renew: false}
}

func controllerHost(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), controllerPort)
}

func (c *Controller) authURL(creds Credentials) string {
	return fmt.Sprintf("https://%s/v1/api", controllerHost(creds.APIHost))
}

// BaseURL implements Authenticator.
func (c *Controller) BaseURL(creds Credentials) string {
	return fmt.Sprintf("https://%s/v1/configuration", controllerHost(creds.APIHost))
}

// Authenticate implements Authenticator.
func (c *Controller) Authenticate(ctx context.Context, creds Credentials) (*Grant, error) {
	err := requireFields(c.Provider(),
		[2]string{credentials.KeyAPIHost, creds.APIHost},
		[2]string{credentials.KeyUsername, creds.Username},
		[2]string{credentials.KeyPassword, creds.Password},
	)
	if err != nil {
		return nil, wrap(c.Provider(), "authenticate", err)
	}

	loginURL := c.authURL(creds) + "/login"
	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)

	body, err := do(ctx, c.client, call{
		method: http.MethodPost,
		url:    loginURL,
		body:   strings.NewReader(form.Encode()),
		ctype:  "application/x-www-form-urlencoded",
		expect: http.StatusOK,
	})
	if err != nil {
		return nil, wrap(c.Provider(), "authenticate", err)
	}

	uid, err := globalResultUID(loginURL, body)
	if err != nil {
		return nil, wrap(c.Provider(), "authenticate", err)
	}
	c.log.Debug().Str("host", creds.APIHost).Msg("Controller session opened")

	return &Grant{
		Secret:  uid,
		Headers: map[string]string{"Cookie": "SESSION=" + uid},
		Params:  map[string]string{"UIDARUBA": uid},
	}, nil
}

// globalResultUID extracts _global_result.UIDARUBA from a login response.
func globalResultUID(loginURL string, body []byte) (string, error) {
	obj, err := decodeObject(loginURL, "_global_result", body)
	if err != nil {
		return "", err
	}
	raw, ok := obj["_global_result"]
	if !ok || string(raw) == "null" {
		return "", &FormatError{URL: loginURL, Field: "_global_result", Body: string(body)}
	}
	uid, err := stringField(loginURL, "UIDARUBA", raw)
	if err != nil {
		return "", &FormatError{URL: loginURL, Field: "UIDARUBA", Body: string(body)}
	}
	return uid, nil
}

// Logout implements Logouter.
func (c *Controller) Logout(ctx context.Context, creds Credentials, secret string) error {
	logoutURL := c.authURL(creds) + "/logout"
	query := url.Values{}
	query.Set("UIDARUBA", secret)

	_, err := do(ctx, c.client, call{
		method:  http.MethodGet,
		url:     logoutURL,
		query:   query,
		headers: map[string]string{"Cookie": "SESSION=" + secret},
		expect:  http.StatusOK,
	})
	if err != nil {
		return wrap(c.Provider(), "logout", err)
	}
	c.log.Debug().Str("host", creds.APIHost).Msg("Controller session closed")
	return nil
}
