package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ArubaIberia/agora/internal/credentials"
	agorahttp "github.com/ArubaIberia/agora/internal/http"
)

// ClearPass grant types.
const (
	GrantClientCredentials = "client_credentials"
	GrantPassword          = "password"
	GrantRefreshToken      = "refresh_token"
)

// ClearPass authenticates against the ClearPass Policy Manager OAuth endpoint.
type ClearPass struct {
	client agorahttp.HTTPClient
	log    zerolog.Logger
}

// NewClearPass creates the ClearPass authenticator.
func NewClearPass(opts Options) *ClearPass {
	return &ClearPass{
		client: opts.client(),
		log:    opts.logger(credentials.SectionClearPass),
	}
}

// Provider implements Authenticator.
func (c *ClearPass) Provider() string { return credentials.SectionClearPass }

// Capabilities implements Authenticator. Tokens expire and ClearPass keeps no
// session to release, so periodic renewal is safe.
func (c *ClearPass) Capabilities() Capabilities {
	return Capabilities{Logout: false, Renew: true}
}

// BaseURL implements Authenticator.
func (c *ClearPass) BaseURL(creds Credentials) string {
	return fmt.Sprintf("https://%s/api", creds.APIHost)
}

type oauthRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

func (c *ClearPass) validate(creds Credentials) error {
	err := requireFields(c.Provider(),
		[2]string{credentials.KeyAPIHost, creds.APIHost},
		[2]string{credentials.KeyGrantType, creds.GrantType},
		[2]string{credentials.KeyClientID, creds.ClientID},
		[2]string{credentials.KeyClientSecret, creds.ClientSecret},
	)
	if err != nil {
		return err
	}

	switch creds.GrantType {
	case GrantClientCredentials:
		return nil
	case GrantPassword, GrantRefreshToken:
	default:
		return &ValidationError{
			Provider: c.Provider(),
			Field:    credentials.KeyGrantType,
			Reason:   fmt.Sprintf("unsupported grant type %q", creds.GrantType),
		}
	}

	if err := requireFields(c.Provider(), [2]string{credentials.KeyUsername, creds.Username}); err != nil {
		return err
	}
	// Without a cached refresh token the password grant is the first call.
	if creds.RefreshToken == "" {
		return requireFields(c.Provider(), [2]string{credentials.KeyPassword, creds.Password})
	}
	return nil
}

// Authenticate implements Authenticator.
//
// With client_credentials a single call is made. Any other mode first tries
// the cached refresh token, and when ClearPass rejects it mints a new one with
// the password grant and exchanges it right away. Grant.RefreshToken holds
// the token that produced the access token, for the caller to persist.
func (c *ClearPass) Authenticate(ctx context.Context, creds Credentials) (*Grant, error) {
	if err := c.validate(creds); err != nil {
		return nil, wrap(c.Provider(), "authenticate", err)
	}

	if creds.GrantType == GrantClientCredentials {
		token, err := c.token(ctx, creds, oauthRequest{GrantType: GrantClientCredentials}, "access_token")
		if err != nil {
			return nil, wrap(c.Provider(), "authenticate", err)
		}
		return c.grant(token, ""), nil
	}

	if creds.RefreshToken != "" {
		token, err := c.token(ctx, creds, oauthRequest{
			GrantType:    GrantRefreshToken,
			RefreshToken: creds.RefreshToken,
		}, "access_token")
		if err == nil {
			return c.grant(token, creds.RefreshToken), nil
		}
		if !IsRequestError(err) && !IsFormatError(err) {
			return nil, wrap(c.Provider(), "authenticate", err)
		}
		c.log.Info().Err(err).Msg("Cached refresh token rejected, falling back to password grant")
		if creds.Password == "" {
			return nil, wrap(c.Provider(), "authenticate", &ValidationError{Provider: c.Provider(), Field: credentials.KeyPassword})
		}
	}

	refreshToken, err := c.token(ctx, creds, oauthRequest{
		GrantType: GrantPassword,
		Username:  creds.Username,
		Password:  creds.Password,
	}, "refresh_token")
	if err != nil {
		return nil, wrap(c.Provider(), "authenticate", err)
	}

	token, err := c.token(ctx, creds, oauthRequest{
		GrantType:    GrantRefreshToken,
		RefreshToken: refreshToken,
	}, "access_token")
	if err != nil {
		return nil, wrap(c.Provider(), "authenticate", err)
	}
	c.log.Debug().Msg("Minted new refresh token with password grant")
	return c.grant(token, refreshToken), nil
}

// token posts one grant to /oauth and returns the wanted field of the response.
func (c *ClearPass) token(ctx context.Context, creds Credentials, req oauthRequest, field string) (string, error) {
	req.ClientID = creds.ClientID
	req.ClientSecret = creds.ClientSecret

	body, err := jsonBody(req)
	if err != nil {
		return "", err
	}
	oauthURL := c.BaseURL(creds) + "/oauth"
	c.log.Debug().Str("grant_type", req.GrantType).Str("url", oauthURL).Msg("Requesting OAuth token")

	resp, err := do(ctx, c.client, call{
		method: http.MethodPost,
		url:    oauthURL,
		body:   body,
		ctype:  "application/json",
		expect: http.StatusOK,
	})
	if err != nil {
		return "", err
	}
	return stringField(oauthURL, field, resp)
}

func (c *ClearPass) grant(accessToken, refreshToken string) *Grant {
	return &Grant{
		Secret:       accessToken,
		Headers:      map[string]string{"Authorization": "Bearer " + accessToken},
		RefreshToken: refreshToken,
	}
}
