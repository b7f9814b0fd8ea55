package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/ArubaIberia/agora/internal/auth"
	"github.com/ArubaIberia/agora/internal/credentials"
	"github.com/ArubaIberia/agora/internal/session"
)

func newLoginCommand() *cobra.Command {
	var noPrompt bool

	cmd := &cobra.Command{
		Use:       "login <provider>",
		Short:     "Test a login and save the provider settings",
		Long:      "Prompts for the settings of a provider (clearpass, controller or switch), tests them with a real login and saves them to the credentials file.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: auth.Providers,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(cmd)
			if err != nil {
				return err
			}
			a, creds, err := rt.resolve(args[0])
			if err != nil {
				return err
			}

			if !noPrompt {
				if creds, err = promptCredentials(a.Provider(), creds); err != nil {
					return err
				}
			}

			section, err := login(cmd.Context(), a, creds, rt.cfg.SessionOptions()...)
			if err != nil {
				return err
			}
			if err := rt.store.Save(a.Provider(), section); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Login OK, settings saved to %s\n", rt.store.Name())
			return nil
		},
	}
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Use flags, environment and stored settings only")
	return cmd
}

// login opens and closes a session with creds and returns the section to
// store. ClearPass user logins keep the minted refresh token instead of the
// password.
func login(ctx context.Context, a auth.Authenticator, creds auth.Credentials, opts ...session.Option) (credentials.Section, error) {
	var refreshToken string
	err := session.With(ctx, a, creds, func(ctx context.Context, s *session.Session) error {
		refreshToken = s.RefreshToken()
		return nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	section := credentials.Section{credentials.KeyAPIHost: creds.APIHost}
	switch a.Provider() {
	case credentials.SectionClearPass:
		section[credentials.KeyGrantType] = creds.GrantType
		section[credentials.KeyClientID] = creds.ClientID
		section[credentials.KeyClientSecret] = creds.ClientSecret
		if creds.GrantType != auth.GrantClientCredentials {
			section[credentials.KeyUsername] = creds.Username
			section[credentials.KeyRefreshToken] = refreshToken
			// an empty value removes a previously stored password
			section[credentials.KeyPassword] = ""
		}
	case credentials.SectionSwitch:
		section[credentials.KeyAPIVersion] = creds.APIVersion
		fallthrough
	default:
		section[credentials.KeyUsername] = creds.Username
		section[credentials.KeyPassword] = creds.Password
	}
	return section, nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

// promptCredentials asks for the settings of provider, prefilled with creds.
func promptCredentials(provider string, creds auth.Credentials) (auth.Credentials, error) {
	c := creds
	fields := []huh.Field{
		huh.NewInput().Title("Server").Value(&c.APIHost).Validate(required("server")),
	}

	usePassword := c.GrantType == auth.GrantPassword || c.GrantType == auth.GrantRefreshToken
	switch provider {
	case credentials.SectionClearPass:
		fields = append(fields,
			huh.NewInput().Title("API client id (client_id)").Value(&c.ClientID).Validate(required("client id")),
			huh.NewInput().Title("API client secret").EchoMode(huh.EchoModePassword).Value(&c.ClientSecret).Validate(required("client secret")),
			huh.NewConfirm().Title("Log in with username and password?").Value(&usePassword),
		)
	case credentials.SectionSwitch:
		if c.APIVersion == "" {
			c.APIVersion = auth.DefaultSwitchAPIVersion
		}
		fields = append(fields, huh.NewInput().Title("REST API version").Value(&c.APIVersion))
		fallthrough
	default:
		fields = append(fields,
			huh.NewInput().Title("Username").Value(&c.Username).Validate(required("username")),
			huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&c.Password).Validate(required("password")),
		)
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return creds, fmt.Errorf("prompt failed: %w", err)
	}

	if provider != credentials.SectionClearPass {
		return c, nil
	}
	if !usePassword {
		c.GrantType = auth.GrantClientCredentials
		return c, nil
	}

	c.GrantType = auth.GrantPassword
	// a new password always mints a new refresh token
	c.RefreshToken = ""
	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Username").Value(&c.Username).Validate(required("username")),
		huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&c.Password).Validate(required("password")),
	)).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return creds, err
	}
	if err != nil {
		return creds, fmt.Errorf("prompt failed: %w", err)
	}
	return c, nil
}
