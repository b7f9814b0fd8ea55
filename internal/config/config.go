// Package config binds the agora command line flags and AGORA_* environment
// variables into one Config.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ArubaIberia/agora/internal/auth"
	"github.com/ArubaIberia/agora/internal/credentials"
	"github.com/ArubaIberia/agora/internal/env"
	"github.com/ArubaIberia/agora/internal/session"
)

// EnvPrefix is prepended to every flag name to form its environment variable,
// e.g. --refresh-interval is AGORA_REFRESH_INTERVAL.
const EnvPrefix = "AGORA"

// Config holds all configuration for the commands.
type Config struct {
	// Credential store
	CredentialsPath string `mapstructure:"credentials"`

	// Credential overrides, merged over the store section
	Host         string `mapstructure:"host"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	ClientID     string `mapstructure:"client-id"`
	ClientSecret string `mapstructure:"client-secret"`
	GrantType    string `mapstructure:"grant-type"`
	APIVersion   string `mapstructure:"api-version"`

	// TLS
	Insecure bool `mapstructure:"insecure"`

	// Session lifetime
	RefreshInterval time.Duration `mapstructure:"-"`
	LogoutTimeout   time.Duration `mapstructure:"-"`

	// Proxy
	Listen string `mapstructure:"listen"`

	// Worker
	NATSURL string `mapstructure:"nats-url"`
	Topic   string `mapstructure:"topic"`
}

// SetupFlags registers the persistent flags shared by every subcommand.
func SetupFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()

	flags.String("credentials", "", "Credentials file (default ~/.aruba.yaml, or AGORA_CONFIG_PATH)")

	flags.String("host", "", "API host, overrides api_host from the credentials file")
	flags.StringP("username", "u", "", "Username")
	flags.String("password", "", "Password (prefer AGORA_PASSWORD)")
	flags.String("client-id", "", "ClearPass API client id")
	flags.String("client-secret", "", "ClearPass API client secret (prefer AGORA_CLIENT_SECRET)")
	flags.String("grant-type", "", "ClearPass grant type: client_credentials, password or refresh_token")
	flags.String("api-version", "", "Switch REST API version (default v4)")

	flags.BoolP("insecure", "k", false, "Skip TLS certificate verification")

	flags.String("refresh-interval", session.DefaultRefreshInterval.String(), "Session refresh interval (duration or seconds)")
	flags.String("logout-timeout", session.DefaultLogoutTimeout.String(), "Upper bound for the logout call on shutdown")

	flags.String("listen", ":8080", "Proxy listen address")

	flags.String("nats-url", "nats://127.0.0.1:4222", "NATS server URL")
	flags.String("topic", "coa", "NATS subject the worker subscribes to")
}

// Bind returns a viper instance bound to the parsed flags of cmd and to the
// AGORA_* environment. Flags set on the command line win over the environment.
func Bind(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v, nil
}

// Load unmarshals and validates the configuration.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var err error
	if cfg.RefreshInterval, err = env.ParseDuration(v.GetString("refresh-interval")); err != nil {
		return nil, fmt.Errorf("invalid refresh interval: %w", err)
	}
	if cfg.LogoutTimeout, err = env.ParseDuration(v.GetString("logout-timeout")); err != nil {
		return nil, fmt.Errorf("invalid logout timeout: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that have no safe fallback.
func (c *Config) Validate() error {
	var errs []error
	if c.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("refresh interval must be positive, got %s", c.RefreshInterval))
	}
	if c.LogoutTimeout <= 0 {
		errs = append(errs, fmt.Errorf("logout timeout must be positive, got %s", c.LogoutTimeout))
	}
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	return errors.Join(errs...)
}

// Credentials returns the overrides given on the command line or environment.
func (c *Config) Credentials() credentials.Credentials {
	return credentials.Credentials{
		APIHost:      c.Host,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Username:     c.Username,
		Password:     c.Password,
		GrantType:    c.GrantType,
		APIVersion:   c.APIVersion,
	}
}

// AuthOptions returns the authenticator options.
func (c *Config) AuthOptions() auth.Options {
	return auth.Options{InsecureSkipVerify: c.Insecure}
}

// SessionOptions returns the session options.
func (c *Config) SessionOptions() []session.Option {
	return []session.Option{session.WithLogoutTimeout(c.LogoutTimeout)}
}
