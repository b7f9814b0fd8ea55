// Package cli implements the agora command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ArubaIberia/agora/internal/auth"
	"github.com/ArubaIberia/agora/internal/config"
	"github.com/ArubaIberia/agora/internal/credentials"
)

// NewRootCommand builds the agora command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "agora",
		Short: "Authenticated REST sessions for ClearPass, Mobility Controllers and ArubaOS switches",
		Long: `agora logs in to Aruba products and keeps the session alive.

Defaults for every provider are read from ~/.aruba.yaml (see "agora login").
Any flag can also be given as an AGORA_* environment variable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.SetupFlags(root)

	root.AddCommand(
		newLoginCommand(),
		newGetCommand(),
		newProxyCommand(),
		newWorkerCommand(),
	)
	return root
}

// ExecuteContext runs the command line.
func ExecuteContext(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// runtime is what every subcommand needs after flag parsing.
type runtime struct {
	cfg   *config.Config
	store credentials.Store
}

func load(cmd *cobra.Command) (*runtime, error) {
	v, err := config.Bind(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	store, err := cfg.Store()
	if err != nil {
		return nil, fmt.Errorf("failed to open credentials store: %w", err)
	}
	return &runtime{cfg: cfg, store: store}, nil
}

// resolve selects the authenticator and merges the command line over the
// stored defaults of the provider.
func (rt *runtime) resolve(provider string) (auth.Authenticator, auth.Credentials, error) {
	a, err := auth.New(provider, rt.cfg.AuthOptions())
	if err != nil {
		return nil, auth.Credentials{}, err
	}
	creds, err := auth.Resolve(rt.store, provider, rt.cfg.Credentials())
	if err != nil {
		return nil, auth.Credentials{}, err
	}
	return a, creds, nil
}
