package cli

import (
	"github.com/spf13/cobra"

	"github.com/ArubaIberia/agora/internal/logger"
	"github.com/ArubaIberia/agora/internal/server"
	"github.com/ArubaIberia/agora/internal/session"
)

func newProxyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "proxy <provider>",
		Short: "Serve an authenticated reverse proxy to the provider REST API",
		Long: `Serves the provider REST API on --listen with the session headers and
params attached to every request. Clients authenticate with ADMIN_API_KEY.
Renewable sessions are refreshed every --refresh-interval.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(cmd)
			if err != nil {
				return err
			}
			a, creds, err := rt.resolve(args[0])
			if err != nil {
				return err
			}

			logger.Get().Info().Str("provider", a.Provider()).Msg("Performing startup authentication check...")
			sess, err := session.Open(cmd.Context(), a, creds, rt.cfg.SessionOptions()...)
			if err != nil {
				return err
			}
			saveToken := session.RefreshTokenSaver(rt.store, creds.RefreshToken)
			saveToken(sess)

			srv := server.NewServer(server.Static(sess), server.Options{
				InsecureSkipVerify: rt.cfg.Insecure,
				RefreshInterval:    rt.cfg.RefreshInterval,
				OnRefresh:          saveToken,
			})
			return srv.Start(cmd.Context(), rt.cfg.Listen)
		},
	}
}
