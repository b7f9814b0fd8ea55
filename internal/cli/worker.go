package cli

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/ArubaIberia/agora/internal/bus"
	"github.com/ArubaIberia/agora/internal/clearpass"
	"github.com/ArubaIberia/agora/internal/credentials"
	"github.com/ArubaIberia/agora/internal/logger"
	"github.com/ArubaIberia/agora/internal/session"
)

func newWorkerCommand() *cobra.Command {
	var handlerTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Quarantine endpoints on ClearPass from NATS CoA requests",
		Long: `Subscribes to --topic on --nats-url (queue group "workers") and handles
messages like:

  {"host": "cppm", "user": "api-client", "pass": "secret",
   "endpoint_mac": "aa:bb:cc:dd:ee:ff", "nas_ip": "10.0.0.2", "threat": true}

When ClearPass settings are stored, messages may omit host, user and pass and
the worker's own session is used, renewed every --refresh-interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(cmd)
			if err != nil {
				return err
			}
			log := logger.For("worker")

			var shared *session.Session
			a, creds, err := rt.resolve(credentials.SectionClearPass)
			if err != nil {
				return err
			}
			saveToken := session.RefreshTokenSaver(rt.store, creds.RefreshToken)
			if creds.APIHost != "" {
				shared, err = session.Open(cmd.Context(), a, creds, rt.cfg.SessionOptions()...)
				if err != nil {
					return err
				}
				saveToken(shared)
			} else {
				log.Info().Msg("No ClearPass settings stored, every message must carry credentials")
			}

			conn, err := bus.Connect(rt.cfg.NATSURL, nats.Name("agora-worker"))
			if err != nil {
				if shared != nil {
					_ = shared.Close(context.WithoutCancel(cmd.Context()))
				}
				return err
			}
			log.Info().Str("url", rt.cfg.NATSURL).Msg("Connected to NATS")

			app, err := bus.Start(context.WithoutCancel(cmd.Context()), conn, shared, bus.Config{
				RefreshInterval: rt.cfg.RefreshInterval,
				HandlerTimeout:  handlerTimeout,
				OnRefresh:       saveToken,
			})
			if err != nil {
				_ = conn.Close()
				return err
			}

			handler := clearpass.NewCoAHandler(shared, rt.cfg.Insecure, rt.cfg.SessionOptions()...)
			if err := app.Subscribe(rt.cfg.Topic, handler.Handle); err != nil {
				return errors.Join(err, app.Stop(context.WithoutCancel(cmd.Context())))
			}

			<-cmd.Context().Done()
			log.Info().Msg("Stopping worker")
			return app.Stop(context.WithoutCancel(cmd.Context()))
		},
	}
	cmd.Flags().DurationVar(&handlerTimeout, "handler-timeout", time.Minute, "Upper bound for handling one message")
	return cmd
}
