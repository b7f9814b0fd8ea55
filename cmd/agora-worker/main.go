//go:build js && wasm

package main

import (
	"context"

	"github.com/syumai/workers"

	"github.com/ArubaIberia/agora/internal/auth"
	"github.com/ArubaIberia/agora/internal/config"
	"github.com/ArubaIberia/agora/internal/credentials"
	"github.com/ArubaIberia/agora/internal/env"
	"github.com/ArubaIberia/agora/internal/logger"
	"github.com/ArubaIberia/agora/internal/server"
	"github.com/ArubaIberia/agora/internal/session"
)

var srv *server.Server

func init() {
	provider := env.GetOrDefault("AGORA_PROVIDER", credentials.SectionClearPass)
	cfg := &config.Config{
		Insecure:        env.GetBool("AGORA_INSECURE", false),
		RefreshInterval: session.DefaultRefreshInterval,
		LogoutTimeout:   session.DefaultLogoutTimeout,
	}

	interval, err := env.GetDuration("AGORA_REFRESH_INTERVAL", session.DefaultRefreshInterval)
	if err != nil {
		logger.Get().Warn().Err(err).Msg("Invalid AGORA_REFRESH_INTERVAL, using the default")
	} else {
		cfg.RefreshInterval = interval
	}

	// set by open, which runs before the first renewal
	var saveToken func(*session.Session)

	// Workers forbid I/O outside a request, so the session is opened lazily.
	open := func(ctx context.Context) (*session.Session, error) {
		store, err := cfg.Store()
		if err != nil {
			return nil, err
		}
		a, err := auth.New(provider, cfg.AuthOptions())
		if err != nil {
			return nil, err
		}
		creds, err := auth.Resolve(store, provider, credentials.Credentials{})
		if err != nil {
			return nil, err
		}
		logger.Get().Info().Str("provider", provider).Msg("Performing startup authentication check...")
		sess, err := session.Open(ctx, a, creds, cfg.SessionOptions()...)
		if err != nil {
			return nil, err
		}
		saveToken = session.RefreshTokenSaver(store, creds.RefreshToken)
		saveToken(sess)
		return sess, nil
	}

	srv = server.NewServer(open, server.Options{
		InsecureSkipVerify: cfg.Insecure,
		RefreshInterval:    cfg.RefreshInterval,
		OnRefresh: func(s *session.Session) {
			if saveToken != nil {
				saveToken(s)
			}
		},
	})
}

func main() {
	workers.Serve(srv)
}
