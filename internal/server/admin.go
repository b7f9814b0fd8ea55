package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ArubaIberia/agora/internal/env"
)

// adminKeyEnv holds the key clients present to use the proxy.
const adminKeyEnv = "ADMIN_API_KEY"

// adminMiddleware checks for valid admin API key from either
// 'Authorization: Bearer <key>' or 'X-API-Key: <key>' headers.
func (s *Server) adminMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := s.log.With().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Str("remote_addr", r.RemoteAddr).
			Logger()

		adminKey, ok := env.Get(adminKeyEnv)
		if !ok {
			log.Error().Msg(adminKeyEnv + " environment variable not set")
			http.Error(w, "Admin API not configured", http.StatusInternalServerError)
			return
		}

		provided, reason := presentedKey(r)
		if reason != "" {
			log.Warn().Msg(reason)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(adminKey)) != 1 {
			log.Warn().Msg("Invalid admin API key provided")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		log.Debug().Msg("Admin request authorized")
		next(w, r)
	}
}

// presentedKey returns the client key, or the reason it was refused.
func presentedKey(r *http.Request) (string, string) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return "", "Invalid Authorization header format"
		}
		return token, ""
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key, ""
	}
	return "", "Missing required Authorization or X-API-Key header"
}
