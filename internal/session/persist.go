package session

import (
	"sync"

	"github.com/ArubaIberia/agora/internal/credentials"
	"github.com/ArubaIberia/agora/internal/logger"
)

// RefreshTokenSaver returns a hook that writes the session's refresh token to
// the provider's section of store whenever it differs from the last token
// saved, starting from stored. Sessions without a refresh token are ignored.
// The hook is safe for concurrent use.
func RefreshTokenSaver(store credentials.Store, stored string) func(*Session) {
	var mu sync.Mutex
	last := stored

	return func(s *Session) {
		mu.Lock()
		defer mu.Unlock()

		token := s.RefreshToken()
		if token == "" || token == last {
			return
		}
		err := store.Save(s.Provider(), credentials.Section{credentials.KeyRefreshToken: token})
		if err != nil {
			logger.Get().Warn().Err(err).Str("store", store.Name()).Msg("Failed to persist refresh token")
			return
		}
		last = token
	}
}
