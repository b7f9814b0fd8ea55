//go:build !js || !wasm

package config

import "github.com/ArubaIberia/agora/internal/credentials"

// Store opens the credentials file.
func (c *Config) Store() (credentials.Store, error) {
	store, err := credentials.NewFileStore(c.CredentialsPath)
	if err != nil {
		return nil, err
	}
	return store, nil
}
