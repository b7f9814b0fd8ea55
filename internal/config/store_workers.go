//go:build js && wasm

package config

import "github.com/ArubaIberia/agora/internal/credentials"

// Store opens the Workers KV credential store.
func (c *Config) Store() (credentials.Store, error) {
	store, err := credentials.NewKVStore()
	if err != nil {
		return nil, err
	}
	return store, nil
}
