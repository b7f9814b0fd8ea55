//go:build js && wasm

package credentials

import (
	"fmt"
	"sync"

	"github.com/syumai/workers/cloudflare/kv"
	"gopkg.in/yaml.v3"

	"github.com/ArubaIberia/agora/internal/logger"
)

const (
	kvNamespace = "agora_kv"
	kvKey       = "aruba_credentials"
)

// KVStore implements Store using Cloudflare KV storage
type KVStore struct {
	mu      sync.Mutex
	kvStore *kv.Namespace
}

// NewKVStore creates a new Cloudflare KV-based credentials store
func NewKVStore() (*KVStore, error) {
	// The binding name is configured in wrangler.toml
	kvStore, err := kv.NewNamespace(kvNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize KV namespace: %w", err)
	}
	return &KVStore{kvStore: kvStore}, nil
}

func (c *KVStore) load() (document, error) {
	raw, err := c.kvStore.GetString(kvKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials from KV: %w", err)
	}
	doc := document{}
	if raw == "" {
		return doc, nil
	}
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse credentials document: %w", err)
	}
	return doc, nil
}

// Defaults implements Store.
func (c *KVStore) Defaults(section string) (Section, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return nil, err
	}
	return doc.section(section), nil
}

// Save implements Store.
func (c *KVStore) Save(section string, values Section) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return err
	}
	doc.merge(section, values)

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := c.kvStore.PutString(kvKey, string(data), nil); err != nil {
		return fmt.Errorf("failed to store credentials in KV: %w", err)
	}

	logger.Get().Info().Str("section", section).Msg("Saved credentials to Cloudflare KV")
	return nil
}

// Name returns the store name
func (c *KVStore) Name() string {
	return "KVStore"
}
