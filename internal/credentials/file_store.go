package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ArubaIberia/agora/internal/env"
	"github.com/ArubaIberia/agora/internal/logger"
)

// DefaultFileName is the settings file looked up in the home directory.
const DefaultFileName = ".aruba.yaml"

// FileStore implements Store using a YAML file with one mapping per provider:
//
//	clearpass:
//	  api_host: cppm.example.com
//	  grant_type: client_credentials
//	switch:
//	  api_host: 10.0.0.2
type FileStore struct {
	mu       sync.Mutex
	filePath string
	readOnly document
}

// NewFileStore creates a file-based store. An empty path selects
// AGORA_CONFIG_PATH, then ~/.aruba.yaml.
func NewFileStore(path string) (*FileStore, error) {
	store := &FileStore{filePath: path}
	if path != "" {
		return store, nil
	}

	if err := store.determineFilePath(); err != nil {
		return nil, err
	}
	return store, nil
}

// determineFilePath sets the file path based on environment variables or defaults
func (f *FileStore) determineFilePath() error {
	if configPath, ok := env.Get("AGORA_CONFIG_PATH"); ok {
		f.filePath = configPath
		return nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	f.filePath = filepath.Join(homeDir, DefaultFileName)
	return nil
}

// Path returns the settings file path, or "" when backed by the environment.
func (f *FileStore) Path() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filePath
}

// Defaults implements Store.
func (f *FileStore) Defaults(section string) (Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return nil, err
	}
	return doc.section(section), nil
}

// Save implements Store. The file is rewritten as a whole with mode 0600.
func (f *FileStore) Save(section string, values Section) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.filePath == "" {
		// Backed by AGORA_CREDENTIALS, nothing to write to
		logger.Get().Warn().Str("section", section).Msg("Cannot save credentials when using AGORA_CREDENTIALS environment variable")
		return nil
	}

	doc, err := f.load()
	if err != nil {
		return err
	}
	doc.merge(section, values)

	dir := filepath.Dir(f.filePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if err := os.WriteFile(f.filePath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials to %s: %w", f.filePath, err)
	}

	logger.Get().Info().Str("path", f.filePath).Str("section", section).Msg("Saved credentials")
	return nil
}

// load reads the document from file or, when the file does not exist, from
// the AGORA_CREDENTIALS environment variable. Callers hold f.mu.
func (f *FileStore) load() (document, error) {
	if f.readOnly != nil {
		return f.readOnly, nil
	}

	if f.filePath != "" {
		data, err := os.ReadFile(f.filePath)
		if err == nil {
			doc := document{}
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return nil, fmt.Errorf("failed to parse credentials from %s: %w", f.filePath, err)
			}
			return doc, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
	}

	if raw, ok := env.Get("AGORA_CREDENTIALS"); ok {
		doc := document{}
		if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("failed to parse AGORA_CREDENTIALS: %w", err)
		}
		// When using environment variable, disable file writing
		f.filePath = ""
		f.readOnly = doc
		return doc, nil
	}

	// No settings yet: every key is unset.
	return document{}, nil
}

// Name returns the store name
func (f *FileStore) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.filePath != "" {
		return fmt.Sprintf("FileStore(%s)", f.filePath)
	}
	return "FileStore(env)"
}
