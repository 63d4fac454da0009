package prefs

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"
)

// keyringService namespaces this application's entries in the OS keychain.
const keyringService = "voxtype"

var dotenvOnce sync.Once

// loadDotEnv loads a .env file from the working directory once per process.
// Missing files are fine; .env is a development convenience.
func loadDotEnv() {
	dotenvOnce.Do(func() {
		_ = godotenv.Load()
	})
}

// APIKey resolves the API key for a provider such as "openrouter" or
// "elevenlabs". Sources are checked in order: the preferences file, the
// environment (<PROVIDER>_API_KEY, with .env loaded first), and the OS
// keychain. The first non-empty value wins.
func (s *Store) APIKey(provider string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return "", fmt.Errorf("prefs: empty provider name")
	}

	if f, err := s.Load(); err == nil {
		if k := f.Keys[provider]; k != "" {
			return k, nil
		}
	} else {
		slog.Warn("prefs: reading key from file failed, trying other sources", "provider", provider, "error", err)
	}

	loadDotEnv()
	if k := os.Getenv(envVar(provider)); k != "" {
		return k, nil
	}

	if k, err := keyring.Get(keyringService, keyringEntry(provider)); err == nil && k != "" {
		return k, nil
	}

	return "", fmt.Errorf("prefs: no API key for %s: set keys.%s in %s, the %s environment variable, or the system keychain",
		provider, provider, s.path, envVar(provider))
}

// SetAPIKey stores an API key in the OS keychain. When no keychain is
// available the key is written to the preferences file instead.
func (s *Store) SetAPIKey(provider, key string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return fmt.Errorf("prefs: empty provider name")
	}

	if err := keyring.Set(keyringService, keyringEntry(provider), key); err != nil {
		slog.Warn("prefs: keychain unavailable, storing key in preferences file", "provider", provider, "error", err)
		_, ferr := s.Update(func(f *File) { f.Keys[provider] = key })
		if ferr != nil {
			return fmt.Errorf("prefs: store key for %s: %w", provider, ferr)
		}
	}
	return nil
}

func envVar(provider string) string {
	return strings.ToUpper(provider) + "_API_KEY"
}

func keyringEntry(provider string) string {
	return provider + "-api-key"
}
