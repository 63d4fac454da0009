package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// maxPasteDelayMS bounds the configurable paste delays. Anything longer
// makes the whole insertion feel broken rather than slow.
const maxPasteDelayMS = 5000

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"chat":       {"openrouter", "megallm", "local"},
	"stt":        {"deepgram", "elevenlabs"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path, applies VOXTYPE_*
// environment overrides, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like [Load] except that a missing file yields the
// built-in defaults. Environment overrides apply either way.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}

	cfg = Default()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies VOXTYPE_* environment
// overrides, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr != "" {
		host, _, err := net.SplitHostPort(cfg.Server.ListenAddr)
		if err != nil {
			errs = append(errs, fmt.Errorf("server.listen_addr %q is not a host:port address", cfg.Server.ListenAddr))
		} else if !isLoopbackHost(host) {
			slog.Warn("control server is bound beyond loopback; anyone who can reach it can start dictation and paste text",
				"listen_addr", cfg.Server.ListenAddr,
			)
		}
	}

	// Unknown provider names are warnings, not errors.
	validateProviderName("chat", cfg.Providers.Chat.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// Embeddings ↔ history cross-checks
	if cfg.Providers.Embeddings.Name != "" && cfg.History.PostgresDSN == "" {
		slog.Warn("providers.embeddings is configured but history.postgres_dsn is empty; semantic search over history will not be available")
	}
	if cfg.History.PostgresDSN != "" && cfg.History.EmbeddingDimensions <= 0 {
		slog.Warn("history.embedding_dimensions is not set; defaulting to 1536")
	}

	// History
	if cfg.History.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("history.embedding_dimensions %d must not be negative", cfg.History.EmbeddingDimensions))
	}
	if cfg.History.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("history.max_entries %d must not be negative", cfg.History.MaxEntries))
	}

	// Paste timing
	if cfg.Paste.SettleMS < 0 || cfg.Paste.SettleMS > maxPasteDelayMS {
		errs = append(errs, fmt.Errorf("paste.settle_ms %d is out of range [0, %d]", cfg.Paste.SettleMS, maxPasteDelayMS))
	}
	if cfg.Paste.ProcessMS < 0 || cfg.Paste.ProcessMS > maxPasteDelayMS {
		errs = append(errs, fmt.Errorf("paste.process_ms %d is out of range [0, %d]", cfg.Paste.ProcessMS, maxPasteDelayMS))
	}

	return errors.Join(errs...)
}

// isLoopbackHost reports whether host names a loopback interface. An empty
// host (":4573") binds every interface and is therefore not loopback.
func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
