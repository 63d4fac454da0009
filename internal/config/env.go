package config

import (
	"fmt"
	"sync"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var dotEnvOnce sync.Once

// loadDotEnv merges a .env file from the working directory into the process
// environment once. A missing file is not an error.
func loadDotEnv() {
	dotEnvOnce.Do(func() {
		_ = godotenv.Load()
	})
}

// envOverrides are operator overrides applied on top of the parsed YAML
// file. They exist so deployments can point the daemon at different
// endpoints without editing the config file.
type envOverrides struct {
	ListenAddr        string `envconfig:"VOXTYPE_LISTEN_ADDR"`
	LogLevel          string `envconfig:"VOXTYPE_LOG_LEVEL"`
	HistoryDSN        string `envconfig:"VOXTYPE_HISTORY_DSN"`
	ChatBaseURL       string `envconfig:"VOXTYPE_CHAT_BASE_URL"`
	STTBaseURL        string `envconfig:"VOXTYPE_STT_BASE_URL"`
	EmbeddingsBaseURL string `envconfig:"VOXTYPE_EMBEDDINGS_BASE_URL"`
}

// applyEnvOverrides mutates cfg with any VOXTYPE_* environment variables
// that are set. File values remain for everything else.
func applyEnvOverrides(cfg *Config) error {
	loadDotEnv()

	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("config: parse environment overrides: %w", err)
	}

	if env.ListenAddr != "" {
		cfg.Server.ListenAddr = env.ListenAddr
	}
	if env.LogLevel != "" {
		cfg.Server.LogLevel = LogLevel(env.LogLevel)
	}
	if env.HistoryDSN != "" {
		cfg.History.PostgresDSN = env.HistoryDSN
	}
	if env.ChatBaseURL != "" {
		cfg.Providers.Chat.BaseURL = env.ChatBaseURL
	}
	if env.STTBaseURL != "" {
		cfg.Providers.STT.BaseURL = env.STTBaseURL
	}
	if env.EmbeddingsBaseURL != "" {
		cfg.Providers.Embeddings.BaseURL = env.EmbeddingsBaseURL
	}
	return nil
}
