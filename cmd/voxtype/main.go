// Command voxtype is the dictation daemon. It serves the local control API,
// runs the transcription and refinement pipeline, and inserts the result at
// the OS focus target through whatever ports the platform provides.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MrWong99/voxtype/internal/app"
	"github.com/MrWong99/voxtype/internal/config"
	"github.com/MrWong99/voxtype/internal/observe"
	"github.com/MrWong99/voxtype/internal/prefs"
	"github.com/MrWong99/voxtype/internal/resilience"
	"github.com/MrWong99/voxtype/pkg/provider/chat"
	"github.com/MrWong99/voxtype/pkg/provider/chat/local"
	"github.com/MrWong99/voxtype/pkg/provider/chat/megallm"
	"github.com/MrWong99/voxtype/pkg/provider/chat/openrouter"
	"github.com/MrWong99/voxtype/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/voxtype/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/voxtype/pkg/provider/embeddings/openai"
	"github.com/MrWong99/voxtype/pkg/provider/stt"
	"github.com/MrWong99/voxtype/pkg/provider/stt/deepgram"
	"github.com/MrWong99/voxtype/pkg/provider/stt/elevenlabs"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (default: <user config dir>/voxtype/config.yaml)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxtype: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := &slog.LevelVar{}
	logLevel.Set(levelFor(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("voxtype starting",
		"version", version,
		"config", path,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.Init(observe.Config{
		ServiceName:    "voxtype",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Preferences ───────────────────────────────────────────────────────────
	store, err := prefs.OpenDefault()
	if err != nil {
		slog.Error("failed to open preferences", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg, store)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, providers)

	opts := []app.Option{
		app.WithPrefsStore(store),
		app.WithLogLevel(logLevel),
		app.WithVersion(version),
	}
	if path != "" {
		opts = append(opts, app.WithConfigFile(path))
	}

	// Ports stay empty here: the standalone daemon has no clipboard or
	// keystroke integration of its own. Embedding processes construct the
	// app directly and supply theirs.
	application, err := app.New(ctx, cfg, providers, &app.Ports{}, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("daemon ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig resolves the configuration. An explicit path must exist; the
// per-user default location falls back to built-in defaults when absent. The
// returned path is empty when no file backs the config, which disables hot
// reload.
func loadConfig(flagPath string) (*config.Config, string, error) {
	if flagPath != "" {
		cfg, err := config.Load(flagPath)
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("config file %q not found", flagPath)
		}
		if err != nil {
			return nil, "", err
		}
		return cfg, flagPath, nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		cfg := config.Default()
		return cfg, "", nil
	}
	path := filepath.Join(dir, "voxtype", "config.yaml")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, "", err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		path = ""
	}
	return cfg, path, nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Chat ──────────────────────────────────────────────────────────────────

	reg.RegisterChat("openrouter", func(entry config.ProviderEntry) (chat.Client, error) {
		var opts []openrouter.Option
		if entry.BaseURL != "" {
			opts = append(opts, openrouter.WithBaseURL(entry.BaseURL))
		}
		return openrouter.New(entry.APIKey, opts...)
	})

	reg.RegisterChat("megallm", func(entry config.ProviderEntry) (chat.Client, error) {
		var opts []megallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, megallm.WithBaseURL(entry.BaseURL))
		}
		return megallm.New(entry.APIKey, opts...)
	})

	// local is an Ollama server on this machine; no API key involved.
	reg.RegisterChat("local", func(entry config.ProviderEntry) (chat.Client, error) {
		var opts []local.Option
		if entry.BaseURL != "" {
			opts = append(opts, local.WithBaseURL(entry.BaseURL))
		}
		return local.New(opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("elevenlabs", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, elevenlabs.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if d := optInt(entry.Options, "dimensions"); d > 0 {
			opts = append(opts, oaembed.WithDimensions(d))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if d := optInt(entry.Options, "dimensions"); d > 0 {
			opts = append(opts, ollamaembed.WithDimensions(d))
		}
		q, doc := optString(entry.Options, "query_prefix"), optString(entry.Options, "document_prefix")
		if q != "" || doc != "" {
			opts = append(opts, ollamaembed.WithPrefixes(q, doc))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	// Debug log of all registered providers.
	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct. API keys missing from the
// config are resolved through the preferences store, which checks the prefs
// file, the environment, and the OS keychain.
func buildProviders(cfg *config.Config, reg *config.Registry, store *prefs.Store) (*app.Providers, error) {
	ps := &app.Providers{
		Chat: buildChatBuilders(cfg, reg, store),
	}

	sttProvider, err := buildSTT(cfg, reg, store)
	if err != nil {
		return nil, err
	}
	ps.STT = sttProvider

	if name := cfg.Providers.Embeddings.Name; name != "" {
		entry := resolveAPIKey(cfg.Providers.Embeddings, store, name != "ollama")
		p, err := reg.CreateEmbeddings(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown embeddings provider, semantic search disabled", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		} else {
			ps.Embeddings = p
			slog.Info("provider created", "kind", "embeddings", "name", name)
		}
	}

	// Capture sources come from embedding processes or adapter binaries; the
	// standalone daemon processes transcripts submitted over the control
	// surface instead.
	return ps, nil
}

// buildChatBuilders returns one client builder per refinement backend. The
// builders resolve credentials every time they run, so a key added after
// startup is picked up without a restart.
func buildChatBuilders(cfg *config.Config, reg *config.Registry, store *prefs.Store) map[chat.Name]app.ChatClientBuilder {
	builders := make(map[chat.Name]app.ChatClientBuilder)
	for _, name := range config.ValidProviderNames["chat"] {
		entry := config.ProviderEntry{Name: name}
		if cfg.Providers.Chat.Name == name {
			entry = cfg.Providers.Chat
		}
		needsKey := name != string(chat.Local)
		builders[chat.Name(name)] = func() (chat.Client, error) {
			e := entry
			if needsKey && e.APIKey == "" {
				key, err := store.APIKey(e.Name)
				if err != nil {
					return nil, err
				}
				e.APIKey = key
			}
			return reg.CreateChat(e)
		}
	}
	return builders
}

// buildSTT assembles the transcription provider for in-daemon capture: the
// configured backend as primary, every other backend with a usable key as
// fallback. A missing key is not fatal since the daemon still serves
// externally captured transcripts.
func buildSTT(cfg *config.Config, reg *config.Registry, store *prefs.Store) (stt.Provider, error) {
	primaryName := cfg.Providers.STT.Name
	if primaryName == "" {
		return nil, nil
	}

	primary, err := createSTT(cfg.Providers.STT, reg, store)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("unknown stt provider, transcription disabled", "name", primaryName)
		return nil, nil
	}
	if err != nil {
		slog.Warn("stt provider unavailable, transcription disabled", "name", primaryName, "err", err)
		return nil, nil
	}
	slog.Info("provider created", "kind", "stt", "name", primaryName)

	fb := resilience.NewSTTFallback(primary, primaryName, resilience.FallbackConfig{})
	added := 0
	for _, name := range config.ValidProviderNames["stt"] {
		if name == primaryName {
			continue
		}
		secondary, err := createSTT(config.ProviderEntry{Name: name}, reg, store)
		if err != nil {
			slog.Debug("stt fallback not available", "name", name, "err", err)
			continue
		}
		fb.AddFallback(name, secondary)
		added++
		slog.Info("stt fallback registered", "name", name)
	}
	if added == 0 {
		return primary, nil
	}
	return fb, nil
}

func createSTT(entry config.ProviderEntry, reg *config.Registry, store *prefs.Store) (stt.Provider, error) {
	entry = resolveAPIKey(entry, store, true)
	if entry.APIKey == "" {
		return nil, fmt.Errorf("no API key for %s", entry.Name)
	}
	return reg.CreateSTT(entry)
}

// resolveAPIKey fills entry.APIKey from the credential chain when the config
// carries none and the backend needs one.
func resolveAPIKey(entry config.ProviderEntry, store *prefs.Store, needsKey bool) config.ProviderEntry {
	if !needsKey || entry.APIKey != "" {
		return entry
	}
	key, err := store.APIKey(entry.Name)
	if err != nil {
		slog.Debug("no API key on record", "provider", entry.Name)
		return entry
	}
	entry.APIKey = key
	return entry
}

// optString reads a string value from a provider options map.
func optString(options map[string]any, key string) string {
	if options == nil {
		return ""
	}
	if v, ok := options[key].(string); ok {
		return v
	}
	return ""
}

// optInt reads an integer value from a provider options map, tolerating the
// float64 that generic decoding can produce.
func optInt(options map[string]any, key string) int {
	switch v := options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, providers *app.Providers) {
	fmt.Println("╔════════════════════════════════════════╗")
	fmt.Println("║        voxtype startup summary         ║")
	fmt.Println("╠════════════════════════════════════════╣")
	printProvider("Chat", cfg.Providers.Chat.Name, cfg.Providers.Chat.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)

	capture := "external frontends"
	if providers.Source != nil {
		capture = "in-daemon"
	}
	printRow("Capture", capture)

	historyStore := "in-memory ring"
	if cfg.History.PostgresDSN != "" {
		historyStore = "postgres"
	}
	printRow("History", historyStore)

	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚════════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-16s: %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func levelFor(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
