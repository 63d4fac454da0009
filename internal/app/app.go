// Package app wires all voxtype subsystems into a running daemon.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the control surface until the context is cancelled,
// and Shutdown tears everything down in order.
//
// A dictation flows through the app like this: a toggle on the control
// server starts a session on the [session.Controller]; the app's capture
// frontend opens the microphone source and a transcription stream, pumps
// audio until the session stops, and hands the final transcript to the
// delivery pipeline (voice-command filter, refinement, paste, history).
// Deployments whose capture runs out of process instead submit the final
// transcript over the control surface; the delivery pipeline is the same.
//
// For testing, inject doubles via functional options (WithPrefsStore,
// WithHistoryStore, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxtype/internal/config"
	"github.com/MrWong99/voxtype/internal/ctlserver"
	"github.com/MrWong99/voxtype/internal/focus"
	"github.com/MrWong99/voxtype/internal/health"
	"github.com/MrWong99/voxtype/internal/history"
	"github.com/MrWong99/voxtype/internal/history/postgres"
	"github.com/MrWong99/voxtype/internal/observe"
	"github.com/MrWong99/voxtype/internal/paste"
	"github.com/MrWong99/voxtype/internal/prefs"
	"github.com/MrWong99/voxtype/internal/refine"
	"github.com/MrWong99/voxtype/internal/session"
	"github.com/MrWong99/voxtype/internal/voicecmd"
	"github.com/MrWong99/voxtype/pkg/audio"
	"github.com/MrWong99/voxtype/pkg/provider/chat"
	"github.com/MrWong99/voxtype/pkg/provider/embeddings"
	"github.com/MrWong99/voxtype/pkg/provider/stt"
)

// Providers holds one value per provider slot. Nil means the provider is not
// configured. Populated by main.go via the config registry.
type Providers struct {
	// Chat maps each refinement backend to its client builder. Builders run
	// again on every resolution, so a changed API key is picked up without a
	// restart.
	Chat map[chat.Name]ChatClientBuilder

	// STT is the transcription backend the in-daemon capture frontend
	// streams to. Nil when capture runs out of process.
	STT stt.Provider

	// Embeddings powers semantic search over the Postgres history store.
	Embeddings embeddings.Provider

	// Source is the microphone capture adapter. Nil means no in-daemon
	// capture; the app then waits for transcripts submitted over the
	// control surface.
	Source audio.Source
}

// Ports holds the OS capabilities voxtype does not implement itself. The
// embedding process supplies them. Nil fields degrade: without a clipboard
// the focus probe fails open and insertion reports the text as undeliverable
// instead of pasting it.
type Ports struct {
	Clipboard paste.Clipboard
	Keystroke paste.KeystrokeInjector

	// Notifier shows transient user-facing notices. May be nil.
	Notifier session.Notifier
}

// App owns all subsystem lifetimes and runs the dictation pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers
	ports     *Ports

	version  string
	cfgPath  string
	logLevel *slog.LevelVar
	grace    time.Duration

	// Subsystems, initialised in New and torn down in Shutdown.
	prefs      *prefs.Store
	metrics    *observe.Metrics
	history    history.Store
	refiner    *refine.Orchestrator
	probe      *focus.Prober
	commands   *voicecmd.Filter
	controller *session.Controller
	health     *health.Handler
	control    *ctlserver.Server
	watcher    *config.Watcher

	mu        sync.Mutex
	sequencer *paste.Sequencer
	capture   *captureState
	runCtx    context.Context

	// captures tracks in-flight capture goroutines so Run can wait for the
	// tail of a dictation before returning.
	captures sync.WaitGroup

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithPrefsStore injects a preferences store instead of opening the default
// per-user file.
func WithPrefsStore(s *prefs.Store) Option {
	return func(a *App) { a.prefs = s }
}

// WithHistoryStore injects a history store instead of creating one from config.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.history = s }
}

// WithMetrics injects a metrics instance instead of using the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithRefiner injects a fully built refinement orchestrator.
func WithRefiner(o *refine.Orchestrator) Option {
	return func(a *App) { a.refiner = o }
}

// WithConfigFile enables hot reload of the config file at path.
func WithConfigFile(path string) Option {
	return func(a *App) { a.cfgPath = path }
}

// WithLogLevel hands the app the level var behind the process logger so a
// config reload can change verbosity at runtime.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithVersion sets the version string reported by the health endpoints.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithTranscriptGrace overrides how long a stopped session waits for an
// externally submitted transcript. Mainly for tests.
func WithTranscriptGrace(d time.Duration) Option {
	return func(a *App) { a.grace = d }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry); ports carry the OS
// capabilities of the embedding process. Use Option functions to inject test
// doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, ports *Ports, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if providers == nil {
		providers = &Providers{}
	}
	if ports == nil {
		ports = &Ports{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		ports:     ports,
		version:   "dev",
		grace:     defaultTranscriptGrace,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Preferences ───────────────────────────────────────────────────
	if err := a.initPrefs(); err != nil {
		return nil, fmt.Errorf("app: init prefs: %w", err)
	}

	// ── 2. Metrics ───────────────────────────────────────────────────────
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 3. History store ─────────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 4. Refinement pipeline ───────────────────────────────────────────
	a.initRefine()

	// ── 5. Insertion and focus probing ───────────────────────────────────
	a.initInsertion()

	// ── 6. Voice commands ────────────────────────────────────────────────
	a.commands = voicecmd.New()

	// ── 7. Session controller ────────────────────────────────────────────
	a.controller = session.NewController(a.probe, frontend{app: a}, a.ports.Notifier)

	// ── 8. Control server ────────────────────────────────────────────────
	a.health = health.New(a.version)
	// The Postgres-backed history store exposes Ping; the in-memory ring
	// has nothing that can fail.
	if pinger, ok := a.history.(interface{ Ping(context.Context) error }); ok {
		a.health.Add("history", pinger.Ping)
	}
	a.control = ctlserver.New(a.controller, a, a.health, a.metrics)
	// Providers that mint browser tokens (ElevenLabs) let external capture
	// frontends stream to the vendor without holding the API key.
	if iss, ok := a.providers.STT.(stt.TokenIssuer); ok {
		a.control.SetTokenIssuer(iss)
	}

	// ── 9. Config watcher ────────────────────────────────────────────────
	if err := a.initWatcher(); err != nil {
		return nil, fmt.Errorf("app: init config watcher: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initPrefs opens the per-user preferences file unless a store was injected.
func (a *App) initPrefs() error {
	if a.prefs != nil {
		return nil
	}
	store, err := prefs.OpenDefault()
	if err != nil {
		return err
	}
	a.prefs = store
	return nil
}

// initHistory sets up the dictation history store: Postgres when a DSN is
// configured, the in-memory ring otherwise.
func (a *App) initHistory(ctx context.Context) error {
	if a.history != nil {
		return nil
	}

	dsn := a.cfg.History.PostgresDSN
	if dsn == "" {
		a.history = history.NewRing(a.cfg.History.MaxEntries)
		return nil
	}

	store, err := postgres.NewStore(ctx, dsn, a.providers.Embeddings, a.cfg.History.EmbeddingDimensions)
	if err != nil {
		return err
	}
	a.history = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	slog.Info("history: using postgres store", "semantic_search", a.providers.Embeddings != nil)

	if a.providers.Embeddings != nil {
		// Rows recorded while the embedding backend was down carry no
		// vector. Re-embed them off the startup path.
		go func() {
			n, err := store.Backfill(ctx, 0)
			switch {
			case err != nil:
				slog.Debug("history: embedding backfill stopped", "rows", n, "error", err)
			case n > 0:
				slog.Info("history: backfilled embeddings", "rows", n)
			}
		}()
	}
	return nil
}

// initRefine builds the refinement orchestrator over the breaker-guarded
// client set unless one was injected.
func (a *App) initRefine() {
	if a.refiner != nil {
		return
	}
	a.refiner = refine.New(a.prefs, newClientSet(a.providers.Chat, a.prefs),
		refine.WithMetrics(a.metrics))
}

// initInsertion builds the paste sequencer and the focus prober. Missing OS
// ports are replaced with unsupported stubs so the pipeline degrades instead
// of panicking.
func (a *App) initInsertion() {
	clip := a.ports.Clipboard
	if clip == nil {
		clip = paste.UnsupportedClipboard{}
	}
	inj := a.ports.Keystroke
	if inj == nil {
		inj = paste.UnsupportedInjector{}
	}
	a.ports.Clipboard = clip
	a.ports.Keystroke = inj

	a.mu.Lock()
	a.sequencer = newSequencer(clip, inj, a.cfg.Paste)
	a.mu.Unlock()

	a.probe = focus.NewProber(clip)
}

// initWatcher starts the config file watcher when a path was provided.
func (a *App) initWatcher() error {
	if a.cfgPath == "" {
		return nil
	}
	w, err := config.NewWatcher(a.cfgPath, a.onConfigChange)
	if err != nil {
		return err
	}
	a.watcher = w
	a.closers = append(a.closers, w.Close)
	return nil
}

// newSequencer builds a paste sequencer from the configured delays, keeping
// the package defaults for any delay left at zero.
func newSequencer(clip paste.Clipboard, inj paste.KeystrokeInjector, pc config.PasteConfig) *paste.Sequencer {
	settle := paste.DefaultSettleDelay
	if pc.SettleMS > 0 {
		settle = time.Duration(pc.SettleMS) * time.Millisecond
	}
	process := paste.DefaultProcessDelay
	if pc.ProcessMS > 0 {
		process = time.Duration(pc.ProcessMS) * time.Millisecond
	}
	return paste.NewSequencer(clip, inj, paste.WithDelays(settle, process))
}

// onConfigChange applies what can be applied at runtime and warns about the
// rest. Runs on the watcher goroutine.
func (a *App) onConfigChange(prev, next *config.Config) {
	d := config.Diff(prev, next)
	if d.Empty() {
		return
	}
	slog.Info("config file changed, applying reloadable settings")

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(logLevelFor(d.NewLogLevel))
		slog.Info("log level updated", "level", d.NewLogLevel)
	}
	if d.PasteChanged {
		a.mu.Lock()
		a.sequencer = newSequencer(a.ports.Clipboard, a.ports.Keystroke, next.Paste)
		a.mu.Unlock()
		slog.Info("paste delays updated",
			"settle_ms", next.Paste.SettleMS,
			"process_ms", next.Paste.ProcessMS,
		)
	}
	// Providers are resolved through the registry at startup, so a changed
	// entry only takes effect on the next run.
	for _, kind := range d.ProvidersChanged {
		slog.Warn("provider settings changed; restart the daemon to apply them", "provider", kind)
	}
	if d.RestartRequired {
		slog.Warn("listen address or history settings changed; restart the daemon to apply them")
	}

	a.mu.Lock()
	a.cfg = next
	a.mu.Unlock()
}

// logLevelFor maps a config log level onto its slog equivalent.
func logLevelFor(l config.LogLevel) slog.Level {
	switch l {
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

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the control surface and blocks until ctx is cancelled. Capture
// goroutines started by the session controller inherit ctx, so cancelling it
// also winds down a dictation in flight; Run waits for that tail before
// returning.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	a.runCtx = ctx
	a.mu.Unlock()

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		slog.Info("app running without a control server; only submitted transcripts are processed")
		<-ctx.Done()
		a.captures.Wait()
		return ctx.Err()
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           a.control.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("control server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: control server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("app: control server shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	a.captures.Wait()
	if err != nil {
		return err
	}
	return ctx.Err()
}

// Controller exposes the session controller, primarily so embedding processes
// can drive the lifecycle directly instead of going through the HTTP surface.
func (a *App) Controller() *session.Controller {
	return a.controller
}

// runContext returns the context Run was started with, nil before Run.
func (a *App) runContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runCtx
}

// paster returns the current paste sequencer. Config reloads swap it out.
func (a *App) paster() *paste.Sequencer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sequencer
}

// notify shows a transient user-facing notice when a notifier port is wired.
func (a *App) notify(message string) {
	if a.ports.Notifier != nil {
		a.ports.Notifier.Notify(message)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
