package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/voxtype/internal/history"
	"github.com/MrWong99/voxtype/internal/observe"
	"github.com/MrWong99/voxtype/internal/prefs"
	"github.com/MrWong99/voxtype/internal/session"
	"github.com/MrWong99/voxtype/internal/voicecmd"
	"github.com/MrWong99/voxtype/pkg/audio"
	"github.com/MrWong99/voxtype/pkg/provider/chat"
	"github.com/MrWong99/voxtype/pkg/provider/stt"
)

// sttSampleRate and sttChannels are the stream format sent to transcription
// vendors. The converter normalizes whatever the capture adapter delivers.
const (
	sttSampleRate = 16000
	sttChannels   = 1
)

// defaultTranscriptGrace is how long a stopped session waits for a
// transcript from an external capture frontend. External frontends flush
// their vendor stream before posting, which can take a few seconds.
const defaultTranscriptGrace = 30 * time.Second

// frontend adapts the App to [session.Frontend]. Begin and Finalize must not
// block; the capture work runs on its own goroutine.
type frontend struct {
	app *App
}

var _ session.Frontend = frontend{}

func (f frontend) Begin(id session.ID) {
	f.app.captures.Add(1)
	go func() {
		defer f.app.captures.Done()
		f.app.beginCapture(id)
	}()
}

func (f frontend) Finalize(id session.ID) {
	f.app.finalizeCapture(id)
}

// captureState tracks one live capture goroutine.
type captureState struct {
	id       session.ID
	stop     chan struct{}
	stopOnce sync.Once

	// transcript receives an externally submitted final transcript.
	transcript chan string
}

func (st *captureState) requestStop() {
	st.stopOnce.Do(func() { close(st.stop) })
}

// beginCapture runs one dictation from capture start to completion. Whatever
// happens along the way, the controller is reset when it returns.
func (a *App) beginCapture(id session.ID) {
	ctx := a.runContext()
	if ctx == nil {
		slog.Warn("app: capture requested before Run, completing session", "session_id", id)
		a.controller.NotifyComplete()
		return
	}

	st := &captureState{
		id:         id,
		stop:       make(chan struct{}),
		transcript: make(chan string, 1),
	}
	a.mu.Lock()
	a.capture = st
	a.mu.Unlock()

	started := time.Now()
	a.metrics.RecordingActive.Add(ctx, 1)
	defer func() {
		a.metrics.RecordingActive.Add(ctx, -1)
		a.metrics.SessionDuration.Record(ctx, time.Since(started).Seconds())
		a.mu.Lock()
		if a.capture == st {
			a.capture = nil
		}
		a.mu.Unlock()
		a.controller.NotifyComplete()
	}()

	if a.providers.Source == nil {
		a.awaitExternalTranscript(ctx, st)
		return
	}

	raw, captureDur, ok := a.captureAndTranscribe(ctx, st)
	if !ok {
		return
	}
	a.deliver(ctx, st.id, raw, captureDur)
}

// finalizeCapture signals the live capture goroutine to stop pumping audio
// and flush the transcript. Stale ids are ignored.
func (a *App) finalizeCapture(id session.ID) {
	a.mu.Lock()
	st := a.capture
	a.mu.Unlock()
	if st == nil || st.id != id {
		slog.Debug("app: ignoring finalize for unknown session", "session_id", id)
		return
	}
	st.requestStop()
}

// captureAndTranscribe runs the in-daemon capture loop: microphone frames
// are converted to the stream format and pumped into a reconnecting
// transcription session until the session stops, the source ends, or ctx is
// cancelled. Returns the assembled raw transcript and how long recording ran.
func (a *App) captureAndTranscribe(ctx context.Context, st *captureState) (string, time.Duration, bool) {
	if a.providers.STT == nil {
		slog.Error("app: no stt provider configured", "session_id", st.id)
		a.notify("Speech recognition is not configured")
		a.metrics.RecordSession(ctx, "failed")
		return "", 0, false
	}

	capture, err := a.providers.Source.Open(ctx)
	if err != nil {
		slog.Error("app: open capture source", "session_id", st.id, "error", err)
		a.notify("Microphone capture failed")
		a.metrics.RecordSession(ctx, "failed")
		return "", 0, false
	}

	// Transcript collection. Every (re)connected session gets a pair of
	// goroutines: one draining partials, one appending finals.
	var (
		tm          sync.Mutex
		parts       []string
		wg          sync.WaitGroup
		collectDone bool
	)
	collect := func(sess stt.SessionHandle) {
		tm.Lock()
		if collectDone {
			tm.Unlock()
			go audio.Drain(sess.Partials())
			go audio.Drain(sess.Finals())
			return
		}
		wg.Add(2)
		tm.Unlock()
		go func() {
			defer wg.Done()
			audio.Drain(sess.Partials())
		}()
		go func() {
			defer wg.Done()
			for t := range sess.Finals() {
				text := strings.TrimSpace(t.Text)
				if text == "" {
					continue
				}
				tm.Lock()
				parts = append(parts, text)
				tm.Unlock()
			}
		}()
	}

	rec := stt.NewReconnector(stt.ReconnectorConfig{
		Provider: a.providers.STT,
		Stream: stt.StreamConfig{
			SampleRate: sttSampleRate,
			Channels:   sttChannels,
			Language:   a.language(),
		},
		OnReconnect: func(sess stt.SessionHandle) {
			a.metrics.STTReconnects.Add(ctx, 1)
			collect(sess)
		},
	})
	sess, err := rec.Connect(ctx)
	if err != nil {
		_ = capture.Close()
		slog.Error("app: start transcription stream", "session_id", st.id, "error", err)
		a.notify("Could not reach the transcription service")
		a.metrics.RecordProviderRequest(ctx, a.sttProviderName(), "stt", "error")
		a.metrics.RecordProviderError(ctx, a.sttProviderName(), "stt")
		a.metrics.RecordSession(ctx, "failed")
		return "", 0, false
	}
	a.metrics.RecordProviderRequest(ctx, a.sttProviderName(), "stt", "ok")
	rec.Monitor(ctx)
	collect(sess)

	a.controller.NotifyRecording(st.id)
	recordingStart := time.Now()

	frames := audio.ConvertStream(capture.Frames(), audio.Format{
		SampleRate: sttSampleRate,
		Channels:   sttChannels,
	})

pump:
	for {
		select {
		case <-ctx.Done():
			break pump
		case <-st.stop:
			break pump
		case frame, ok := <-frames:
			if !ok {
				// The capture adapter ended on its own (device unplugged,
				// fixture exhausted). Finalize as if the user stopped.
				a.controller.NotifyStopping(st.id)
				break pump
			}
			if s := rec.Session(); s != nil {
				if err := s.SendAudio(frame.Data); err != nil {
					slog.Warn("app: sending audio failed, requesting reconnect", "error", err)
					rec.NotifyDisconnect()
				}
			}
		}
	}

	captureDur := time.Since(recordingStart)
	flushStart := time.Now()

	_ = capture.Close()
	// Forward the tail buffered between the stop signal and the source
	// close; it usually holds the end of the last word.
	for frame := range frames {
		if s := rec.Session(); s != nil {
			_ = s.SendAudio(frame.Data)
		}
	}

	tm.Lock()
	collectDone = true
	tm.Unlock()
	if err := rec.Stop(); err != nil {
		slog.Debug("app: closing transcription stream", "error", err)
	}
	// A reconnect that raced Stop can leave a fresh session behind.
	if s := rec.Session(); s != nil {
		_ = s.Close()
	}
	wg.Wait()

	a.metrics.STTDuration.Record(ctx, time.Since(flushStart).Seconds())

	if ctx.Err() != nil {
		slog.Info("app: capture aborted by shutdown", "session_id", st.id)
		a.metrics.RecordSession(ctx, "discarded")
		return "", 0, false
	}

	tm.Lock()
	raw := strings.Join(parts, " ")
	tm.Unlock()
	return raw, captureDur, true
}

// awaitExternalTranscript handles a session whose capture runs out of
// process: the external frontend streams to the vendor itself and posts the
// final transcript on the control surface when it is done.
func (a *App) awaitExternalTranscript(ctx context.Context, st *captureState) {
	a.controller.NotifyRecording(st.id)
	recordingStart := time.Now()

	select {
	case <-ctx.Done():
	case text := <-st.transcript:
		// The frontend finished on its own, e.g. after a silence timeout.
		a.controller.NotifyStopping(st.id)
		a.deliver(ctx, st.id, text, time.Since(recordingStart))
	case <-st.stop:
		captureDur := time.Since(recordingStart)
		timer := time.NewTimer(a.grace)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case text := <-st.transcript:
			a.deliver(ctx, st.id, text, captureDur)
		case <-timer.C:
			slog.Warn("app: no transcript submitted after stop, completing session",
				"session_id", st.id, "grace", a.grace)
			a.metrics.RecordSession(ctx, "empty")
		}
	}
}

// SubmitTranscript implements [ctlserver.TranscriptSink]. External capture
// frontends deliver their final transcript here; it flows through the same
// delivery pipeline as in-daemon capture. The session must still be live.
func (a *App) SubmitTranscript(id session.ID, text string) error {
	if a.providers.Source != nil {
		return fmt.Errorf("app: transcript for session %d rejected, capture runs in the daemon: %w",
			id, session.ErrNotActive)
	}

	a.mu.Lock()
	st := a.capture
	a.mu.Unlock()

	if st == nil || st.id != id || !a.controller.IsCurrent(id) {
		return fmt.Errorf("app: transcript for session %d: %w", id, session.ErrNotActive)
	}
	select {
	case st.transcript <- text:
		return nil
	default:
		return fmt.Errorf("app: session %d already received a transcript: %w", id, session.ErrNotActive)
	}
}

// deliver runs the post-capture pipeline: voice-command filtering, AI
// refinement, insertion, history. Called with the raw final transcript after
// capture has fully stopped. The span opened here is the root of the
// dictation trace; its ID correlates every log line of the delivery.
func (a *App) deliver(ctx context.Context, id session.ID, raw string, captureDur time.Duration) {
	ctx, span := observe.StartSpan(ctx, "dictation.deliver")
	defer span.End()
	log := observe.Logger(ctx)

	raw = strings.TrimSpace(raw)
	if raw == "" {
		log.Info("app: empty transcript, nothing to insert", "session_id", id)
		a.metrics.RecordSession(ctx, "empty")
		return
	}

	cmd := a.commands.Check(raw)
	if cmd.Action != voicecmd.None {
		a.metrics.RecordVoiceCommand(ctx, cmd.Action.String())
	}
	if cmd.Action == voicecmd.Discard {
		log.Info("app: transcript discarded by voice command", "session_id", id)
		a.metrics.RecordSession(ctx, "discarded")
		return
	}
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		log.Info("app: nothing left after control phrase", "session_id", id)
		a.metrics.RecordSession(ctx, "empty")
		return
	}

	behavior, err := a.prefs.Behavior()
	if err != nil {
		log.Warn("app: reading behavior prefs failed, using defaults", "error", err)
		behavior = prefs.DefaultBehavior()
	}

	refineStart := time.Now()
	res, err := a.refiner.Refine(ctx, text, "")
	a.metrics.RefineDuration.Record(ctx, time.Since(refineStart).Seconds())
	if err != nil {
		// Provider failures are configuration problems the user must see,
		// not something to paper over with raw text.
		log.Error("app: refinement failed", "session_id", id, "error", err)
		a.metrics.RecordProviderError(ctx, string(chat.Resolve(behavior.AIProvider, chat.OpenRouter)), "chat")
		a.metrics.RecordSession(ctx, "failed")
		a.notify("AI refinement failed; check your provider settings")
		return
	}
	if res.Fallback && behavior.AIRefine {
		a.metrics.RecordRefineFallback(ctx, "validation")
	}

	if !a.controller.IsCurrent(id) {
		log.Info("app: dropping result for superseded session", "session_id", id)
		a.metrics.RecordSession(ctx, "discarded")
		return
	}

	if behavior.AutoPaste {
		pasteStart := time.Now()
		injected, err := a.paster().Insert(ctx, res.Text)
		a.metrics.PasteDuration.Record(ctx, time.Since(pasteStart).Seconds())
		if err != nil {
			log.Error("app: inserting text failed", "session_id", id, "error", err)
			a.metrics.RecordSession(ctx, "failed")
			a.notify("Inserting the dictated text failed")
			return
		}
		if !injected {
			a.notify("Dictated text copied to the clipboard")
		}
	} else {
		if err := a.ports.Clipboard.WriteText(res.Text); err != nil {
			log.Error("app: writing clipboard failed", "session_id", id, "error", err)
			a.metrics.RecordSession(ctx, "failed")
			a.notify("Copying the dictated text failed")
			return
		}
		log.Debug("app: auto paste disabled, text left on clipboard", "session_id", id)
	}

	providerName := ""
	if behavior.AIRefine {
		providerName = string(chat.Resolve(behavior.AIProvider, chat.OpenRouter))
	}
	if err := a.history.Record(ctx, history.Entry{
		RawText:   raw,
		FinalText: res.Text,
		Provider:  providerName,
		Fallback:  res.Fallback,
		Duration:  captureDur,
	}); err != nil {
		log.Warn("app: recording history failed", "error", err)
	}

	a.metrics.RecordSession(ctx, "pasted")
	log.Info("app: dictation delivered",
		"session_id", id,
		"chars", len(res.Text),
		"fallback", res.Fallback,
	)
}

// language returns the user's transcription language preference, empty for
// vendor auto-detection.
func (a *App) language() string {
	f, err := a.prefs.Load()
	if err != nil {
		return ""
	}
	return f.Language
}

// sttProviderName names the transcription vendor for metric attribution.
func (a *App) sttProviderName() string {
	b, err := a.prefs.Behavior()
	if err == nil && b.STTProvider != "" {
		return b.STTProvider
	}
	return a.cfg.Providers.STT.Name
}
