// Package session guards the dictation capture lifecycle.
//
// A dictation session moves through four phases: Inactive, Starting,
// Recording, Stopping. The [Controller] owns that phase exclusively; every
// other component observes or changes it only through the controller's API.
// The guarded transition from Inactive to Starting is what prevents two
// rapid toggle presses from opening overlapping capture sessions.
//
// Each accepted start mints a session [ID]. Work that completes
// asynchronously (refinement, insertion) carries the ID it was started
// under and is discarded when it no longer matches the live session, so a
// reset mid-flight can never paste a stale transcript.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the capture phase of the dictation lifecycle.
type State int

const (
	// Inactive means no capture is underway.
	Inactive State = iota

	// Starting means a start was accepted and the frontend is bringing up
	// the microphone and the STT stream.
	Starting

	// Recording means audio capture is live.
	Recording

	// Stopping means capture ended and the transcript is being finalized,
	// refined, and inserted.
	Stopping
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Starting:
		return "starting"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ID identifies one dictation attempt. IDs increase monotonically per
// controller; zero never identifies a live session.
type ID uint64

// ErrNoFocusTarget is returned by [Controller.Start] when the focus probe
// reports that no text field can receive input.
var ErrNoFocusTarget = errors.New("session: no text field is focused")

// ErrNotActive is returned by [Controller.Stop] when no capture is underway.
var ErrNotActive = errors.New("session: no dictation in progress")

// AlreadyActiveError reports a start request while a session is underway.
// State is the phase the controller was in when the request arrived.
type AlreadyActiveError struct {
	State State
}

func (e *AlreadyActiveError) Error() string {
	return fmt.Sprintf("session: dictation already active (%s)", e.State)
}

// FocusProbe checks whether the focused UI element can accept inserted
// text. Implementations may be slow; the controller never holds its lock
// across the probe.
type FocusProbe interface {
	CanAcceptText(ctx context.Context) (bool, error)
}

// Frontend is the capture surface: it renders the recording indicator and
// hosts the microphone and the STT stream. Implementations must not block;
// both methods are fire-and-forget signals.
type Frontend interface {
	// Begin shows the capture indicator and starts audio capture for the
	// given session.
	Begin(id ID)

	// Finalize hides the indicator immediately and asks the recognition
	// layer to deliver the session's final transcript.
	Finalize(id ID)
}

// Notifier shows transient user-facing notices ("No text field is
// focused"). Implementations must not block. A nil Notifier is allowed.
type Notifier interface {
	Notify(message string)
}

// Controller is the dictation lifecycle state machine. All methods are safe
// for concurrent use. The lock is held only for state reads and writes,
// never across the focus probe or any other external call.
type Controller struct {
	probe    FocusProbe
	frontend Frontend
	notifier Notifier

	mu      sync.Mutex
	state   State
	id      ID // live session, 0 when state is Inactive
	nextID  uint64
	started time.Time // set when recording begins
}

// NewController returns an idle [Controller]. notifier may be nil.
func NewController(probe FocusProbe, frontend Frontend, notifier Notifier) *Controller {
	return &Controller{
		probe:    probe,
		frontend: frontend,
		notifier: notifier,
	}
}

// Start begins a new dictation session.
//
// The transition to Starting is committed before the focus probe runs, so a
// concurrent Start can never also observe Inactive. When the probe reports
// no focused text field the controller reverts to Inactive, fires a
// notification, and returns [ErrNoFocusTarget]. A probe error is treated as
// "focus available": failing open keeps dictation usable on platforms where
// the probe is unreliable.
//
// On success the frontend is signalled to begin capture and the new session
// ID is returned. The controller stays in Starting until
// [Controller.NotifyRecording].
func (c *Controller) Start(ctx context.Context) (ID, error) {
	c.mu.Lock()
	if c.state != Inactive {
		st := c.state
		c.mu.Unlock()
		slog.Debug("session: rejecting duplicate start", "state", st)
		return 0, &AlreadyActiveError{State: st}
	}
	c.state = Starting
	c.nextID++
	id := ID(c.nextID)
	c.id = id
	c.mu.Unlock()

	ok, err := c.probe.CanAcceptText(ctx)
	if err != nil {
		slog.Warn("session: focus probe failed, assuming focus is available", "error", err)
		ok = true
	}
	if !ok {
		c.reset(id)
		c.notify("No text field is focused")
		slog.Info("session: start aborted, no focus target", "session_id", id)
		return 0, ErrNoFocusTarget
	}

	c.frontend.Begin(id)
	slog.Info("session: dictation starting", "session_id", id)
	return id, nil
}

// Stop moves an in-progress capture to Stopping and signals the frontend to
// finalize the transcript. The indicator hides immediately; refinement and
// insertion continue in the background until [Controller.NotifyComplete].
//
// A Stop while already Stopping is accepted without re-signalling the
// frontend. A Stop while Inactive returns [ErrNotActive].
func (c *Controller) Stop() (ID, error) {
	c.mu.Lock()
	switch c.state {
	case Starting, Recording:
	case Stopping:
		id := c.id
		c.mu.Unlock()
		slog.Debug("session: stop requested while already stopping", "session_id", id)
		return id, nil
	default:
		c.mu.Unlock()
		return 0, ErrNotActive
	}
	c.state = Stopping
	id := c.id
	c.mu.Unlock()

	c.frontend.Finalize(id)
	slog.Info("session: stopping", "session_id", id)
	return id, nil
}

// Toggle starts a session when idle and stops it otherwise. It is the
// hotkey entry point.
func (c *Controller) Toggle(ctx context.Context) (ID, error) {
	if c.IsActive() {
		return c.Stop()
	}
	return c.Start(ctx)
}

// NotifyRecording records that the frontend actually began capturing audio
// for the given session: the start timestamp is taken and state moves from
// Starting to Recording. Notifications for a stale session, or duplicates,
// are advisory and ignored.
func (c *Controller) NotifyRecording(id ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != c.id {
		slog.Debug("session: ignoring recording notification for stale session",
			"session_id", id, "current", c.id)
		return
	}
	if c.state != Starting {
		slog.Debug("session: ignoring recording notification", "state", c.state)
		return
	}
	c.state = Recording
	c.started = time.Now()
	slog.Info("session: recording", "session_id", id)
}

// NotifyStopping records that the frontend began finalizing on its own, for
// example after a silence timeout. Unlike [Controller.Stop] it does not
// signal the frontend back. Stale or out-of-phase notifications are
// ignored.
func (c *Controller) NotifyStopping(id ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != c.id {
		slog.Debug("session: ignoring stopping notification for stale session",
			"session_id", id, "current", c.id)
		return
	}
	if c.state != Starting && c.state != Recording {
		slog.Debug("session: ignoring stopping notification", "state", c.state)
		return
	}
	c.state = Stopping
	slog.Info("session: stopping (frontend initiated)", "session_id", id)
}

// NotifyComplete resets the controller to Inactive regardless of its
// current state. Every pipeline outcome, inserted, discarded, or failed,
// funnels through here, so a missed transition can never wedge the
// controller. After the reset the previous session's ID is no longer
// current and late results carrying it are discarded.
func (c *Controller) NotifyComplete() {
	c.mu.Lock()
	prev := c.state
	id := c.id
	c.state = Inactive
	c.id = 0
	c.started = time.Time{}
	c.mu.Unlock()

	if prev != Inactive {
		slog.Info("session: complete", "session_id", id, "previous_state", prev)
	}
}

// IsActive reports whether any capture phase is underway. True for every
// state except Inactive, which keeps duplicate hotkey toggles from starting
// a second session while one is still finishing.
func (c *Controller) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != Inactive
}

// IsCurrent reports whether id identifies the live session. Callers acting
// on asynchronously produced results (a finished refinement, a transcript)
// must check this before inserting anything.
func (c *Controller) IsCurrent(id ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return id != 0 && id == c.id
}

// Status is a point-in-time view of the controller.
type Status struct {
	State State
	ID    ID // 0 when no session is live

	// Elapsed is the time since recording began, 0 before that.
	Elapsed time.Duration
}

// Status returns the current phase, session ID, and recording duration.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{State: c.state, ID: c.id}
	if !c.started.IsZero() {
		st.Elapsed = time.Since(c.started)
	}
	return st
}

// reset returns to Inactive if id still identifies the live session.
func (c *Controller) reset(id ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != c.id {
		return
	}
	c.state = Inactive
	c.id = 0
	c.started = time.Time{}
}

func (c *Controller) notify(message string) {
	if c.notifier != nil {
		c.notifier.Notify(message)
	}
}
