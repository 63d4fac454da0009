package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeProbe struct {
	fn func(ctx context.Context) (bool, error)
}

func (p *fakeProbe) CanAcceptText(ctx context.Context) (bool, error) {
	if p.fn != nil {
		return p.fn(ctx)
	}
	return true, nil
}

type fakeFrontend struct {
	mu        sync.Mutex
	begins    []ID
	finalizes []ID
}

func (f *fakeFrontend) Begin(id ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begins = append(f.begins, id)
}

func (f *fakeFrontend) Finalize(id ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalizes = append(f.finalizes, id)
}

func (f *fakeFrontend) beginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.begins)
}

func (f *fakeFrontend) finalizeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.finalizes)
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func newTestController() (*Controller, *fakeFrontend, *fakeNotifier) {
	frontend := &fakeFrontend{}
	notifier := &fakeNotifier{}
	c := NewController(&fakeProbe{}, frontend, notifier)
	return c, frontend, notifier
}

func mustStart(t *testing.T, c *Controller) ID {
	t.Helper()
	id, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	return id
}

func TestStartFromInactive(t *testing.T) {
	t.Parallel()
	c, frontend, _ := newTestController()

	id := mustStart(t, c)
	if id == 0 {
		t.Error("Start should return a non-zero session ID")
	}
	if got := c.Status().State; got != Starting {
		t.Errorf("state = %s, want starting", got)
	}
	if !c.IsActive() {
		t.Error("IsActive should be true after Start")
	}
	if frontend.beginCount() != 1 {
		t.Errorf("Begin called %d times, want 1", frontend.beginCount())
	}
}

func TestStartRejectedWhileActive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(t *testing.T, c *Controller) State
	}{
		{
			name: "while starting",
			setup: func(t *testing.T, c *Controller) State {
				mustStart(t, c)
				return Starting
			},
		},
		{
			name: "while recording",
			setup: func(t *testing.T, c *Controller) State {
				id := mustStart(t, c)
				c.NotifyRecording(id)
				return Recording
			},
		},
		{
			name: "while stopping",
			setup: func(t *testing.T, c *Controller) State {
				id := mustStart(t, c)
				c.NotifyRecording(id)
				if _, err := c.Stop(); err != nil {
					t.Fatalf("Stop returned error: %v", err)
				}
				return Stopping
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, frontend, _ := newTestController()
			wantState := tt.setup(t, c)
			before := frontend.beginCount()

			_, err := c.Start(context.Background())
			var active *AlreadyActiveError
			if !errors.As(err, &active) {
				t.Fatalf("error = %v, want AlreadyActiveError", err)
			}
			if active.State != wantState {
				t.Errorf("reported state = %s, want %s", active.State, wantState)
			}
			if frontend.beginCount() != before {
				t.Error("rejected start must not signal the frontend")
			}
		})
	}
}

func TestConcurrentStartsOnlyOneWins(t *testing.T) {
	t.Parallel()
	c, frontend, _ := newTestController()

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	release := make(chan struct{})

	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-release
			_, err := c.Start(context.Background())
			results <- err
		}()
	}
	close(release)
	wg.Wait()
	close(results)

	var ok, rejected int
	for err := range results {
		switch {
		case err == nil:
			ok++
		default:
			var active *AlreadyActiveError
			if !errors.As(err, &active) {
				t.Errorf("unexpected error type: %v", err)
			}
			rejected++
		}
	}
	if ok != 1 {
		t.Errorf("%d starts succeeded, want exactly 1", ok)
	}
	if rejected != attempts-1 {
		t.Errorf("%d starts rejected, want %d", rejected, attempts-1)
	}
	if frontend.beginCount() != 1 {
		t.Errorf("Begin called %d times, want 1", frontend.beginCount())
	}
}

func TestStartNoFocusTarget(t *testing.T) {
	t.Parallel()
	frontend := &fakeFrontend{}
	notifier := &fakeNotifier{}
	probe := &fakeProbe{fn: func(context.Context) (bool, error) { return false, nil }}
	c := NewController(probe, frontend, notifier)

	_, err := c.Start(context.Background())
	if !errors.Is(err, ErrNoFocusTarget) {
		t.Fatalf("error = %v, want ErrNoFocusTarget", err)
	}
	if c.IsActive() {
		t.Error("controller should revert to inactive when the probe declines")
	}
	if frontend.beginCount() != 0 {
		t.Error("frontend must not be signalled without a focus target")
	}
	notifier.mu.Lock()
	gotNotice := len(notifier.messages) == 1
	notifier.mu.Unlock()
	if !gotNotice {
		t.Error("a user notice should fire when no text field is focused")
	}

	// The controller must be usable again immediately.
	mustStart(t, c)
}

func TestStartProbeErrorFailsOpen(t *testing.T) {
	t.Parallel()
	frontend := &fakeFrontend{}
	probe := &fakeProbe{fn: func(context.Context) (bool, error) {
		return false, errors.New("probe exploded")
	}}
	c := NewController(probe, frontend, nil)

	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start should succeed when the probe errors, got: %v", err)
	}
	if frontend.beginCount() != 1 {
		t.Errorf("Begin called %d times, want 1", frontend.beginCount())
	}
}

func TestNotifyRecording(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestController()

	id := mustStart(t, c)
	c.NotifyRecording(id)

	st := c.Status()
	if st.State != Recording {
		t.Errorf("state = %s, want recording", st.State)
	}

	time.Sleep(10 * time.Millisecond)
	if got := c.Status().Elapsed; got <= 0 {
		t.Errorf("elapsed = %v, want > 0 after recording began", got)
	}
}

func TestNotifyRecordingStaleSessionIgnored(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestController()

	stale := mustStart(t, c)
	c.NotifyComplete()
	fresh := mustStart(t, c)

	c.NotifyRecording(stale)
	if got := c.Status().State; got != Starting {
		t.Errorf("state = %s, want starting (stale notification must be ignored)", got)
	}
	c.NotifyRecording(fresh)
	if got := c.Status().State; got != Recording {
		t.Errorf("state = %s, want recording", got)
	}
}

func TestNotifyRecordingDuplicateKeepsTimestamp(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestController()

	id := mustStart(t, c)
	c.NotifyRecording(id)
	time.Sleep(20 * time.Millisecond)

	before := c.Status().Elapsed
	c.NotifyRecording(id)
	after := c.Status().Elapsed

	if after < before {
		t.Errorf("elapsed shrank from %v to %v; duplicate notification must not reset the clock", before, after)
	}
}

func TestStopFromRecording(t *testing.T) {
	t.Parallel()
	c, frontend, _ := newTestController()

	id := mustStart(t, c)
	c.NotifyRecording(id)

	stopped, err := c.Stop()
	if err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if stopped != id {
		t.Errorf("Stop returned ID %d, want %d", stopped, id)
	}
	if got := c.Status().State; got != Stopping {
		t.Errorf("state = %s, want stopping", got)
	}
	if frontend.finalizeCount() != 1 {
		t.Errorf("Finalize called %d times, want 1", frontend.finalizeCount())
	}
}

func TestStopFromStarting(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestController()

	mustStart(t, c)
	if _, err := c.Stop(); err != nil {
		t.Fatalf("Stop from starting returned error: %v", err)
	}
	if got := c.Status().State; got != Stopping {
		t.Errorf("state = %s, want stopping", got)
	}
}

func TestStopWhileStoppingDoesNotResignal(t *testing.T) {
	t.Parallel()
	c, frontend, _ := newTestController()

	id := mustStart(t, c)
	c.NotifyRecording(id)
	if _, err := c.Stop(); err != nil {
		t.Fatal(err)
	}

	again, err := c.Stop()
	if err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}
	if again != id {
		t.Errorf("second Stop returned ID %d, want %d", again, id)
	}
	if frontend.finalizeCount() != 1 {
		t.Errorf("Finalize called %d times, want 1", frontend.finalizeCount())
	}
}

func TestStopWhenInactive(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestController()

	if _, err := c.Stop(); !errors.Is(err, ErrNotActive) {
		t.Errorf("error = %v, want ErrNotActive", err)
	}
}

func TestNotifyStopping(t *testing.T) {
	t.Parallel()
	c, frontend, _ := newTestController()

	id := mustStart(t, c)
	c.NotifyRecording(id)
	c.NotifyStopping(id)

	if got := c.Status().State; got != Stopping {
		t.Errorf("state = %s, want stopping", got)
	}
	if frontend.finalizeCount() != 0 {
		t.Error("NotifyStopping must not signal the frontend back")
	}

	// Out-of-phase notification is ignored.
	c.NotifyComplete()
	c.NotifyStopping(id)
	if got := c.Status().State; got != Inactive {
		t.Errorf("state = %s, want inactive", got)
	}
}

func TestNotifyCompleteAlwaysResets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(t *testing.T, c *Controller)
	}{
		{name: "from inactive", setup: func(t *testing.T, c *Controller) {}},
		{name: "from starting", setup: func(t *testing.T, c *Controller) {
			mustStart(t, c)
		}},
		{name: "from recording", setup: func(t *testing.T, c *Controller) {
			c.NotifyRecording(mustStart(t, c))
		}},
		{name: "from stopping", setup: func(t *testing.T, c *Controller) {
			c.NotifyRecording(mustStart(t, c))
			if _, err := c.Stop(); err != nil {
				t.Fatal(err)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, _, _ := newTestController()
			tt.setup(t, c)

			c.NotifyComplete()

			st := c.Status()
			if st.State != Inactive {
				t.Errorf("state = %s, want inactive", st.State)
			}
			if st.ID != 0 {
				t.Errorf("ID = %d, want 0", st.ID)
			}
			if st.Elapsed != 0 {
				t.Errorf("elapsed = %v, want 0", st.Elapsed)
			}
			if c.IsActive() {
				t.Error("IsActive should be false after NotifyComplete")
			}
		})
	}
}

func TestIsCurrent(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestController()

	if c.IsCurrent(0) {
		t.Error("IsCurrent(0) should always be false")
	}

	id := mustStart(t, c)
	if !c.IsCurrent(id) {
		t.Error("live session ID should be current")
	}

	c.NotifyComplete()
	if c.IsCurrent(id) {
		t.Error("completed session ID must no longer be current, its late results are stale")
	}

	next := mustStart(t, c)
	if c.IsCurrent(id) {
		t.Error("previous session ID must not match the new session")
	}
	if !c.IsCurrent(next) {
		t.Error("new session ID should be current")
	}
}

func TestSessionIDsIncrease(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestController()

	first := mustStart(t, c)
	c.NotifyComplete()
	second := mustStart(t, c)

	if second <= first {
		t.Errorf("session IDs should increase: first=%d second=%d", first, second)
	}
}

func TestToggle(t *testing.T) {
	t.Parallel()
	c, frontend, _ := newTestController()

	if _, err := c.Toggle(context.Background()); err != nil {
		t.Fatalf("first Toggle returned error: %v", err)
	}
	if got := c.Status().State; got != Starting {
		t.Errorf("state after first toggle = %s, want starting", got)
	}

	if _, err := c.Toggle(context.Background()); err != nil {
		t.Fatalf("second Toggle returned error: %v", err)
	}
	if got := c.Status().State; got != Stopping {
		t.Errorf("state after second toggle = %s, want stopping", got)
	}
	if frontend.beginCount() != 1 || frontend.finalizeCount() != 1 {
		t.Errorf("begin/finalize = %d/%d, want 1/1", frontend.beginCount(), frontend.finalizeCount())
	}
}
