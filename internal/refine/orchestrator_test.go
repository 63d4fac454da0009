package refine

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voxtype/internal/prefs"
	"github.com/MrWong99/voxtype/pkg/provider/chat"
	chatmock "github.com/MrWong99/voxtype/pkg/provider/chat/mock"
)

type stubPrefs struct {
	behavior prefs.Behavior
	err      error
	models   map[chat.Name]string
}

func (s *stubPrefs) Behavior() (prefs.Behavior, error) {
	return s.behavior, s.err
}

func (s *stubPrefs) ModelID(provider chat.Name) string {
	if m, ok := s.models[provider]; ok {
		return m
	}
	return "test-model"
}

type stubClients struct {
	clients map[chat.Name]chat.Client
	err     error
	asked   []chat.Name
}

func (s *stubClients) ClientFor(name chat.Name) (chat.Client, error) {
	s.asked = append(s.asked, name)
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.clients[name]
	if !ok {
		return nil, errors.New("no client for " + string(name))
	}
	return c, nil
}

// newTestOrchestrator wires an orchestrator with a single mock backend
// registered under every valid name, so provider resolution can be observed
// via stubClients.asked.
func newTestOrchestrator(behavior prefs.Behavior, client chat.Client) (*Orchestrator, *stubClients) {
	clients := &stubClients{clients: map[chat.Name]chat.Client{
		chat.OpenRouter: client,
		chat.MegaLLM:    client,
		chat.Local:      client,
	}}
	o := New(&stubPrefs{behavior: behavior}, clients)
	return o, clients
}

func enabledBehavior() prefs.Behavior {
	b := prefs.DefaultBehavior()
	b.AIRefine = true
	return b
}

func TestRefineDisabledSkipsProvider(t *testing.T) {
	t.Parallel()

	b := prefs.DefaultBehavior()
	b.AIRefine = false
	client := &chatmock.Client{}
	o, clients := newTestOrchestrator(b, client)

	got, err := o.Refine(context.Background(), "hello comma world", "")
	if err != nil {
		t.Fatalf("Refine returned error: %v", err)
	}
	if got.Text != "hello, world" {
		t.Errorf("text = %q, want %q", got.Text, "hello, world")
	}
	if !got.Fallback {
		t.Error("result should be marked as fallback when AI is disabled")
	}
	if len(client.CompleteCalls) != 0 {
		t.Errorf("Complete was called %d times, want 0", len(client.CompleteCalls))
	}
	if len(clients.asked) != 0 {
		t.Errorf("ClientFor was called %d times, want 0", len(clients.asked))
	}
}

func TestRefineSendsSymbolReplacedText(t *testing.T) {
	t.Parallel()

	client := &chatmock.Client{Response: chat.Response{Content: "Hello, world."}}
	o, _ := newTestOrchestrator(enabledBehavior(), client)

	got, err := o.Refine(context.Background(), "hello comma world", "")
	if err != nil {
		t.Fatalf("Refine returned error: %v", err)
	}
	if got.Text != "Hello, world." {
		t.Errorf("text = %q, want %q", got.Text, "Hello, world.")
	}
	if got.Fallback {
		t.Error("accepted AI output should not be marked as fallback")
	}

	if len(client.CompleteCalls) != 1 {
		t.Fatalf("Complete was called %d times, want 1", len(client.CompleteCalls))
	}
	req := client.CompleteCalls[0].Req
	if req.UserText != "hello, world" {
		t.Errorf("user text = %q, want symbol-replaced %q", req.UserText, "hello, world")
	}
	if req.System != systemPrompt {
		t.Error("request should carry the refinement system prompt")
	}
	if req.Model != "test-model" {
		t.Errorf("model = %q, want %q", req.Model, "test-model")
	}
}

func TestRefineProviderResolution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		stored   string
		override chat.Name
		want     chat.Name
	}{
		{name: "stored preference", stored: "megallm", want: chat.MegaLLM},
		{name: "unknown stored falls back to primary", stored: "deepseek", want: chat.OpenRouter},
		{name: "valid override wins", stored: "openrouter", override: chat.Local, want: chat.Local},
		{name: "invalid override ignored", stored: "megallm", override: chat.Name("bogus"), want: chat.MegaLLM},
		{name: "stored name is normalized", stored: "  MegaLLM ", want: chat.MegaLLM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := enabledBehavior()
			b.AIProvider = tt.stored
			client := &chatmock.Client{Response: chat.Response{Content: "Fine."}}
			o, clients := newTestOrchestrator(b, client)

			if _, err := o.Refine(context.Background(), "okay", tt.override); err != nil {
				t.Fatalf("Refine returned error: %v", err)
			}
			if len(clients.asked) != 1 || clients.asked[0] != tt.want {
				t.Errorf("resolved providers = %v, want [%s]", clients.asked, tt.want)
			}
		})
	}
}

func TestRefineSurfacesProviderError(t *testing.T) {
	t.Parallel()

	client := &chatmock.Client{Err: &chat.ProviderError{
		Provider: chat.OpenRouter,
		Status:   401,
		Detail:   "invalid api key",
	}}
	o, _ := newTestOrchestrator(enabledBehavior(), client)

	_, err := o.Refine(context.Background(), "some text to refine", "")
	if err == nil {
		t.Fatal("expected provider error to surface, got nil")
	}

	var perr *chat.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("error chain should contain *chat.ProviderError, got %v", err)
	}
	if perr.Status != 401 {
		t.Errorf("status = %d, want 401", perr.Status)
	}
}

func TestRefineClientLookupError(t *testing.T) {
	t.Parallel()

	clients := &stubClients{err: errors.New("no key configured")}
	o := New(&stubPrefs{behavior: enabledBehavior()}, clients)

	_, err := o.Refine(context.Background(), "text", "")
	if err == nil {
		t.Fatal("expected error when client lookup fails")
	}
}

func TestRefinePrefsErrorUsesDefaults(t *testing.T) {
	t.Parallel()

	client := &chatmock.Client{Response: chat.Response{Content: "Fine."}}
	clients := &stubClients{clients: map[chat.Name]chat.Client{chat.OpenRouter: client}}
	o := New(&stubPrefs{err: errors.New("disk gone")}, clients)

	// Default behavior has AI refinement on with the openrouter backend.
	if _, err := o.Refine(context.Background(), "okay", ""); err != nil {
		t.Fatalf("Refine returned error: %v", err)
	}
	if len(client.CompleteCalls) != 1 {
		t.Errorf("Complete was called %d times, want 1", len(client.CompleteCalls))
	}
	if len(clients.asked) != 1 || clients.asked[0] != chat.OpenRouter {
		t.Errorf("resolved providers = %v, want [openrouter]", clients.asked)
	}
}

func TestRefineStripsReasoningBlocks(t *testing.T) {
	t.Parallel()

	client := &chatmock.Client{Response: chat.Response{
		Content: "<think>The user wants punctuation.</think>Hello, world.",
	}}
	o, _ := newTestOrchestrator(enabledBehavior(), client)

	got, err := o.Refine(context.Background(), "hello world", "")
	if err != nil {
		t.Fatalf("Refine returned error: %v", err)
	}
	if got.Text != "Hello, world." {
		t.Errorf("text = %q, want %q", got.Text, "Hello, world.")
	}
}

func TestRefineRejectedOutputFallsBackToSymbolReplaced(t *testing.T) {
	t.Parallel()

	client := &chatmock.Client{Response: chat.Response{
		Content: "I'm sorry, I can't help with that.",
	}}
	o, _ := newTestOrchestrator(enabledBehavior(), client)

	got, err := o.Refine(context.Background(), "send the report comma please", "")
	if err != nil {
		t.Fatalf("Refine returned error: %v", err)
	}
	if !got.Fallback {
		t.Error("rejected AI output should be marked as fallback")
	}
	// The fallback baseline is the symbol-replaced text, not the raw input.
	if got.Text != "Send the report, please." {
		t.Errorf("text = %q, want %q", got.Text, "Send the report, please.")
	}
	if len(client.CompleteCalls) != 1 {
		t.Errorf("Complete was called %d times, want 1", len(client.CompleteCalls))
	}
}

func TestRefineAppliesTimeout(t *testing.T) {
	t.Parallel()

	client := &chatmock.Client{Response: chat.Response{Content: "Fine."}}
	o, _ := newTestOrchestrator(enabledBehavior(), client)

	if _, err := o.Refine(context.Background(), "okay", ""); err != nil {
		t.Fatalf("Refine returned error: %v", err)
	}
	if len(client.CompleteCalls) != 1 {
		t.Fatalf("Complete was called %d times, want 1", len(client.CompleteCalls))
	}
	if _, ok := client.CompleteCalls[0].Ctx.Deadline(); !ok {
		t.Error("provider context should carry a deadline")
	}
}
