package chat_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/voxtype/pkg/provider/chat"
)

func TestNameIsValid(t *testing.T) {
	t.Parallel()

	valid := []chat.Name{chat.OpenRouter, chat.MegaLLM, chat.Local}
	for _, n := range valid {
		if !n.IsValid() {
			t.Errorf("IsValid(%q) = false, want true", n)
		}
	}

	invalid := []chat.Name{"", "openai", "OPENROUTER ", "gpt"}
	for _, n := range invalid {
		if n.IsValid() {
			t.Errorf("IsValid(%q) = true, want false", n)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tag  string
		want chat.Name
	}{
		{"megallm", chat.MegaLLM},
		{"MegaLLM", chat.MegaLLM},
		{"  openrouter  ", chat.OpenRouter},
		{"local", chat.Local},
		{"", chat.OpenRouter},
		{"something-else", chat.OpenRouter},
	}

	for _, tt := range tests {
		if got := chat.Resolve(tt.tag, chat.OpenRouter); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.tag, got, tt.want)
		}
	}
}

func TestProviderErrorMessages(t *testing.T) {
	t.Parallel()

	withStatus := &chat.ProviderError{Provider: chat.MegaLLM, Status: 401, Detail: "invalid key"}
	if msg := withStatus.Error(); !strings.Contains(msg, "401") || !strings.Contains(msg, "megallm") {
		t.Errorf("Error() = %q, want status and provider present", msg)
	}

	cause := errors.New("connection refused")
	withErr := &chat.ProviderError{Provider: chat.OpenRouter, Detail: "send request", Err: cause}
	if !errors.Is(withErr, cause) {
		t.Error("errors.Is should unwrap to the underlying error")
	}
}
