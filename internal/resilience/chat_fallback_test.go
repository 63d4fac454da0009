package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voxtype/pkg/provider/chat"
	chatmock "github.com/MrWong99/voxtype/pkg/provider/chat/mock"
)

func TestChatFallback_Complete_PrimarySuccess(t *testing.T) {
	primary := &chatmock.Client{
		NameValue: "openrouter",
		Response:  chat.Response{Content: "Refined text."},
	}
	secondary := &chatmock.Client{NameValue: "local"}

	fb := NewChatFallback(primary, "openrouter", FallbackConfig{
		Breaker: BreakerConfig{TripAfter: 3},
	})
	fb.AddFallback("local", secondary)

	resp, err := fb.Complete(context.Background(), chat.Request{UserText: "raw text"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Refined text." {
		t.Fatalf("content = %q, want %q", resp.Content, "Refined text.")
	}
	if len(primary.CompleteCalls) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.CompleteCalls))
	}
	if len(secondary.CompleteCalls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.CompleteCalls))
	}
}

func TestChatFallback_Complete_Failover(t *testing.T) {
	primary := &chatmock.Client{
		NameValue: "openrouter",
		Err:       errors.New("upstream 503"),
	}
	secondary := &chatmock.Client{
		NameValue: "local",
		Response:  chat.Response{Content: "From the fallback."},
	}

	fb := NewChatFallback(primary, "openrouter", FallbackConfig{
		Breaker: BreakerConfig{TripAfter: 3},
	})
	fb.AddFallback("local", secondary)

	resp, err := fb.Complete(context.Background(), chat.Request{UserText: "raw text"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "From the fallback." {
		t.Fatalf("content = %q, want fallback response", resp.Content)
	}
	if len(secondary.CompleteCalls) != 1 {
		t.Fatalf("secondary called %d times, want 1", len(secondary.CompleteCalls))
	}
	// The original request must reach the fallback unchanged.
	if secondary.CompleteCalls[0].Req.UserText != "raw text" {
		t.Fatalf("fallback got UserText %q, want %q",
			secondary.CompleteCalls[0].Req.UserText, "raw text")
	}
}

func TestChatFallback_Complete_AllFail(t *testing.T) {
	primary := &chatmock.Client{Err: errors.New("primary down")}
	secondary := &chatmock.Client{Err: errors.New("secondary down")}

	fb := NewChatFallback(primary, "openrouter", FallbackConfig{
		Breaker: BreakerConfig{TripAfter: 3},
	})
	fb.AddFallback("local", secondary)

	_, err := fb.Complete(context.Background(), chat.Request{UserText: "raw text"})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
}

func TestChatFallback_Complete_OpenCircuitSkipsPrimary(t *testing.T) {
	primary := &chatmock.Client{Err: errors.New("primary down")}
	secondary := &chatmock.Client{
		Response: chat.Response{Content: "ok"},
	}

	fb := NewChatFallback(primary, "openrouter", FallbackConfig{
		Breaker: BreakerConfig{TripAfter: 2},
	})
	fb.AddFallback("local", secondary)

	// Fail the primary enough to open its breaker.
	for i := 0; i < 2; i++ {
		if _, err := fb.Complete(context.Background(), chat.Request{}); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}
	callsBefore := len(primary.CompleteCalls)

	// With the breaker open, the primary must not see further requests.
	if _, err := fb.Complete(context.Background(), chat.Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(primary.CompleteCalls) != callsBefore {
		t.Fatalf("primary called %d times, want %d (circuit should be open)",
			len(primary.CompleteCalls), callsBefore)
	}
	if len(secondary.CompleteCalls) != 3 {
		t.Fatalf("secondary called %d times, want 3", len(secondary.CompleteCalls))
	}
}

func TestChatFallback_Name_IsPrimary(t *testing.T) {
	primary := &chatmock.Client{
		NameValue: "openrouter",
		Err:       errors.New("primary down"),
	}
	secondary := &chatmock.Client{NameValue: "local"}

	fb := NewChatFallback(primary, "openrouter", FallbackConfig{
		Breaker: BreakerConfig{TripAfter: 3},
	})
	fb.AddFallback("local", secondary)

	// Name stays the primary's identifier even after a failover.
	_, _ = fb.Complete(context.Background(), chat.Request{})
	if got := fb.Name(); got != chat.Name("openrouter") {
		t.Fatalf("Name() = %q, want openrouter", got)
	}
}
