package resilience

import (
	"context"

	"github.com/MrWong99/voxtype/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across
// multiple transcription backends, one breaker per backend.
//
// Failover covers session establishment only: once a stream is up,
// mid-stream recovery is handled by [stt.Reconnector]. The usual stacking
// puts one Reconnector on top of an STTFallback, so every connect and
// reconnect attempt gets the full failover chain.
type STTFallback struct {
	chain *Chain[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	c := NewChain[stt.Provider](cfg)
	c.Add(primaryName, primary)
	return &STTFallback{chain: c}
}

// AddFallback registers an additional transcription provider. Fallbacks are
// tried in registration order.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.chain.Add(name, provider)
}

// StartStream opens a streaming transcription session against the first
// healthy provider. All backends receive the same stream configuration, so
// they must agree on the audio format the capture layer produces.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return Try(f.chain, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}
