// Package deepgram streams microphone audio to the Deepgram realtime API
// and returns its transcripts. It implements stt.Provider.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxtype/pkg/provider/stt"
	"github.com/MrWong99/voxtype/pkg/provider/stt/internal/realtime"
)

const (
	defaultEndpoint   = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en-US"
	defaultSampleRate = 16000

	// Deepgram closes a stream after ten silent seconds, and a dictating
	// user pauses longer than that mid-sentence. Keepalives bridge the gaps.
	keepAliveInterval = 5 * time.Second
)

var (
	keepAliveFrame   = []byte(`{"type":"KeepAlive"}`)
	closeStreamFrame = []byte(`{"type":"CloseStream"}`)
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model ("nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default BCP-47 recognition language ("en-US",
// "de-DE"). A language in the stream config wins over it.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithSampleRate sets the sample rate assumed when the stream config leaves
// it at zero.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithEndpoint overrides the streaming endpoint URL. Intended for tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	sampleRate int
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

var _ stt.Provider = (*Provider)(nil)

// StartStream dials the streaming endpoint and returns a live session. The
// session speaks the Deepgram client protocol: raw PCM in binary frames,
// KeepAlive frames through speech pauses, and a CloseStream frame on close
// so buffered audio still becomes a trailing final.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.streamURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: stream URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("deepgram: dial: HTTP %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	return realtime.Open(ctx, conn, realtime.Config{
		Vendor:         "deepgram",
		Parse:          decodeResults,
		KeepAlive:      keepAliveFrame,
		KeepAliveEvery: keepAliveInterval,
		EndOfStream:    closeStreamFrame,
	}), nil
}

// streamURL builds the /v1/listen URL. Raw PCM carries no header, so the
// encoding and sample rate travel as query parameters. smart_format makes
// Deepgram punctuate and spell out numbers and dates, which dictated text
// needs before it is pasted anywhere.
func (p *Provider) streamURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	rate := cfg.SampleRate
	if rate == 0 {
		rate = p.sampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(rate))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	q.Set("interim_results", "true")
	q.Set("smart_format", "true")

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Deepgram wraps transcripts in Results events. Everything else on the
// socket (Metadata, SpeechStarted, UtteranceEnd) carries no text.
type resultsEvent struct {
	Type    string        `json:"type"`
	IsFinal bool          `json:"is_final"`
	Channel resultChannel `json:"channel"`
}

type resultChannel struct {
	Alternatives []resultAlternative `json:"alternatives"`
}

type resultAlternative struct {
	Transcript string       `json:"transcript"`
	Confidence float64      `json:"confidence"`
	Words      []resultWord `json:"words"`
}

type resultWord struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// decodeResults turns one socket message into a transcript. Non-Results
// events and Results without an alternative report ok false.
func decodeResults(msg []byte) (stt.Transcript, bool) {
	var ev resultsEvent
	if err := json.Unmarshal(msg, &ev); err != nil || ev.Type != "Results" {
		return stt.Transcript{}, false
	}
	if len(ev.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false
	}

	alt := ev.Channel.Alternatives[0]
	var words []stt.WordDetail
	if len(alt.Words) > 0 {
		words = make([]stt.WordDetail, len(alt.Words))
		for i, w := range alt.Words {
			words[i] = stt.WordDetail{
				Word:       w.Word,
				Start:      secondsToDuration(w.Start),
				End:        secondsToDuration(w.End),
				Confidence: w.Confidence,
			}
		}
	}

	return stt.Transcript{
		Text:       alt.Transcript,
		IsFinal:    ev.IsFinal,
		Confidence: alt.Confidence,
		Words:      words,
	}, true
}

// secondsToDuration converts Deepgram's fractional-second word timings.
func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
