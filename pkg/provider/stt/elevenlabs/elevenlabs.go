// Package elevenlabs provides an ElevenLabs Scribe STT provider. It
// implements stt.Provider for daemon-side streaming and stt.TokenIssuer for
// capture frontends that open their own stream: the daemon mints a
// single-use realtime token so the account API key never reaches the
// frontend.
package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxtype/pkg/provider/stt"
	"github.com/MrWong99/voxtype/pkg/provider/stt/internal/realtime"
)

const (
	defaultBaseURL  = "https://api.elevenlabs.io"
	tokenPath       = "/v1/single-use-token/realtime_scribe"
	streamPath      = "/v1/speech-to-text/realtime"
	defaultModel    = "scribe_v1"
	defaultLanguage = "en"
	defaultTimeout  = 5 * time.Second
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the Scribe model ID (e.g., "scribe_v1").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code for recognition (e.g., "en", "de").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithBaseURL overrides the API base URL. Intended for tests.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient replaces the HTTP client used for token minting.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// Provider implements stt.Provider and stt.TokenIssuer backed by the
// ElevenLabs Scribe realtime API.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// tokenResponse is the JSON body returned by the single-use-token endpoint.
type tokenResponse struct {
	Token string `json:"token"`
}

// IssueToken mints a single-use realtime Scribe token. The token authorizes
// exactly one stream and expires quickly, which is what makes it safe to
// hand to a capture frontend.
func (p *Provider) IssueToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+tokenPath, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: build token request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: mint token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("elevenlabs: mint token: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("elevenlabs: decode token response: %w", err)
	}
	if tr.Token == "" {
		return "", errors.New("elevenlabs: token missing in response")
	}
	return tr.Token, nil
}

// StartStream opens a streaming transcription session with ElevenLabs,
// authenticated with the account API key. Scribe has no end-of-stream
// message; closing the session closes the connection.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildStreamURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("xi-api-key", p.apiKey)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("elevenlabs: dial: HTTP %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	return realtime.Open(ctx, conn, realtime.Config{
		Vendor: "elevenlabs",
		Parse:  parseScribeResponse,
	}), nil
}

// buildStreamURL constructs the realtime Scribe endpoint URL for the given
// config. The scheme switches to ws/wss based on the configured base URL.
func (p *Provider) buildStreamURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = streamPath

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}

	q := u.Query()
	q.Set("model_id", p.model)
	q.Set("language", lang)
	if cfg.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	}
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// scribeResponse is the JSON structure ElevenLabs sends for transcript events.
type scribeResponse struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// parseScribeResponse parses a raw Scribe WebSocket message into a
// Transcript. Returns (zero, false) for messages that carry no transcript.
func parseScribeResponse(data []byte) (stt.Transcript, bool) {
	var resp scribeResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, false
	}

	switch resp.Type {
	case "partial_transcript":
		return stt.Transcript{
			Text:       resp.Text,
			IsFinal:    false,
			Confidence: resp.Confidence,
		}, true
	case "final_transcript":
		return stt.Transcript{
			Text:       resp.Text,
			IsFinal:    true,
			Confidence: resp.Confidence,
		}, true
	default:
		return stt.Transcript{}, false
	}
}

// Compile-time interface checks.
var (
	_ stt.Provider    = (*Provider)(nil)
	_ stt.TokenIssuer = (*Provider)(nil)
)
