package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxtype/pkg/provider/stt"
)

func streamQuery(t *testing.T, p *Provider, cfg stt.StreamConfig) url.Values {
	t.Helper()
	raw, err := p.streamURL(cfg)
	if err != nil {
		t.Fatalf("streamURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u.Query()
}

func TestStreamURL_CarriesRecognitionSettings(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	q := streamQuery(t, p, stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "en-US"})
	for param, want := range map[string]string{
		"model":           "nova-3",
		"language":        "en-US",
		"encoding":        "linear16",
		"sample_rate":     "16000",
		"channels":        "1",
		"interim_results": "true",
		"smart_format":    "true",
	} {
		if got := q.Get(param); got != want {
			t.Errorf("%s = %q, want %q", param, got, want)
		}
	}
}

func TestStreamURL_ProviderDefaultsFillGaps(t *testing.T) {
	p, err := New("key", WithModel("base"), WithLanguage("de-DE"), WithSampleRate(48000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	q := streamQuery(t, p, stt.StreamConfig{})
	if got := q.Get("model"); got != "base" {
		t.Errorf("model = %q", got)
	}
	if got := q.Get("language"); got != "de-DE" {
		t.Errorf("language = %q", got)
	}
	if got := q.Get("sample_rate"); got != "48000" {
		t.Errorf("sample_rate = %q", got)
	}
	if q.Has("channels") {
		t.Error("channels should be absent when the config leaves it at zero")
	}
}

func TestStreamURL_ConfigLanguageWins(t *testing.T) {
	p, err := New("key", WithLanguage("en-US"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	q := streamQuery(t, p, stt.StreamConfig{Language: "fr-FR", SampleRate: 16000})
	if got := q.Get("language"); got != "fr-FR" {
		t.Errorf("language = %q, want fr-FR", got)
	}
}

func TestStreamURL_CustomEndpoint(t *testing.T) {
	p, err := New("key", WithEndpoint("ws://127.0.0.1:9999/v1/listen"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	raw, err := p.streamURL(stt.StreamConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("streamURL: %v", err)
	}
	u, _ := url.Parse(raw)
	if u.Scheme != "ws" || u.Host != "127.0.0.1:9999" {
		t.Errorf("endpoint = %s://%s, want ws://127.0.0.1:9999", u.Scheme, u.Host)
	}
}

func TestDecodeResults_Final(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"channel": {
			"alternatives": [{
				"transcript": "Hello world",
				"confidence": 0.95,
				"words": [
					{"word": "Hello", "start": 0.1, "end": 0.5, "confidence": 0.97},
					{"word": "world", "start": 0.6, "end": 1.0, "confidence": 0.93}
				]
			}]
		}
	}`)

	tr, ok := decodeResults(raw)
	if !ok {
		t.Fatal("expected a transcript from a Results event")
	}
	if !tr.IsFinal {
		t.Error("expected IsFinal=true")
	}
	if tr.Text != "Hello world" {
		t.Errorf("text = %q", tr.Text)
	}
	if tr.Confidence != 0.95 {
		t.Errorf("confidence = %f", tr.Confidence)
	}
	if len(tr.Words) != 2 {
		t.Fatalf("words = %d, want 2", len(tr.Words))
	}
	if tr.Words[0].Word != "Hello" {
		t.Errorf("words[0] = %q", tr.Words[0].Word)
	}
	if tr.Words[0].Start != time.Duration(0.1*float64(time.Second)) {
		t.Errorf("words[0].Start = %v", tr.Words[0].Start)
	}
	if tr.Words[1].End != time.Second {
		t.Errorf("words[1].End = %v", tr.Words[1].End)
	}
}

func TestDecodeResults_PartialWithoutWords(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": false,
		"channel": {"alternatives": [{"transcript": "Hello", "confidence": 0.7, "words": []}]}
	}`)

	tr, ok := decodeResults(raw)
	if !ok {
		t.Fatal("expected a transcript")
	}
	if tr.IsFinal {
		t.Error("expected IsFinal=false for an interim result")
	}
	if tr.Text != "Hello" {
		t.Errorf("text = %q", tr.Text)
	}
	if tr.Words != nil {
		t.Errorf("words = %v, want nil when the event has none", tr.Words)
	}
}

func TestDecodeResults_IgnoresNonTranscriptEvents(t *testing.T) {
	for _, raw := range []string{
		`{"type":"Metadata","request_id":"abc"}`,
		`{"type":"SpeechStarted","timestamp":1.5}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`,
		`{invalid`,
	} {
		if _, ok := decodeResults([]byte(raw)); ok {
			t.Errorf("decodeResults(%s) reported a transcript", raw)
		}
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected an error for an empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("model = %q", p.model)
	}
	if p.language != defaultLanguage {
		t.Errorf("language = %q", p.language)
	}
	if p.sampleRate != defaultSampleRate {
		t.Errorf("sampleRate = %d", p.sampleRate)
	}
	if p.endpoint != defaultEndpoint {
		t.Errorf("endpoint = %q", p.endpoint)
	}
}

func TestStartStream_EndToEnd(t *testing.T) {
	t.Parallel()

	closeStream := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token dg-key" {
			t.Errorf("Authorization = %q, want the Token scheme", got)
		}
		q := r.URL.Query()
		if q.Get("encoding") != "linear16" || q.Get("sample_rate") != "16000" {
			t.Errorf("query = %v, want linear16 at 16000", q)
		}

		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler done")

		final := `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"note to self","confidence":0.9}]}}`
		if err := c.Write(r.Context(), websocket.MessageText, []byte(final)); err != nil {
			t.Errorf("server write: %v", err)
			return
		}

		for {
			typ, data, err := c.Read(r.Context())
			if err != nil {
				return
			}
			if typ == websocket.MessageText && strings.Contains(string(data), "CloseStream") {
				close(closeStream)
				c.Close(websocket.StatusNormalClosure, "flushed")
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	p, err := New("dg-key", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sess, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	select {
	case tr := <-sess.Finals():
		if tr.Text != "note to self" || !tr.IsFinal {
			t.Errorf("final = %+v", tr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no final arrived")
	}

	if err := sess.SendAudio([]byte{1, 0, 2, 0}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case <-closeStream:
	case <-time.After(5 * time.Second):
		t.Fatal("the CloseStream frame never reached the server")
	}
}

func TestStartStream_AuthRejected(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	p, err := New("bad-key", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.StartStream(context.Background(), stt.StreamConfig{})
	if err == nil {
		t.Fatal("expected a handshake error")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error should carry the status code, got: %v", err)
	}
}
