package realtime_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxtype/pkg/provider/stt"
	"github.com/MrWong99/voxtype/pkg/provider/stt/internal/realtime"
)

// testMsg is the wire format the fake vendor speaks.
type testMsg struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

func parseTest(msg []byte) (stt.Transcript, bool) {
	var m testMsg
	if err := json.Unmarshal(msg, &m); err != nil || m.Text == "" {
		return stt.Transcript{}, false
	}
	return stt.Transcript{Text: m.Text, IsFinal: m.Final}, true
}

func transcriptJSON(text string, final bool) []byte {
	b, _ := json.Marshal(testMsg{Text: text, Final: final})
	return b
}

// wsServer runs handler for each WebSocket connection and returns the ws URL.
// The handler must finish its work before returning; the connection dies with
// the request.
func wsServer(t *testing.T, handler func(ctx context.Context, c *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler done")
		handler(r.Context(), c)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// open dials url and starts a stream over the connection. Vendor and Parse
// default to the fake vendor's.
func open(t *testing.T, url string, cfg realtime.Config) *realtime.Stream {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if cfg.Vendor == "" {
		cfg.Vendor = "fake"
	}
	if cfg.Parse == nil {
		cfg.Parse = parseTest
	}
	s := realtime.Open(context.Background(), conn, cfg)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// drainAll collects from ch until it closes.
func drainAll(t *testing.T, ch <-chan stt.Transcript) []stt.Transcript {
	t.Helper()
	var out []stt.Transcript
	deadline := time.After(5 * time.Second)
	for {
		select {
		case tr, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, tr)
		case <-deadline:
			t.Fatalf("timed out draining transcripts, got %d so far", len(out))
		}
	}
}

func TestStream_RoutesPartialsAndFinals(t *testing.T) {
	t.Parallel()
	url := wsServer(t, func(ctx context.Context, c *websocket.Conn) {
		for _, msg := range [][]byte{
			transcriptJSON("hel", false),
			[]byte(`{"note":"no transcript here"}`),
			transcriptJSON("hello", false),
			transcriptJSON("hello world", true),
		} {
			if err := c.Write(ctx, websocket.MessageText, msg); err != nil {
				t.Errorf("server write: %v", err)
				return
			}
		}
		c.Close(websocket.StatusNormalClosure, "done")
	})

	s := open(t, url, realtime.Config{})

	partials := drainAll(t, s.Partials())
	finals := drainAll(t, s.Finals())

	if len(partials) != 2 || partials[0].Text != "hel" || partials[1].Text != "hello" {
		t.Errorf("partials = %v, want [hel hello]", partials)
	}
	if len(finals) != 1 || finals[0].Text != "hello world" || !finals[0].IsFinal {
		t.Errorf("finals = %v, want one final 'hello world'", finals)
	}
}

func TestStream_ForwardsAudioInOrder(t *testing.T) {
	t.Parallel()
	got := make(chan []byte, 8)
	url := wsServer(t, func(ctx context.Context, c *websocket.Conn) {
		for {
			typ, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				got <- data
			}
		}
	})

	s := open(t, url, realtime.Config{})
	for _, chunk := range []string{"one", "two", "three"} {
		if err := s.SendAudio([]byte(chunk)); err != nil {
			t.Fatalf("SendAudio(%s): %v", chunk, err)
		}
	}

	for _, want := range []string{"one", "two", "three"} {
		select {
		case data := <-got:
			if string(data) != want {
				t.Fatalf("server received %q, want %q", data, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for chunk %q", want)
		}
	}
}

func TestStream_KeepAliveFillsSpeechGaps(t *testing.T) {
	t.Parallel()
	keepalives := make(chan []byte, 8)
	url := wsServer(t, func(ctx context.Context, c *websocket.Conn) {
		for {
			typ, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageText {
				keepalives <- data
			}
		}
	})

	s := open(t, url, realtime.Config{
		KeepAlive:      []byte(`{"type":"ka"}`),
		KeepAliveEvery: 30 * time.Millisecond,
	})
	defer s.Close()

	select {
	case data := <-keepalives:
		if string(data) != `{"type":"ka"}` {
			t.Fatalf("keepalive frame = %q", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no keepalive arrived while the stream was silent")
	}
}

func TestStream_EndOfStreamTrailsQueuedAudio(t *testing.T) {
	t.Parallel()
	type frame struct {
		typ  websocket.MessageType
		data string
	}
	frames := make(chan frame, 8)
	url := wsServer(t, func(ctx context.Context, c *websocket.Conn) {
		for {
			typ, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			frames <- frame{typ: typ, data: string(data)}
			if typ == websocket.MessageText {
				// End-of-stream received: flush a trailing final, then hang up.
				if err := c.Write(ctx, websocket.MessageText, transcriptJSON("trailing", true)); err != nil {
					t.Errorf("server write: %v", err)
				}
				c.Close(websocket.StatusNormalClosure, "flushed")
				return
			}
		}
	})

	s := open(t, url, realtime.Config{EndOfStream: []byte(`{"type":"eos"}`)})

	finals := make(chan []stt.Transcript, 1)
	go func() {
		var trs []stt.Transcript
		for tr := range s.Finals() {
			trs = append(trs, tr)
		}
		finals <- trs
	}()

	if err := s.SendAudio([]byte("aa")); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if err := s.SendAudio([]byte("bb")); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := []frame{
		{typ: websocket.MessageBinary, data: "aa"},
		{typ: websocket.MessageBinary, data: "bb"},
		{typ: websocket.MessageText, data: `{"type":"eos"}`},
	}
	for i, w := range want {
		select {
		case f := <-frames:
			if f != w {
				t.Fatalf("frame[%d] = %+v, want %+v", i, f, w)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for frame %d", i)
		}
	}

	select {
	case trs := <-finals:
		if len(trs) != 1 || trs[0].Text != "trailing" {
			t.Errorf("finals = %v, want the trailing transcript", trs)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the trailing final")
	}
}

func TestStream_SendAudioAfterCloseFails(t *testing.T) {
	t.Parallel()
	url := wsServer(t, func(ctx context.Context, c *websocket.Conn) {
		for {
			if _, _, err := c.Read(ctx); err != nil {
				return
			}
		}
	})

	s := open(t, url, realtime.Config{Vendor: "deepgram"})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	err := s.SendAudio([]byte("late"))
	if err == nil {
		t.Fatal("SendAudio after Close succeeded")
	}
	if !strings.Contains(err.Error(), "deepgram: stream closed") {
		t.Errorf("error = %v, want the vendor-prefixed closed message", err)
	}
}

func TestStream_SendAudioReportsBrokenConnection(t *testing.T) {
	t.Parallel()
	url := wsServer(t, func(ctx context.Context, c *websocket.Conn) {
		c.Close(websocket.StatusInternalError, "boom")
	})

	s := open(t, url, realtime.Config{})

	// The first writes may still land in buffers; the failure surfaces as
	// soon as the send loop hits the broken connection.
	var err error
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err = s.SendAudio([]byte("x")); err != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err == nil {
		t.Fatal("SendAudio never failed on a broken connection")
	}
	if !strings.Contains(err.Error(), "stream failed") {
		t.Errorf("error = %v, want a stream failure", err)
	}
}

func TestStream_CloseWithoutEndOfStreamReturnsPromptly(t *testing.T) {
	t.Parallel()
	url := wsServer(t, func(ctx context.Context, c *websocket.Conn) {
		// Never send, never hang up.
		for {
			if _, _, err := c.Read(ctx); err != nil {
				return
			}
		}
	})

	s := open(t, url, realtime.Config{})

	start := time.Now()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Close took %v against a silent vendor", elapsed)
	}
}

func TestStream_FlushGraceBoundsCloseOnSilentVendor(t *testing.T) {
	t.Parallel()
	url := wsServer(t, func(ctx context.Context, c *websocket.Conn) {
		// Swallow the end-of-stream frame and answer nothing.
		for {
			if _, _, err := c.Read(ctx); err != nil {
				return
			}
		}
	})

	s := open(t, url, realtime.Config{
		EndOfStream: []byte(`{"type":"eos"}`),
		FlushGrace:  50 * time.Millisecond,
	})

	start := time.Now()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Close took %v, want roughly the flush grace", elapsed)
	}
}

func TestStream_CloseIsIdempotent(t *testing.T) {
	t.Parallel()
	url := wsServer(t, func(ctx context.Context, c *websocket.Conn) {
		for {
			if _, _, err := c.Read(ctx); err != nil {
				return
			}
		}
	})

	s := open(t, url, realtime.Config{})
	for range 3 {
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
}
