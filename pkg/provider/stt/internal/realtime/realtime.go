// Package realtime drives the WebSocket half of a vendor transcription
// stream. A vendor package dials its endpoint and hands the connection to
// [Open] together with the protocol pieces that differ per vendor: how to
// decode an incoming message, what to send as a keepalive while the speaker
// pauses, and how to announce the end of the stream.
//
// The send loop owns every write. Audio chunks go out in arrival order, the
// keepalive frame fills speech gaps, and the end-of-stream frame goes out
// strictly after the last queued chunk.
package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxtype/pkg/provider/stt"
)

const (
	// transcriptBuffer sizes the partial and final channels. A stalled
	// consumer loses nothing; delivery blocks until it catches up or the
	// stream closes.
	transcriptBuffer = 64

	// audioBuffer sizes the outbound queue, enough to ride out a few
	// seconds of network stall at typical capture chunk sizes.
	audioBuffer = 256

	defaultFlushGrace = 3 * time.Second
)

// Config carries the vendor-specific protocol pieces.
type Config struct {
	// Vendor prefixes error messages ("deepgram", "elevenlabs").
	Vendor string

	// Parse decodes one incoming message. Messages that carry no
	// transcript (metadata, vendor acks) report ok false.
	Parse func(msg []byte) (t stt.Transcript, ok bool)

	// KeepAlive is written as a text frame whenever no audio went out for
	// KeepAliveEvery. Vendors with idle timeouts need it; a dictating user
	// pauses to think. Leave empty to disable.
	KeepAlive      []byte
	KeepAliveEvery time.Duration

	// EndOfStream is written as a text frame after the last audio chunk
	// when the stream closes. Vendors use it to flush buffered audio into a
	// trailing final. Leave empty to close the connection without one.
	EndOfStream []byte

	// FlushGrace bounds how long Close waits for trailing finals after
	// EndOfStream. Zero means 3 seconds. Ignored without EndOfStream.
	FlushGrace time.Duration
}

// Stream pumps audio to the vendor and transcripts back. It implements
// stt.SessionHandle.
type Stream struct {
	conn *websocket.Conn
	cfg  Config

	partials chan stt.Transcript
	finals   chan stt.Transcript
	audio    chan []byte

	closed  chan struct{} // Close was called; no new audio
	abort   chan struct{} // stop delivering transcripts
	recvEnd chan struct{} // recv returned
	dead    chan struct{} // a write failed; writeErr is set

	writeErr error
	once     sync.Once
	wg       sync.WaitGroup
}

var _ stt.SessionHandle = (*Stream)(nil)

// Open starts the send and receive loops over conn and returns the live
// stream. ctx governs both loops; cancelling it tears the stream down
// without the end-of-stream handshake.
func Open(ctx context.Context, conn *websocket.Conn, cfg Config) *Stream {
	if cfg.FlushGrace <= 0 {
		cfg.FlushGrace = defaultFlushGrace
	}
	s := &Stream{
		conn:     conn,
		cfg:      cfg,
		partials: make(chan stt.Transcript, transcriptBuffer),
		finals:   make(chan stt.Transcript, transcriptBuffer),
		audio:    make(chan []byte, audioBuffer),
		closed:   make(chan struct{}),
		abort:    make(chan struct{}),
		recvEnd:  make(chan struct{}),
		dead:     make(chan struct{}),
	}
	s.wg.Add(2)
	go s.recv(ctx)
	go s.send(ctx)
	return s
}

// SendAudio queues one PCM chunk for delivery. It fails once the stream is
// closed or the connection broke, so a capture pump stops instead of
// queueing into the void.
func (s *Stream) SendAudio(chunk []byte) error {
	// Checked in order, so a call racing a normal Close reports the close
	// and not a failure the close itself provoked.
	select {
	case <-s.closed:
		return fmt.Errorf("%s: stream closed", s.cfg.Vendor)
	default:
	}
	select {
	case <-s.dead:
		return fmt.Errorf("%s: stream failed: %w", s.cfg.Vendor, s.writeErr)
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.closed:
		return fmt.Errorf("%s: stream closed", s.cfg.Vendor)
	case <-s.dead:
		return fmt.Errorf("%s: stream failed: %w", s.cfg.Vendor, s.writeErr)
	}
}

// Partials returns the interim transcript channel. Closed when the stream ends.
func (s *Stream) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the final transcript channel. Closed when the stream ends.
func (s *Stream) Finals() <-chan stt.Transcript { return s.finals }

// Close flushes queued audio, announces the end of the stream, and waits up
// to FlushGrace for the vendor's trailing finals before tearing the
// connection down. Safe to call more than once.
func (s *Stream) Close() error {
	s.once.Do(func() {
		close(s.closed)
		if len(s.cfg.EndOfStream) > 0 {
			// The vendor answers the end-of-stream frame with trailing
			// finals and a close frame; recv returns when it arrives.
			select {
			case <-s.recvEnd:
			case <-time.After(s.cfg.FlushGrace):
			}
		}
		close(s.abort)
		_ = s.conn.Close(websocket.StatusNormalClosure, "dictation finished")
		s.wg.Wait()
	})
	return nil
}

// send forwards queued audio and fills speech gaps with keepalives. On
// close it drains the queue and says goodbye; on a write error it marks the
// stream dead and stops.
func (s *Stream) send(ctx context.Context) {
	defer s.wg.Done()

	var keep <-chan time.Time
	var ticker *time.Ticker
	if len(s.cfg.KeepAlive) > 0 && s.cfg.KeepAliveEvery > 0 {
		ticker = time.NewTicker(s.cfg.KeepAliveEvery)
		defer ticker.Stop()
		keep = ticker.C
	}

	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				s.fail(err)
				return
			}
			if ticker != nil {
				// Audio counts as liveness; the gap clock restarts.
				ticker.Reset(s.cfg.KeepAliveEvery)
			}
		case <-keep:
			if err := s.conn.Write(ctx, websocket.MessageText, s.cfg.KeepAlive); err != nil {
				s.fail(err)
				return
			}
		case <-s.closed:
			s.flush(ctx)
			return
		}
	}
}

// flush drains queued audio, then sends the end-of-stream frame. The frame
// must trail the last chunk; vendors discard audio that arrives after it.
func (s *Stream) flush(ctx context.Context) {
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				s.fail(err)
				return
			}
		default:
			if len(s.cfg.EndOfStream) > 0 {
				_ = s.conn.Write(ctx, websocket.MessageText, s.cfg.EndOfStream)
			}
			return
		}
	}
}

// fail records the write error and releases blocked SendAudio callers. Only
// the send loop calls it.
func (s *Stream) fail(err error) {
	s.writeErr = err
	close(s.dead)
}

// recv decodes incoming messages onto the partial and final channels until
// the connection ends, then closes both.
func (s *Stream) recv(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.recvEnd)
	defer close(s.finals)
	defer close(s.partials)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			// Vendor close, local close, or cancellation.
			return
		}
		t, ok := s.cfg.Parse(msg)
		if !ok {
			continue
		}
		out := s.partials
		if t.IsFinal {
			out = s.finals
		}
		select {
		case out <- t:
		case <-s.abort:
		}
	}
}
