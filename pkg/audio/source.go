// Package audio defines the capture interfaces and PCM conversion helpers
// that feed the speech-to-text stream.
//
// The two primary abstractions are:
//
//   - [Source] opens the microphone (or any other capture backend) and
//     returns a [Capture].
//   - [Capture] is a live capture session delivering [Frame] values until
//     closed.
//
// voxtype does not talk to sound hardware itself. Capture backends live in
// separate adapter binaries or packages (a PipeWire bridge, a test fixture
// replaying a WAV file) and implement these interfaces; the daemon only
// consumes frames and reshapes them with [ConvertStream] into whatever
// format the configured STT vendor expects.
//
// This package lives under pkg/ because external capture adapters are
// expected to implement [Source] and [Capture].
package audio

import (
	"context"
	"time"
)

// Frame is a single chunk of PCM audio flowing from a capture backend to
// the STT stream. Frames carry their own format so the pipeline can adapt
// when a device captures at a rate the STT vendor does not accept.
type Frame struct {
	// Data holds little-endian int16 PCM samples.
	Data []byte

	// SampleRate in Hz (e.g. 48000 from a typical desktop mic, 16000 for STT).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to capture start.
	Timestamp time.Duration
}

// Capture represents a live audio capture session.
//
// A Capture is obtained from [Source.Open] and remains valid until
// [Capture.Close] is called. The frames channel is closed automatically
// when the capture terminates, whether by Close or by a device failure.
//
// Implementations must be safe for concurrent use.
type Capture interface {
	// Frames returns the channel delivering captured audio. The channel is
	// closed when the capture ends; callers should range over it. Frames
	// arrive in capture order with monotonically increasing timestamps.
	Frames() <-chan Frame

	// Close stops the capture and releases the underlying device. It is safe
	// to call Close more than once; subsequent calls are no-ops and return nil.
	Close() error
}

// Source is the entry point for an audio capture backend.
// Implementations wrap device-specific APIs and expose a uniform
// [Capture] abstraction.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Open starts capturing and returns an active [Capture]. The supplied ctx
	// governs the lifetime of the open attempt only; once capturing, the
	// Capture remains alive until [Capture.Close] is called explicitly.
	//
	// Returns an error if the device cannot be acquired (missing hardware,
	// permission denied, backend not running).
	Open(ctx context.Context) (Capture, error)
}
