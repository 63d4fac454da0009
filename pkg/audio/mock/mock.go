// Package mock provides in-memory mock implementations of the [audio.Source]
// and [audio.Capture] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts, and they expose exported fields that the
// test can set to control return values.
//
// Typical usage:
//
//	frames := make(chan audio.Frame, 16)
//	capture := &mock.Capture{FramesResult: frames}
//	source := &mock.Source{OpenResult: capture}
//	got, err := source.Open(ctx)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxtype/pkg/audio"
)

// Capture is a mock implementation of [audio.Capture].
// Set the exported Result fields before use; inspect the Call* fields after.
type Capture struct {
	mu sync.Mutex

	// FramesResult is returned by [Capture.Frames].
	// Defaults to a closed channel if left nil, so ranging terminates.
	FramesResult <-chan audio.Frame

	// CloseError is returned by [Capture.Close].
	CloseError error

	// CallCountFrames records how many times Frames was called.
	CallCountFrames int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

var _ audio.Capture = (*Capture)(nil)

// Frames implements [audio.Capture]. Returns FramesResult.
// If FramesResult is nil, a closed channel is returned.
func (c *Capture) Frames() <-chan audio.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountFrames++
	if c.FramesResult == nil {
		closed := make(chan audio.Frame)
		close(closed)
		c.FramesResult = closed
	}
	return c.FramesResult
}

// Close implements [audio.Capture]. Returns CloseError.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountClose++
	return c.CloseError
}

// Source is a mock implementation of [audio.Source].
type Source struct {
	mu sync.Mutex

	// OpenResult is the [audio.Capture] returned by Open.
	OpenResult audio.Capture

	// OpenError is the error returned by Open.
	OpenError error

	// CallCountOpen records how many times Open was called.
	CallCountOpen int
}

var _ audio.Source = (*Source)(nil)

// Open implements [audio.Source]. Records the call and returns OpenResult / OpenError.
func (s *Source) Open(_ context.Context) (audio.Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountOpen++
	return s.OpenResult, s.OpenError
}
