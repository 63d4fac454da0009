// Package mock provides in-memory doubles for the stt interfaces.
//
// A [Session] hands out whatever channels the test put into it and records
// the audio it receives; a [Provider] serves that session and remembers the
// stream configs it was started with:
//
//	sess := &mock.Session{
//	    PartialsCh: make(chan stt.Transcript, 1),
//	    FinalsCh:   make(chan stt.Transcript, 1),
//	}
//	p := &mock.Provider{Session: sess}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/voxtype/pkg/provider/stt"
)

// Provider fakes stt.Provider and stt.TokenIssuer.
type Provider struct {
	mu sync.Mutex

	// Session is handed out by every StartStream call. Leave nil to mint a
	// fresh Session with buffered channels per call.
	Session stt.SessionHandle

	// Err fails StartStream when set.
	Err error

	// Token is returned by IssueToken; TokenErr fails it when set.
	Token    string
	TokenErr error

	// Starts records the config of every StartStream call in order.
	Starts []stt.StreamConfig

	// TokenCalls counts IssueToken invocations.
	TokenCalls int
}

var (
	_ stt.Provider    = (*Provider)(nil)
	_ stt.TokenIssuer = (*Provider)(nil)
)

func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Starts = append(p.Starts, cfg)
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{
		PartialsCh: make(chan stt.Transcript, 16),
		FinalsCh:   make(chan stt.Transcript, 16),
	}, nil
}

func (p *Provider) IssueToken(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TokenCalls++
	if p.TokenErr != nil {
		return "", p.TokenErr
	}
	return p.Token, nil
}

// Session fakes stt.SessionHandle. The test owns PartialsCh and FinalsCh:
// fill them before or while the consumer runs, close them to end the stream.
type Session struct {
	mu sync.Mutex

	// PartialsCh and FinalsCh are returned verbatim by the interface
	// getters. A nil channel blocks the consumer forever, so set both.
	PartialsCh chan stt.Transcript
	FinalsCh   chan stt.Transcript

	// SendErr fails every SendAudio when set; CloseErr fails Close.
	SendErr  error
	CloseErr error

	// Sent holds a copy of every audio chunk in arrival order.
	Sent [][]byte

	// Closes counts Close calls.
	Closes int
}

var _ stt.SessionHandle = (*Session)(nil)

func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent = append(s.Sent, slices.Clone(chunk))
	return s.SendErr
}

func (s *Session) Partials() <-chan stt.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PartialsCh
}

func (s *Session) Finals() <-chan stt.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FinalsCh
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closes++
	return s.CloseErr
}

// SentCount reports how many chunks have arrived so far. Tests poll it to
// let the audio pump catch up before closing the transcript channels.
func (s *Session) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Sent)
}
