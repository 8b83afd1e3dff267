// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect calls and hand out a controlled Session.
// Use Session to push model audio into the consumer and inspect which media
// payloads were sent.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
//	sess.AudioCh <- pcm
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/oceanwave/pkg/provider/live"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Cfg is the SessionConfig passed to Connect.
	Cfg live.SessionConfig
}

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by Connect. If nil, Connect returns a fresh
	// NewSession for every call.
	Session *Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// Block, if non-nil, makes Connect wait until it is closed or the
	// context is done. Use it to observe the CONNECTING phase.
	Block chan struct{}

	// ProviderCapabilities is returned by Capabilities.
	ProviderCapabilities live.Capabilities

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall

	// Sessions records every session handed out, in order.
	Sessions []*Session
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.Session, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Cfg: cfg})
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	sess := p.Session
	if sess == nil {
		sess = NewSession()
	}
	p.Sessions = append(p.Sessions, sess)
	return sess, nil
}

// Capabilities returns ProviderCapabilities.
func (p *Provider) Capabilities() live.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ProviderCapabilities
}

// ConnectCount returns the number of Connect calls. Thread-safe.
func (p *Provider) ConnectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ConnectCalls)
}

// LastSession returns the most recently handed out session, or nil.
func (p *Provider) LastSession() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Sessions) == 0 {
		return nil
	}
	return p.Sessions[len(p.Sessions)-1]
}

// Ensure Provider implements live.Provider at compile time.
var _ live.Provider = (*Provider)(nil)

// Session is a mock implementation of live.Session.
// Tests push model audio into AudioCh and end the session with Fail or
// by closing AudioCh.
type Session struct {
	mu sync.Mutex

	// AudioCh is the channel returned by Audio(). Tests own this channel.
	AudioCh chan []byte

	// TranscriptsCh is the channel returned by Transcripts(). Tests own this
	// channel.
	TranscriptsCh chan live.Transcript

	// SendErr, if non-nil, is returned by every Send call.
	SendErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// OnClose, if set, is called on every Close.
	OnClose func()

	// ErrVal is returned by Err.
	ErrVal error

	errorHandler func(error)
	failOnce     sync.Once

	// SendCalls records every call to Send in order.
	SendCalls []live.Media

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// NewSession returns a Session with buffered channels.
func NewSession() *Session {
	return &Session{
		AudioCh:       make(chan []byte, 64),
		TranscriptsCh: make(chan live.Transcript, 16),
	}
}

// Send records a copy of m and returns SendErr.
func (s *Session) Send(m live.Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(m.Data))
	copy(cp, m.Data)
	s.SendCalls = append(s.SendCalls, live.Media{MIMEType: m.MIMEType, Data: cp})
	return s.SendErr
}

// Audio returns AudioCh.
func (s *Session) Audio() <-chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.AudioCh
}

// Transcripts returns TranscriptsCh.
func (s *Session) Transcripts() <-chan live.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TranscriptsCh
}

// OnError stores the handler.
func (s *Session) OnError(handler func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandler = handler
}

// RaiseError invokes the registered error handler, if any.
func (s *Session) RaiseError(err error) {
	s.mu.Lock()
	h := s.errorHandler
	s.mu.Unlock()
	if h != nil {
		h(err)
	}
}

// Fail sets ErrVal and closes AudioCh, emulating a dropped connection.
// Only the first call has an effect.
func (s *Session) Fail(err error) {
	s.failOnce.Do(func() {
		s.mu.Lock()
		s.ErrVal = err
		ch := s.AudioCh
		s.mu.Unlock()
		close(ch)
	})
}

// Err returns ErrVal.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrVal
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCallCount++
	hook, err := s.OnClose, s.CloseErr
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

// Sent returns a copy of SendCalls. Thread-safe.
func (s *Session) Sent() []live.Media {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]live.Media(nil), s.SendCalls...)
}

// SentCount returns the number of Send calls with the given MIME type.
// An empty mimeType counts every call.
func (s *Session) SentCount(mimeType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.SendCalls {
		if mimeType == "" || m.MIMEType == mimeType {
			n++
		}
	}
	return n
}

// Closes returns CloseCallCount. Thread-safe.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

// Ensure Session implements live.Session at compile time.
var _ live.Session = (*Session)(nil)
