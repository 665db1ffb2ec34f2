package websocket

import (
	"context"
	"errors"
	"sync"

	"github.com/tahcohcat/vocalize-web/internal/mediasession"
)

var ErrNoRecognizer = errors.New("no browser recognizer is listening")

// BrowserSource relays the browser's own speech recognizer. Start asks the
// attached view to begin recognition; the view's dictation frames are fed
// back through Deliver.
type BrowserSource struct {
	sessionID string
	sender    Sender

	mu      sync.Mutex
	current *browserStream
}

func NewBrowserSource(sessionID string, sender Sender) *BrowserSource {
	return &BrowserSource{sessionID: sessionID, sender: sender}
}

var _ mediasession.TranscriptionSource = (*BrowserSource)(nil)

func (s *BrowserSource) Start(_ context.Context, languageHint string) (mediasession.TranscriptionStream, error) {
	stream := &browserStream{
		source: s,
		in:     make(chan mediasession.TranscriptEvent, 32),
		events: make(chan mediasession.TranscriptEvent),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	previous := s.current
	s.current = stream
	s.mu.Unlock()
	if previous != nil {
		previous.Stop()
	}

	cmd := DictationCommand{Action: "start", Mode: "browser", LanguageHint: languageHint}
	if !s.sender.Send(s.sessionID, DictationFrame(cmd)) {
		s.release(stream)
		return nil, mediasession.DictationFailure(mediasession.DictationCaptureFailed, ErrNoRecognizer)
	}

	go stream.run()
	return stream, nil
}

// Deliver hands one browser recognition event to the active stream.
func (s *BrowserSource) Deliver(event DictationEvent) error {
	s.mu.Lock()
	stream := s.current
	s.mu.Unlock()
	if stream == nil {
		return ErrNoRecognizer
	}
	return stream.deliver(event.transcriptEvent())
}

// Abort ends the active stream as if the browser had reported an error of
// the given kind, e.g. when its socket goes away.
func (s *BrowserSource) Abort(kind mediasession.DictationErrorKind) {
	s.mu.Lock()
	stream := s.current
	s.mu.Unlock()
	if stream != nil {
		_ = stream.deliver(mediasession.TranscriptEvent{Kind: mediasession.TranscriptEventError, ErrorKind: kind})
	}
}

func (s *BrowserSource) release(stream *browserStream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != stream {
		return false
	}
	s.current = nil
	return true
}

type browserStream struct {
	source *BrowserSource
	in     chan mediasession.TranscriptEvent
	events chan mediasession.TranscriptEvent
	done   chan struct{}
	once   sync.Once
}

func (b *browserStream) Events() <-chan mediasession.TranscriptEvent {
	return b.events
}

// Stop tells the browser to stop recognising and closes Events.
func (b *browserStream) Stop() error {
	b.once.Do(func() {
		if b.source.release(b) {
			b.source.sender.Send(b.source.sessionID, DictationFrame(DictationCommand{Action: "stop"}))
		}
		close(b.done)
	})
	return nil
}

func (b *browserStream) deliver(event mediasession.TranscriptEvent) error {
	select {
	case b.in <- event:
		return nil
	case <-b.done:
		return ErrNoRecognizer
	}
}

// run is the only writer of events, so closing it cannot race a send.
func (b *browserStream) run() {
	defer close(b.events)
	for {
		select {
		case ev := <-b.in:
			select {
			case b.events <- ev:
			case <-b.done:
				return
			}
		case <-b.done:
			return
		}
	}
}
