package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tahcohcat/vocalize-web/config"
	"github.com/tahcohcat/vocalize-web/internal/audiostore"
	"github.com/tahcohcat/vocalize-web/internal/auth"
	"github.com/tahcohcat/vocalize-web/internal/logger"
	"github.com/tahcohcat/vocalize-web/internal/mediasession"
	"github.com/tahcohcat/vocalize-web/internal/stt"
	"github.com/tahcohcat/vocalize-web/internal/websocket"
)

var (
	ErrSessionNotFound = errors.New("media session not found")
	ErrTooManySessions = errors.New("too many open media sessions")
)

// SocketHub is the part of the websocket hub the sessions talk to.
type SocketHub interface {
	websocket.Sender
	Connected(sessionID string) bool
	Disconnect(sessionID string)
}

// MediaSession binds one controller to its socket, its audio and its
// dictation source.
type MediaSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`

	controller *mediasession.Controller
	transport  *websocket.RemoteTransport
	source     mediasession.TranscriptionSource
	hub        SocketHub
	audio      *audiostore.Store
	logger     *logger.Log
	now        func() time.Time

	lastActive atomic.Int64
}

var _ websocket.SessionHandler = (*MediaSession)(nil)

func (s *MediaSession) Controller() *mediasession.Controller {
	return s.controller
}

func (s *MediaSession) touch() {
	s.lastActive.Store(s.now().UnixNano())
}

func (s *MediaSession) idleSince() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *MediaSession) HandleFrame(ctx context.Context, frame websocket.ClientFrame) error {
	s.touch()
	switch frame.Type {
	case websocket.FrameIntent:
		return s.controller.Dispatch(ctx, *frame.Intent)
	case websocket.FrameProgress:
		s.controller.ReportProgress(frame.Position, frame.Duration)
	case websocket.FrameEnded:
		s.controller.ReportEnded()
	case websocket.FrameDictation:
		browser, ok := s.source.(*websocket.BrowserSource)
		if !ok {
			return mediasession.ValidationError("this session does not relay browser dictation")
		}
		if err := browser.Deliver(*frame.Dictation); err != nil {
			// Late events after a stop are expected.
			s.logger.Debug("dictation event dropped", zap.Error(err))
		}
	}
	return nil
}

func (s *MediaSession) HandleAudio(chunk []byte) error {
	feeder, ok := s.source.(interface{ Feed([]byte) error })
	if !ok {
		return mediasession.ValidationError("this session does not accept streamed audio")
	}
	return feeder.Feed(chunk)
}

// Resync brings a freshly attached view up to date.
func (s *MediaSession) Resync() {
	s.hub.Send(s.ID, websocket.SnapshotFrame(s.controller.Snapshot()))
	s.transport.Replay()
}

// Disconnected ends dictation that depends on the departed view.
func (s *MediaSession) Disconnected() {
	s.touch()
	switch src := s.source.(type) {
	case *websocket.BrowserSource:
		src.Abort(mediasession.DictationNetwork)
	case *streamingSource:
		go s.controller.StopDictation()
	}
}

// Close tears the session down and drops its socket.
func (s *MediaSession) Close() error {
	err := s.controller.Close()
	if n := s.audio.ReleaseSession(s.ID); n > 0 {
		s.logger.Debug("released leftover audio", zap.Int("resources", n))
	}
	s.hub.Disconnect(s.ID)
	return err
}

type snapshotSink struct {
	sessionID string
	sender    websocket.Sender
}

func (s snapshotSink) SessionChanged(snapshot mediasession.Snapshot) {
	s.sender.Send(s.sessionID, websocket.SnapshotFrame(snapshot))
}

// streamingSource runs server-side recognition over microphone audio the
// view streams in as binary frames.
type streamingSource struct {
	sessionID  string
	sender     websocket.Sender
	recognizer *stt.GoogleSource
	sampleRate int
}

func (s *streamingSource) Start(ctx context.Context, languageHint string) (mediasession.TranscriptionStream, error) {
	stream, err := s.recognizer.Start(ctx, languageHint)
	if err != nil {
		return nil, err
	}
	cmd := websocket.DictationCommand{Action: "start", Mode: "stream", LanguageHint: languageHint, SampleRate: s.sampleRate}
	if !s.sender.Send(s.sessionID, websocket.DictationFrame(cmd)) {
		stream.Stop()
		return nil, mediasession.DictationFailure(mediasession.DictationCaptureFailed, errors.New("no view is attached to the session"))
	}
	return &captureStream{TranscriptionStream: stream, source: s}, nil
}

func (s *streamingSource) Feed(chunk []byte) error {
	return s.recognizer.Feed(chunk)
}

type captureStream struct {
	mediasession.TranscriptionStream
	source *streamingSource
	once   sync.Once
}

func (c *captureStream) Stop() error {
	c.once.Do(func() {
		c.source.sender.Send(c.source.sessionID, websocket.DictationFrame(websocket.DictationCommand{Action: "stop"}))
	})
	return c.TranscriptionStream.Stop()
}

type SessionOptions struct {
	Synthesizer mediasession.Synthesizer
	Catalog     mediasession.VoiceCatalog
	Hub         SocketHub
	Audio       *audiostore.Store
	Stt         config.SttConfig
	Sessions    config.SessionsConfig
}

// SessionManager owns every open media session, keyed by id and scoped to
// the user that created it.
type SessionManager struct {
	opts   SessionOptions
	logger *logger.Log
	now    func() time.Time

	newRecognizer func() *stt.GoogleSource

	mu       sync.Mutex
	sessions map[string]*MediaSession
}

func NewSessionManager(opts SessionOptions) *SessionManager {
	if opts.Sessions.IdleTimeout <= 0 {
		opts.Sessions.IdleTimeout = 30 * time.Minute
	}
	if opts.Sessions.SweepInterval <= 0 {
		opts.Sessions.SweepInterval = time.Minute
	}
	m := &SessionManager{
		opts:     opts,
		logger:   logger.New().Named("sessions"),
		now:      time.Now,
		sessions: make(map[string]*MediaSession),
	}
	m.newRecognizer = func() *stt.GoogleSource { return stt.NewGoogleSource(opts.Stt) }
	return m
}

// Create opens a session for userID. dictationSupported is the view's own
// report of whether it can capture speech.
func (m *SessionManager) Create(userID string, dictationSupported bool) (*MediaSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit := m.opts.Sessions.MaxPerUser; limit > 0 {
		open := 0
		for _, s := range m.sessions {
			if s.UserID == userID {
				open++
			}
		}
		if open >= limit {
			return nil, ErrTooManySessions
		}
	}

	id := uuid.NewString()
	now := m.now()
	session := &MediaSession{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		transport: websocket.NewRemoteTransport(id, m.opts.Audio, m.opts.Hub),
		hub:       m.opts.Hub,
		audio:     m.opts.Audio,
		logger:    m.logger.With(zap.String("session_id", id)),
		now:       m.now,
	}
	session.source = m.newSource(id, dictationSupported)
	session.controller = mediasession.NewController(
		m.opts.Synthesizer,
		m.opts.Catalog,
		session.source,
		session.transport,
		snapshotSink{sessionID: id, sender: m.opts.Hub},
		mediasession.Config{
			DictationSupported:  session.source != nil,
			DefaultLanguageHint: m.opts.Stt.LanguageCode,
		},
	)
	session.touch()
	m.sessions[id] = session

	m.logger.Info("media session created",
		zap.String("session_id", id),
		zap.String("user_id", userID),
		zap.Bool("dictation", session.source != nil))
	return session, nil
}

func (m *SessionManager) newSource(sessionID string, dictationSupported bool) mediasession.TranscriptionSource {
	if !m.opts.Stt.Enabled || !dictationSupported {
		return nil
	}
	if m.opts.Stt.Provider == "google" {
		return &streamingSource{
			sessionID:  sessionID,
			sender:     m.opts.Hub,
			recognizer: m.newRecognizer(),
			sampleRate: m.opts.Stt.SampleRate,
		}
	}
	return websocket.NewBrowserSource(sessionID, m.opts.Hub)
}

// Get returns the session if userID owns it.
func (m *SessionManager) Get(userID, id string) (*MediaSession, error) {
	m.mu.Lock()
	session, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok || session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	session.touch()
	return session, nil
}

// Remove closes the session if userID owns it.
func (m *SessionManager) Remove(userID, id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if !ok || session.UserID != userID {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	m.logger.Info("media session closed", zap.String("session_id", id))
	return session.Close()
}

// Resolve looks up the session a socket request targets for the signed-in
// user.
func (m *SessionManager) Resolve(r *http.Request, id string) (websocket.SessionHandler, error) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		return nil, ErrSessionNotFound
	}
	return m.Get(user.UserID, id)
}

func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep closes sessions without an attached view that have been idle
// longer than the idle timeout.
func (m *SessionManager) Sweep() int {
	cutoff := m.now().Add(-m.opts.Sessions.IdleTimeout)

	m.mu.Lock()
	var idle []*MediaSession
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) && !m.opts.Hub.Connected(id) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		if err := s.Close(); err != nil {
			m.logger.WithError(err).Warn("failed to close idle session", zap.String("session_id", s.ID))
		}
	}
	if len(idle) > 0 {
		m.logger.Info("reaped idle media sessions", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Run reaps idle sessions until ctx is done, then closes the rest.
func (m *SessionManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.Sessions.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-ctx.Done():
			m.closeAll()
			return
		}
	}
}

func (m *SessionManager) closeAll() {
	m.mu.Lock()
	all := make([]*MediaSession, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}
