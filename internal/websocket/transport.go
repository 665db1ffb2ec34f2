package websocket

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tahcohcat/vocalize-web/internal/audiostore"
	"github.com/tahcohcat/vocalize-web/internal/logger"
	"github.com/tahcohcat/vocalize-web/internal/mediasession"
)

// Sender delivers frames to one session's socket. *Hub satisfies it.
type Sender interface {
	Send(sessionID string, frame ServerFrame) bool
}

// RemoteTransport plays synthesized audio in the browser attached to a
// session. Audio is parked in the audio store and the browser is told to
// load it by URL. Commands issued while no socket is attached are dropped;
// Replay restores the loaded clip for a reconnecting view.
type RemoteTransport struct {
	sessionID string
	store     *audiostore.Store
	sender    Sender
	logger    *logger.Log

	mu      sync.Mutex
	current *audiostore.Resource
	volume  float64
	muted   bool
}

func NewRemoteTransport(sessionID string, store *audiostore.Store, sender Sender) *RemoteTransport {
	return &RemoteTransport{
		sessionID: sessionID,
		store:     store,
		sender:    sender,
		logger:    logger.New().Named("transport").With(zap.String("session_id", sessionID)),
		volume:    1,
	}
}

var _ mediasession.Transport = (*RemoteTransport)(nil)

func (t *RemoteTransport) Load(result mediasession.SynthesisResult) error {
	res, err := t.store.Put(t.sessionID, result.AudioBytes, result.MIMEType)
	if err != nil {
		return err
	}

	t.mu.Lock()
	previous := t.current
	t.current = &res
	t.mu.Unlock()

	if previous != nil {
		t.store.Release(previous.ID)
	}
	t.logger.Debug("audio loaded", zap.String("resource", res.ID), zap.Int("bytes", res.Size))
	t.emit(TransportCommand{Action: ActionLoad, URL: res.URL, MIMEType: res.MIMEType})
	return nil
}

func (t *RemoteTransport) Play() error {
	t.emit(TransportCommand{Action: ActionPlay})
	return nil
}

func (t *RemoteTransport) Pause() error {
	t.emit(TransportCommand{Action: ActionPause})
	return nil
}

func (t *RemoteTransport) Seek(seconds float64) error {
	t.emit(TransportCommand{Action: ActionSeek, Position: seconds})
	return nil
}

func (t *RemoteTransport) SetVolume(volume float64) error {
	t.mu.Lock()
	t.volume = volume
	t.mu.Unlock()
	t.emit(TransportCommand{Action: ActionVolume, Volume: volume})
	return nil
}

func (t *RemoteTransport) SetMuted(muted bool) error {
	t.mu.Lock()
	t.muted = muted
	t.mu.Unlock()
	t.emit(TransportCommand{Action: ActionMute, Muted: muted})
	return nil
}

// Unload releases the current clip. It is a no-op when nothing is loaded.
func (t *RemoteTransport) Unload() error {
	t.mu.Lock()
	current := t.current
	t.current = nil
	t.mu.Unlock()

	if current == nil {
		return nil
	}
	t.store.Release(current.ID)
	t.emit(TransportCommand{Action: ActionUnload})
	return nil
}

// Current returns the loaded clip, if any.
func (t *RemoteTransport) Current() (audiostore.Resource, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return audiostore.Resource{}, false
	}
	return *t.current, true
}

// Replay re-sends the loaded clip and the audio settings.
func (t *RemoteTransport) Replay() {
	t.mu.Lock()
	current := t.current
	volume, muted := t.volume, t.muted
	t.mu.Unlock()

	if current != nil {
		t.emit(TransportCommand{Action: ActionLoad, URL: current.URL, MIMEType: current.MIMEType})
	}
	t.emit(TransportCommand{Action: ActionVolume, Volume: volume})
	t.emit(TransportCommand{Action: ActionMute, Muted: muted})
}

func (t *RemoteTransport) emit(cmd TransportCommand) {
	t.sender.Send(t.sessionID, TransportFrame(cmd))
}
