package mediasession

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSynthesizer struct {
	mu    sync.Mutex
	calls []SynthesisRequest
	resp  SynthesisResponse
	err   error
	gate  chan struct{}
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (SynthesisResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return SynthesisResponse{}, ctx.Err()
		}
	}
	return f.resp, f.err
}

func (f *fakeSynthesizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeCatalog struct {
	voices []Voice
	err    error
}

func (f *fakeCatalog) ListVoices(context.Context) ([]Voice, error) {
	return f.voices, f.err
}

type fakeStream struct {
	events   chan TranscriptEvent
	stopOnce sync.Once
	mu       sync.Mutex
	stops    int
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan TranscriptEvent, 16)}
}

func (s *fakeStream) Events() <-chan TranscriptEvent { return s.events }

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.events) })
	return nil
}

func (s *fakeStream) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type fakeSource struct {
	mu      sync.Mutex
	streams []*fakeStream
	hints   []string
	err     error
}

func (f *fakeSource) Start(_ context.Context, languageHint string) (TranscriptionStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hints = append(f.hints, languageHint)
	if f.err != nil {
		return nil, f.err
	}
	stream := newFakeStream()
	f.streams = append(f.streams, stream)
	return stream, nil
}

func (f *fakeSource) last() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[len(f.streams)-1]
}

type fakeTransport struct {
	mu      sync.Mutex
	loaded  []SynthesisResult
	unloads int
	seeks   []float64
	volume  float64
	muted   bool
	playing bool
	err     error
}

func (t *fakeTransport) Load(result SynthesisResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loaded = append(t.loaded, result)
	return t.err
}

func (t *fakeTransport) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = true
	return nil
}

func (t *fakeTransport) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = false
	return nil
}

func (t *fakeTransport) Seek(seconds float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seeks = append(t.seeks, seconds)
	return nil
}

func (t *fakeTransport) SetVolume(volume float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.volume = volume
	return nil
}

func (t *fakeTransport) SetMuted(muted bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.muted = muted
	return nil
}

func (t *fakeTransport) Unload() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unloads++
	return nil
}

func (t *fakeTransport) unloadCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unloads
}

type fakeEventSink struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

func (s *fakeEventSink) SessionChanged(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshot)
}

func (s *fakeEventSink) statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Status
	for _, snap := range s.snapshots {
		if len(out) == 0 || out[len(out)-1] != snap.Status {
			out = append(out, snap.Status)
		}
	}
	return out
}

var testVoices = []Voice{
	{Name: "en-US-Standard-A", LanguageCodes: []string{"en-US"}, SSMLGender: "MALE"},
	{Name: "en-GB-Standard-B", LanguageCodes: []string{"en-GB"}, SSMLGender: "FEMALE"},
	{Name: "de-DE-Wavenet-C", LanguageCodes: []string{"de-DE"}, SSMLGender: "FEMALE"},
}

type harness struct {
	ctrl      *Controller
	synth     *fakeSynthesizer
	source    *fakeSource
	transport *fakeTransport
	events    *fakeEventSink
}

func newHarness(t *testing.T, dictationSupported bool) *harness {
	t.Helper()

	h := &harness{
		synth: &fakeSynthesizer{resp: SynthesisResponse{
			AudioContentBase64: base64.StdEncoding.EncodeToString(make([]byte, 1000)),
			MIMEType:           "audio/mp3",
		}},
		source:    &fakeSource{},
		transport: &fakeTransport{},
		events:    &fakeEventSink{},
	}
	h.ctrl = NewController(
		h.synth,
		&fakeCatalog{voices: testVoices},
		h.source,
		h.transport,
		h.events,
		Config{DictationSupported: dictationSupported},
	)
	t.Cleanup(func() { _ = h.ctrl.Close() })

	if err := h.ctrl.RefreshVoices(context.Background()); err != nil {
		t.Fatalf("refresh voices failed: %v", err)
	}
	return h
}

func (h *harness) selectVoice(t *testing.T) {
	t.Helper()
	if err := h.ctrl.SetVoice(VoiceSelection{LanguageCode: "en-US", VoiceID: "en-US-Standard-A"}); err != nil {
		t.Fatalf("set voice failed: %v", err)
	}
}

func (h *harness) convert(t *testing.T) {
	t.Helper()
	done, err := h.ctrl.StartConvert(context.Background())
	if err != nil {
		t.Fatalf("start convert failed: %v", err)
	}
	waitClosed(t, done)
}

// ready drives the harness to Ready with a known duration.
func (h *harness) ready(t *testing.T, duration float64) {
	t.Helper()
	h.selectVoice(t)
	if err := h.ctrl.SetDraft("Hello world"); err != nil {
		t.Fatalf("set draft failed: %v", err)
	}
	h.convert(t)
	if got := h.ctrl.Snapshot().Status; got != StatusReady {
		t.Fatalf("expected ready, got %s", got)
	}
	h.ctrl.ReportProgress(0, duration)
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for channel")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func assertKind(t *testing.T, err error, sentinel error) {
	t.Helper()
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected %v, got %v", sentinel, err)
	}
}
