package mediasession

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestStartConvertRequiresText(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.selectVoice(t)

	done, err := h.ctrl.StartConvert(context.Background())
	assertKind(t, err, ErrValidation)
	if done != nil {
		t.Fatalf("expected no pending conversion")
	}

	snap := h.ctrl.Snapshot()
	if snap.Status != StatusIdle {
		t.Fatalf("expected idle, got %s", snap.Status)
	}
	if snap.Error == nil || snap.Error.Message != "text required" {
		t.Fatalf("expected text required error, got %+v", snap.Error)
	}
	if h.synth.callCount() != 0 {
		t.Fatalf("synthesizer must not be called on validation failure")
	}
}

func TestStartConvertRequiresVoice(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	if err := h.ctrl.SetDraft("Hello"); err != nil {
		t.Fatalf("set draft failed: %v", err)
	}

	_, err := h.ctrl.StartConvert(context.Background())
	assertKind(t, err, ErrValidation)
	if !strings.Contains(err.Error(), "voice required") {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.ctrl.Snapshot().Status != StatusIdle || h.synth.callCount() != 0 {
		t.Fatalf("rejected conversion must not change state or call the service")
	}
}

func TestStartConvertWhitespaceDraftIsEmpty(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.selectVoice(t)
	_ = h.ctrl.SetDraft("   \n\t")

	_, err := h.ctrl.StartConvert(context.Background())
	assertKind(t, err, ErrValidation)
}

func TestStartConvertSuccess(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.selectVoice(t)
	_ = h.ctrl.SetDraft("Hello world")
	h.convert(t)

	snap := h.ctrl.Snapshot()
	if snap.Status != StatusReady {
		t.Fatalf("expected ready, got %s", snap.Status)
	}
	if snap.Playback.PositionSeconds != 0 {
		t.Fatalf("expected position 0, got %v", snap.Playback.PositionSeconds)
	}
	if snap.AudioSize != 1000 || snap.AudioMIME != "audio/mp3" {
		t.Fatalf("unexpected audio: %d bytes %s", snap.AudioSize, snap.AudioMIME)
	}

	statuses := h.events.statuses()
	want := []Status{StatusIdle, StatusConverting, StatusReady}
	if len(statuses) != len(want) {
		t.Fatalf("unexpected transitions: %v", statuses)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("unexpected transitions: %v", statuses)
		}
	}

	if len(h.transport.loaded) != 1 || len(h.transport.loaded[0].AudioBytes) != 1000 {
		t.Fatalf("expected transport to load the synthesized audio")
	}
	req := h.synth.calls[0]
	if req.Text != "Hello world" || req.VoiceName != "en-US-Standard-A" || req.LanguageCode != "en-US" || req.SpeakingRate != DefaultRate {
		t.Fatalf("unexpected synthesis request: %+v", req)
	}
}

func TestStartConvertEmptyAudioIsDecodeError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.synth.resp = SynthesisResponse{AudioContentBase64: "", MIMEType: "audio/mp3"}
	h.selectVoice(t)
	_ = h.ctrl.SetDraft("Hello world")
	h.convert(t)

	snap := h.ctrl.Snapshot()
	if snap.Status != StatusError {
		t.Fatalf("expected error, got %s", snap.Status)
	}
	if snap.Error == nil || snap.Error.Kind != KindDecode {
		t.Fatalf("expected decode error, got %+v", snap.Error)
	}
	if snap.Playback.Status != PlaybackErrored {
		t.Fatalf("expected errored playback, got %s", snap.Playback.Status)
	}
	if len(h.transport.loaded) != 0 {
		t.Fatalf("empty audio must not reach the transport")
	}
}

func TestStartConvertInvalidBase64IsDecodeError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.synth.resp = SynthesisResponse{AudioContentBase64: "not base64!!"}
	h.selectVoice(t)
	_ = h.ctrl.SetDraft("Hello")
	h.convert(t)

	if got := h.ctrl.Snapshot().Error; got == nil || got.Kind != KindDecode {
		t.Fatalf("expected decode error, got %+v", got)
	}
}

func TestStartConvertServiceFailureIsDismissible(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.synth.err = errors.New("503 backend unavailable")
	h.selectVoice(t)
	_ = h.ctrl.SetDraft("Hello")
	h.convert(t)

	snap := h.ctrl.Snapshot()
	if snap.Status != StatusError || snap.Error.Kind != KindService {
		t.Fatalf("expected service error, got %s %+v", snap.Status, snap.Error)
	}
	if strings.Contains(snap.Error.Message, "503") {
		t.Fatalf("remote error details must not leak into the snapshot: %q", snap.Error.Message)
	}
	if h.synth.callCount() != 1 {
		t.Fatalf("failed synthesis must not be retried")
	}

	if err := h.ctrl.DismissError(); err != nil {
		t.Fatalf("dismiss failed: %v", err)
	}
	snap = h.ctrl.Snapshot()
	if snap.Status != StatusIdle || snap.Error != nil {
		t.Fatalf("expected idle without error, got %s %+v", snap.Status, snap.Error)
	}

	h.synth.err = nil
	h.convert(t)
	if h.ctrl.Snapshot().Status != StatusReady {
		t.Fatalf("expected ready after retry")
	}
}

func TestStartConvertWhileConvertingIsBusy(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.synth.gate = make(chan struct{})
	h.selectVoice(t)
	_ = h.ctrl.SetDraft("Hello")

	done, err := h.ctrl.StartConvert(context.Background())
	if err != nil {
		t.Fatalf("start convert failed: %v", err)
	}
	waitFor(t, "synthesis call", func() bool { return h.synth.callCount() == 1 })

	_, err = h.ctrl.StartConvert(context.Background())
	assertKind(t, err, ErrBusy)
	if h.ctrl.Snapshot().Status != StatusConverting {
		t.Fatalf("busy rejection must not change the status")
	}

	close(h.synth.gate)
	waitClosed(t, done)
	if h.synth.callCount() != 1 {
		t.Fatalf("expected exactly one synthesis call, got %d", h.synth.callCount())
	}
	snap := h.ctrl.Snapshot()
	if snap.Status != StatusReady || snap.Error != nil {
		t.Fatalf("expected clean ready, got %s %+v", snap.Status, snap.Error)
	}
}

func TestReconvertDiscardsPlayingAudio(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.ready(t, 30)
	if err := h.ctrl.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	h.ctrl.ReportProgress(12, 30)

	h.convert(t)

	snap := h.ctrl.Snapshot()
	if snap.Status != StatusReady || snap.Playback.PositionSeconds != 0 || snap.Playback.DurationSeconds != 0 {
		t.Fatalf("expected fresh playback state, got %+v", snap.Playback)
	}
	if h.transport.unloadCount() != 1 || len(h.transport.loaded) != 2 {
		t.Fatalf("expected previous audio to be released and new audio loaded")
	}
}

func TestPlaybackTransitions(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	assertKind(t, h.ctrl.Play(), ErrInvalidState)

	h.ready(t, 120)
	assertKind(t, h.ctrl.Pause(), ErrInvalidState)

	steps := []struct {
		name string
		do   func() error
		want Status
	}{
		{"play", h.ctrl.Play, StatusPlaying},
		{"pause", h.ctrl.Pause, StatusPaused},
		{"resume", h.ctrl.Play, StatusPlaying},
	}
	for _, step := range steps {
		if err := step.do(); err != nil {
			t.Fatalf("%s failed: %v", step.name, err)
		}
		if got := h.ctrl.Snapshot().Status; got != step.want {
			t.Fatalf("%s: expected %s, got %s", step.name, step.want, got)
		}
	}

	h.ctrl.ReportProgress(119.5, 120)
	h.ctrl.ReportEnded()
	snap := h.ctrl.Snapshot()
	if snap.Status != StatusReady || snap.Playback.PositionSeconds != 0 {
		t.Fatalf("expected ready at 0 after end, got %s at %v", snap.Status, snap.Playback.PositionSeconds)
	}
}

func TestSeekClampsToDuration(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.ready(t, 120)
	if err := h.ctrl.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}

	if err := h.ctrl.Seek(999); err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	if got := h.ctrl.Snapshot().Playback.PositionSeconds; got != 120 {
		t.Fatalf("expected position 120, got %v", got)
	}
	if err := h.ctrl.Seek(-5); err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	if got := h.ctrl.Snapshot().Playback.PositionSeconds; got != 0 {
		t.Fatalf("expected position 0, got %v", got)
	}
	if len(h.transport.seeks) != 2 || h.transport.seeks[0] != 120 {
		t.Fatalf("expected clamped seeks to reach the transport: %v", h.transport.seeks)
	}
}

func TestSeekOutsidePlayableStates(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	assertKind(t, h.ctrl.Seek(10), ErrInvalidState)
}

func TestRejectedPlaybackIntentsAreRecorded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		do   func(c *Controller) error
		want error
	}{
		{"play", (*Controller).Play, ErrInvalidState},
		{"pause", (*Controller).Pause, ErrInvalidState},
		{"seek", func(c *Controller) error { return c.Seek(3) }, ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, true)
			before := h.ctrl.Snapshot().Version

			assertKind(t, tt.do(h.ctrl), tt.want)
			snap := h.ctrl.Snapshot()
			if snap.Error == nil || snap.Error.Kind != KindInvalidState {
				t.Fatalf("expected invalid state error in snapshot, got %+v", snap.Error)
			}
			if snap.Status != StatusIdle || snap.Version == before {
				t.Fatalf("expected idle with a new version, got %s v%d", snap.Status, snap.Version)
			}

			if err := h.ctrl.DismissError(); err != nil {
				t.Fatalf("dismiss failed: %v", err)
			}
			if h.ctrl.Snapshot().Error != nil {
				t.Fatalf("expected error to be dismissed")
			}
		})
	}
}

func TestVolumeAndMuteKeepStatus(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	if err := h.ctrl.SetVolume(1.7); err != nil {
		t.Fatalf("set volume failed: %v", err)
	}
	if err := h.ctrl.ToggleMute(); err != nil {
		t.Fatalf("toggle mute failed: %v", err)
	}

	snap := h.ctrl.Snapshot()
	if snap.Status != StatusIdle {
		t.Fatalf("volume changes must not change status")
	}
	if snap.Playback.Volume != 1 || !snap.Playback.Muted {
		t.Fatalf("unexpected playback: %+v", snap.Playback)
	}

	_ = h.ctrl.SetVolume(-1)
	if got := h.ctrl.Snapshot().Playback.Volume; got != 0 {
		t.Fatalf("expected volume 0, got %v", got)
	}

	h.ready(t, 10)
	if snap := h.ctrl.Snapshot(); snap.Playback.Volume != 0 || !snap.Playback.Muted {
		t.Fatalf("volume preferences must survive a new synthesis: %+v", snap.Playback)
	}
}

func TestSetVoiceValidation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)

	tests := []struct {
		name string
		sel  VoiceSelection
		msg  string
	}{
		{"unknown voice", VoiceSelection{LanguageCode: "en-US", VoiceID: "en-US-Standard-X"}, "did you mean"},
		{"wrong language", VoiceSelection{LanguageCode: "fr-FR", VoiceID: "en-US-Standard-A"}, "does not speak"},
		{"pitch too high", VoiceSelection{LanguageCode: "en-US", VoiceID: "en-US-Standard-A", Pitch: 21}, "pitch"},
		{"rate too low", VoiceSelection{LanguageCode: "en-US", VoiceID: "en-US-Standard-A", SpeakingRate: 0.1}, "speaking rate"},
		{"missing language", VoiceSelection{VoiceID: "en-US-Standard-A"}, "language required"},
	}
	for _, tt := range tests {
		err := h.ctrl.SetVoice(tt.sel)
		assertKind(t, err, ErrValidation)
		if !strings.Contains(err.Error(), tt.msg) {
			t.Fatalf("%s: expected %q in %v", tt.name, tt.msg, err)
		}
	}
	if h.ctrl.Snapshot().Voice.VoiceID != "" {
		t.Fatalf("invalid selections must not be applied")
	}
}

func TestSetVoiceRequiresCatalog(t *testing.T) {
	t.Parallel()

	ctrl := NewController(nil, &fakeCatalog{}, nil, nil, nil, Config{})
	err := ctrl.SetVoice(VoiceSelection{LanguageCode: "en-US", VoiceID: "en-US-Standard-A"})
	assertKind(t, err, ErrValidation)
}

func TestRefreshVoicesFailure(t *testing.T) {
	t.Parallel()

	ctrl := NewController(nil, &fakeCatalog{err: errors.New("dial tcp: timeout")}, nil, nil, nil, Config{})
	err := ctrl.RefreshVoices(context.Background())
	assertKind(t, err, ErrService)
	if ctrl.Snapshot().Status != StatusIdle {
		t.Fatalf("catalog failures must not change the session status")
	}
}

func TestSelectLanguage(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	if err := h.ctrl.SelectLanguage("de-DE"); err != nil {
		t.Fatalf("select language failed: %v", err)
	}
	voice := h.ctrl.Snapshot().Voice
	if voice.VoiceID != "de-DE-Wavenet-C" || voice.LanguageCode != "de-DE" {
		t.Fatalf("unexpected voice: %+v", voice)
	}
	assertKind(t, h.ctrl.SelectLanguage("xx-XX"), ErrValidation)
}

func TestCloseReleasesResources(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.ready(t, 5)
	if err := h.ctrl.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if h.transport.unloadCount() != 1 {
		t.Fatalf("expected audio to be released on close")
	}
	if err := h.ctrl.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	assertKind(t, h.ctrl.SetDraft("x"), ErrClosed)
}

func TestCloseAbandonsPendingSynthesis(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.synth.gate = make(chan struct{})
	h.selectVoice(t)
	_ = h.ctrl.SetDraft("Hello")

	done, err := h.ctrl.StartConvert(context.Background())
	if err != nil {
		t.Fatalf("start convert failed: %v", err)
	}
	if err := h.ctrl.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	waitClosed(t, done)

	if len(h.transport.loaded) != 0 {
		t.Fatalf("abandoned synthesis must not load audio")
	}
}

func TestSnapshotVersionIncreases(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	before := h.ctrl.Snapshot().Version
	_ = h.ctrl.SetDraft("a")
	after := h.ctrl.Snapshot().Version
	if after <= before {
		t.Fatalf("expected version to grow, got %d -> %d", before, after)
	}
}
