package mediasession

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestStartDictationUnsupported(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false)
	_ = h.ctrl.SetDraft("keep me")

	err := h.ctrl.StartDictation(context.Background(), "en-US")
	assertKind(t, err, ErrUnsupported)

	snap := h.ctrl.Snapshot()
	if snap.Dictation.Active || snap.Draft.IsDictating {
		t.Fatalf("dictation must stay inactive")
	}
	if snap.Dictation.LastError == "" {
		t.Fatalf("expected unsupported error to be recorded")
	}
	if snap.Draft.Content != "keep me" {
		t.Fatalf("draft must be unchanged, got %q", snap.Draft.Content)
	}
	if len(h.source.hints) != 0 {
		t.Fatalf("source must not be started when unsupported")
	}

	if err := h.ctrl.DismissError(); err != nil {
		t.Fatalf("dismiss failed: %v", err)
	}
	snap = h.ctrl.Snapshot()
	if snap.Dictation.LastError != "" {
		t.Fatalf("expected dictation error to be dismissed, got %q", snap.Dictation.LastError)
	}
	if snap.Status != StatusIdle || snap.Draft.Content != "keep me" {
		t.Fatalf("dismiss must not touch the session, got %s %q", snap.Status, snap.Draft.Content)
	}
}

func TestDictationInterimReplacedByFinal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	if err := h.ctrl.StartDictation(context.Background(), "en-US"); err != nil {
		t.Fatalf("start dictation failed: %v", err)
	}
	stream := h.source.last()

	stream.events <- TranscriptEvent{Kind: TranscriptEventResult, ResultIndex: 0, Results: []TranscriptSegment{{Text: "hel"}}}
	waitFor(t, "interim transcript", func() bool { return h.ctrl.Snapshot().Dictation.Interim == "hel" })
	if got := h.ctrl.Snapshot().Draft.Content; got != "" {
		t.Fatalf("interim text must not be committed, got %q", got)
	}

	stream.events <- TranscriptEvent{Kind: TranscriptEventResult, ResultIndex: 0, Results: []TranscriptSegment{{Text: "hello there", Final: true}}}
	waitFor(t, "final transcript", func() bool { return h.ctrl.Snapshot().Draft.Content == "hello there" })
	if got := h.ctrl.Snapshot().Dictation.Interim; got != "" {
		t.Fatalf("expected interim to clear, got %q", got)
	}
}

func TestDictationDraftEqualsJoinedFinals(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	if err := h.ctrl.StartDictation(context.Background(), ""); err != nil {
		t.Fatalf("start dictation failed: %v", err)
	}
	stream := h.source.last()

	finals := []string{" first phrase", "second", "third one "}
	var results []TranscriptSegment
	for i, text := range finals {
		stream.events <- TranscriptEvent{
			Kind:        TranscriptEventResult,
			ResultIndex: i,
			Results:     append(append([]TranscriptSegment{}, results...), TranscriptSegment{Text: "guess"}),
		}
		results = append(results, TranscriptSegment{Text: text, Final: true})
		stream.events <- TranscriptEvent{Kind: TranscriptEventResult, ResultIndex: i, Results: append([]TranscriptSegment{}, results...)}
	}

	want := "first phrase second third one"
	waitFor(t, "all finals", func() bool { return h.ctrl.Snapshot().Draft.Content == want })
}

func TestDictationAppendsToExistingDraft(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	_ = h.ctrl.SetDraft("Dear team,")
	if err := h.ctrl.StartDictation(context.Background(), "en-US"); err != nil {
		t.Fatalf("start dictation failed: %v", err)
	}
	h.source.last().events <- TranscriptEvent{Kind: TranscriptEventResult, Results: []TranscriptSegment{{Text: "thanks", Final: true}}}
	waitFor(t, "append", func() bool { return h.ctrl.Snapshot().Draft.Content == "Dear team, thanks" })
}

func TestDictationLocksDraftAndConvert(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.selectVoice(t)
	_ = h.ctrl.SetDraft("Hello")
	if err := h.ctrl.StartDictation(context.Background(), "en-US"); err != nil {
		t.Fatalf("start dictation failed: %v", err)
	}

	assertKind(t, h.ctrl.SetDraft("typed"), ErrBusy)
	_, err := h.ctrl.StartConvert(context.Background())
	assertKind(t, err, ErrBusy)
	if h.synth.callCount() != 0 {
		t.Fatalf("no synthesis may start while dictating")
	}
}

func TestDictationRejectedWhilePlayingOrConverting(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.ready(t, 60)
	if err := h.ctrl.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	assertKind(t, h.ctrl.StartDictation(context.Background(), "en-US"), ErrBusy)

	if err := h.ctrl.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if err := h.ctrl.StartDictation(context.Background(), "en-US"); err != nil {
		t.Fatalf("dictation should be allowed while paused: %v", err)
	}
	assertKind(t, h.ctrl.Play(), ErrBusy)
	if err := h.ctrl.StopDictation(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	h.synth.gate = make(chan struct{})
	done, err := h.ctrl.StartConvert(context.Background())
	if err != nil {
		t.Fatalf("start convert failed: %v", err)
	}
	assertKind(t, h.ctrl.StartDictation(context.Background(), "en-US"), ErrBusy)
	close(h.synth.gate)
	waitClosed(t, done)
}

func TestStopDictationIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	before := h.ctrl.Snapshot()
	if err := h.ctrl.StopDictation(); err != nil {
		t.Fatalf("stop on inactive dictation failed: %v", err)
	}
	if after := h.ctrl.Snapshot(); after.Version != before.Version {
		t.Fatalf("stop on inactive dictation must not change state")
	}

	if err := h.ctrl.StartDictation(context.Background(), "en-US"); err != nil {
		t.Fatalf("start dictation failed: %v", err)
	}
	stream := h.source.last()
	if err := h.ctrl.StopDictation(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := h.ctrl.StopDictation(); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
	if stream.stopCount() != 1 {
		t.Fatalf("expected one unsubscription, got %d", stream.stopCount())
	}
	snap := h.ctrl.Snapshot()
	if snap.Dictation.Active || snap.Draft.IsDictating {
		t.Fatalf("expected dictation inactive")
	}
	if err := h.ctrl.SetDraft("editable again"); err != nil {
		t.Fatalf("draft should be editable after stop: %v", err)
	}
}

func TestDictationErrorIsNonFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.ready(t, 10)
	if err := h.ctrl.StartDictation(context.Background(), "en-US"); err != nil {
		t.Fatalf("start dictation failed: %v", err)
	}
	stream := h.source.last()
	stream.events <- TranscriptEvent{Kind: TranscriptEventError, ErrorKind: DictationPermissionDenied}

	waitFor(t, "dictation error", func() bool { return !h.ctrl.Snapshot().Dictation.Active })
	snap := h.ctrl.Snapshot()
	if snap.Dictation.LastError != DictationPermissionDenied.Message() {
		t.Fatalf("unexpected dictation error: %q", snap.Dictation.LastError)
	}
	if snap.Status != StatusReady || snap.AudioSize == 0 {
		t.Fatalf("dictation failure must not affect the synthesis result")
	}
	waitFor(t, "unsubscription", func() bool { return stream.stopCount() >= 1 })
}

func TestDictationSourceEndDeactivates(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	if err := h.ctrl.StartDictation(context.Background(), "en-US"); err != nil {
		t.Fatalf("start dictation failed: %v", err)
	}
	h.source.last().events <- TranscriptEvent{Kind: TranscriptEventEnd}
	waitFor(t, "end", func() bool { return !h.ctrl.Snapshot().Dictation.Active })
	if h.ctrl.Snapshot().Dictation.LastError != "" {
		t.Fatalf("a normal end is not an error")
	}
}

func TestDictationStartFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.source.err = DictationFailure(DictationCaptureFailed, errors.New("no device"))

	err := h.ctrl.StartDictation(context.Background(), "en-US")
	assertKind(t, err, ErrService)
	snap := h.ctrl.Snapshot()
	if snap.Dictation.Active || snap.Dictation.LastError != DictationCaptureFailed.Message() {
		t.Fatalf("unexpected dictation state: %+v", snap.Dictation)
	}
	if err := h.ctrl.SetDraft("still usable"); err != nil {
		t.Fatalf("session must stay usable: %v", err)
	}
}

func TestDictationLanguageHintFallsBackToVoice(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	if err := h.ctrl.SelectLanguage("en-GB"); err != nil {
		t.Fatalf("select language failed: %v", err)
	}
	if err := h.ctrl.StartDictation(context.Background(), ""); err != nil {
		t.Fatalf("start dictation failed: %v", err)
	}
	if h.source.hints[0] != "en-GB" {
		t.Fatalf("expected en-GB hint, got %q", h.source.hints[0])
	}
}

func TestCloseStopsDictation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	if err := h.ctrl.StartDictation(context.Background(), "en-US"); err != nil {
		t.Fatalf("start dictation failed: %v", err)
	}
	stream := h.source.last()
	if err := h.ctrl.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if stream.stopCount() != 1 {
		t.Fatalf("expected dictation to be stopped on close")
	}
}

func TestParseDictationErrorKind(t *testing.T) {
	t.Parallel()

	tests := map[string]DictationErrorKind{
		"not-allowed":         DictationPermissionDenied,
		"service-not-allowed": DictationPermissionDenied,
		"no-speech":           DictationNoSpeech,
		"network":             DictationNetwork,
		"audio-capture":       DictationCaptureFailed,
		"aborted":             DictationOther,
		"":                    DictationOther,
	}
	seen := map[string]bool{}
	for code, want := range tests {
		got := ParseDictationErrorKind(code)
		if got != want {
			t.Fatalf("%q: expected %s, got %s", code, want, got)
		}
		seen[got.Message()] = true
	}
	if len(seen) != 5 {
		t.Fatalf("expected distinct messages per kind, got %d", len(seen))
	}
	for msg := range seen {
		if strings.TrimSpace(msg) == "" {
			t.Fatalf("empty message")
		}
	}
}
