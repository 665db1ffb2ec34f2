package mediasession

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/schollz/closestmatch"
)

const defaultMIMEType = "audio/mpeg"

// Controller owns the draft, voice selection, playback state and dictation
// session of one user and enforces the legal transitions between them.
type Controller struct {
	synth     Synthesizer
	catalog   VoiceCatalog
	source    TranscriptionSource
	transport Transport
	events    EventSink
	cfg       Config

	mu       sync.Mutex
	closed   bool
	version  uint64
	status   Status
	draft    Draft
	voice    VoiceSelection
	voices   []Voice
	matcher  *closestmatch.ClosestMatch
	result   *SynthesisResult
	playback PlaybackState
	lastErr  *Error

	cancelConvert context.CancelFunc

	dictation        *dictationSession
	dictationPending bool
	interim          string
	dictationErr     string
	dictationHint    string
}

func NewController(
	synth Synthesizer,
	catalog VoiceCatalog,
	source TranscriptionSource,
	transport Transport,
	events EventSink,
	cfg Config,
) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DefaultMIMEType == "" {
		cfg.DefaultMIMEType = defaultMIMEType
	}
	if cfg.DefaultLanguageHint == "" {
		cfg.DefaultLanguageHint = "en-US"
	}
	if source == nil {
		cfg.DictationSupported = false
	}
	return &Controller{
		synth:     synth,
		catalog:   catalog,
		source:    source,
		transport: transport,
		events:    events,
		cfg:       cfg,
		status:    StatusIdle,
		voice:     VoiceSelection{SpeakingRate: DefaultRate},
		playback:  PlaybackState{Status: StatusIdle, Volume: 1},
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Voices returns the last successfully fetched voice catalog.
func (c *Controller) Voices() []Voice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Voice, len(c.voices))
	copy(out, c.voices)
	return out
}

// SetDraft replaces the draft text. Direct edits are rejected while
// dictation owns the draft.
func (c *Controller) SetDraft(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.dictating() {
		return c.rejectLocked(newError(KindBusy, "the draft cannot be edited while dictating"))
	}
	c.draft.Content = text
	c.emitLocked()
	return nil
}

// RefreshVoices fetches the voice catalog. A selection that no longer
// matches the catalog is cleared.
func (c *Controller) RefreshVoices(ctx context.Context) error {
	if c.catalog == nil {
		return newError(KindUnsupported, "no voice catalog configured")
	}
	voices, err := c.catalog.ListVoices(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err != nil {
		return c.rejectLocked(classifyRemote(err, "could not load the voice catalog"))
	}

	c.voices = voices
	names := make([]string, 0, len(voices))
	for _, v := range voices {
		names = append(names, v.Name)
	}
	c.matcher = nil
	if len(names) > 0 {
		c.matcher = closestmatch.New(names, []int{2, 3})
	}

	if c.voice.VoiceID != "" {
		if v, ok := c.findVoice(c.voice.VoiceID); !ok || !v.speaks(c.voice.LanguageCode) {
			c.voice.VoiceID = ""
			c.voice.LanguageCode = ""
		}
	}
	c.emitLocked()
	return nil
}

// SetVoice selects a voice from the catalog together with its parameters.
// A zero SpeakingRate selects the default rate.
func (c *Controller) SetVoice(sel VoiceSelection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if sel.SpeakingRate == 0 {
		sel.SpeakingRate = DefaultRate
	}
	if err := c.validateVoiceLocked(sel); err != nil {
		return c.rejectLocked(err)
	}
	c.voice = sel
	c.emitLocked()
	return nil
}

// SelectLanguage switches to the first catalog voice that declares the
// language, keeping pitch and speaking rate.
func (c *Controller) SelectLanguage(languageCode string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	for _, v := range c.voices {
		if v.speaks(languageCode) {
			c.voice.LanguageCode = languageCode
			c.voice.VoiceID = v.Name
			c.emitLocked()
			return nil
		}
	}
	return c.rejectLocked(newError(KindValidation, fmt.Sprintf("no voice available for language %q", languageCode)))
}

func (c *Controller) validateVoiceLocked(sel VoiceSelection) *Error {
	if sel.VoiceID == "" {
		return newError(KindValidation, "voice required")
	}
	if sel.LanguageCode == "" {
		return newError(KindValidation, "language required")
	}
	if math.IsNaN(sel.Pitch) || sel.Pitch < MinPitch || sel.Pitch > MaxPitch {
		return newError(KindValidation, fmt.Sprintf("pitch must be between %g and %g", MinPitch, MaxPitch))
	}
	if math.IsNaN(sel.SpeakingRate) || sel.SpeakingRate < MinSpeakingRate || sel.SpeakingRate > MaxSpeakingRate {
		return newError(KindValidation, fmt.Sprintf("speaking rate must be between %g and %g", MinSpeakingRate, MaxSpeakingRate))
	}
	if len(c.voices) == 0 {
		return newError(KindValidation, "voice catalog not loaded")
	}
	v, ok := c.findVoice(sel.VoiceID)
	if !ok {
		msg := fmt.Sprintf("unknown voice %q", sel.VoiceID)
		if c.matcher != nil {
			if guess := c.matcher.Closest(sel.VoiceID); guess != "" {
				msg += fmt.Sprintf(", did you mean %q?", guess)
			}
		}
		return newError(KindValidation, msg)
	}
	if !v.speaks(sel.LanguageCode) {
		return newError(KindValidation, fmt.Sprintf("voice %q does not speak %s", sel.VoiceID, sel.LanguageCode))
	}
	return nil
}

func (c *Controller) findVoice(name string) (Voice, bool) {
	for _, v := range c.voices {
		if v.Name == name {
			return v, true
		}
	}
	return Voice{}, false
}

// StartConvert freezes the draft and voice and starts a synthesis call. It
// returns once the session is Converting; the returned channel is closed
// when the call has settled into Ready or Error. ctx bounds the remote call.
func (c *Controller) StartConvert(ctx context.Context) (<-chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.status == StatusConverting {
		return nil, c.rejectLocked(newError(KindBusy, "a conversion is already in progress"))
	}
	if c.dictating() {
		return nil, c.rejectLocked(newError(KindBusy, "stop dictation before converting"))
	}

	text := strings.TrimSpace(c.draft.Content)
	switch {
	case text == "":
		return nil, c.rejectLocked(newError(KindValidation, "text required"))
	case c.voice.VoiceID == "":
		return nil, c.rejectLocked(newError(KindValidation, "voice required"))
	case c.voice.LanguageCode == "":
		return nil, c.rejectLocked(newError(KindValidation, "language required"))
	}

	req := SynthesisRequest{
		Text:         text,
		LanguageCode: c.voice.LanguageCode,
		VoiceName:    c.voice.VoiceID,
		Pitch:        c.voice.Pitch,
		SpeakingRate: c.voice.SpeakingRate,
	}

	c.discardResultLocked()
	c.lastErr = nil
	c.status = StatusConverting

	convertCtx, cancel := context.WithCancel(ctx)
	c.cancelConvert = cancel
	done := make(chan struct{})
	c.emitLocked()

	go c.runConvert(convertCtx, cancel, req, done)
	return done, nil
}

func (c *Controller) runConvert(ctx context.Context, cancel context.CancelFunc, req SynthesisRequest, done chan struct{}) {
	defer close(done)
	defer cancel()

	result, err := c.synthesize(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelConvert = nil
	if c.closed {
		return
	}
	if err != nil {
		c.failLocked(err)
		return
	}
	if c.transport != nil {
		if loadErr := c.transport.Load(result); loadErr != nil {
			c.failLocked(wrapError(KindService, "could not load the synthesized audio", loadErr))
			return
		}
	}

	c.result = &result
	c.lastErr = nil
	c.playback = PlaybackState{
		Status: StatusReady,
		Volume: c.playback.Volume,
		Muted:  c.playback.Muted,
	}
	c.status = StatusReady
	c.emitLocked()
}

func (c *Controller) synthesize(ctx context.Context, req SynthesisRequest) (SynthesisResult, error) {
	if c.synth == nil {
		return SynthesisResult{}, newError(KindUnsupported, "no synthesizer configured")
	}
	resp, err := c.synth.Synthesize(ctx, req)
	if err != nil {
		return SynthesisResult{}, classifyRemote(err, "speech synthesis failed")
	}
	audio, err := decodeAudio(resp.AudioContentBase64)
	if err != nil {
		return SynthesisResult{}, err
	}
	mime := resp.MIMEType
	if mime == "" {
		mime = c.cfg.DefaultMIMEType
	}
	return SynthesisResult{AudioBytes: audio, MIMEType: mime, CreatedAt: c.cfg.Now()}, nil
}

func decodeAudio(payload string) ([]byte, error) {
	audio, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, wrapError(KindDecode, "synthesized audio is not valid base64", err)
	}
	if len(audio) == 0 {
		return nil, newError(KindDecode, "synthesized audio is empty")
	}
	return audio, nil
}

// classifyRemote keeps errors that are already classified and marks
// everything else as a service failure.
func classifyRemote(err error, msg string) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return wrapError(KindService, msg, err)
}

// DismissError clears the last session and dictation errors; from Error the
// session returns to Idle.
func (c *Controller) DismissError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.lastErr == nil && c.dictationErr == "" && c.status != StatusError {
		return nil
	}
	c.lastErr = nil
	c.dictationErr = ""
	if c.status == StatusError {
		c.status = StatusIdle
		c.playback = PlaybackState{Status: StatusIdle, Volume: c.playback.Volume, Muted: c.playback.Muted}
	}
	c.emitLocked()
	return nil
}

// Play starts or resumes playback from Ready or Paused.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.status != StatusReady && c.status != StatusPaused {
		return c.rejectLocked(newError(KindInvalidState, fmt.Sprintf("cannot play while %s", c.status)))
	}
	if c.dictating() {
		return c.rejectLocked(newError(KindBusy, "stop dictation before playing"))
	}
	if c.transport != nil {
		if err := c.transport.Play(); err != nil {
			return wrapError(KindService, "playback failed", err)
		}
	}
	c.setStatusLocked(StatusPlaying)
	return nil
}

// Pause pauses playback.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.status != StatusPlaying {
		return c.rejectLocked(newError(KindInvalidState, fmt.Sprintf("cannot pause while %s", c.status)))
	}
	if c.transport != nil {
		if err := c.transport.Pause(); err != nil {
			return wrapError(KindService, "pause failed", err)
		}
	}
	c.setStatusLocked(StatusPaused)
	return nil
}

// Seek moves the playback position, clamped to [0, duration]. The position
// is updated immediately without waiting for the transport's next report.
func (c *Controller) Seek(seconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	switch c.status {
	case StatusReady, StatusPlaying, StatusPaused:
	default:
		return c.rejectLocked(newError(KindInvalidState, fmt.Sprintf("cannot seek while %s", c.status)))
	}
	if math.IsNaN(seconds) {
		return c.rejectLocked(newError(KindValidation, "seek position must be a number"))
	}
	target := clamp(seconds, 0, c.playback.DurationSeconds)
	if c.transport != nil {
		if err := c.transport.Seek(target); err != nil {
			return wrapError(KindService, "seek failed", err)
		}
	}
	c.playback.PositionSeconds = target
	c.emitLocked()
	return nil
}

// SetVolume sets the playback volume, clamped to [0, 1].
func (c *Controller) SetVolume(volume float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if math.IsNaN(volume) {
		return newError(KindValidation, "volume must be a number")
	}
	volume = clamp(volume, 0, 1)
	if c.transport != nil {
		if err := c.transport.SetVolume(volume); err != nil {
			return wrapError(KindService, "volume change failed", err)
		}
	}
	c.playback.Volume = volume
	c.emitLocked()
	return nil
}

// ToggleMute flips the muted flag.
func (c *Controller) ToggleMute() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	muted := !c.playback.Muted
	if c.transport != nil {
		if err := c.transport.SetMuted(muted); err != nil {
			return wrapError(KindService, "mute failed", err)
		}
	}
	c.playback.Muted = muted
	c.emitLocked()
	return nil
}

// ReportProgress records the transport's own playback position and
// duration. Positions are taken only while playing.
func (c *Controller) ReportProgress(position, duration float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.result == nil {
		return
	}
	changed := false
	if duration > 0 && !math.IsInf(duration, 0) && duration != c.playback.DurationSeconds {
		c.playback.DurationSeconds = duration
		changed = true
	}
	if c.status == StatusPlaying && !math.IsNaN(position) {
		pos := clamp(position, 0, c.playback.DurationSeconds)
		if pos != c.playback.PositionSeconds {
			c.playback.PositionSeconds = pos
			changed = true
		}
	}
	if changed {
		c.emitLocked()
	}
}

// ReportEnded moves a playing session back to Ready at position zero.
func (c *Controller) ReportEnded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.status != StatusPlaying {
		return
	}
	c.playback.PositionSeconds = 0
	c.setStatusLocked(StatusReady)
}

// StartDictation opens a live transcription stream feeding the draft. It is
// allowed only from Idle, Ready or Paused.
func (c *Controller) StartDictation(ctx context.Context, languageHint string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.dictating() {
		c.mu.Unlock()
		return nil
	}
	switch c.status {
	case StatusIdle, StatusReady, StatusPaused:
	default:
		err := c.rejectLocked(newError(KindBusy, fmt.Sprintf("dictation is unavailable while %s", c.status)))
		c.mu.Unlock()
		return err
	}
	if !c.cfg.DictationSupported {
		err := newError(KindUnsupported, "live dictation is not supported in this environment")
		c.dictationErr = err.Message
		c.emitLocked()
		c.mu.Unlock()
		return err
	}
	if languageHint == "" {
		languageHint = c.voice.LanguageCode
	}
	if languageHint == "" {
		languageHint = c.cfg.DefaultLanguageHint
	}
	c.dictationPending = true
	c.mu.Unlock()

	stream, err := c.source.Start(ctx, languageHint)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dictationPending = false
	if err != nil {
		failure := classifyRemote(err, DictationOther.Message())
		c.dictationErr = failure.Message
		c.emitLocked()
		return failure
	}
	if c.closed {
		_ = stream.Stop()
		return ErrClosed
	}

	session := &dictationSession{stream: stream, languageHint: languageHint, done: make(chan struct{})}
	c.dictation = session
	c.dictationHint = languageHint
	c.dictationErr = ""
	c.interim = ""
	c.draft.IsDictating = true
	c.emitLocked()

	go consumeTranscriptEvents(c, session)
	return nil
}

// StopDictation ends the active dictation session. Calling it while no
// session is active does nothing.
func (c *Controller) StopDictation() error {
	c.mu.Lock()
	session := c.dictation
	if session == nil {
		c.mu.Unlock()
		return nil
	}
	c.detachDictationLocked()
	c.emitLocked()
	c.mu.Unlock()

	err := session.stream.Stop()
	<-session.done
	return err
}

func (c *Controller) handleTranscriptEvent(session *dictationSession, event TranscriptEvent) {
	c.mu.Lock()
	if c.dictation != session {
		c.mu.Unlock()
		return
	}

	switch event.Kind {
	case TranscriptEventResult:
		final, interim := partitionResults(event)
		content := appendTranscript(c.draft.Content, final)
		if content != c.draft.Content || interim != c.interim {
			c.draft.Content = content
			c.interim = interim
			c.emitLocked()
		}
		c.mu.Unlock()
	case TranscriptEventError:
		kind := event.ErrorKind
		if kind == "" {
			kind = DictationOther
		}
		c.detachDictationLocked()
		c.dictationErr = kind.Message()
		c.emitLocked()
		c.mu.Unlock()
		_ = session.stream.Stop()
	case TranscriptEventEnd:
		c.detachDictationLocked()
		c.emitLocked()
		c.mu.Unlock()
		_ = session.stream.Stop()
	default:
		c.mu.Unlock()
	}
}

func (c *Controller) handleStreamClosed(session *dictationSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dictation != session {
		return
	}
	c.detachDictationLocked()
	c.emitLocked()
}

func (c *Controller) detachDictationLocked() {
	c.dictation = nil
	c.interim = ""
	c.draft.IsDictating = false
}

func (c *Controller) dictating() bool {
	return c.dictation != nil || c.dictationPending
}

// Close tears the session down: dictation is stopped, a pending synthesis
// is abandoned and the loaded audio is released. Close is idempotent.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.cancelConvert != nil {
		c.cancelConvert()
		c.cancelConvert = nil
	}
	session := c.dictation
	c.detachDictationLocked()
	unloadErr := c.discardResultLocked()
	c.mu.Unlock()

	var stopErr error
	if session != nil {
		stopErr = session.stream.Stop()
		<-session.done
	}
	return errors.Join(stopErr, unloadErr)
}

func (c *Controller) discardResultLocked() error {
	if c.result == nil {
		return nil
	}
	c.result = nil
	c.playback = PlaybackState{Status: StatusIdle, Volume: c.playback.Volume, Muted: c.playback.Muted}
	if c.transport != nil {
		return c.transport.Unload()
	}
	return nil
}

func (c *Controller) failLocked(err error) {
	c.lastErr = classifyRemote(err, "speech synthesis failed")
	c.status = StatusError
	c.playback.Status = PlaybackErrored
	c.emitLocked()
}

// rejectLocked records a rejected intent without changing the session
// status and returns it to the caller.
func (c *Controller) rejectLocked(err *Error) error {
	c.lastErr = err
	c.emitLocked()
	return err
}

func (c *Controller) setStatusLocked(status Status) {
	c.status = status
	c.playback.Status = playbackStatus(status)
	c.emitLocked()
}

func (c *Controller) emitLocked() {
	c.version++
	if c.events != nil {
		c.events.SessionChanged(c.snapshotLocked())
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Version:  c.version,
		Status:   c.status,
		Draft:    c.draft,
		Voice:    c.voice,
		Playback: c.playback,
		Dictation: DictationState{
			Active:       c.dictation != nil,
			LanguageHint: c.dictationHint,
			Interim:      c.interim,
			LastError:    c.dictationErr,
		},
		Voices: len(c.voices),
	}
	snap.Playback.Status = playbackStatus(c.status)
	if c.lastErr != nil {
		snap.Error = c.lastErr.info()
	}
	if c.result != nil {
		snap.AudioSize = len(c.result.AudioBytes)
		snap.AudioMIME = c.result.MIMEType
	}
	return snap
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return math.Max(lo, math.Min(v, hi))
}
