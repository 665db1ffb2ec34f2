package mediasession

import "time"

// Status models the session-level lifecycle of one text-to-speech round trip.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConverting Status = "converting"
	StatusReady      Status = "ready"
	StatusPlaying    Status = "playing"
	StatusPaused     Status = "paused"
	StatusError      Status = "error"
)

// Playback-only statuses reported in PlaybackState while a synthesis is
// pending or has failed.
const (
	PlaybackLoading Status = "loading"
	PlaybackErrored Status = "errored"
)

func playbackStatus(status Status) Status {
	switch status {
	case StatusConverting:
		return PlaybackLoading
	case StatusError:
		return PlaybackErrored
	default:
		return status
	}
}

// Pitch and speaking rate bounds accepted by the synthesis service.
const (
	MinPitch        = -20.0
	MaxPitch        = 20.0
	MinSpeakingRate = 0.25
	MaxSpeakingRate = 4.0
	DefaultRate     = 1.0
)

// Draft is the text currently being composed.
type Draft struct {
	Content     string `json:"content"`
	IsDictating bool   `json:"isDictating"`
}

// VoiceSelection parameterizes a synthesis request.
type VoiceSelection struct {
	LanguageCode string  `json:"languageCode"`
	VoiceID      string  `json:"voiceId"`
	Pitch        float64 `json:"pitch"`
	SpeakingRate float64 `json:"speakingRate"`
}

// Voice is one entry of the voice catalog.
type Voice struct {
	Name          string   `json:"name"`
	LanguageCodes []string `json:"languageCodes"`
	SSMLGender    string   `json:"ssmlGender,omitempty"`
}

func (v Voice) speaks(languageCode string) bool {
	for _, code := range v.LanguageCodes {
		if code == languageCode {
			return true
		}
	}
	return false
}

// SynthesisResult is the decoded audio of a successful synthesis.
type SynthesisResult struct {
	AudioBytes []byte
	MIMEType   string
	CreatedAt  time.Time
}

// PlaybackState mirrors the playback transport.
type PlaybackState struct {
	Status          Status  `json:"status"`
	PositionSeconds float64 `json:"positionSeconds"`
	DurationSeconds float64 `json:"durationSeconds"`
	Volume          float64 `json:"volume"`
	Muted           bool    `json:"muted"`
}

// DictationState is the externally visible part of a dictation session.
type DictationState struct {
	Active       bool   `json:"active"`
	LanguageHint string `json:"languageHint,omitempty"`
	Interim      string `json:"interim,omitempty"`
	LastError    string `json:"lastError,omitempty"`
}

// ErrorInfo is a presentation-safe description of the last error.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Snapshot is a read-only copy of the controller state handed to views.
type Snapshot struct {
	Version   uint64         `json:"version"`
	Status    Status         `json:"status"`
	Draft     Draft          `json:"draft"`
	Voice     VoiceSelection `json:"voice"`
	Playback  PlaybackState  `json:"playback"`
	Dictation DictationState `json:"dictation"`
	Error     *ErrorInfo     `json:"error,omitempty"`
	AudioSize int            `json:"audioSize,omitempty"`
	AudioMIME string         `json:"audioMime,omitempty"`
	Voices    int            `json:"voices"`
}

// TranscriptSegment is one recognition result of a live transcription event.
type TranscriptSegment struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// TranscriptEventKind identifies the live transcription callbacks.
type TranscriptEventKind string

const (
	TranscriptEventStart  TranscriptEventKind = "start"
	TranscriptEventResult TranscriptEventKind = "result"
	TranscriptEventError  TranscriptEventKind = "error"
	TranscriptEventEnd    TranscriptEventKind = "end"
)

// TranscriptEvent is pushed by a TranscriptionSource. Results holds every
// result of the recognition session; only entries from ResultIndex onward
// changed since the previous event.
type TranscriptEvent struct {
	Kind        TranscriptEventKind `json:"kind"`
	ResultIndex int                 `json:"resultIndex"`
	Results     []TranscriptSegment `json:"results,omitempty"`
	ErrorKind   DictationErrorKind  `json:"errorKind,omitempty"`
}
