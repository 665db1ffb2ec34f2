package mediasession

import (
	"context"
	"time"
)

// SynthesisRequest is the frozen input of one synthesis call.
type SynthesisRequest struct {
	Text         string  `json:"text"`
	LanguageCode string  `json:"languageCode"`
	VoiceName    string  `json:"voiceName"`
	Pitch        float64 `json:"pitch"`
	SpeakingRate float64 `json:"speakingRate"`
}

// SynthesisResponse carries base64 encoded audio as returned by the
// synthesis service.
type SynthesisResponse struct {
	AudioContentBase64 string `json:"audioContent"`
	MIMEType           string `json:"mimeType,omitempty"`
}

// Synthesizer converts text and voice parameters into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (SynthesisResponse, error)
}

// VoiceCatalog lists the voices the synthesizer accepts.
type VoiceCatalog interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}

// TranscriptionStream is an active live-transcription subscription.
// Events is closed once the stream has fully stopped; Stop may be called
// more than once.
type TranscriptionStream interface {
	Events() <-chan TranscriptEvent
	Stop() error
}

// TranscriptionSource starts live speech-to-text streams.
type TranscriptionSource interface {
	Start(ctx context.Context, languageHint string) (TranscriptionStream, error)
}

// Transport plays synthesized audio. Progress flows back through
// Controller.ReportProgress and Controller.ReportEnded.
type Transport interface {
	Load(result SynthesisResult) error
	Play() error
	Pause() error
	Seek(seconds float64) error
	SetVolume(volume float64) error
	SetMuted(muted bool) error
	// Unload releases the audio resource created by Load.
	Unload() error
}

// EventSink receives every new snapshot. It is called with the controller
// lock held and must not call back into the controller.
type EventSink interface {
	SessionChanged(snapshot Snapshot)
}

// Config carries the environment the controller runs in.
type Config struct {
	// DictationSupported reports whether the live transcription source is
	// usable in the current environment.
	DictationSupported  bool
	DefaultLanguageHint string
	DefaultMIMEType     string
	Now                 func() time.Time
}
