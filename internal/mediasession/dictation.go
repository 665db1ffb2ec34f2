package mediasession

// DictationErrorKind classifies live-transcription failures.
type DictationErrorKind string

const (
	DictationPermissionDenied DictationErrorKind = "permission-denied"
	DictationNoSpeech         DictationErrorKind = "no-speech"
	DictationNetwork          DictationErrorKind = "network"
	DictationCaptureFailed    DictationErrorKind = "audio-capture"
	DictationOther            DictationErrorKind = "other"
)

// ParseDictationErrorKind maps the error codes of browser speech
// recognition onto the closed kind set.
func ParseDictationErrorKind(code string) DictationErrorKind {
	switch code {
	case "not-allowed", "service-not-allowed", string(DictationPermissionDenied):
		return DictationPermissionDenied
	case string(DictationNoSpeech):
		return DictationNoSpeech
	case string(DictationNetwork):
		return DictationNetwork
	case string(DictationCaptureFailed), "audio-capture-failed":
		return DictationCaptureFailed
	default:
		return DictationOther
	}
}

// Message returns the user-facing text for the kind.
func (k DictationErrorKind) Message() string {
	switch k {
	case DictationPermissionDenied:
		return "Microphone access was denied. Allow microphone permissions to use dictation."
	case DictationNoSpeech:
		return "No speech was detected. Try speaking closer to the microphone."
	case DictationNetwork:
		return "Dictation lost its network connection. Check your connection and try again."
	case DictationCaptureFailed:
		return "No microphone could be opened. Check that one is connected."
	default:
		return "Dictation stopped unexpectedly. Please try again."
	}
}

type dictationSession struct {
	stream       TranscriptionStream
	languageHint string
	done         chan struct{}
}

// consumeTranscriptEvents delivers stream events to the controller in
// delivery order until the stream closes its channel.
func consumeTranscriptEvents(c *Controller, session *dictationSession) {
	defer close(session.done)

	for event := range session.stream.Events() {
		c.handleTranscriptEvent(session, event)
	}
	c.handleStreamClosed(session)
}
