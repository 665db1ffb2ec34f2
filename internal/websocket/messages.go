package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tahcohcat/vocalize-web/internal/mediasession"
)

// FrameType identifies a JSON frame on the session socket.
type FrameType string

// Server to client.
const (
	FrameSnapshot  FrameType = "snapshot"
	FrameTransport FrameType = "transport"
	FrameDictation FrameType = "dictation"
	FrameError     FrameType = "error"
)

// Client to server. Dictation frames flow both ways.
const (
	FrameIntent   FrameType = "intent"
	FrameProgress FrameType = "progress"
	FrameEnded    FrameType = "ended"
)

// TransportAction is a command for the browser's audio element.
type TransportAction string

const (
	ActionLoad   TransportAction = "load"
	ActionPlay   TransportAction = "play"
	ActionPause  TransportAction = "pause"
	ActionSeek   TransportAction = "seek"
	ActionVolume TransportAction = "volume"
	ActionMute   TransportAction = "mute"
	ActionUnload TransportAction = "unload"
)

type ServerFrame struct {
	Type      FrameType               `json:"type"`
	Snapshot  *mediasession.Snapshot  `json:"snapshot,omitempty"`
	Transport *TransportCommand       `json:"transport,omitempty"`
	Dictation *DictationCommand       `json:"dictation,omitempty"`
	Error     *mediasession.ErrorInfo `json:"error,omitempty"`
	Timestamp string                  `json:"timestamp"`
}

type TransportCommand struct {
	Action   TransportAction `json:"action"`
	URL      string          `json:"url,omitempty"`
	MIMEType string          `json:"mimeType,omitempty"`
	Position float64         `json:"position"`
	Volume   float64         `json:"volume"`
	Muted    bool            `json:"muted"`
}

// DictationCommand asks the browser to start or stop capturing speech.
// Mode "browser" uses the browser's own recognizer and relays its events;
// mode "stream" sends raw LINEAR16 audio as binary frames.
type DictationCommand struct {
	Action       string `json:"action"`
	Mode         string `json:"mode,omitempty"`
	LanguageHint string `json:"languageHint,omitempty"`
	SampleRate   int    `json:"sampleRate,omitempty"`
}

type ClientFrame struct {
	Type      FrameType            `json:"type"`
	Intent    *mediasession.Intent `json:"intent,omitempty"`
	Position  float64              `json:"position,omitempty"`
	Duration  float64              `json:"duration,omitempty"`
	Dictation *DictationEvent      `json:"dictation,omitempty"`
}

// DictationEvent is one browser speech-recognition callback.
type DictationEvent struct {
	Kind        mediasession.TranscriptEventKind `json:"kind"`
	ResultIndex int                              `json:"resultIndex"`
	Results     []mediasession.TranscriptSegment `json:"results,omitempty"`
	// Error is the browser's error code, e.g. "not-allowed" or "no-speech".
	Error string `json:"error,omitempty"`
}

func (e DictationEvent) transcriptEvent() mediasession.TranscriptEvent {
	ev := mediasession.TranscriptEvent{
		Kind:        e.Kind,
		ResultIndex: e.ResultIndex,
		Results:     e.Results,
	}
	if e.Kind == mediasession.TranscriptEventError {
		ev.ErrorKind = mediasession.ParseDictationErrorKind(e.Error)
	}
	return ev
}

// ParseClientFrame decodes and validates a text frame.
func ParseClientFrame(data []byte) (ClientFrame, error) {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return ClientFrame{}, mediasession.ValidationError(fmt.Sprintf("invalid frame: %v", err))
	}
	switch frame.Type {
	case FrameIntent:
		if frame.Intent == nil {
			return ClientFrame{}, mediasession.ValidationError("intent frame without intent")
		}
	case FrameDictation:
		if frame.Dictation == nil {
			return ClientFrame{}, mediasession.ValidationError("dictation frame without event")
		}
		switch frame.Dictation.Kind {
		case mediasession.TranscriptEventStart, mediasession.TranscriptEventResult,
			mediasession.TranscriptEventError, mediasession.TranscriptEventEnd:
		default:
			return ClientFrame{}, mediasession.ValidationError(fmt.Sprintf("unknown dictation event %q", frame.Dictation.Kind))
		}
	case FrameProgress, FrameEnded:
	default:
		return ClientFrame{}, mediasession.ValidationError(fmt.Sprintf("unknown frame type %q", frame.Type))
	}
	return frame, nil
}

func newFrame(t FrameType) ServerFrame {
	return ServerFrame{Type: t, Timestamp: time.Now().UTC().Format(time.RFC3339Nano)}
}

func SnapshotFrame(snapshot mediasession.Snapshot) ServerFrame {
	f := newFrame(FrameSnapshot)
	f.Snapshot = &snapshot
	return f
}

func TransportFrame(cmd TransportCommand) ServerFrame {
	f := newFrame(FrameTransport)
	f.Transport = &cmd
	return f
}

func DictationFrame(cmd DictationCommand) ServerFrame {
	f := newFrame(FrameDictation)
	f.Dictation = &cmd
	return f
}

func ErrorFrame(err error) ServerFrame {
	info := mediasession.Describe(err)
	f := newFrame(FrameError)
	f.Error = &info
	return f
}
