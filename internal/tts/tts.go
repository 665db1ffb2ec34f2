package tts

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/tahcohcat/vocalize-web/config"
	"github.com/tahcohcat/vocalize-web/internal/mediasession"
)

// Engine is a text-to-speech backend. It satisfies both
// mediasession.Synthesizer and mediasession.VoiceCatalog.
type Engine interface {
	Synthesize(ctx context.Context, req mediasession.SynthesisRequest) (mediasession.SynthesisResponse, error)
	ListVoices(ctx context.Context) ([]mediasession.Voice, error)
	Name() string
	Close() error
}

// New creates the engine selected by cfg.Type.
func New(ctx context.Context, cfg config.TtsConfig) (Engine, error) {
	switch strings.ToLower(cfg.Type) {
	case "google", "":
		return NewGoogleTTS(ctx, cfg)
	case "dummy":
		return NewDummyTts(), nil
	default:
		return nil, fmt.Errorf("unsupported tts type: %s", cfg.Type)
	}
}

// Validate checks the required fields and parameter ranges of a synthesis
// request before it is sent anywhere.
func Validate(req mediasession.SynthesisRequest) error {
	switch {
	case strings.TrimSpace(req.Text) == "":
		return mediasession.ValidationError("text required")
	case req.LanguageCode == "":
		return mediasession.ValidationError("language required")
	case req.VoiceName == "":
		return mediasession.ValidationError("voice required")
	case math.IsNaN(req.Pitch) || req.Pitch < mediasession.MinPitch || req.Pitch > mediasession.MaxPitch:
		return mediasession.ValidationError(fmt.Sprintf("pitch must be between %g and %g", mediasession.MinPitch, mediasession.MaxPitch))
	case math.IsNaN(req.SpeakingRate) || req.SpeakingRate < mediasession.MinSpeakingRate || req.SpeakingRate > mediasession.MaxSpeakingRate:
		return mediasession.ValidationError(fmt.Sprintf("speaking rate must be between %g and %g", mediasession.MinSpeakingRate, mediasession.MaxSpeakingRate))
	}
	return nil
}

// Normalize defaults an omitted speaking rate. Required fields are left for
// Validate to reject.
func Normalize(req mediasession.SynthesisRequest) mediasession.SynthesisRequest {
	if req.SpeakingRate == 0 {
		req.SpeakingRate = mediasession.DefaultRate
	}
	return req
}
