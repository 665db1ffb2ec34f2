package tts

import (
	"context"
	"encoding/base64"

	"go.uber.org/zap"

	"github.com/tahcohcat/vocalize-web/internal/logger"
	"github.com/tahcohcat/vocalize-web/internal/mediasession"
)

// silentFrame is a single silent MPEG-1 Layer III frame.
var silentFrame = append([]byte{0xFF, 0xFB, 0x90, 0x64}, make([]byte, 413)...)

var dummyVoices = []mediasession.Voice{
	{Name: "en-GB-Standard-A", LanguageCodes: []string{"en-GB"}, SSMLGender: "FEMALE"},
	{Name: "en-US-Standard-B", LanguageCodes: []string{"en-US"}, SSMLGender: "MALE"},
	{Name: "en-US-Standard-C", LanguageCodes: []string{"en-US"}, SSMLGender: "FEMALE"},
}

// DummyTts answers every request with silence so the site runs without
// cloud credentials.
type DummyTts struct {
}

func NewDummyTts() *DummyTts {
	return &DummyTts{}
}

func (d *DummyTts) Synthesize(_ context.Context, req mediasession.SynthesisRequest) (mediasession.SynthesisResponse, error) {
	req = Normalize(req)
	if err := Validate(req); err != nil {
		return mediasession.SynthesisResponse{}, err
	}
	logger.New().Debug("no tts configured, returning silence", zap.String("voice", req.VoiceName))
	return mediasession.SynthesisResponse{
		AudioContentBase64: base64.StdEncoding.EncodeToString(silentFrame),
		MIMEType:           mp3MIMEType,
	}, nil
}

func (d *DummyTts) ListVoices(context.Context) ([]mediasession.Voice, error) {
	out := make([]mediasession.Voice, len(dummyVoices))
	copy(out, dummyVoices)
	return out, nil
}

func (d *DummyTts) Name() string {
	return "dummy"
}

func (d *DummyTts) Close() error {
	return nil
}
