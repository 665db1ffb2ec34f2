package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	tts "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/status"

	"github.com/tahcohcat/vocalize-web/config"
	"github.com/tahcohcat/vocalize-web/internal/logger"
	"github.com/tahcohcat/vocalize-web/internal/mediasession"
)

const mp3MIMEType = "audio/mpeg"

type speechClient interface {
	SynthesizeSpeech(ctx context.Context, req *tts.SynthesizeSpeechRequest) (*tts.SynthesizeSpeechResponse, error)
	ListVoices(ctx context.Context, req *tts.ListVoicesRequest) (*tts.ListVoicesResponse, error)
	Close() error
}

type googleSpeechClient struct {
	*texttospeech.Client
}

func (c googleSpeechClient) SynthesizeSpeech(ctx context.Context, req *tts.SynthesizeSpeechRequest) (*tts.SynthesizeSpeechResponse, error) {
	return c.Client.SynthesizeSpeech(ctx, req)
}

func (c googleSpeechClient) ListVoices(ctx context.Context, req *tts.ListVoicesRequest) (*tts.ListVoicesResponse, error) {
	return c.Client.ListVoices(ctx, req)
}

type GoogleTTS struct {
	client     speechClient
	logger     *logger.Log
	timeout    time.Duration
	sampleRate int32
}

func NewGoogleTTS(ctx context.Context, cfg config.TtsConfig) (*GoogleTTS, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google TTS client: %w", err)
	}

	return newGoogleTTS(googleSpeechClient{client}, cfg), nil
}

func newGoogleTTS(client speechClient, cfg config.TtsConfig) *GoogleTTS {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GoogleTTS{
		client:     client,
		logger:     logger.New().Named("tts"),
		timeout:    timeout,
		sampleRate: int32(cfg.SampleRateHertz),
	}
}

// Synthesize converts text to MP3 and returns it base64 encoded.
func (g *GoogleTTS) Synthesize(ctx context.Context, req mediasession.SynthesisRequest) (mediasession.SynthesisResponse, error) {
	req = Normalize(req)
	if err := Validate(req); err != nil {
		return mediasession.SynthesisResponse{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	g.logger.Debug("synthesizing speech",
		zap.String("voice", req.VoiceName),
		zap.String("language", req.LanguageCode),
		zap.Int("chars", len(req.Text)))

	resp, err := g.client.SynthesizeSpeech(ctx, &tts.SynthesizeSpeechRequest{
		Input: &tts.SynthesisInput{
			InputSource: &tts.SynthesisInput_Text{Text: req.Text},
		},
		Voice: &tts.VoiceSelectionParams{
			LanguageCode: req.LanguageCode,
			Name:         req.VoiceName,
		},
		AudioConfig: &tts.AudioConfig{
			AudioEncoding:   tts.AudioEncoding_MP3, // Use MP3 for web compatibility
			SpeakingRate:    req.SpeakingRate,
			Pitch:           req.Pitch,
			SampleRateHertz: g.sampleRate,
		},
	})
	if err != nil {
		g.logger.WithError(err).Warn("speech synthesis failed", zap.String("voice", req.VoiceName))
		return mediasession.SynthesisResponse{}, classify(err, "speech synthesis failed")
	}

	g.logger.Debug("generated audio", zap.Int("bytes", len(resp.AudioContent)))
	return mediasession.SynthesisResponse{
		AudioContentBase64: base64.StdEncoding.EncodeToString(resp.AudioContent),
		MIMEType:           mp3MIMEType,
	}, nil
}

// ListVoices returns every voice the service offers, sorted by name.
func (g *GoogleTTS) ListVoices(ctx context.Context) ([]mediasession.Voice, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.ListVoices(ctx, &tts.ListVoicesRequest{})
	if err != nil {
		g.logger.WithError(err).Warn("listing voices failed")
		return nil, classify(err, "could not list voices")
	}

	voices := make([]mediasession.Voice, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		voice := mediasession.Voice{
			Name:          v.Name,
			LanguageCodes: v.LanguageCodes,
		}
		if v.SsmlGender != tts.SsmlVoiceGender_SSML_VOICE_GENDER_UNSPECIFIED {
			voice.SSMLGender = v.SsmlGender.String()
		}
		voices = append(voices, voice)
	}
	sort.Slice(voices, func(i, j int) bool { return voices[i].Name < voices[j].Name })
	return voices, nil
}

func (g *GoogleTTS) Name() string {
	return "Google Cloud Text-to-Speech"
}

func (g *GoogleTTS) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// classify reports every remote failure as a service error. The gRPC code
// and details stay in the wrapped cause.
func classify(err error, msg string) error {
	return mediasession.ServiceError(msg, fmt.Errorf("texttospeech %s: %w", status.Code(err), err))
}
