// Package stt provides server-side live transcription backed by Google
// Cloud Speech-to-Text streaming recognition.
package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tahcohcat/vocalize-web/config"
	"github.com/tahcohcat/vocalize-web/internal/logger"
	"github.com/tahcohcat/vocalize-web/internal/mediasession"
)

var ErrNotListening = errors.New("no active transcription stream")

type recognizeStream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

type recognizer interface {
	StreamingRecognize(ctx context.Context) (recognizeStream, error)
	Close() error
}

type googleRecognizer struct {
	client *speech.Client
}

func (r googleRecognizer) StreamingRecognize(ctx context.Context) (recognizeStream, error) {
	return r.client.StreamingRecognize(ctx)
}

func (r googleRecognizer) Close() error {
	return r.client.Close()
}

// GoogleSource is a mediasession.TranscriptionSource fed with raw LINEAR16
// audio chunks through Feed.
type GoogleSource struct {
	dial       func(ctx context.Context) (recognizer, error)
	sampleRate int32
	logger     *logger.Log

	mu      sync.Mutex
	current *GoogleStream
}

func NewGoogleSource(cfg config.SttConfig) *GoogleSource {
	return newGoogleSource(func(ctx context.Context) (recognizer, error) {
		client, err := speech.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		return googleRecognizer{client: client}, nil
	}, cfg)
}

func newGoogleSource(dial func(ctx context.Context) (recognizer, error), cfg config.SttConfig) *GoogleSource {
	rate := int32(cfg.SampleRate)
	if rate <= 0 {
		rate = 16000
	}
	return &GoogleSource{dial: dial, sampleRate: rate, logger: logger.New().Named("stt")}
}

// Start opens a streaming recognition session with interim results.
func (s *GoogleSource) Start(ctx context.Context, languageHint string) (mediasession.TranscriptionStream, error) {
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	client, err := s.dial(streamCtx)
	if err != nil {
		cancel()
		return nil, mediasession.DictationFailure(classifyCode(status.Code(err)), fmt.Errorf("failed to create speech client: %w", err))
	}

	rpc, err := client.StreamingRecognize(streamCtx)
	if err != nil {
		client.Close()
		cancel()
		return nil, mediasession.DictationFailure(classifyCode(status.Code(err)), fmt.Errorf("failed to create streaming recognize: %w", err))
	}

	if err := rpc.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            s.sampleRate,
					LanguageCode:               languageHint,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: true,
			},
		},
	}); err != nil {
		rpc.CloseSend()
		client.Close()
		cancel()
		return nil, mediasession.DictationFailure(mediasession.DictationNetwork, fmt.Errorf("failed to send streaming config: %w", err))
	}

	stream := &GoogleStream{
		source: s,
		client: client,
		rpc:    rpc,
		ctx:    streamCtx,
		cancel: cancel,
		audio:  make(chan []byte, 32),
		events: make(chan mediasession.TranscriptEvent, 16),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.current = stream
	s.mu.Unlock()

	stream.events <- mediasession.TranscriptEvent{Kind: mediasession.TranscriptEventStart}
	go stream.sendLoop()
	go stream.receiveLoop()

	s.logger.Debug("streaming recognition started", zap.String("language", languageHint))
	return stream, nil
}

// Feed forwards one audio chunk to the active stream.
func (s *GoogleSource) Feed(chunk []byte) error {
	s.mu.Lock()
	stream := s.current
	s.mu.Unlock()
	if stream == nil {
		return ErrNotListening
	}
	return stream.feed(chunk)
}

func (s *GoogleSource) release(stream *GoogleStream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == stream {
		s.current = nil
	}
}

// GoogleStream is one streaming recognition session.
type GoogleStream struct {
	source *GoogleSource
	client recognizer
	rpc    recognizeStream
	ctx    context.Context
	cancel context.CancelFunc
	audio  chan []byte
	events chan mediasession.TranscriptEvent
	done   chan struct{}

	stopOnce  sync.Once
	committed []mediasession.TranscriptSegment
}

func (g *GoogleStream) Events() <-chan mediasession.TranscriptEvent {
	return g.events
}

// Stop cancels the recognition and waits until the event channel is closed.
func (g *GoogleStream) Stop() error {
	g.stopOnce.Do(func() {
		g.source.release(g)
		g.cancel()
	})
	<-g.done
	return nil
}

func (g *GoogleStream) feed(chunk []byte) error {
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	select {
	case g.audio <- buf:
		return nil
	case <-g.ctx.Done():
		return ErrNotListening
	}
}

func (g *GoogleStream) sendLoop() {
	for {
		select {
		case <-g.ctx.Done():
			_ = g.rpc.CloseSend()
			return
		case chunk := <-g.audio:
			err := g.rpc.Send(&speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: chunk},
			})
			if err != nil {
				// Recv reports the terminal status.
				return
			}
		}
	}
}

func (g *GoogleStream) receiveLoop() {
	defer close(g.done)
	defer close(g.events)
	defer g.client.Close()
	defer g.source.release(g)

	for {
		resp, err := g.rpc.Recv()
		if err != nil {
			switch {
			case g.ctx.Err() != nil:
			case errors.Is(err, io.EOF):
				g.emit(mediasession.TranscriptEvent{Kind: mediasession.TranscriptEventEnd})
			default:
				g.source.logger.WithError(err).Warn("streaming recognition failed")
				g.emit(mediasession.TranscriptEvent{Kind: mediasession.TranscriptEventError, ErrorKind: classifyCode(status.Code(err))})
			}
			return
		}
		if resp.GetError() != nil && resp.GetError().GetCode() != 0 {
			g.emit(mediasession.TranscriptEvent{
				Kind:      mediasession.TranscriptEventError,
				ErrorKind: classifyCode(codes.Code(resp.GetError().GetCode())),
			})
			return
		}
		if len(resp.GetResults()) > 0 {
			g.emit(g.translate(resp.GetResults()))
		}
	}
}

// translate turns one recognition response into a browser-style result
// event: previously committed finals followed by this response's results,
// with ResultIndex pointing at the first new entry.
func (g *GoogleStream) translate(results []*speechpb.StreamingRecognitionResult) mediasession.TranscriptEvent {
	event := mediasession.TranscriptEvent{
		Kind:        mediasession.TranscriptEventResult,
		ResultIndex: len(g.committed),
		Results:     append([]mediasession.TranscriptSegment{}, g.committed...),
	}
	for _, r := range results {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		segment := mediasession.TranscriptSegment{
			Text:  strings.TrimSpace(r.GetAlternatives()[0].GetTranscript()),
			Final: r.GetIsFinal(),
		}
		event.Results = append(event.Results, segment)
		if segment.Final {
			g.committed = append(g.committed, segment)
		}
	}
	return event
}

func (g *GoogleStream) emit(event mediasession.TranscriptEvent) {
	select {
	case g.events <- event:
	case <-g.ctx.Done():
	}
}

func classifyCode(code codes.Code) mediasession.DictationErrorKind {
	switch code {
	case codes.PermissionDenied, codes.Unauthenticated:
		return mediasession.DictationPermissionDenied
	case codes.Unavailable, codes.DeadlineExceeded:
		return mediasession.DictationNetwork
	case codes.OutOfRange:
		return mediasession.DictationNoSpeech
	case codes.InvalidArgument:
		return mediasession.DictationCaptureFailed
	default:
		return mediasession.DictationOther
	}
}
